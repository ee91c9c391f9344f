package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"posturewatch/internal/app"
)

var (
	replaySpeed  float64
	replayNotify bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <capture.csv>",
	Short: "Run the pipeline over a recorded capture and print the events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if replaySpeed < 0 {
			return fmt.Errorf("--speed cannot be negative")
		}
		return getApp().Replay(cmd.Context(), app.ReplayOptions{
			Path:   args[0],
			Speed:  replaySpeed,
			Notify: replayNotify,
			Out:    cmd.OutOrStdout(),
		})
	},
}

func init() {
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 0, "Playback speed multiplier (0 = as fast as possible)")
	replayCmd.Flags().BoolVar(&replayNotify, "notify", false, "Also deliver events to the configured alert channels")
}
