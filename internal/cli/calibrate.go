package cli

import (
	"github.com/spf13/cobra"

	"posturewatch/internal/app"
)

var (
	calibrateSubject string
	calibrateDryRun  bool
)

var calibrateCmd = &cobra.Command{
	Use:   "calibrate <capture.csv>",
	Short: "Build a subject calibration profile from a resting capture",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().Calibrate(cmd.Context(), app.CalibrateOptions{
			Path:    args[0],
			Subject: calibrateSubject,
			DryRun:  calibrateDryRun,
			Out:     cmd.OutOrStdout(),
		})
	},
}

func init() {
	calibrateCmd.Flags().StringVar(&calibrateSubject, "subject", "", "Subject id (defaults to app.subject_id)")
	calibrateCmd.Flags().BoolVar(&calibrateDryRun, "dry-run", false, "Print the profile instead of saving it")
}
