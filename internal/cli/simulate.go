package cli

import (
	"github.com/spf13/cobra"
)

var (
	simulatePosture string
	simulateMinutes int
)

var simulateCmd = &cobra.Command{
	Use:   "simulate-warn",
	Short: "模拟一次久坐/久卧告警并通过告警通道发送",
	RunE: func(cmd *cobra.Command, args []string) error {
		return getApp().SimulateWarn(cmd.Context(), simulatePosture, simulateMinutes)
	},
}

func init() {
	simulateCmd.Flags().StringVar(&simulatePosture, "posture", "sitting", "告警姿态（sitting 或 lying）")
	simulateCmd.Flags().IntVar(&simulateMinutes, "minutes", 0, "告警携带的时长，默认取 monitor.notification_minutes")
}
