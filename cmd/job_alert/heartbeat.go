package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-alert/internal/pipeline"
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Send a weekly status message when no postings have surfaced",
	Long:  "Send a low-frequency status message covering current site failure streaks, so a long stretch without new postings is still visible. The run pipeline itself never notifies without new content.",
	RunE:  runHeartbeat,
}

func init() {
	rootCmd.AddCommand(heartbeatCmd)
}

func runHeartbeat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cmd.SilenceUsage = true

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	sent, err := pipeline.RunHeartbeat(ctx, a.store, a.notifier, a.sources(),
		a.settings.TZ, a.settings.ErrorAlertThreshold, a.log)
	if err != nil {
		return fmt.Errorf("heartbeat failed: %w", err)
	}

	if sent {
		fmt.Fprintln(os.Stdout, "heartbeat sent")
	} else {
		fmt.Fprintln(os.Stdout, "heartbeat not due")
	}
	return nil
}
