package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Run the pipeline on a fixed interval",
	Long:  "Run the pipeline immediately and then on a fixed interval until interrupted. Overlapping runs are skipped, since the pipeline assumes single-writer access to its state per run.",
	RunE:  runSchedule,
}

var scheduleEvery time.Duration

func init() {
	scheduleCmd.Flags().DurationVar(&scheduleEvery, "every", 6*time.Hour, "Interval between pipeline runs")
	rootCmd.AddCommand(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cmd.SilenceUsage = true

	if scheduleEvery < time.Minute {
		return fmt.Errorf("--every must be at least 1m, got %s", scheduleEvery)
	}

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	p := a.newPipeline()
	runOnce := func() {
		if _, err := p.Run(ctx); err != nil {
			a.log.Error("scheduled run failed", "error", err)
		}
	}

	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", scheduleEvery), runOnce); err != nil {
		return fmt.Errorf("failed to schedule pipeline: %w", err)
	}

	c.Start()
	a.log.Info("scheduler started", "every", scheduleEvery.String())
	go runOnce()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	a.log.Info("shutting down", "signal", sig.String())

	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}
