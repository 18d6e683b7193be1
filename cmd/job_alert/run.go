package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one scrape, filter, dedupe, and notify cycle",
	Long:  "Scrape every configured site once, keep keyword-relevant postings, drop everything already notified, update failure streaks, and send one aggregated Slack message if there is anything new.",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.newPipeline().Run(ctx)
	if err != nil {
		return fmt.Errorf("run failed: %w", err)
	}

	fmt.Fprintf(os.Stdout, "run summary: collected=%d matched=%d new=%d failed_sites=%d sent=%v\n",
		result.TotalCollected, result.KeywordMatched, len(result.NewPostings),
		result.FailedSites, result.Sent)

	cmd.SilenceUsage = true
	if result.FailedSites > 0 && result.SuccessSites == 0 {
		return fmt.Errorf("all %d sites failed", result.FailedSites)
	}
	return nil
}
