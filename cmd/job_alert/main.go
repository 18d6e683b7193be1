// Package main provides the entry point for the job-alert CLI.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "job_alert",
	Short: "Job board alert pipeline",
	Long:  "job-alert scrapes community job boards, filters postings by keyword relevance, deduplicates against previously-seen postings, and sends one aggregated Slack notification per run.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
