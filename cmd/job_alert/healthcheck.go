package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-alert/internal/config"
	"github.com/jonathan/job-alert/internal/session"
	"github.com/jonathan/job-alert/internal/store"
)

var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck",
	Short: "Validate configuration and storage readiness",
	Long:  "Validate the environment configuration, verify the state database is reachable with its schema in place, and report whether a saved browser session is available.",
	RunE:  runHealthcheck,
}

func init() {
	rootCmd.AddCommand(healthcheckCmd)
}

func runHealthcheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cmd.SilenceUsage = true

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	if _, err := config.LoadSites(settings.SitesConfigPath); err != nil {
		return err
	}

	st, err := store.Open(ctx, settings.DatabaseURL)
	if err != nil {
		return fmt.Errorf("state database check failed: %w", err)
	}
	defer st.Close()

	notified, err := st.CountNotified(ctx)
	if err != nil {
		return fmt.Errorf("state database check failed: %w", err)
	}
	fmt.Fprintf(os.Stdout, "state database ready: %d postings in notified-set\n", notified)

	hasState, err := session.Ensure(settings.HojubadaStorageStateB64, settings.HojubadaStoragePath)
	switch {
	case err != nil:
		fmt.Fprintf(os.Stdout, "saved session decode failed, automatic login will be used: %v\n", err)
	case hasState:
		fmt.Fprintf(os.Stdout, "saved browser session ready: %s\n", settings.HojubadaStoragePath)
	default:
		fmt.Fprintln(os.Stdout, "no saved browser session; automatic login will be used")
	}

	fmt.Fprintln(os.Stdout, "healthcheck passed")
	return nil
}
