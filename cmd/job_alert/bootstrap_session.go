package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonathan/job-alert/internal/session"
)

var bootstrapSessionCmd = &cobra.Command{
	Use:   "bootstrap-session",
	Short: "Open a browser, complete the site login by hand, and save the session",
	Long:  "Open a real browser at the site's login page so the Kakao login (including any extra verification) can be completed manually, then save the authenticated session for headless scraping.",
	RunE:  runBootstrapSession,
}

var (
	bootstrapLoginURL string
	bootstrapOutput   string
)

func init() {
	bootstrapSessionCmd.Flags().StringVar(&bootstrapLoginURL, "login-url",
		"http://hojubada.com/bbs/login.php", "Login URL to open for manual authentication")
	bootstrapSessionCmd.Flags().StringVarP(&bootstrapOutput, "output", "o", "",
		"Override the storage state output path")

	rootCmd.AddCommand(bootstrapSessionCmd)
}

func runBootstrapSession(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cmd.SilenceUsage = true

	settings, err := loadSettings()
	if err != nil {
		return err
	}

	outPath := bootstrapOutput
	if outPath == "" {
		outPath = settings.HojubadaStoragePath
	}

	waitForLogin := func() {
		fmt.Fprintln(os.Stdout, "Finish the login in the browser, then press Enter here to save the session.")
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
	}
	if err := session.Bootstrap(ctx, bootstrapLoginURL, outPath, waitForLogin); err != nil {
		return err
	}

	encoded, err := session.EncodeB64(outPath)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "saved storage state to: %s\n", outPath)
	fmt.Fprintln(os.Stdout, "optional: set this value as HOJUBADA_STORAGE_STATE_B64 secret for faster startup:")
	fmt.Fprintln(os.Stdout, encoded)
	return nil
}
