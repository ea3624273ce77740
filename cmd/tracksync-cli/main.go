package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/tracksync/client"
)

// Build-time variables set via ldflags.
var (
	version   = "0.1.0"
	commit    = ""
	buildDate = ""
)

const defaultURL = "http://localhost:3030"

var (
	apiClient   *client.Client
	flagURL     string
	flagProfile string
	flagFmt     string
	flagTimeout time.Duration
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("tracksync-cli version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("tracksync-cli version %s-dev", version)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "tracksync-cli",
		Short:   "tracksync CLI: sync, audit and query the music mirrors",
		Version: versionString(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			s := resolveConfig()
			apiClient = client.New(s.URL, client.WithTimeout(s.Timeout))
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", defaultURL, "tracksync server URL (env: TRACKSYNC_URL)")
	rootCmd.PersistentFlags().StringVar(&flagProfile, "profile", "", "Config profile (env: TRACKSYNC_PROFILE)")
	rootCmd.PersistentFlags().StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet")
	rootCmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", 0, "HTTP timeout; full syncs may need several minutes")

	initCmd := newInitCmd()
	initCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {} // skip client setup
	doctorCmd := newDoctorCmd()
	doctorCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {} // skip client setup

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newGraphCmd())
	rootCmd.AddCommand(newRecommendCmd())
	rootCmd.AddCommand(newSearchCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newLedgerCmd())
	rootCmd.AddCommand(newJournalCmd())
	rootCmd.AddCommand(newEventsCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}
