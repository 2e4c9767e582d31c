package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ereinha3/eznas/pkg/config"
	"github.com/ereinha3/eznas/pkg/log"
	"github.com/ereinha3/eznas/pkg/metrics"
	"github.com/ereinha3/eznas/pkg/store"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	flagRoot     string
	flagLogJSON  bool
	flagLogLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			if exit.message != "" {
				fmt.Fprintf(os.Stderr, "Error: %s\n", exit.message)
			}
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "eznas",
	Short: "eznas - convergent orchestrator for a self-hosted media stack",
	Long: `eznas turns one declarative stack document into a running,
configured media cluster: qBittorrent, Radarr, Sonarr, Prowlarr,
Jellyfin and Jellyseerr wired together, plus a post-processing
pipeline that remuxes finished downloads into the library.

Every apply is a convergence run: render the compose bundle, deploy
it, then drive each service's API until it matches the document.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		initLogging()
		metrics.SetVersion(Version)
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"eznas version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&flagRoot, "root", "",
		"state root directory (default: $ORCH_ROOT or the working directory)")
	rootCmd.PersistentFlags().BoolVar(&flagLogJSON, "log-json", false,
		"emit JSON logs instead of console output")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "",
		"log level: debug, info, warn, error")
}

func initLogging() {
	level := log.InfoLevel
	if config.DebugEnabled() {
		level = log.DebugLevel
	}
	if flagLogLevel != "" {
		level = log.Level(flagLogLevel)
	}
	log.Init(log.Config{Level: level, JSONOutput: flagLogJSON})
}

func stateRoot() string {
	if flagRoot != "" {
		return flagRoot
	}
	cwd, err := os.Getwd()
	if err != nil {
		cwd = "."
	}
	return config.Root(cwd)
}

func openStore(readOnly bool) *store.Store {
	return store.New(stateRoot(), readOnly)
}

// exitError carries a process exit code through cobra.
type exitError struct {
	code    int
	message string
}

func (e *exitError) Error() string { return e.message }
