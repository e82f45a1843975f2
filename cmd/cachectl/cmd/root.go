// Package cmd implements cachectl, the maintenance CLI for the cache
// and retrieval engine: migrate, evict, stats, and clear, per
// spec.md §6.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/arborcache/engine/internal/cacheerr"
	"github.com/arborcache/engine/internal/cachestore"
	"github.com/arborcache/engine/internal/codec"
	"github.com/arborcache/engine/internal/config"
	"github.com/arborcache/engine/internal/logging"
	"github.com/arborcache/engine/pkg/maintenance"
)

var (
	storePathFlag string
	debugFlag     bool
)

var rootCmd = &cobra.Command{
	Use:   "cachectl",
	Short: "Maintenance CLI for the arborcache engine's cache store",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		logCfg := logging.DefaultConfig()
		if debugFlag {
			logCfg = logging.DebugConfig()
		}
		logger, _, err := logging.Setup(logCfg)
		if err != nil {
			return cacheerr.BadInputs("failed to set up logging", err)
		}
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&storePathFlag, "store", "", "path to the cache store (default: configured store path)")
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	rootCmd.AddCommand(migrateCmd, evictCmd, statsCmd, clearCmd)
}

// Execute runs the CLI, returning any error for main to classify into
// an exit code.
func Execute() error {
	return rootCmd.Execute()
}

// ExitCodeFor maps an error to the exit codes reserved by spec.md §6:
// 0 success, 1 invalid inputs, 2 store unavailable, 3 migration
// verification failed, 4 cancelled. Any other error also exits 1.
func ExitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	switch cacheerr.Code(err) {
	case cacheerr.CodeStoreUnavailable:
		return 2
	case cacheerr.CodeVerificationFailed:
		return 3
	case cacheerr.CodeCancelled:
		return 4
	default:
		return 1
	}
}

// openTool opens the cache store at the configured or flag-provided
// path and wraps it in a maintenance.Tool.
func openTool() (*maintenance.Tool, func(), error) {
	path := storePathFlag
	if path == "" {
		cfg := config.NewConfig()
		path = cfg.Cache.StorePath
	}

	store, err := cachestore.Open(path)
	if err != nil {
		return nil, nil, err
	}

	c, err := codec.New()
	if err != nil {
		_ = store.Close()
		return nil, nil, cacheerr.StoreUnavailable("failed to initialize codec", err)
	}

	tool := maintenance.New(store, c)
	cleanup := func() { _ = store.Close() }
	return tool, cleanup, nil
}
