package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arborcache/engine/internal/async"
	"github.com/arborcache/engine/internal/migration"
)

var (
	migrateBackup bool
	migrateVerify bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate <source>",
	Short: "Convert a legacy file-per-entry cache tree into the cache store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, cleanup, err := openTool()
		if err != nil {
			return err
		}
		defer cleanup()

		opts := migration.Options{Backup: migrateBackup, Verify: migrateVerify}
		result, err := tool.Migrate(cmd.Context(), args[0], opts, func(p async.MigrationProgress) {
			fmt.Fprintf(cmd.OutOrStdout(), "\rmigrated %d/%d (failed %d)", p.Migrated, p.Total, p.Failed)
		})
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "migrated %d of %d records (%d failed), %d bytes saved\n",
			result.Migrated, result.Total, result.Failed, result.BytesSaved)
		for _, f := range result.Failures {
			fmt.Fprintf(cmd.ErrOrStderr(), "  failed: %s: %s\n", f.Path, f.ErrorMessage)
		}

		if result.VerificationFailed != nil {
			return result.VerificationFailed
		}
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateBackup, "backup", false, "back up the source tree before migrating")
	migrateCmd.Flags().BoolVar(&migrateVerify, "verify", false, "verify the destination row count after migrating")
}
