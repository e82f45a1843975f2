package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arborcache/engine/pkg/maintenance"
)

var clearCmd = &cobra.Command{
	Use:   "clear <scope>",
	Short: "Remove cache entries matching scope: all | kind=K | repo=R",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		scope, err := maintenance.ParseScope(args[0])
		if err != nil {
			return err
		}

		tool, cleanup, err := openTool()
		if err != nil {
			return err
		}
		defer cleanup()

		n, err := tool.Clear(cmd.Context(), scope)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries\n", n)
		return nil
	},
}
