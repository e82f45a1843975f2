package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/arborcache/engine/internal/cachestore"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Report aggregate cache store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, cleanup, err := openTool()
		if err != nil {
			return err
		}
		defer cleanup()

		stats, err := tool.Stats(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "entries:     %d\n", stats.TotalEntries)
		fmt.Fprintf(out, "bytes:       %d\n", stats.TotalBytes)
		fmt.Fprintf(out, "tokens:      %d\n", stats.TotalTokens)
		fmt.Fprintf(out, "est. cost:   %.4f\n", stats.EstimatedCostTotal)
		fmt.Fprintf(out, "hits/misses: %d/%d\n", stats.Hits, stats.Misses)

		kinds := make([]string, 0, len(stats.ByOperation))
		for k := range stats.ByOperation {
			kinds = append(kinds, string(k))
		}
		sort.Strings(kinds)
		for _, k := range kinds {
			b := stats.ByOperation[cachestore.OperationKind(k)]
			fmt.Fprintf(out, "  %s: %d entries, %d bytes, %d tokens\n", k, b.Entries, b.Bytes, b.Tokens)
		}
		return nil
	},
}
