package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/arborcache/engine/internal/async"
	"github.com/arborcache/engine/internal/cacheerr"
	"github.com/arborcache/engine/internal/eviction"
)

var (
	evictPolicy      string
	evictTargetBytes int64
)

var evictCmd = &cobra.Command{
	Use:   "evict",
	Short: "Reduce the cache store to a target size using a victim-selection policy",
	RunE: func(cmd *cobra.Command, args []string) error {
		policy := eviction.Policy(evictPolicy)
		switch policy {
		case eviction.PolicyLRU, eviction.PolicyOldestFirst, eviction.PolicyLargestFirst,
			eviction.PolicyMostExpensive, eviction.PolicyLeastExpensive:
		default:
			return cacheerr.BadInputs(fmt.Sprintf("unknown eviction policy %q", evictPolicy), nil)
		}
		if evictTargetBytes < 0 {
			return cacheerr.BadInputs("--target-bytes must not be negative", nil)
		}

		tool, cleanup, err := openTool()
		if err != nil {
			return err
		}
		defer cleanup()

		n, bytesFreed, err := tool.Evict(cmd.Context(), policy, evictTargetBytes, func(p async.EvictionProgress) {
			fmt.Fprintf(cmd.OutOrStdout(), "\revicted %d, freed %d/%d bytes", p.Evicted, p.BytesFreed, p.TotalBytes)
		})
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "evicted %d entries, freed %d bytes\n", n, bytesFreed)
		return nil
	},
}

func init() {
	evictCmd.Flags().StringVar(&evictPolicy, "policy", string(eviction.PolicyLRU), "victim-selection policy: LRU|OldestFirst|LargestFirst|MostExpensive|LeastExpensive")
	evictCmd.Flags().Int64Var(&evictTargetBytes, "target-bytes", 1<<30, "target total payload size in bytes")
}
