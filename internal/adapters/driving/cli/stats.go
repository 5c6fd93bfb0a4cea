package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base counts",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	needsServices(statsCmd)
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, _ []string) error {
	svc, err := requireQuery()
	if err != nil {
		return err
	}

	stats, err := svc.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Sources: %d\n", stats.Sources)
	fmt.Fprintf(out, "Items:   %d\n", stats.Items)

	kinds := make([]domain.ItemKind, 0, len(stats.ItemsByKind))
	for k := range stats.ItemsByKind {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	for _, k := range kinds {
		fmt.Fprintf(out, "  %-10s %d\n", k, stats.ItemsByKind[k])
	}

	fmt.Fprintf(out, "Chunks:  %d\n", stats.Chunks)
	return nil
}
