package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search YouTube for videos",
	Long: `Searches YouTube and lists matching videos without storing anything.
Pass a result's URL to "dz harvest" to add it to the knowledge base.`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	needsServices(searchCmd)
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	svc, err := requireHarvest()
	if err != nil {
		return err
	}

	videos, err := svc.SearchVideos(cmd.Context(), args[0], searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	printVideos(cmd.OutOrStdout(), videos)
	return nil
}
