package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/audiovideoron/distillyzer/internal/core/ports/driving"
)

// defaultListLimit is how many videos "harvest-channel --list" shows.
const defaultListLimit = 10

var (
	channelLimit   int
	channelWorkers int
	channelList    bool

	repoInclude []string
)

var harvestCmd = &cobra.Command{
	Use:   "harvest [url]",
	Short: "Harvest a video, channel, repository or article",
	Long: `Detects what the URL points at and stores it in the knowledge base:

  YouTube video     transcript chunks with timestamps
  YouTube channel   the most recent videos (see harvest-channel for options)
  GitHub repo       text files chunked with line ranges
  anything else     the page converted to Markdown

Items that are already stored are skipped.`,
	Args: cobra.ExactArgs(1),
	RunE: runHarvest,
}

var harvestChannelCmd = &cobra.Command{
	Use:   "harvest-channel [url]",
	Short: "Harvest the most recent videos of a channel",
	Long: `Harvests a YouTube channel's most recent videos.
Videos are transcribed in parallel when --workers is above 1.
With --list, only prints the videos that would be harvested.`,
	Args: cobra.ExactArgs(1),
	RunE: runHarvestChannel,
}

var harvestRepoCmd = &cobra.Command{
	Use:   "harvest-repo [url]",
	Short: "Harvest the files of a GitHub repository",
	Long: `Harvests a GitHub repository's text files at the default branch.
Use --include to restrict files, e.g. --include '*.go' --include 'docs/**'.`,
	Args: cobra.ExactArgs(1),
	RunE: runHarvestRepo,
}

func init() {
	harvestChannelCmd.Flags().IntVarP(&channelLimit, "limit", "l", 0,
		"maximum number of videos (default 50, or 10 with --list)")
	harvestChannelCmd.Flags().IntVarP(&channelWorkers, "workers", "w", 1, "videos processed in parallel")
	harvestChannelCmd.Flags().BoolVar(&channelList, "list", false, "list videos without harvesting")

	harvestRepoCmd.Flags().StringArrayVar(&repoInclude, "include", nil, "glob of files to include (repeatable)")

	for _, c := range []*cobra.Command{harvestCmd, harvestChannelCmd, harvestRepoCmd} {
		needsServices(c)
		rootCmd.AddCommand(c)
	}
}

func runHarvest(cmd *cobra.Command, args []string) error {
	svc, err := requireHarvest()
	if err != nil {
		return err
	}

	report, err := svc.Harvest(cmd.Context(), args[0])
	printReport(cmd.OutOrStdout(), report)
	return err
}

func runHarvestChannel(cmd *cobra.Command, args []string) error {
	svc, err := requireHarvest()
	if err != nil {
		return err
	}

	if channelList {
		limit := channelLimit
		if limit <= 0 {
			limit = defaultListLimit
		}
		videos, err := svc.ListChannel(cmd.Context(), args[0], limit)
		if err != nil {
			return fmt.Errorf("list channel: %w", err)
		}
		printVideos(cmd.OutOrStdout(), videos)
		return nil
	}

	report, err := svc.HarvestChannel(cmd.Context(), args[0], driving.ChannelOptions{
		Limit:   channelLimit,
		Workers: channelWorkers,
	})
	printReport(cmd.OutOrStdout(), report)
	return err
}

func runHarvestRepo(cmd *cobra.Command, args []string) error {
	svc, err := requireHarvest()
	if err != nil {
		return err
	}

	report, err := svc.HarvestRepo(cmd.Context(), args[0], driving.RepoOptions{Include: repoInclude})
	printReport(cmd.OutOrStdout(), report)
	return err
}
