package cli

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
)

func partialReport() *domain.HarvestReport {
	return &domain.HarvestReport{
		RunID:    "run-1",
		SourceID: 7,
		Items: []domain.ItemOutcome{
			{ItemID: 11, Title: "Concurrency talk", Chunks: 4},
			{ItemID: 3, Title: "Old talk", Skipped: true},
		},
		Failures: []domain.UnitFailure{
			{Title: "Broken talk", URL: "https://youtu.be/bbbbbbbbbbb", Err: errors.New("no captions")},
		},
	}
}

func TestHarvestCmd_RequiresExactlyOneArg(t *testing.T) {
	setupTestServices(t)

	_, err := execute(t, "harvest")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestHarvestCmd_PrintsReport(t *testing.T) {
	h, _ := setupTestServices(t)
	h.report = partialReport()
	h.err = h.report.Err()

	out, err := execute(t, "harvest", "https://www.youtube.com/@gophers")

	assert.ErrorIs(t, err, domain.ErrPartialHarvest)
	assert.Equal(t, []string{"Harvest"}, h.calls)
	assert.Equal(t, "https://www.youtube.com/@gophers", h.gotURL)
	assert.Contains(t, out, "Source #7")
	assert.Contains(t, out, "stored item #11 Concurrency talk (4 chunks)")
	assert.Contains(t, out, "skipped Old talk (already harvested)")
	assert.Contains(t, out, "failed Broken talk (https://youtu.be/bbbbbbbbbbb): no captions")
	assert.Contains(t, out, "Run run-1: 1 stored, 1 skipped, 1 failed")
}

func TestHarvestCmd_FatalErrorWithoutReport(t *testing.T) {
	h, _ := setupTestServices(t)
	h.err = domain.ErrInvalidInput

	out, err := execute(t, "harvest", "not a url")

	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.NotContains(t, out, "Run ")
}

func TestHarvestChannelCmd_Flags(t *testing.T) {
	limit := harvestChannelCmd.Flags().Lookup("limit")
	require.NotNil(t, limit)
	assert.Equal(t, "l", limit.Shorthand)

	workers := harvestChannelCmd.Flags().Lookup("workers")
	require.NotNil(t, workers)
	assert.Equal(t, "w", workers.Shorthand)
	assert.Equal(t, "1", workers.DefValue)
}

func TestHarvestChannelCmd_PassesOptions(t *testing.T) {
	h, _ := setupTestServices(t)
	h.report = &domain.HarvestReport{RunID: "run-2"}

	_, err := execute(t, "harvest-channel", "-l", "5", "-w", "3", "https://www.youtube.com/@gophers")

	require.NoError(t, err)
	assert.Equal(t, []string{"HarvestChannel"}, h.calls)
	assert.Equal(t, 5, h.gotChannel.Limit)
	assert.Equal(t, 3, h.gotChannel.Workers)
}

func TestHarvestChannelCmd_List(t *testing.T) {
	h, _ := setupTestServices(t)
	h.videos = []driven.VideoInfo{
		{ID: "aaaaaaaaaaa", Title: "Concurrency talk", URL: "https://youtu.be/aaaaaaaaaaa", Duration: 192},
	}

	out, err := execute(t, "harvest-channel", "--list", "https://www.youtube.com/@gophers")

	require.NoError(t, err)
	assert.Equal(t, []string{"ListChannel"}, h.calls)
	assert.Equal(t, defaultListLimit, h.gotLimit)
	assert.Contains(t, out, "[1] Concurrency talk")
	assert.Contains(t, out, "https://youtu.be/aaaaaaaaaaa | 03:12")
}

func TestHarvestRepoCmd_RepeatableInclude(t *testing.T) {
	h, _ := setupTestServices(t)
	h.report = &domain.HarvestReport{RunID: "run-3"}

	_, err := execute(t, "harvest-repo", "--include", "*.go", "--include", "docs/**", "https://github.com/octo/demo")

	require.NoError(t, err)
	assert.Equal(t, []string{"*.go", "docs/**"}, h.gotRepo.Include)
	assert.Equal(t, "https://github.com/octo/demo", h.gotURL)
}

func TestHarvestRepoCmd_NoIncludeMeansAll(t *testing.T) {
	h, _ := setupTestServices(t)
	h.report = &domain.HarvestReport{RunID: "run-4"}

	_, err := execute(t, "harvest-repo", "https://github.com/octo/demo")

	require.NoError(t, err)
	assert.Empty(t, h.gotRepo.Include)
}

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "limit flag should exist")
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "10", flag.DefValue)
}

func TestSearchCmd_ListsVideos(t *testing.T) {
	h, _ := setupTestServices(t)
	h.videos = []driven.VideoInfo{
		{Title: "Go generics", URL: "https://youtu.be/ccccccccccc", ChannelName: "Gophers"},
		{Title: "Go fuzzing", URL: "https://youtu.be/ddddddddddd"},
	}

	out, err := execute(t, "search", "-n", "2", "go generics")

	require.NoError(t, err)
	assert.Equal(t, 2, h.gotLimit)
	assert.Equal(t, "go generics", h.gotURL)
	assert.Contains(t, out, "[1] Go generics")
	assert.Contains(t, out, "https://youtu.be/ccccccccccc | Gophers")
	assert.Contains(t, out, "[2] Go fuzzing")
}

func TestSearchCmd_NoResults(t *testing.T) {
	setupTestServices(t)

	out, err := execute(t, "search", "nothing")

	require.NoError(t, err)
	assert.Contains(t, out, "No videos found.")
}
