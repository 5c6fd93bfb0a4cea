package driving

import (
	"context"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
)

// ChannelOptions configures a channel harvest.
type ChannelOptions struct {
	// Limit is the maximum number of recent videos to harvest.
	Limit int

	// Workers is how many videos are processed at once. Values below 2 mean sequential.
	Workers int
}

// RepoOptions configures a repository harvest.
type RepoOptions struct {
	// Include holds glob patterns such as "*.go" or "docs/**". Empty means all files.
	Include []string
}

// HarvestService ingests external content into the knowledge base.
// Every method that stores content returns a report, even when it also
// returns an error. A report with failures yields domain.ErrPartialHarvest.
type HarvestService interface {
	// Harvest detects the URL kind and dispatches to the matching method.
	Harvest(ctx context.Context, url string) (*domain.HarvestReport, error)

	// HarvestVideo stores one video's transcript.
	HarvestVideo(ctx context.Context, url string) (*domain.HarvestReport, error)

	// HarvestChannel stores a channel's most recent videos.
	HarvestChannel(ctx context.Context, url string, opts ChannelOptions) (*domain.HarvestReport, error)

	// ListChannel lists a channel's most recent videos without storing anything.
	ListChannel(ctx context.Context, url string, limit int) ([]driven.VideoInfo, error)

	// HarvestRepo stores a repository's text files.
	HarvestRepo(ctx context.Context, url string, opts RepoOptions) (*domain.HarvestReport, error)

	// HarvestArticle stores one web article.
	HarvestArticle(ctx context.Context, url string) (*domain.HarvestReport, error)

	// SearchVideos searches for videos without storing anything.
	SearchVideos(ctx context.Context, query string, limit int) ([]driven.VideoInfo, error)
}
