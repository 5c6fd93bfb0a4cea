package driven

import "context"

// VideoInfo is the metadata of one video.
type VideoInfo struct {
	ID          string
	Title       string
	URL         string
	Description string

	// Duration is in seconds.
	Duration float64

	ChannelName string
	ChannelURL  string
	UploadDate  string
}

// VideoDownloader fetches video metadata and audio.
type VideoDownloader interface {
	// Info returns metadata for a single video URL.
	Info(ctx context.Context, url string) (*VideoInfo, error)

	// DownloadAudio writes the video's audio track into dir and returns the file path.
	DownloadAudio(ctx context.Context, url, dir string) (string, error)
}

// VideoCatalog lists videos without downloading them.
type VideoCatalog interface {
	// Search returns up to limit videos matching query.
	Search(ctx context.Context, query string, limit int) ([]VideoInfo, error)

	// ListChannel returns up to limit of the channel's most recent videos.
	ListChannel(ctx context.Context, channelURL string, limit int) ([]VideoInfo, error)
}
