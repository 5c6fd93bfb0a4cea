// Package youtube lists and searches videos through the YouTube Data API v3.
// It is used instead of yt-dlp for listings when an API key is configured.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	yt "google.golang.org/api/youtube/v3"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/retry"
)

// Ensure Catalog implements the interface.
var _ driven.VideoCatalog = (*Catalog)(nil)

// maxPageSize is the largest page the API returns.
const maxPageSize = 50

// DefaultSearchLimit is used when a non-positive limit is given.
const DefaultSearchLimit = 10

// Catalog implements driven.VideoCatalog over the Data API.
type Catalog struct {
	svc *yt.Service
}

// NewCatalog creates a catalog authenticated with an API key. Extra options
// are applied after the key, so tests can point the service at a local server.
func NewCatalog(ctx context.Context, apiKey string, opts ...option.ClientOption) (*Catalog, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: YouTube API key", domain.ErrConfigMissing)
	}
	svc, err := yt.NewService(ctx, append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &Catalog{svc: svc}, nil
}

// Search returns up to limit videos matching query, with durations.
func (c *Catalog) Search(ctx context.Context, query string, limit int) ([]driven.VideoInfo, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty search query", domain.ErrInvalidInput)
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	resp, err := c.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		MaxResults(int64(min(limit, maxPageSize))).
		Context(ctx).
		Do()
	if err != nil {
		return nil, wrapError("search", err)
	}

	videos := make([]driven.VideoInfo, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" || item.Snippet == nil {
			continue
		}
		s := item.Snippet
		videos = append(videos, driven.VideoInfo{
			ID:          item.Id.VideoId,
			Title:       s.Title,
			URL:         domain.VideoURL(item.Id.VideoId),
			Description: s.Description,
			ChannelName: s.ChannelTitle,
			ChannelURL:  channelURL(s.ChannelId),
			UploadDate:  uploadDate(s.PublishedAt),
		})
	}
	if err := c.fillDurations(ctx, videos); err != nil {
		return nil, err
	}
	return videos, nil
}

// ListChannel returns up to limit of the channel's most recent uploads.
// A non-positive limit lists everything.
func (c *Catalog) ListChannel(ctx context.Context, channel string, limit int) ([]driven.VideoInfo, error) {
	ch, err := c.resolveChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	if ch.ContentDetails == nil || ch.ContentDetails.RelatedPlaylists == nil ||
		ch.ContentDetails.RelatedPlaylists.Uploads == "" {
		return nil, fmt.Errorf("%w: channel %s has no uploads playlist", domain.ErrNotFound, channel)
	}
	uploads := ch.ContentDetails.RelatedPlaylists.Uploads
	chName := ""
	if ch.Snippet != nil {
		chName = ch.Snippet.Title
	}

	var videos []driven.VideoInfo
	pageToken := ""
	for {
		pageSize := maxPageSize
		if limit > 0 {
			pageSize = min(limit-len(videos), maxPageSize)
		}
		call := c.svc.PlaylistItems.List([]string{"snippet", "contentDetails"}).
			PlaylistId(uploads).
			MaxResults(int64(pageSize)).
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		resp, err := call.Do()
		if err != nil {
			return nil, wrapError("list uploads", err)
		}

		for _, item := range resp.Items {
			id := playlistVideoID(item)
			if id == "" {
				continue
			}
			v := driven.VideoInfo{
				ID:          id,
				URL:         domain.VideoURL(id),
				ChannelName: chName,
				ChannelURL:  channelURL(ch.Id),
			}
			if s := item.Snippet; s != nil {
				v.Title = s.Title
				v.Description = s.Description
				v.UploadDate = uploadDate(s.PublishedAt)
			}
			if cd := item.ContentDetails; cd != nil && cd.VideoPublishedAt != "" {
				v.UploadDate = uploadDate(cd.VideoPublishedAt)
			}
			videos = append(videos, v)
		}

		pageToken = resp.NextPageToken
		if pageToken == "" || (limit > 0 && len(videos) >= limit) {
			break
		}
	}

	if err := c.fillDurations(ctx, videos); err != nil {
		return nil, err
	}
	return videos, nil
}

func (c *Catalog) resolveChannel(ctx context.Context, channel string) (*yt.Channel, error) {
	call := c.svc.Channels.List([]string{"snippet", "contentDetails"}).Context(ctx)
	switch ref := parseChannelRef(channel); ref.kind {
	case refID:
		call = call.Id(ref.value)
	case refHandle:
		call = call.ForHandle(ref.value)
	case refUsername:
		call = call.ForUsername(ref.value)
	default:
		return nil, fmt.Errorf("%w: not a YouTube channel URL: %q", domain.ErrInvalidInput, channel)
	}

	resp, err := call.Do()
	if err != nil {
		return nil, wrapError("resolve channel", err)
	}
	if len(resp.Items) == 0 {
		return nil, fmt.Errorf("%w: channel %s", domain.ErrNotFound, channel)
	}
	return resp.Items[0], nil
}

// fillDurations looks up contentDetails for the videos in pages of 50.
func (c *Catalog) fillDurations(ctx context.Context, videos []driven.VideoInfo) error {
	index := make(map[string]int, len(videos))
	for i := range videos {
		index[videos[i].ID] = i
	}
	for start := 0; start < len(videos); start += maxPageSize {
		end := min(start+maxPageSize, len(videos))
		ids := make([]string, 0, end-start)
		for _, v := range videos[start:end] {
			ids = append(ids, v.ID)
		}
		resp, err := c.svc.Videos.List([]string{"contentDetails"}).Id(ids...).Context(ctx).Do()
		if err != nil {
			return wrapError("video details", err)
		}
		for _, item := range resp.Items {
			i, ok := index[item.Id]
			if !ok || item.ContentDetails == nil {
				continue
			}
			videos[i].Duration = ParseDuration(item.ContentDetails.Duration).Seconds()
		}
	}
	return nil
}

func playlistVideoID(item *yt.PlaylistItem) string {
	if item.ContentDetails != nil && item.ContentDetails.VideoId != "" {
		return item.ContentDetails.VideoId
	}
	if item.Snippet != nil && item.Snippet.ResourceId != nil {
		return item.Snippet.ResourceId.VideoId
	}
	return ""
}

type refKind int

const (
	refNone refKind = iota
	refID
	refHandle
	refUsername
)

type channelRef struct {
	kind  refKind
	value string
}

// parseChannelRef accepts channel URLs (/channel/ID, /@handle, /c/name,
// /user/name, optionally followed by a tab like /videos) and bare @handles.
func parseChannelRef(raw string) channelRef {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "@") {
		return channelRef{refHandle, raw}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return channelRef{}
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	switch {
	case strings.HasPrefix(parts[0], "@") && len(parts[0]) > 1:
		return channelRef{refHandle, parts[0]}
	case len(parts) >= 2 && parts[0] == "channel":
		return channelRef{refID, parts[1]}
	case len(parts) >= 2 && (parts[0] == "c" || parts[0] == "user"):
		return channelRef{refUsername, parts[1]}
	}
	return channelRef{}
}

var durationRe = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration converts an ISO 8601 duration such as "PT1H2M3S" to a
// time.Duration. Unparseable input yields zero.
func ParseDuration(iso string) time.Duration {
	m := durationRe.FindStringSubmatch(iso)
	if m == nil {
		return 0
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var d time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, _ := strconv.Atoi(m[i+1])
		d += time.Duration(n) * unit
	}
	return d
}

func channelURL(id string) string {
	if id == "" {
		return ""
	}
	return "https://www.youtube.com/channel/" + id
}

// uploadDate formats an RFC 3339 timestamp as YYYYMMDD, matching yt-dlp.
func uploadDate(ts string) string {
	t, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ""
	}
	return t.UTC().Format("20060102")
}

// wrapError exposes the HTTP status so the retry policy can classify it.
func wrapError(op string, err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return fmt.Errorf("youtube %s: %w", op, err)
	}
	status := &retry.StatusError{StatusCode: gerr.Code, Body: gerr.Message}
	if gerr.Code == http.StatusNotFound {
		return fmt.Errorf("youtube %s: %w: %w", op, domain.ErrNotFound, status)
	}
	return fmt.Errorf("youtube %s: %w", op, status)
}
