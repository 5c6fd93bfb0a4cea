package domain

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// URLKind is what a harvest URL points at.
type URLKind int

// URL kinds recognised by Harvest.
const (
	URLUnknown URLKind = iota
	URLVideo
	URLChannel
	URLRepo
	URLArticle
)

func (k URLKind) String() string {
	switch k {
	case URLVideo:
		return "video"
	case URLChannel:
		return "channel"
	case URLRepo:
		return "repo"
	case URLArticle:
		return "article"
	default:
		return "unknown"
	}
}

var (
	videoPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/)([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtube\.com/(?:embed|shorts|live)/([a-zA-Z0-9_-]{11})`),
	}
	channelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`youtube\.com/@([a-zA-Z0-9_.-]+)`),
		regexp.MustCompile(`youtube\.com/channel/([a-zA-Z0-9_-]+)`),
		regexp.MustCompile(`youtube\.com/c/([a-zA-Z0-9_-]+)`),
	}
	repoPattern = regexp.MustCompile(`^/([A-Za-z0-9_.-]+)/([A-Za-z0-9_.-]+?)(?:\.git)?/?$`)
)

// ClassifyURL reports what raw points at and its identifier: the video ID,
// the channel handle or ID, or "owner/name" for a repository.
// Malformed or non-http URLs yield ErrInvalidInput.
func ClassifyURL(raw string) (URLKind, string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return URLUnknown, "", fmt.Errorf("%w: not an http(s) URL: %q", ErrInvalidInput, raw)
	}

	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	switch host {
	case "youtube.com", "m.youtube.com", "youtu.be":
		return classifyYouTube(raw)
	case "github.com":
		m := repoPattern.FindStringSubmatch(u.Path)
		if m == nil {
			return URLUnknown, "", fmt.Errorf("%w: not a repository URL: %q", ErrInvalidInput, raw)
		}
		return URLRepo, m[1] + "/" + m[2], nil
	}
	return URLArticle, raw, nil
}

func classifyYouTube(raw string) (URLKind, string, error) {
	for _, p := range videoPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return URLVideo, m[1], nil
		}
	}
	for _, p := range channelPatterns {
		if m := p.FindStringSubmatch(raw); m != nil {
			return URLChannel, m[1], nil
		}
	}
	return URLUnknown, "", fmt.Errorf("%w: unrecognised YouTube URL: %q", ErrInvalidInput, raw)
}

// VideoURL returns the canonical watch URL for a video ID.
func VideoURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}
