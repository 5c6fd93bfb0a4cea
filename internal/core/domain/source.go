package domain

import (
	"fmt"
	"time"
)

// SourceKind identifies what kind of origin a Source is.
type SourceKind string

// Available source kinds.
const (
	// SourceYouTubeChannel is a YouTube channel owning videos.
	SourceYouTubeChannel SourceKind = "youtube_channel"

	// SourceGitHubRepo is a GitHub repository owning code files.
	SourceGitHubRepo SourceKind = "github_repo"

	// SourceWebsite is a website owning articles.
	SourceWebsite SourceKind = "website"
)

// IsValid returns true if the source kind is recognised.
func (k SourceKind) IsValid() bool {
	switch k {
	case SourceYouTubeChannel, SourceGitHubRepo, SourceWebsite:
		return true
	default:
		return false
	}
}

// ParseSourceKind maps user input ("video", "code", "youtube_channel", ...) to a SourceKind.
// An empty string maps to the empty kind, meaning "any".
func ParseSourceKind(s string) (SourceKind, error) {
	switch s {
	case "":
		return "", nil
	case "video", "videos", "youtube", string(SourceYouTubeChannel):
		return SourceYouTubeChannel, nil
	case "code", "repo", "github", string(SourceGitHubRepo):
		return SourceGitHubRepo, nil
	case "article", "articles", "web", string(SourceWebsite):
		return SourceWebsite, nil
	default:
		return "", fmt.Errorf("%w: unknown kind %q (expected video, code or article)", ErrInvalidInput, s)
	}
}

// Source is a harvested origin. It is created once per harvest and never mutated.
type Source struct {
	// ID is assigned by the store on creation.
	ID int64

	// Kind is the origin type.
	Kind SourceKind

	// Name is the display name (channel title, owner/repo, site name).
	Name string

	// URL is the canonical origin URL. Unique across sources.
	URL string

	// Metadata contains free-form origin attributes.
	Metadata map[string]any

	// CreatedAt is set by the store.
	CreatedAt time.Time
}

// ItemKind identifies what kind of unit an Item is.
type ItemKind string

// Available item kinds.
const (
	ItemVideo    ItemKind = "video"
	ItemCodeFile ItemKind = "code_file"
	ItemArticle  ItemKind = "article"
)

// Item is one harvested unit owned by exactly one Source.
type Item struct {
	ID       int64
	SourceID int64
	Kind     ItemKind
	Title    string

	// URL is the canonical unit URL. Unique across items; used for de-duplication.
	URL string

	Metadata  map[string]any
	CreatedAt time.Time
}

// Stats summarises the contents of the knowledge base.
type Stats struct {
	Sources     int
	Items       int
	Chunks      int
	ItemsByKind map[ItemKind]int
}
