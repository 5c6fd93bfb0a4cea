package driven

import "context"

// RepoInfo describes a source code repository.
type RepoInfo struct {
	// FullName is "owner/name".
	FullName      string
	URL           string
	Description   string
	DefaultBranch string
}

// RepoFile is one text file fetched from a repository.
type RepoFile struct {
	// Path is relative to the repository root.
	Path string

	// URL is the canonical browse URL of the file.
	URL string

	Content string
}

// RepoFetcher lists and reads the text files of a repository.
type RepoFetcher interface {
	// Repo returns repository metadata.
	Repo(ctx context.Context, repoURL string) (*RepoInfo, error)

	// Files returns the repository's text files whose paths match include.
	// An empty include matches every file. Binary and oversized files are skipped.
	// Per-file failures are reported through onError and do not stop the listing.
	Files(ctx context.Context, repo *RepoInfo, include []string, onError func(path string, err error)) ([]RepoFile, error)
}

// Article is a web page reduced to its main content.
type Article struct {
	URL      string
	Title    string
	SiteName string

	// SiteURL is the scheme and host of the page.
	SiteURL string

	// Markdown is the main content converted to Markdown.
	Markdown string
}

// ArticleFetcher downloads a web page and extracts its main content.
type ArticleFetcher interface {
	Fetch(ctx context.Context, url string) (*Article, error)
}
