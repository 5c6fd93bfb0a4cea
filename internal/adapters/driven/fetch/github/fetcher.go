package github

import (
	"context"
	"fmt"
	"strings"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/logger"
)

// Ensure Fetcher implements the interface.
var _ driven.RepoFetcher = (*Fetcher)(nil)

// Fetcher reads repositories for harvesting.
type Fetcher struct {
	client *Client
}

// NewFetcher creates a fetcher over client.
func NewFetcher(client *Client) *Fetcher {
	return &Fetcher{client: client}
}

// Repo resolves a github.com URL to repository metadata.
func (f *Fetcher) Repo(ctx context.Context, repoURL string) (*driven.RepoInfo, error) {
	kind, fullName, err := domain.ClassifyURL(repoURL)
	if err != nil {
		return nil, err
	}
	if kind != domain.URLRepo {
		return nil, fmt.Errorf("%w: not a GitHub repository URL: %q", domain.ErrInvalidInput, repoURL)
	}
	owner, name, _ := strings.Cut(fullName, "/")

	repo, err := f.client.GetRepository(ctx, owner, name)
	if err != nil {
		if IsNotFound(err) {
			return nil, fmt.Errorf("%w: %s: %w", domain.ErrNotFound, fullName, ErrRepoNotFound)
		}
		return nil, err
	}

	return &driven.RepoInfo{
		FullName:      repo.GetFullName(),
		URL:           repo.GetHTMLURL(),
		Description:   repo.GetDescription(),
		DefaultBranch: repo.GetDefaultBranch(),
	}, nil
}

// Files lists the default branch tree and fetches each matching text file.
func (f *Fetcher) Files(ctx context.Context, repo *driven.RepoInfo, include []string,
	onError func(path string, err error)) ([]driven.RepoFile, error) {
	owner, name, ok := strings.Cut(repo.FullName, "/")
	if !ok {
		return nil, fmt.Errorf("%w: repository name %q is not owner/name", domain.ErrInvalidInput, repo.FullName)
	}
	branch := repo.DefaultBranch
	if branch == "" {
		branch = "HEAD"
	}

	tree, err := f.client.GetTree(ctx, owner, name, branch)
	if err != nil {
		return nil, err
	}
	if tree.GetTruncated() {
		logger.Warn("github: tree for %s is truncated; some files will be missing", repo.FullName)
	}

	entries := textFiles(tree, include)
	logger.Debug("github: %d of %d tree entries selected in %s", len(entries), len(tree.Entries), repo.FullName)

	files := make([]driven.RepoFile, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return files, err
		}
		p := entry.GetPath()
		data, err := fetchBlobContent(ctx, f.client, owner, name, entry.GetSHA())
		if err != nil {
			if onError != nil {
				onError(p, err)
			}
			continue
		}
		if isBinaryContent(data) {
			logger.Debug("github: skipping binary file %s", p)
			continue
		}
		if isBlank(data) {
			logger.Debug("github: skipping empty file %s", p)
			continue
		}
		files = append(files, driven.RepoFile{
			Path:    p,
			URL:     browseURL(owner, name, branch, p),
			Content: string(data),
		})
	}
	return files, nil
}
