package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/audiovideoron/distillyzer/internal/chunker"
	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driving"
	"github.com/audiovideoron/distillyzer/internal/logger"
	"github.com/audiovideoron/distillyzer/internal/retry"
)

// Ensure HarvestService implements the interface.
var _ driving.HarvestService = (*HarvestService)(nil)

// DefaultChannelLimit is how many recent videos a channel harvest takes
// when no limit is given.
const DefaultChannelLimit = 50

// ErrEmptyTranscript marks a video whose audio produced no text.
// Nothing is stored for it, so a later run can try again.
var ErrEmptyTranscript = errors.New("empty transcript")

// ErrUnknownChannel marks a video whose channel could not be determined.
var ErrUnknownChannel = errors.New("channel unknown")

// HarvestService fetches external content, chunks and embeds it, and stores
// one item per transaction.
type HarvestService struct {
	store    driven.KnowledgeStore
	embedder *Embedder
	chunker  *chunker.Chunker
	retry    retry.Config

	videos      driven.VideoDownloader
	catalog     driven.VideoCatalog
	transcriber driven.Transcriber
	repos       driven.RepoFetcher
	articles    driven.ArticleFetcher

	audioDir string
	progress func(format string, args ...any)
}

// NewHarvestService creates a harvest service. Fetchers are attached with
// the Set* methods; a harvest whose fetcher is missing fails with
// domain.ErrConfigMissing.
func NewHarvestService(
	store driven.KnowledgeStore,
	embedder *Embedder,
	chunks *chunker.Chunker,
	retryCfg retry.Config,
) *HarvestService {
	return &HarvestService{
		store:    store,
		embedder: embedder,
		chunker:  chunks,
		retry:    retryCfg,
		audioDir: os.TempDir(),
		progress: func(string, ...any) {},
	}
}

// SetVideoDownloader sets the metadata and audio source for videos.
func (s *HarvestService) SetVideoDownloader(v driven.VideoDownloader) { s.videos = v }

// SetVideoCatalog sets the search and channel listing source.
func (s *HarvestService) SetVideoCatalog(c driven.VideoCatalog) { s.catalog = c }

// SetTranscriber sets the speech-to-text service.
func (s *HarvestService) SetTranscriber(t driven.Transcriber) { s.transcriber = t }

// SetRepoFetcher sets the repository source.
func (s *HarvestService) SetRepoFetcher(r driven.RepoFetcher) { s.repos = r }

// SetArticleFetcher sets the web page source.
func (s *HarvestService) SetArticleFetcher(a driven.ArticleFetcher) { s.articles = a }

// SetAudioDir sets where audio is downloaded. Files are removed after transcription.
func (s *HarvestService) SetAudioDir(dir string) {
	if dir != "" {
		s.audioDir = dir
	}
}

// SetProgress sets a callback receiving one-line progress messages.
// It may be called from several goroutines during a channel harvest.
func (s *HarvestService) SetProgress(fn func(format string, args ...any)) {
	if fn != nil {
		s.progress = fn
	}
}

// Harvest detects the URL kind and dispatches to the matching method.
func (s *HarvestService) Harvest(ctx context.Context, url string) (*domain.HarvestReport, error) {
	kind, _, err := domain.ClassifyURL(url)
	if err != nil {
		return nil, err
	}
	logger.Debug("Harvest %s detected as %s", url, kind)

	switch kind {
	case domain.URLVideo:
		return s.HarvestVideo(ctx, url)
	case domain.URLChannel:
		return s.HarvestChannel(ctx, url, driving.ChannelOptions{})
	case domain.URLRepo:
		return s.HarvestRepo(ctx, url, driving.RepoOptions{})
	case domain.URLArticle:
		return s.HarvestArticle(ctx, url)
	default:
		return nil, fmt.Errorf("%w: cannot harvest %q", domain.ErrInvalidInput, url)
	}
}

// HarvestVideo stores one video's transcript.
func (s *HarvestService) HarvestVideo(ctx context.Context, url string) (*domain.HarvestReport, error) {
	kind, id, err := domain.ClassifyURL(url)
	if err != nil {
		return nil, err
	}
	if kind != domain.URLVideo {
		return nil, fmt.Errorf("%w: not a video URL: %q", domain.ErrInvalidInput, url)
	}
	if err := s.requireVideo(); err != nil {
		return nil, err
	}

	report := newReport()
	logger.Section("Harvest video " + report.RunID)

	info, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*driven.VideoInfo, error) {
		return s.videos.Info(ctx, domain.VideoURL(id))
	})
	if err != nil {
		return report, fmt.Errorf("video info %s: %w", url, err)
	}

	s.record(report, s.harvestVideo(ctx, *info))
	return report, report.Err()
}

// HarvestChannel stores a channel's most recent videos. With Workers > 1
// videos are processed concurrently; each video is still its own transaction.
func (s *HarvestService) HarvestChannel(
	ctx context.Context, url string, opts driving.ChannelOptions,
) (*domain.HarvestReport, error) {
	if err := s.requireVideo(); err != nil {
		return nil, err
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultChannelLimit
	}

	videos, err := s.ListChannel(ctx, url, limit)
	if err != nil {
		return nil, err
	}

	report := newReport()
	logger.Section("Harvest channel " + report.RunID)
	logger.Info("Channel %s: %d videos, %d workers", url, len(videos), max(opts.Workers, 1))

	results := make([]unitResult, len(videos))
	var g errgroup.Group
	g.SetLimit(max(opts.Workers, 1))
	for i, v := range videos {
		// Flat listings often omit the channel of each entry.
		if v.ChannelURL == "" {
			v.ChannelURL = url
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				results[i] = unitResult{failure: &domain.UnitFailure{URL: v.URL, Title: v.Title, Err: ctx.Err()}}
				return nil
			}
			s.progress("[%d/%d] %s", i+1, len(videos), v.Title)
			results[i] = s.harvestVideo(ctx, v)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		s.record(report, r)
	}
	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, report.Err()
}

// ListChannel lists a channel's most recent videos without storing anything.
func (s *HarvestService) ListChannel(ctx context.Context, url string, limit int) ([]driven.VideoInfo, error) {
	kind, _, err := domain.ClassifyURL(url)
	if err != nil {
		return nil, err
	}
	if kind != domain.URLChannel {
		return nil, fmt.Errorf("%w: not a channel URL: %q", domain.ErrInvalidInput, url)
	}
	if s.catalog == nil {
		return nil, fmt.Errorf("%w: no video catalog configured", domain.ErrConfigMissing)
	}

	videos, err := retry.Do(ctx, s.retry, func(ctx context.Context) ([]driven.VideoInfo, error) {
		return s.catalog.ListChannel(ctx, url, limit)
	})
	if err != nil {
		return nil, remoteError("youtube", url, err)
	}
	return videos, nil
}

// SearchVideos searches for videos without storing anything.
func (s *HarvestService) SearchVideos(ctx context.Context, query string, limit int) ([]driven.VideoInfo, error) {
	if query == "" {
		return nil, fmt.Errorf("%w: empty search query", domain.ErrInvalidInput)
	}
	if s.catalog == nil {
		return nil, fmt.Errorf("%w: no video catalog configured", domain.ErrConfigMissing)
	}
	if limit <= 0 {
		limit = 10
	}
	videos, err := retry.Do(ctx, s.retry, func(ctx context.Context) ([]driven.VideoInfo, error) {
		return s.catalog.Search(ctx, query, limit)
	})
	if err != nil {
		return nil, remoteError("youtube", query, err)
	}
	return videos, nil
}

// HarvestRepo stores a repository's text files, one item per file.
func (s *HarvestService) HarvestRepo(
	ctx context.Context, url string, opts driving.RepoOptions,
) (*domain.HarvestReport, error) {
	kind, _, err := domain.ClassifyURL(url)
	if err != nil {
		return nil, err
	}
	if kind != domain.URLRepo {
		return nil, fmt.Errorf("%w: not a repository URL: %q", domain.ErrInvalidInput, url)
	}
	if s.repos == nil {
		return nil, fmt.Errorf("%w: no repository fetcher configured", domain.ErrConfigMissing)
	}

	report := newReport()
	logger.Section("Harvest repo " + report.RunID)

	repo, err := s.repos.Repo(ctx, url)
	if err != nil {
		return report, fmt.Errorf("repository %s: %w", url, err)
	}

	files, err := s.repos.Files(ctx, repo, opts.Include, func(path string, err error) {
		report.Failures = append(report.Failures, domain.UnitFailure{URL: path, Title: path, Err: err})
	})
	if err != nil {
		return report, fmt.Errorf("list files of %s: %w", repo.FullName, err)
	}
	s.progress("%s: %d files", repo.FullName, len(files))

	source := domain.Source{
		Kind: domain.SourceGitHubRepo,
		Name: repo.FullName,
		URL:  repo.URL,
		Metadata: map[string]any{
			"description":    repo.Description,
			"default_branch": repo.DefaultBranch,
		},
	}

	for i, f := range files {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if strings.TrimSpace(f.Content) == "" {
			logger.Debug("Skipping empty file %s", f.Path)
			continue
		}
		s.progress("[%d/%d] %s", i+1, len(files), f.Path)
		item := domain.Item{
			Kind:     domain.ItemCodeFile,
			Title:    f.Path,
			URL:      f.URL,
			Metadata: map[string]any{"path": f.Path, "size": len(f.Content)},
		}
		s.record(report, s.storeUnit(ctx, source, item, s.chunker.Text(f.Path, f.Content)))
	}
	return report, report.Err()
}

// HarvestArticle stores one web article.
func (s *HarvestService) HarvestArticle(ctx context.Context, url string) (*domain.HarvestReport, error) {
	kind, _, err := domain.ClassifyURL(url)
	if err != nil {
		return nil, err
	}
	if kind != domain.URLArticle {
		return nil, fmt.Errorf("%w: %s URL is not an article: %q", domain.ErrInvalidInput, kind, url)
	}
	if s.articles == nil {
		return nil, fmt.Errorf("%w: no article fetcher configured", domain.ErrConfigMissing)
	}

	report := newReport()
	logger.Section("Harvest article " + report.RunID)

	if existing, ok := s.alreadyStored(ctx, url); ok {
		s.record(report, existing)
		return report, nil
	}

	article, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*driven.Article, error) {
		return s.articles.Fetch(ctx, url)
	})
	if err != nil {
		return report, fmt.Errorf("fetch article %s: %w", url, err)
	}
	s.progress("Fetched %q (%d characters)", article.Title, len([]rune(article.Markdown)))

	source := domain.Source{
		Kind: domain.SourceWebsite,
		Name: article.SiteName,
		URL:  article.SiteURL,
	}
	item := domain.Item{
		Kind:     domain.ItemArticle,
		Title:    article.Title,
		URL:      article.URL,
		Metadata: map[string]any{"site": article.SiteName},
	}
	s.record(report, s.storeUnit(ctx, source, item, s.chunker.Text("", article.Markdown)))
	return report, report.Err()
}

// harvestVideo downloads, transcribes and stores one video.
func (s *HarvestService) harvestVideo(ctx context.Context, v driven.VideoInfo) unitResult {
	if v.ID != "" {
		v.URL = domain.VideoURL(v.ID)
	}
	fail := func(err error) unitResult {
		return unitResult{failure: &domain.UnitFailure{URL: v.URL, Title: v.Title, Err: err}}
	}

	if existing, ok := s.alreadyStored(ctx, v.URL); ok {
		return existing
	}
	if v.ChannelURL == "" {
		return fail(ErrUnknownChannel)
	}

	if err := os.MkdirAll(s.audioDir, 0o700); err != nil {
		return fail(fmt.Errorf("create audio dir: %w", err))
	}
	dir, err := os.MkdirTemp(s.audioDir, "video-*")
	if err != nil {
		return fail(fmt.Errorf("create audio dir: %w", err))
	}
	defer os.RemoveAll(dir)

	start := time.Now()
	audio, err := retry.Do(ctx, s.retry, func(ctx context.Context) (string, error) {
		return s.videos.DownloadAudio(ctx, v.URL, dir)
	})
	if err != nil {
		return fail(fmt.Errorf("download audio: %w", err))
	}
	logger.Since("download "+v.URL, start)

	start = time.Now()
	segs, err := retry.Do(ctx, s.retry, func(ctx context.Context) ([]domain.Segment, error) {
		return s.transcriber.Transcribe(ctx, audio)
	})
	if err != nil {
		return fail(remoteError("transcription", v.URL, err))
	}
	logger.Since("transcribe "+v.URL, start)
	if len(segs) == 0 {
		return fail(ErrEmptyTranscript)
	}

	source := domain.Source{
		Kind: domain.SourceYouTubeChannel,
		Name: v.ChannelName,
		URL:  v.ChannelURL,
	}
	item := domain.Item{
		Kind:  domain.ItemVideo,
		Title: v.Title,
		URL:   v.URL,
		Metadata: map[string]any{
			"video_id":    v.ID,
			"duration":    v.Duration,
			"upload_date": v.UploadDate,
			"segments":    len(segs),
		},
	}
	return s.storeUnit(ctx, source, item, s.chunker.Transcript(segs))
}

// unitResult is the outcome of one unit: stored, skipped or failed.
type unitResult struct {
	outcome  *domain.ItemOutcome
	sourceID int64
	failure  *domain.UnitFailure
}

func (s *HarvestService) record(report *domain.HarvestReport, r unitResult) {
	if report.SourceID == 0 {
		report.SourceID = r.sourceID
	}
	switch {
	case r.failure != nil:
		logger.Warn("run %s: %s", report.RunID, r.failure)
		report.Failures = append(report.Failures, *r.failure)
	case r.outcome != nil:
		report.Items = append(report.Items, *r.outcome)
	}
}

// alreadyStored reports an item URL that is in the store already.
func (s *HarvestService) alreadyStored(ctx context.Context, url string) (unitResult, bool) {
	item, err := s.store.ItemByURL(ctx, url)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("look up %s: %v", url, err)
		}
		return unitResult{}, false
	}
	s.progress("Skipping %q: already harvested", item.Title)
	return unitResult{
		outcome:  &domain.ItemOutcome{ItemID: item.ID, Title: item.Title, URL: item.URL, Skipped: true},
		sourceID: item.SourceID,
	}, true
}

// storeUnit embeds the pieces and writes source, item and chunks in one
// transaction. A unit with any failed chunk stores nothing.
func (s *HarvestService) storeUnit(
	ctx context.Context, source domain.Source, item domain.Item, pieces iter.Seq[chunker.Piece],
) unitResult {
	fail := func(err error, chunks []int) unitResult {
		return unitResult{failure: &domain.UnitFailure{URL: item.URL, Title: item.Title, ChunkIndexes: chunks, Err: err}}
	}

	if existing, ok := s.alreadyStored(ctx, item.URL); ok {
		return existing
	}

	collected := slices.Collect(pieces)
	if len(collected) == 0 {
		return fail(fmt.Errorf("%w: no content to store", domain.ErrInvalidInput), nil)
	}
	texts := make([]string, len(collected))
	for i, p := range collected {
		texts[i] = p.Content
	}

	vecs, err := s.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return fail(err, missingIndexes(vecs, len(texts)))
	}

	var itemID, sourceID int64
	write := func(tx driven.KnowledgeWriter) error {
		var err error
		sourceID, err = sourceFor(ctx, tx, source)
		if err != nil {
			return err
		}
		item.SourceID = sourceID
		itemID, err = tx.CreateItem(ctx, item)
		if err != nil {
			return fmt.Errorf("create item: %w", err)
		}
		for i, p := range collected {
			_, err := tx.CreateChunk(ctx, domain.Chunk{
				ItemID:     itemID,
				Content:    p.Content,
				Index:      p.Index,
				Provenance: p.Provenance,
				Embedding:  vecs[i],
			})
			if err != nil {
				return fmt.Errorf("create chunk %d: %w", p.Index, err)
			}
		}
		return nil
	}

	err = s.store.WithinTx(ctx, write)
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) && conflict.Entity == "source" {
		// Another worker created the source first; its row is visible now.
		err = s.store.WithinTx(ctx, write)
	}
	if errors.As(err, &conflict) && conflict.Entity == "item" {
		if existing, ok := s.alreadyStored(ctx, item.URL); ok {
			return existing
		}
	}
	if err != nil {
		return fail(err, nil)
	}

	s.progress("Stored %q: %d chunks", item.Title, len(collected))
	return unitResult{
		outcome:  &domain.ItemOutcome{ItemID: itemID, Title: item.Title, URL: item.URL, Chunks: len(collected)},
		sourceID: sourceID,
	}
}

// sourceFor returns the ID of the source with src.URL, creating it when absent.
func sourceFor(ctx context.Context, tx driven.KnowledgeWriter, src domain.Source) (int64, error) {
	existing, err := tx.SourceByURL(ctx, src.URL)
	if err == nil {
		return existing.ID, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("look up source: %w", err)
	}
	if src.Name == "" {
		src.Name = src.URL
	}
	id, err := tx.CreateSource(ctx, src)
	if err != nil {
		return 0, fmt.Errorf("create source: %w", err)
	}
	return id, nil
}

func (s *HarvestService) requireVideo() error {
	if s.videos == nil {
		return fmt.Errorf("%w: no video downloader configured", domain.ErrConfigMissing)
	}
	if s.transcriber == nil {
		return fmt.Errorf("%w: transcription needs an OpenAI API key", domain.ErrConfigMissing)
	}
	return nil
}

func newReport() *domain.HarvestReport {
	return &domain.HarvestReport{RunID: uuid.NewString()}
}

// remoteError wraps a failed remote call. Cancellation and errors that
// already carry a domain class pass through with context added.
func remoteError(service, unit string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	for _, class := range []error{domain.ErrNotFound, domain.ErrInvalidInput, domain.ErrConfigMissing} {
		if errors.Is(err, class) {
			return fmt.Errorf("%s %s: %w", service, unit, err)
		}
	}
	return &domain.RemoteServiceError{
		Service:  service,
		Unit:     unit,
		Attempts: retry.Attempts(err),
		Err:      err,
	}
}
