package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driving"
	"github.com/audiovideoron/distillyzer/internal/retry"
)

const channelURL = "https://www.youtube.com/@gophers"

type harvestFixture struct {
	svc         *HarvestService
	store       driven.KnowledgeStore
	embed       *fakeEmbedding
	videos      *fakeVideos
	transcriber *fakeTranscriber
	audioDir    string

	mu       sync.Mutex
	messages []string
}

func video(id, title string) driven.VideoInfo {
	return driven.VideoInfo{
		ID:          id,
		Title:       title,
		URL:         domain.VideoURL(id),
		ChannelName: "Gophers",
		ChannelURL:  channelURL,
	}
}

func transcript(topic string) []domain.Segment {
	return []domain.Segment{
		{Start: 0, End: 4, Text: "Welcome to this talk about " + topic + "."},
		{Start: 4, End: 9, Text: "Today we look at " + topic + " in production systems."},
		{Start: 9, End: 15, Text: "Thanks for watching and see you next time."},
	}
}

func newHarvestFixture(t *testing.T, videos ...driven.VideoInfo) *harvestFixture {
	t.Helper()
	f := &harvestFixture{
		store:       newTestStore(t),
		embed:       &fakeEmbedding{},
		videos:      newFakeVideos(videos...),
		transcriber: &fakeTranscriber{segments: map[string][]domain.Segment{}, err: map[string]error{}},
		audioDir:    t.TempDir(),
	}
	for _, v := range videos {
		f.transcriber.segments[v.ID] = transcript(v.Title)
	}
	f.svc = NewHarvestService(f.store, NewEmbedder(f.embed, 16, fastRetry), newTestChunker(t), fastRetry)
	f.svc.SetVideoDownloader(f.videos)
	f.svc.SetVideoCatalog(f.videos)
	f.svc.SetTranscriber(f.transcriber)
	f.svc.SetAudioDir(f.audioDir)
	f.svc.SetProgress(func(format string, args ...any) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.messages = append(f.messages, fmt.Sprintf(format, args...))
	})
	return f
}

func TestHarvestVideo_StoresTranscript(t *testing.T) {
	f := newHarvestFixture(t, video("aaaaaaaaaaa", "golang generics"))

	report, err := f.svc.HarvestVideo(context.Background(), "https://youtu.be/aaaaaaaaaaa")

	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.NotEmpty(t, report.RunID)
	assert.NotZero(t, report.SourceID)
	assert.Equal(t, 1, report.Stored())
	assert.Equal(t, "golang generics", report.Items[0].Title)
	assert.Equal(t, domain.VideoURL("aaaaaaaaaaa"), report.Items[0].URL)
	assert.Greater(t, report.Items[0].Chunks, 0)

	stats, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sources)
	assert.Equal(t, 1, stats.Items)
	assert.Equal(t, report.Items[0].Chunks, stats.Chunks)

	src, err := f.store.SourceByURL(context.Background(), channelURL)
	require.NoError(t, err)
	assert.Equal(t, domain.SourceYouTubeChannel, src.Kind)
	assert.Equal(t, "Gophers", src.Name)

	hits, err := f.store.SimilaritySearch(context.Background(), []float32{1, 0, 0}, 10, domain.SearchFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	span, ok := hits[0].Chunk.Provenance.(domain.TimeSpan)
	require.True(t, ok, "video chunks carry time spans")
	assert.GreaterOrEqual(t, span.End, span.Start)
}

func TestHarvestVideo_RemovesAudio(t *testing.T) {
	f := newHarvestFixture(t, video("aaaaaaaaaaa", "golang"))

	_, err := f.svc.HarvestVideo(context.Background(), domain.VideoURL("aaaaaaaaaaa"))
	require.NoError(t, err)

	require.Len(t, f.videos.dirs, 1)
	_, statErr := os.Stat(f.videos.dirs[0])
	assert.True(t, os.IsNotExist(statErr))
	entries, err := os.ReadDir(f.audioDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHarvestVideo_SecondRunSkips(t *testing.T) {
	f := newHarvestFixture(t, video("aaaaaaaaaaa", "golang"))
	ctx := context.Background()

	_, err := f.svc.HarvestVideo(ctx, domain.VideoURL("aaaaaaaaaaa"))
	require.NoError(t, err)
	report, err := f.svc.HarvestVideo(ctx, domain.VideoURL("aaaaaaaaaaa"))

	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.True(t, report.Items[0].Skipped)
	assert.Equal(t, 1, report.Skipped())
	assert.Len(t, f.videos.dirs, 1, "audio is not downloaded again")

	stats, err := f.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Items)
}

func TestHarvestVideo_EmptyTranscriptIsUnitFailure(t *testing.T) {
	f := newHarvestFixture(t, video("aaaaaaaaaaa", "silence"))
	f.transcriber.segments["aaaaaaaaaaa"] = nil

	report, err := f.svc.HarvestVideo(context.Background(), domain.VideoURL("aaaaaaaaaaa"))

	assert.ErrorIs(t, err, domain.ErrPartialHarvest)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, ErrEmptyTranscript)
	assert.Equal(t, "silence", report.Failures[0].Title)

	stats, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Sources)
	assert.Zero(t, stats.Items)
}

func TestHarvestVideo_TranscriptionFailure(t *testing.T) {
	f := newHarvestFixture(t, video("aaaaaaaaaaa", "golang"))
	f.transcriber.err["aaaaaaaaaaa"] = &retry.StatusError{StatusCode: 503}

	report, err := f.svc.HarvestVideo(context.Background(), domain.VideoURL("aaaaaaaaaaa"))

	assert.ErrorIs(t, err, domain.ErrPartialHarvest)
	require.Len(t, report.Failures, 1)
	var remote *domain.RemoteServiceError
	require.ErrorAs(t, report.Failures[0].Err, &remote)
	assert.Equal(t, "transcription", remote.Service)
	assert.Equal(t, fastRetry.MaxAttempts, remote.Attempts)
}

func TestHarvestVideo_EmbeddingFailureStoresNothing(t *testing.T) {
	f := newHarvestFixture(t, video("aaaaaaaaaaa", "golang"))
	f.embed.failOn = "production"

	report, err := f.svc.HarvestVideo(context.Background(), domain.VideoURL("aaaaaaaaaaa"))

	assert.ErrorIs(t, err, domain.ErrPartialHarvest)
	require.Len(t, report.Failures, 1)
	assert.NotEmpty(t, report.Failures[0].ChunkIndexes)
	assert.ErrorIs(t, report.Failures[0].Err, domain.ErrRemoteService)

	stats, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Items)
	assert.Zero(t, stats.Chunks)
}

func TestHarvestVideo_InfoFailureIsFatal(t *testing.T) {
	f := newHarvestFixture(t)

	_, err := f.svc.HarvestVideo(context.Background(), domain.VideoURL("zzzzzzzzzzz"))

	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrPartialHarvest)
}

func TestHarvestVideo_RejectsOtherURLs(t *testing.T) {
	f := newHarvestFixture(t)

	_, err := f.svc.HarvestVideo(context.Background(), channelURL)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = f.svc.HarvestVideo(context.Background(), "not a url")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHarvestVideo_NeedsTranscriber(t *testing.T) {
	store := newTestStore(t)
	svc := NewHarvestService(store, NewEmbedder(&fakeEmbedding{}, 1, fastRetry), newTestChunker(t), fastRetry)
	svc.SetVideoDownloader(newFakeVideos())

	_, err := svc.HarvestVideo(context.Background(), domain.VideoURL("aaaaaaaaaaa"))
	assert.ErrorIs(t, err, domain.ErrConfigMissing)
}

func TestHarvestChannel_ConcurrentWorkers(t *testing.T) {
	f := newHarvestFixture(t,
		video("aaaaaaaaaaa", "golang one"),
		video("bbbbbbbbbbb", "golang two"),
		video("ccccccccccc", "python three"),
		video("ddddddddddd", "broken four"),
	)
	f.transcriber.err["ddddddddddd"] = errors.New("decoder crashed")

	report, err := f.svc.HarvestChannel(context.Background(), channelURL, driving.ChannelOptions{Workers: 3})

	assert.ErrorIs(t, err, domain.ErrPartialHarvest)
	assert.Len(t, report.Items, 3)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "broken four", report.Failures[0].Title)
	assert.Equal(t, []string{"golang one", "golang two", "python three"},
		[]string{report.Items[0].Title, report.Items[1].Title, report.Items[2].Title})

	stats, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sources, "all videos share the channel source")
	assert.Equal(t, 3, stats.Items)
	assert.Equal(t, 3, stats.ItemsByKind[domain.ItemVideo])

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.NotEmpty(t, f.messages)
}

func TestHarvestChannel_OneOfThreeFails(t *testing.T) {
	f := newHarvestFixture(t,
		video("aaaaaaaaaaa", "video 1"),
		video("bbbbbbbbbbb", "video 2"),
		video("ccccccccccc", "video 3"),
	)
	f.transcriber.err["bbbbbbbbbbb"] = &retry.StatusError{StatusCode: 400, Body: "audio rejected"}

	report, err := f.svc.HarvestChannel(context.Background(), channelURL, driving.ChannelOptions{})

	assert.ErrorIs(t, err, domain.ErrPartialHarvest)
	require.Len(t, report.Items, 2)
	assert.Equal(t, "video 1", report.Items[0].Title)
	assert.Equal(t, "video 3", report.Items[1].Title)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "video 2", report.Failures[0].Title)
	assert.Equal(t, domain.VideoURL("bbbbbbbbbbb"), report.Failures[0].URL)

	stats, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Items)
}

func TestHarvestChannel_ListingWithoutChannelURL(t *testing.T) {
	one, two := video("aaaaaaaaaaa", "one"), video("bbbbbbbbbbb", "two")
	one.ChannelURL, two.ChannelURL = "", ""
	f := newHarvestFixture(t, one, two)

	report, err := f.svc.HarvestChannel(context.Background(), channelURL, driving.ChannelOptions{})

	require.NoError(t, err)
	assert.Len(t, report.Items, 2)

	src, err := f.store.SourceByURL(context.Background(), channelURL)
	require.NoError(t, err)
	assert.Equal(t, src.ID, report.SourceID)

	stats, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sources)
}

func TestHarvestVideo_UnknownChannelIsUnitFailure(t *testing.T) {
	v := video("aaaaaaaaaaa", "orphan")
	v.ChannelURL = ""
	f := newHarvestFixture(t, v)

	report, err := f.svc.HarvestVideo(context.Background(), domain.VideoURL("aaaaaaaaaaa"))

	assert.ErrorIs(t, err, domain.ErrPartialHarvest)
	require.Len(t, report.Failures, 1)
	assert.ErrorIs(t, report.Failures[0].Err, ErrUnknownChannel)
	assert.Empty(t, f.videos.dirs, "no audio is downloaded")

	stats, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Sources)
}

func TestHarvestChannel_Limit(t *testing.T) {
	f := newHarvestFixture(t,
		video("aaaaaaaaaaa", "one"),
		video("bbbbbbbbbbb", "two"),
		video("ccccccccccc", "three"),
	)

	report, err := f.svc.HarvestChannel(context.Background(), channelURL, driving.ChannelOptions{Limit: 2})

	require.NoError(t, err)
	assert.Len(t, report.Items, 2)
}

func TestHarvestChannel_ListingFailureIsFatal(t *testing.T) {
	f := newHarvestFixture(t)
	f.videos.listErr = &retry.StatusError{StatusCode: 500}

	report, err := f.svc.HarvestChannel(context.Background(), channelURL, driving.ChannelOptions{})

	assert.Nil(t, report)
	assert.ErrorIs(t, err, domain.ErrRemoteService)
	assert.NotErrorIs(t, err, domain.ErrPartialHarvest)
}

func TestListChannel(t *testing.T) {
	f := newHarvestFixture(t, video("aaaaaaaaaaa", "one"), video("bbbbbbbbbbb", "two"))

	videos, err := f.svc.ListChannel(context.Background(), channelURL, 1)
	require.NoError(t, err)
	assert.Len(t, videos, 1)

	_, err = f.svc.ListChannel(context.Background(), "https://github.com/octo/demo", 1)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	stats, err := f.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.Items)
}

func TestSearchVideos(t *testing.T) {
	f := newHarvestFixture(t, video("aaaaaaaaaaa", "Golang tips"), video("bbbbbbbbbbb", "Python tips"))

	videos, err := f.svc.SearchVideos(context.Background(), "golang", 5)
	require.NoError(t, err)
	require.Len(t, videos, 1)
	assert.Equal(t, "Golang tips", videos[0].Title)

	_, err = f.svc.SearchVideos(context.Background(), "", 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func newRepoFixture(t *testing.T) (*HarvestService, *fakeRepos, driven.KnowledgeStore) {
	t.Helper()
	store := newTestStore(t)
	repos := &fakeRepos{
		info: driven.RepoInfo{
			FullName:      "octo/demo",
			URL:           "https://github.com/octo/demo",
			DefaultBranch: "main",
		},
		files: []driven.RepoFile{
			{Path: "README.md", URL: "https://github.com/octo/demo/blob/main/README.md", Content: "# Demo\n\nA golang demo.\n"},
			{Path: "main.go", URL: "https://github.com/octo/demo/blob/main/main.go",
				Content: "package main\n\n// golang entry point\nfunc main() {\n\tprintln(\"hi\")\n}\n"},
		},
		fileErrs: map[string]error{"big.go": errors.New("blob fetch failed")},
	}
	svc := NewHarvestService(store, NewEmbedder(&fakeEmbedding{}, 8, fastRetry), newTestChunker(t), fastRetry)
	svc.SetRepoFetcher(repos)
	return svc, repos, store
}

func TestHarvestRepo(t *testing.T) {
	svc, repos, store := newRepoFixture(t)

	report, err := svc.HarvestRepo(context.Background(), "https://github.com/octo/demo",
		driving.RepoOptions{Include: []string{"*.go", "*.md"}})

	assert.ErrorIs(t, err, domain.ErrPartialHarvest)
	assert.Equal(t, []string{"*.go", "*.md"}, repos.gotFilter)
	assert.Len(t, report.Items, 2)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "big.go", report.Failures[0].URL)

	src, err := store.SourceByURL(context.Background(), "https://github.com/octo/demo")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceGitHubRepo, src.Kind)
	assert.Equal(t, "octo/demo", src.Name)

	hits, err := store.SimilaritySearch(context.Background(), []float32{1, 0, 0}, 10,
		domain.SearchFilter{SourceKind: domain.SourceGitHubRepo})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, h := range hits {
		assert.Equal(t, domain.ItemCodeFile, h.Item.Kind)
		span, ok := h.Chunk.Provenance.(domain.LineSpan)
		require.True(t, ok)
		assert.Equal(t, h.Item.Title, span.Path)
		assert.GreaterOrEqual(t, span.StartLine, 1)
	}
}

func TestHarvestRepo_BlankFilesAreSkipped(t *testing.T) {
	svc, repos, store := newRepoFixture(t)
	repos.fileErrs = nil
	repos.files = append(repos.files,
		driven.RepoFile{Path: "pkg/__init__.py", URL: "https://github.com/octo/demo/blob/main/pkg/__init__.py"},
		driven.RepoFile{Path: ".gitkeep", URL: "https://github.com/octo/demo/blob/main/.gitkeep", Content: " \n"},
	)

	report, err := svc.HarvestRepo(context.Background(), "https://github.com/octo/demo", driving.RepoOptions{})

	require.NoError(t, err)
	assert.NoError(t, report.Err())
	assert.Empty(t, report.Failures)
	assert.Len(t, report.Items, 2)

	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Items)
}

func TestHarvestRepo_RepoNotFound(t *testing.T) {
	svc, repos, _ := newRepoFixture(t)
	repos.repoErr = fmt.Errorf("get repository: %w", domain.ErrNotFound)

	_, err := svc.HarvestRepo(context.Background(), "https://github.com/octo/missing", driving.RepoOptions{})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHarvestRepo_RejectsNonRepoURL(t *testing.T) {
	svc, _, _ := newRepoFixture(t)

	_, err := svc.HarvestRepo(context.Background(), "https://example.com/octo/demo", driving.RepoOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

const articleURL = "https://blog.example.com/posts/golang-errors"

func newArticleFixture(t *testing.T) (*HarvestService, *fakeArticles, driven.KnowledgeStore) {
	t.Helper()
	store := newTestStore(t)
	articles := &fakeArticles{pages: map[string]driven.Article{
		articleURL: {
			URL:      articleURL,
			Title:    "Golang errors",
			SiteName: "Example Blog",
			SiteURL:  "https://blog.example.com",
			Markdown: "# Golang errors\n\n" + strings.Repeat("Wrap errors with context in golang.\n", 6),
		},
	}}
	svc := NewHarvestService(store, NewEmbedder(&fakeEmbedding{}, 8, fastRetry), newTestChunker(t), fastRetry)
	svc.SetArticleFetcher(articles)
	return svc, articles, store
}

func TestHarvestArticle(t *testing.T) {
	svc, articles, store := newArticleFixture(t)
	ctx := context.Background()

	report, err := svc.HarvestArticle(ctx, articleURL)
	require.NoError(t, err)
	require.Len(t, report.Items, 1)
	assert.Greater(t, report.Items[0].Chunks, 1)

	src, err := store.SourceByURL(ctx, "https://blog.example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.SourceWebsite, src.Kind)
	assert.Equal(t, "Example Blog", src.Name)

	again, err := svc.HarvestArticle(ctx, articleURL)
	require.NoError(t, err)
	assert.True(t, again.Items[0].Skipped)
	assert.Equal(t, 1, articles.calls, "stored article is not fetched again")
}

func TestHarvestArticle_FetchFailureIsFatal(t *testing.T) {
	svc, _, _ := newArticleFixture(t)

	_, err := svc.HarvestArticle(context.Background(), "https://blog.example.com/too-short")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.NotErrorIs(t, err, domain.ErrPartialHarvest)
}

func TestHarvest_Dispatch(t *testing.T) {
	svc, _, _ := newArticleFixture(t)
	ctx := context.Background()

	report, err := svc.Harvest(ctx, articleURL)
	require.NoError(t, err)
	assert.Len(t, report.Items, 1)

	_, err = svc.Harvest(ctx, "ftp://example.com/file")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Harvest(ctx, "https://www.youtube.com/playlist")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = svc.Harvest(ctx, "https://github.com/octo/demo")
	assert.ErrorIs(t, err, domain.ErrConfigMissing, "no repository fetcher is set")

	_, err = svc.Harvest(ctx, domain.VideoURL("aaaaaaaaaaa"))
	assert.ErrorIs(t, err, domain.ErrConfigMissing, "no video downloader is set")
}
