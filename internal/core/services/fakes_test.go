package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/audiovideoron/distillyzer/internal/adapters/driven/storage/sqlite"
	"github.com/audiovideoron/distillyzer/internal/chunker"
	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/retry"
)

const testDims = 3

var fastRetry = retry.Config{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond}

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.NewStore(filepath.Join(t.TempDir(), "kb.db"), testDims)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestChunker(t *testing.T) *chunker.Chunker {
	t.Helper()
	c, err := chunker.New(chunker.WithSize(80), chunker.WithOverlap(0))
	require.NoError(t, err)
	return c
}

// fakeEmbedding maps text to one of three axes by keyword.
type fakeEmbedding struct {
	mu sync.Mutex

	// failures returns errors for the next calls, in order.
	failures []error
	// failOn makes any batch containing the substring fail permanently.
	failOn string
	// short makes the vector for texts containing the substring too short.
	short string

	calls   int
	batches [][]string
}

func axisVector(text string) []float32 {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "golang"):
		return []float32{1, 0, 0}
	case strings.Contains(lower, "python"):
		return []float32{0, 1, 0}
	default:
		return []float32{0, 0, 1}
	}
}

func (f *fakeEmbedding) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEmbedding) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.batches = append(f.batches, append([]string(nil), texts...))

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		if f.failOn != "" && strings.Contains(t, f.failOn) {
			return nil, &retry.StatusError{StatusCode: 400, Body: "rejected input"}
		}
		out[i] = axisVector(t)
		if f.short != "" && strings.Contains(t, f.short) {
			out[i] = out[i][:2]
		}
	}
	return out, nil
}

func (f *fakeEmbedding) Dimensions() int              { return testDims }
func (f *fakeEmbedding) ModelName() string            { return "fake-embed" }
func (f *fakeEmbedding) Ping(_ context.Context) error { return nil }
func (f *fakeEmbedding) Close() error                 { return nil }

// fakeLLM records the messages it receives.
type fakeLLM struct {
	mu       sync.Mutex
	reply    string
	err      error
	calls    int
	messages [][]driven.ChatMessage
}

func (f *fakeLLM) Chat(_ context.Context, messages []driven.ChatMessage, _ driven.ChatOptions) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = append(f.messages, messages)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeLLM) ModelName() string            { return "fake-llm" }
func (f *fakeLLM) Ping(_ context.Context) error { return nil }
func (f *fakeLLM) Close() error                 { return nil }

// fakePrompts serves fixed prompt text.
type fakePrompts map[string]string

func (p fakePrompts) Load(name string) (string, error) {
	if s, ok := p[name]; ok {
		return s, nil
	}
	return "", errors.New("unknown prompt")
}

func (p fakePrompts) Reload() {}

// fakeVideos serves video metadata and writes a dummy audio file.
type fakeVideos struct {
	mu      sync.Mutex
	videos  map[string]driven.VideoInfo
	listErr error
	dirs    []string
}

func newFakeVideos(videos ...driven.VideoInfo) *fakeVideos {
	f := &fakeVideos{videos: make(map[string]driven.VideoInfo)}
	for _, v := range videos {
		f.videos[domain.VideoURL(v.ID)] = v
	}
	return f
}

func (f *fakeVideos) Info(_ context.Context, url string) (*driven.VideoInfo, error) {
	v, ok := f.videos[url]
	if !ok {
		return nil, errors.New("video unavailable")
	}
	return &v, nil
}

func (f *fakeVideos) DownloadAudio(_ context.Context, url, dir string) (string, error) {
	f.mu.Lock()
	f.dirs = append(f.dirs, dir)
	f.mu.Unlock()
	v := f.videos[url]
	path := filepath.Join(dir, v.ID+".mp3")
	return path, os.WriteFile(path, []byte("audio"), 0o600)
}

func (f *fakeVideos) Search(_ context.Context, query string, limit int) ([]driven.VideoInfo, error) {
	var out []driven.VideoInfo
	for _, v := range f.sorted() {
		if strings.Contains(strings.ToLower(v.Title), strings.ToLower(query)) && len(out) < limit {
			out = append(out, v)
		}
	}
	return out, nil
}

func (f *fakeVideos) ListChannel(_ context.Context, _ string, limit int) ([]driven.VideoInfo, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	out := f.sorted()
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeVideos) sorted() []driven.VideoInfo {
	var out []driven.VideoInfo
	for _, v := range f.videos {
		out = append(out, v)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].ID < out[j-1].ID; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}

// fakeTranscriber returns transcripts keyed by audio file base name.
type fakeTranscriber struct {
	segments map[string][]domain.Segment
	err      map[string]error
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audioPath string) ([]domain.Segment, error) {
	id := strings.TrimSuffix(filepath.Base(audioPath), ".mp3")
	if err := f.err[id]; err != nil {
		return nil, err
	}
	return f.segments[id], nil
}

// fakeRepos serves a fixed file set.
type fakeRepos struct {
	info      driven.RepoInfo
	files     []driven.RepoFile
	fileErrs  map[string]error
	repoErr   error
	gotFilter []string
}

func (f *fakeRepos) Repo(_ context.Context, _ string) (*driven.RepoInfo, error) {
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	info := f.info
	return &info, nil
}

func (f *fakeRepos) Files(_ context.Context, _ *driven.RepoInfo, include []string,
	onError func(path string, err error),
) ([]driven.RepoFile, error) {
	f.gotFilter = include
	for p, err := range f.fileErrs {
		onError(p, err)
	}
	return f.files, nil
}

// fakeArticles serves pages by URL.
type fakeArticles struct {
	pages map[string]driven.Article
	calls int
}

func (f *fakeArticles) Fetch(_ context.Context, url string) (*driven.Article, error) {
	f.calls++
	a, ok := f.pages[url]
	if !ok {
		return nil, domain.ErrInvalidInput
	}
	return &a, nil
}
