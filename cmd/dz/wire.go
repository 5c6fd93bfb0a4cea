package main

import (
	"context"
	"fmt"
	"io"

	"github.com/audiovideoron/distillyzer/internal/adapters/driven/ai"
	"github.com/audiovideoron/distillyzer/internal/adapters/driven/config/file"
	"github.com/audiovideoron/distillyzer/internal/adapters/driven/fetch/github"
	"github.com/audiovideoron/distillyzer/internal/adapters/driven/fetch/web"
	"github.com/audiovideoron/distillyzer/internal/adapters/driven/fetch/ytdlp"
	"github.com/audiovideoron/distillyzer/internal/adapters/driven/storage/postgres"
	"github.com/audiovideoron/distillyzer/internal/adapters/driven/storage/sqlite"
	"github.com/audiovideoron/distillyzer/internal/adapters/driven/youtube"
	"github.com/audiovideoron/distillyzer/internal/adapters/driving/cli"
	"github.com/audiovideoron/distillyzer/internal/chunker"
	"github.com/audiovideoron/distillyzer/internal/config"
	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/core/services"
	"github.com/audiovideoron/distillyzer/internal/logger"
	"github.com/audiovideoron/distillyzer/internal/retry"
)

// progressTo returns a progress callback printing one line per message.
func progressTo(w io.Writer) func(format string, args ...any) {
	return func(format string, args ...any) {
		fmt.Fprintf(w, format+"\n", args...)
	}
}

// closers releases resources in reverse order of acquisition.
type closers []io.Closer

func (c closers) close() {
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			logger.Warn("close: %v", err)
		}
	}
}

// newServices loads settings and builds the harvest and query services.
// On error everything opened so far is closed.
func newServices(
	ctx context.Context,
	cfg driven.ConfigStore,
	getenv func(string) string,
	progress func(format string, args ...any),
) (svc *cli.Services, cleanup func(), err error) {
	s, err := config.Load(cfg, getenv)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("Settings: store=%s embedding=%s/%s (%d dims) llm=%s/%s",
		s.Store.Backend, s.Embedding.Provider, s.Embedding.Model, s.Embedding.Dimensions,
		s.LLM.Provider, s.LLM.Model)

	var opened closers
	defer func() {
		if err != nil {
			opened.close()
		}
	}()

	retryCfg := retry.Config{
		MaxAttempts: s.Retry.MaxAttempts,
		InitialWait: s.Retry.InitialWait,
		MaxWait:     s.Retry.MaxWait,
		Multiplier:  retry.DefaultConfig.Multiplier,
	}

	store, err := openStore(ctx, s)
	if err != nil {
		return nil, nil, err
	}
	opened = append(opened, store)

	embedding, err := ai.CreateEmbeddingService(s.Embedding)
	if err != nil {
		return nil, nil, err
	}
	opened = append(opened, embedding)

	llm, err := ai.CreateLLMService(s.LLM)
	if err != nil {
		return nil, nil, err
	}
	opened = append(opened, llm)

	chunks, err := chunker.New(chunker.WithSize(s.Chunk.Size), chunker.WithOverlap(s.Chunk.Overlap))
	if err != nil {
		return nil, nil, err
	}

	embedder := services.NewEmbedder(embedding, s.Embedding.BatchSize, retryCfg)
	harvest := services.NewHarvestService(store, embedder, chunks, retryCfg)
	harvest.SetAudioDir(s.AudioDir)
	harvest.SetProgress(progress)

	videos := ytdlp.New()
	harvest.SetVideoDownloader(videos)
	harvest.SetVideoCatalog(videos)
	if s.YouTubeAPIKey != "" {
		catalog, err := youtube.NewCatalog(ctx, s.YouTubeAPIKey)
		if err != nil {
			return nil, nil, err
		}
		harvest.SetVideoCatalog(catalog)
	}

	// Without a key, video harvests fail with ErrConfigMissing while other
	// commands keep working.
	transcriber, err := ai.CreateTranscriber(s.Transcription)
	if err != nil {
		return nil, nil, err
	}
	if transcriber != nil {
		harvest.SetTranscriber(transcriber)
	}

	gh, err := github.NewClient(ctx, s.GitHubToken, github.WithRetry(retryCfg))
	if err != nil {
		return nil, nil, err
	}
	harvest.SetRepoFetcher(github.NewFetcher(gh))
	harvest.SetArticleFetcher(web.NewFetcher())

	query := services.NewQueryService(store, embedder, llm, s.TopK, retryCfg)
	query.SetMaxTokens(s.LLM.MaxTokens)
	if prompts, err := file.NewPromptStore(""); err != nil {
		logger.Warn("prompt store unavailable, using built-in prompts: %v", err)
	} else {
		query.SetPromptStore(prompts)
	}

	return &cli.Services{Harvest: harvest, Query: query}, opened.close, nil
}

func openStore(ctx context.Context, s domain.Settings) (driven.KnowledgeStore, error) {
	switch s.Store.Backend {
	case domain.StorePostgres:
		return postgres.NewStore(ctx, s.Store.DatabaseURL, s.Embedding.Dimensions)
	default:
		return sqlite.NewStore(s.Store.SQLitePath, s.Embedding.Dimensions)
	}
}
