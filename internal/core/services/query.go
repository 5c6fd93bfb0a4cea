package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driving"
	"github.com/audiovideoron/distillyzer/internal/logger"
	"github.com/audiovideoron/distillyzer/internal/retry"
)

// Ensure QueryService implements the interfaces.
var (
	_ driving.QueryService    = (*QueryService)(nil)
	_ driven.PromptStoreAware = (*QueryService)(nil)
)

// DefaultTopK is the number of chunks retrieved when none is configured.
const DefaultTopK = 5

// Fallback prompts, used when no prompt store is set or it fails.
const (
	fallbackAnswerPrompt = "Answer the question using only the numbered context blocks. " +
		"Cite the blocks you used as [n]. If the context does not contain the answer, say so."
	fallbackChatPrompt = "You are a research assistant in a conversation about the user's knowledge base. " +
		"Answer using the numbered context blocks and cite them as [n]."
)

// QueryService answers questions by retrieving similar chunks and asking an LLM.
type QueryService struct {
	store    driven.KnowledgeStore
	embedder *Embedder
	llm      driven.LLMService
	prompts  driven.PromptStore
	retry    retry.Config
	topK     int
	chatOpts driven.ChatOptions
}

// NewQueryService creates a query service. llm may be nil, in which case
// only Retrieve and Stats work.
func NewQueryService(
	store driven.KnowledgeStore,
	embedder *Embedder,
	llm driven.LLMService,
	topK int,
	retryCfg retry.Config,
) *QueryService {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &QueryService{
		store:    store,
		embedder: embedder,
		llm:      llm,
		retry:    retryCfg,
		topK:     topK,
		chatOpts: driven.ChatOptions{Temperature: 0.2},
	}
}

// SetPromptStore sets where system prompts are loaded from.
func (s *QueryService) SetPromptStore(store driven.PromptStore) {
	s.prompts = store
}

// SetMaxTokens caps the answer length. Zero leaves it to the provider.
func (s *QueryService) SetMaxTokens(n int) {
	s.chatOpts.MaxTokens = n
}

// Retrieve returns the chunks most similar to question.
func (s *QueryService) Retrieve(
	ctx context.Context, question string, opts driving.QueryOptions,
) ([]domain.SearchHit, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", domain.ErrInvalidInput)
	}
	k := opts.K
	if k <= 0 {
		k = s.topK
	}

	logger.Section("Retrieval")
	logger.Debug("Question: %q, k=%d, filter=%+v", question, k, opts.Filter)

	vec, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}

	hits, err := s.store.SimilaritySearch(ctx, vec, k, opts.Filter)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	for i, h := range hits {
		logger.Debug("  [%d] %.3f %s @ %s", i+1, h.Similarity, h.Item.Title, locator(h))
	}
	return hits, nil
}

// Ask answers a single question with citations. When nothing is retrieved
// the fixed no-sources answer is returned without calling the LLM.
func (s *QueryService) Ask(ctx context.Context, question string, opts driving.QueryOptions) (*domain.Answer, error) {
	return s.answer(ctx, nil, question, opts)
}

// Chat answers question with the prior turns of history as conversation
// context and appends the new turn. A nil history behaves like Ask.
func (s *QueryService) Chat(
	ctx context.Context, history *domain.History, question string, opts driving.QueryOptions,
) (*domain.Answer, error) {
	ans, err := s.answer(ctx, history, question, opts)
	if err != nil {
		return nil, err
	}
	if history != nil {
		history.Append(domain.Turn{Question: ans.Question, Answer: ans.Text})
	}
	return ans, nil
}

// Stats returns knowledge base counts.
func (s *QueryService) Stats(ctx context.Context) (domain.Stats, error) {
	return s.store.Stats(ctx)
}

func (s *QueryService) answer(
	ctx context.Context, history *domain.History, question string, opts driving.QueryOptions,
) (*domain.Answer, error) {
	question = strings.TrimSpace(question)
	hits, err := s.Retrieve(ctx, question, opts)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		ans := domain.NoSourcesAnswer(question)
		return &ans, nil
	}
	if s.llm == nil {
		return nil, fmt.Errorf("%w: no language model configured", domain.ErrConfigMissing)
	}

	messages := s.buildMessages(history, question, hits)
	logger.Debug("Asking %s with %d messages", s.llm.ModelName(), len(messages))

	text, err := retry.Do(ctx, s.retry, func(ctx context.Context) (string, error) {
		return s.llm.Chat(ctx, messages, s.chatOpts)
	})
	if err != nil {
		return nil, remoteError("llm", s.llm.ModelName(), err)
	}

	ans := &domain.Answer{
		Question:  question,
		Text:      strings.TrimSpace(text),
		Citations: make([]domain.Citation, len(hits)),
	}
	for i, h := range hits {
		ans.Citations[i] = domain.CitationFor(h)
	}
	return ans, nil
}

// buildMessages lays out the system prompt, prior turns and the new
// question with its numbered context blocks.
func (s *QueryService) buildMessages(history *domain.History, question string, hits []domain.SearchHit) []driven.ChatMessage {
	name, fallback := driven.PromptAnswerSystem, fallbackAnswerPrompt
	if history != nil {
		name, fallback = driven.PromptChatSystem, fallbackChatPrompt
	}
	messages := []driven.ChatMessage{{Role: driven.RoleSystem, Content: s.loadPrompt(name, fallback)}}

	if history != nil {
		for _, t := range history.Turns() {
			messages = append(messages,
				driven.ChatMessage{Role: driven.RoleUser, Content: t.Question},
				driven.ChatMessage{Role: driven.RoleAssistant, Content: t.Answer},
			)
		}
	}

	return append(messages, driven.ChatMessage{Role: driven.RoleUser, Content: FormatContext(hits) + "\nQuestion: " + question})
}

func (s *QueryService) loadPrompt(name, fallback string) string {
	if s.prompts == nil {
		return fallback
	}
	p, err := s.prompts.Load(name)
	if err != nil || p == "" {
		logger.Warn("prompt %s unavailable, using built-in: %v", name, err)
		return fallback
	}
	return p
}

// FormatContext renders hits as numbered blocks headed "[n] title @ locator".
func FormatContext(hits []domain.SearchHit) string {
	var b strings.Builder
	b.WriteString("Context:\n\n")
	for i, h := range hits {
		fmt.Fprintf(&b, "[%d] %s", i+1, h.Item.Title)
		if loc := locator(h); loc != "" {
			fmt.Fprintf(&b, " @ %s", loc)
		}
		if h.Item.URL != "" {
			fmt.Fprintf(&b, " (%s)", h.Item.URL)
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(h.Chunk.Content))
		b.WriteString("\n\n")
	}
	return b.String()
}

func locator(h domain.SearchHit) string {
	if h.Chunk.Provenance == nil {
		return ""
	}
	return h.Chunk.Provenance.Locator()
}
