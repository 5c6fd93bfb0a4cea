package mcp

import (
	"context"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driving"
)

// mockQueryService is a mock implementation of driving.QueryService.
type mockQueryService struct {
	answer *domain.Answer
	hits   []domain.SearchHit
	stats  domain.Stats
	err    error

	gotQuestion string
	gotOpts     driving.QueryOptions
}

func (m *mockQueryService) Ask(_ context.Context, question string, opts driving.QueryOptions) (*domain.Answer, error) {
	m.gotQuestion, m.gotOpts = question, opts
	return m.answer, m.err
}

func (m *mockQueryService) Retrieve(
	_ context.Context, question string, opts driving.QueryOptions,
) ([]domain.SearchHit, error) {
	m.gotQuestion, m.gotOpts = question, opts
	return m.hits, m.err
}

func (m *mockQueryService) Chat(
	_ context.Context, _ *domain.History, _ string, _ driving.QueryOptions,
) (*domain.Answer, error) {
	return m.answer, m.err
}

func (m *mockQueryService) Stats(_ context.Context) (domain.Stats, error) {
	return m.stats, m.err
}
