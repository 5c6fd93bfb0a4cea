package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
)

const testDims = 3

// setupTestStore creates a SQLite store in a temporary directory.
func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), DefaultFileName), testDims)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })
	return store
}

// seed creates a source with one item and returns their IDs.
func seed(t *testing.T, s *Store, kind domain.SourceKind, url string) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	srcID, err := s.CreateSource(ctx, domain.Source{Kind: kind, Name: "src " + url, URL: url})
	require.NoError(t, err)
	itemID, err := s.CreateItem(ctx, domain.Item{
		SourceID: srcID, Kind: domain.ItemVideo, Title: "item " + url, URL: url + "/item",
	})
	require.NoError(t, err)
	return srcID, itemID
}

func addChunk(t *testing.T, s *Store, itemID int64, index int, emb []float32) int64 {
	t.Helper()
	id, err := s.CreateChunk(context.Background(), domain.Chunk{
		ItemID:     itemID,
		Content:    "chunk",
		Index:      index,
		Provenance: domain.TimeSpan{Start: float64(index * 10), End: float64(index*10 + 10)},
		Embedding:  emb,
	})
	require.NoError(t, err)
	return id
}

func TestNewStore_InvalidDimensions(t *testing.T) {
	_, err := NewStore(filepath.Join(t.TempDir(), "x.db"), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestNewStore_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kb.db")
	store, err := NewStore(path, testDims)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, path, store.Path())
	assert.FileExists(t, path)
	assert.Equal(t, testDims, store.Dimensions())
}

func TestNewStore_ReopenKeepsData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.db")
	store, err := NewStore(path, testDims)
	require.NoError(t, err)
	_, err = store.CreateSource(context.Background(), domain.Source{Kind: domain.SourceWebsite, Name: "a", URL: "https://a"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = NewStore(path, testDims)
	require.NoError(t, err)
	defer store.Close()
	stats, err := store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sources)
}

func TestNewStore_DimensionMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kb.db")
	store, err := NewStore(path, testDims)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	_, err = NewStore(path, 1536)
	assert.ErrorIs(t, err, domain.ErrDataIntegrity)
}

func TestCreateSource_RoundTrip(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.CreateSource(ctx, domain.Source{
		Kind:     domain.SourceYouTubeChannel,
		Name:     "Gophers",
		URL:      "https://www.youtube.com/@gophers",
		Metadata: map[string]any{"channel_id": "UC1"},
	})
	require.NoError(t, err)
	assert.Positive(t, id)

	got, err := s.SourceByURL(ctx, "https://www.youtube.com/@gophers")
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)
	assert.Equal(t, domain.SourceYouTubeChannel, got.Kind)
	assert.Equal(t, "Gophers", got.Name)
	assert.Equal(t, "UC1", got.Metadata["channel_id"])
	assert.False(t, got.CreatedAt.IsZero())
}

func TestCreateSource_Conflict(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	src := domain.Source{Kind: domain.SourceWebsite, Name: "a", URL: "https://example.com"}

	_, err := s.CreateSource(ctx, src)
	require.NoError(t, err)
	_, err = s.CreateSource(ctx, src)

	assert.ErrorIs(t, err, domain.ErrConflict)
	var ce *domain.ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "source", ce.Entity)
	assert.Equal(t, "https://example.com", ce.Key)
}

func TestCreateItem_UnknownSource(t *testing.T) {
	s := setupTestStore(t)
	_, err := s.CreateItem(context.Background(), domain.Item{SourceID: 99, Kind: domain.ItemArticle, Title: "x", URL: "https://x"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestItemByURL(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	srcID, itemID := seed(t, s, domain.SourceYouTubeChannel, "https://v")

	item, err := s.ItemByURL(ctx, "https://v/item")
	require.NoError(t, err)
	assert.Equal(t, itemID, item.ID)
	assert.Equal(t, srcID, item.SourceID)
	assert.Equal(t, domain.ItemVideo, item.Kind)

	_, err = s.ItemByURL(ctx, "https://missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.SourceByURL(ctx, "https://missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCreateChunk_WrongDimension(t *testing.T) {
	s := setupTestStore(t)
	_, itemID := seed(t, s, domain.SourceWebsite, "https://a")

	_, err := s.CreateChunk(context.Background(), domain.Chunk{ItemID: itemID, Content: "x", Embedding: []float32{1, 2}})
	assert.ErrorIs(t, err, domain.ErrDataIntegrity)
	var de *domain.DataIntegrityError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, testDims, de.Want)
	assert.Equal(t, 2, de.Got)
}

func TestCreateChunk_DuplicateIndex(t *testing.T) {
	s := setupTestStore(t)
	_, itemID := seed(t, s, domain.SourceWebsite, "https://a")
	addChunk(t, s, itemID, 0, []float32{1, 0, 0})

	_, err := s.CreateChunk(context.Background(), domain.Chunk{ItemID: itemID, Content: "y", Index: 0, Embedding: []float32{0, 1, 0}})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestWithinTx_Commit(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx driven.KnowledgeWriter) error {
		srcID, err := tx.CreateSource(ctx, domain.Source{Kind: domain.SourceWebsite, Name: "a", URL: "https://a"})
		if err != nil {
			return err
		}
		itemID, err := tx.CreateItem(ctx, domain.Item{SourceID: srcID, Kind: domain.ItemArticle, Title: "t", URL: "https://a/1"})
		if err != nil {
			return err
		}
		_, err = tx.CreateChunk(ctx, domain.Chunk{ItemID: itemID, Content: "c", Embedding: []float32{1, 1, 1}})
		return err
	})
	require.NoError(t, err)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Stats{Sources: 1, Items: 1, Chunks: 1, ItemsByKind: map[domain.ItemKind]int{domain.ItemArticle: 1}}, stats)
}

func TestWithinTx_RollbackOnError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(tx driven.KnowledgeWriter) error {
		if _, err := tx.CreateSource(ctx, domain.Source{Kind: domain.SourceWebsite, Name: "a", URL: "https://a"}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = s.SourceByURL(ctx, "https://a")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestWithinTx_RollbackOnDimensionError(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(tx driven.KnowledgeWriter) error {
		srcID, err := tx.CreateSource(ctx, domain.Source{Kind: domain.SourceWebsite, Name: "a", URL: "https://a"})
		if err != nil {
			return err
		}
		itemID, err := tx.CreateItem(ctx, domain.Item{SourceID: srcID, Kind: domain.ItemArticle, Title: "t", URL: "https://a/1"})
		if err != nil {
			return err
		}
		_, err = tx.CreateChunk(ctx, domain.Chunk{ItemID: itemID, Content: "c", Embedding: []float32{1}})
		return err
	})
	assert.ErrorIs(t, err, domain.ErrDataIntegrity)

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Sources)
	assert.Zero(t, stats.Items)
}

func TestSimilaritySearch_EmptyStore(t *testing.T) {
	s := setupTestStore(t)
	hits, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0}, 5, domain.SearchFilter{})
	require.NoError(t, err)
	assert.NotNil(t, hits)
	assert.Empty(t, hits)
}

func TestSimilaritySearch_InvalidInput(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.SimilaritySearch(ctx, []float32{1, 0, 0}, 0, domain.SearchFilter{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = s.SimilaritySearch(ctx, []float32{0, 0, 0}, 1, domain.SearchFilter{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = s.SimilaritySearch(ctx, []float32{1, 0}, 1, domain.SearchFilter{})
	assert.ErrorIs(t, err, domain.ErrDataIntegrity)
}

func TestSimilaritySearch_OrderAndTies(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, itemID := seed(t, s, domain.SourceYouTubeChannel, "https://v")

	far := addChunk(t, s, itemID, 0, []float32{0, 1, 0})
	tieA := addChunk(t, s, itemID, 1, []float32{1, 0, 0})
	tieB := addChunk(t, s, itemID, 2, []float32{2, 0, 0})
	mid := addChunk(t, s, itemID, 3, []float32{1, 1, 0})

	hits, err := s.SimilaritySearch(ctx, []float32{1, 0, 0}, 10, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 4)

	ids := []int64{hits[0].Chunk.ID, hits[1].Chunk.ID, hits[2].Chunk.ID, hits[3].Chunk.ID}
	assert.Equal(t, []int64{tieA, tieB, mid, far}, ids)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.InDelta(t, 0.7071, hits[2].Similarity, 1e-4)
	assert.InDelta(t, 0.0, hits[3].Similarity, 1e-9)

	assert.Equal(t, "item https://v", hits[0].Item.Title)
	assert.Equal(t, "https://v", hits[0].Source.URL)
	assert.Equal(t, domain.TimeSpan{Start: 10, End: 20}, hits[0].Chunk.Provenance)
	assert.Len(t, hits[0].Chunk.Embedding, testDims)
}

func TestSimilaritySearch_Limit(t *testing.T) {
	s := setupTestStore(t)
	_, itemID := seed(t, s, domain.SourceWebsite, "https://a")
	for i := range 5 {
		addChunk(t, s, itemID, i, []float32{1, float32(i), 0})
	}

	hits, err := s.SimilaritySearch(context.Background(), []float32{1, 0, 0}, 2, domain.SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, hits, 2)
	assert.Equal(t, 0, hits[0].Chunk.Index)
	assert.Equal(t, 1, hits[1].Chunk.Index)
}

func TestSimilaritySearch_Filters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, videoItem := seed(t, s, domain.SourceYouTubeChannel, "https://v")
	_, repoItem := seed(t, s, domain.SourceGitHubRepo, "https://g")
	addChunk(t, s, videoItem, 0, []float32{1, 0, 0})
	addChunk(t, s, repoItem, 0, []float32{1, 0, 0})

	hits, err := s.SimilaritySearch(ctx, []float32{1, 0, 0}, 10, domain.SearchFilter{SourceKind: domain.SourceGitHubRepo})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, repoItem, hits[0].Item.ID)

	hits, err = s.SimilaritySearch(ctx, []float32{1, 0, 0}, 10, domain.SearchFilter{ItemID: videoItem})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, videoItem, hits[0].Item.ID)
}

func TestSimilaritySearch_LineSpanProvenance(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, itemID := seed(t, s, domain.SourceGitHubRepo, "https://g")

	_, err := s.CreateChunk(ctx, domain.Chunk{
		ItemID:     itemID,
		Content:    "func main() {}",
		Provenance: domain.LineSpan{Path: "cmd/main.go", StartLine: 3, EndLine: 9},
		Embedding:  []float32{0, 0, 1},
	})
	require.NoError(t, err)

	hits, err := s.SimilaritySearch(ctx, []float32{0, 0, 1}, 1, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, domain.LineSpan{Path: "cmd/main.go", StartLine: 3, EndLine: 9}, hits[0].Chunk.Provenance)
	assert.Equal(t, "cmd/main.go:L3-L9", hits[0].Chunk.Provenance.Locator())
}

func TestSimilaritySearch_SkipsMalformedVectors(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	_, itemID := seed(t, s, domain.SourceWebsite, "https://a")
	good := addChunk(t, s, itemID, 0, []float32{1, 0, 0})
	bad := addChunk(t, s, itemID, 1, []float32{1, 0, 0})

	_, err := s.db.ExecContext(ctx, "UPDATE chunks SET embedding = ? WHERE id = ?", []byte{1, 2, 3}, bad)
	require.NoError(t, err)

	hits, err := s.SimilaritySearch(ctx, []float32{1, 0, 0}, 10, domain.SearchFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, good, hits[0].Chunk.ID)
}

func TestStats_ByKind(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	srcID, itemID := seed(t, s, domain.SourceGitHubRepo, "https://g")
	_, err := s.CreateItem(ctx, domain.Item{SourceID: srcID, Kind: domain.ItemCodeFile, Title: "a.go", URL: "https://g/a.go"})
	require.NoError(t, err)
	addChunk(t, s, itemID, 0, []float32{1, 2, 3})
	addChunk(t, s, itemID, 1, []float32{1, 2, 3})

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Sources)
	assert.Equal(t, 2, stats.Items)
	assert.Equal(t, 2, stats.Chunks)
	assert.Equal(t, map[domain.ItemKind]int{domain.ItemVideo: 1, domain.ItemCodeFile: 1}, stats.ItemsByKind)
}

func TestFloat32Bytes(t *testing.T) {
	in := []float32{0.5, -1.25, 3}
	assert.Equal(t, in, bytesToFloat32Slice(float32SliceToBytes(in)))
	assert.Nil(t, bytesToFloat32Slice([]byte{1, 2, 3}))
	assert.Nil(t, float32SliceToBytes(nil))
}
