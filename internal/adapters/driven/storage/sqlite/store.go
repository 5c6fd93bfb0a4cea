package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/audiovideoron/distillyzer/internal/adapters/driven/storage/sqlite/migrations"
	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/logger"
)

// DefaultFileName is the database file created in the data directory.
const DefaultFileName = "knowledge.db"

const metaDimensions = "embedding_dimensions"

// Ensure Store implements the interface.
var _ driven.KnowledgeStore = (*Store)(nil)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store is the SQLite knowledge store.
type Store struct {
	writer
	db   *sql.DB
	path string
}

// NewStore opens or creates the database at path with the given embedding
// dimension. If path is empty, defaults to ~/.distillyzer/knowledge.db.
func NewStore(path string, dims int) (*Store, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", domain.ErrInvalidInput, dims)
	}
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("getting home directory: %w", err)
		}
		path = filepath.Join(home, ".distillyzer", DefaultFileName)
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: pragmas apply everywhere and writers never contend.
	db.SetMaxOpenConns(1)

	s := &Store{
		writer: writer{q: db, dims: dims},
		db:     db,
		path:   path,
	}

	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	if err := s.checkDimensions(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Dimensions returns the embedding dimension enforced on insert.
func (s *Store) Dimensions() int {
	return s.dims
}

// migrate runs all pending migrations, each in its own transaction.
func (s *Store) migrate(fsys fs.FS) error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	var currentVersion int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("getting current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		// "001_initial.up.sql" -> 1
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil {
			continue
		}
		if version <= currentVersion {
			continue
		}

		content, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", name, err)
		}
		if err := s.applyMigration(version, string(content)); err != nil {
			return fmt.Errorf("executing migration %s: %w", name, err)
		}
		logger.Debug("sqlite: applied migration %s", name)
	}

	return nil
}

func (s *Store) applyMigration(version int, content string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(content); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}

// checkDimensions records the embedding dimension on first use and rejects
// a database created with a different one.
func (s *Store) checkDimensions() error {
	var stored string
	err := s.db.QueryRow("SELECT value FROM store_meta WHERE key = ?", metaDimensions).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		_, err = s.db.Exec("INSERT INTO store_meta (key, value) VALUES (?, ?)",
			metaDimensions, strconv.Itoa(s.dims))
		if err != nil {
			return fmt.Errorf("recording embedding dimension: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("reading embedding dimension: %w", err)
	}

	got, err := strconv.Atoi(stored)
	if err != nil || got != s.dims {
		return &domain.DataIntegrityError{
			Record: s.path,
			Reason: fmt.Sprintf("database holds %s-dimension embeddings but %d are configured", stored, s.dims),
		}
	}
	return nil
}

// WithinTx runs fn in a transaction, committing when it returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(tx driven.KnowledgeWriter) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&writer{q: tx, dims: s.dims}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// ==================== Writer ====================

// writer implements driven.KnowledgeWriter over a connection or transaction.
type writer struct {
	q    querier
	dims int
}

// CreateSource inserts a source.
func (w *writer) CreateSource(ctx context.Context, src domain.Source) (int64, error) {
	if src.URL == "" {
		return 0, fmt.Errorf("%w: source URL is required", domain.ErrInvalidInput)
	}
	metadataJSON, err := marshalMetadata(src.Metadata)
	if err != nil {
		return 0, err
	}

	res, err := w.q.ExecContext(ctx, `
		INSERT INTO sources (type, name, url, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, string(src.Kind), src.Name, src.URL, metadataJSON, createdAt(src.CreatedAt))
	if err != nil {
		return 0, insertError(err, "source", src.URL)
	}
	return res.LastInsertId()
}

// CreateItem inserts an item.
func (w *writer) CreateItem(ctx context.Context, item domain.Item) (int64, error) {
	if item.URL == "" {
		return 0, fmt.Errorf("%w: item URL is required", domain.ErrInvalidInput)
	}
	metadataJSON, err := marshalMetadata(item.Metadata)
	if err != nil {
		return 0, err
	}

	res, err := w.q.ExecContext(ctx, `
		INSERT INTO items (source_id, type, title, url, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, item.SourceID, string(item.Kind), item.Title, item.URL, metadataJSON, createdAt(item.CreatedAt))
	if err != nil {
		return 0, insertError(err, "item", item.URL)
	}
	return res.LastInsertId()
}

// CreateChunk inserts a chunk after checking its embedding dimension.
func (w *writer) CreateChunk(ctx context.Context, chunk domain.Chunk) (int64, error) {
	record := fmt.Sprintf("chunk %d of item %d", chunk.Index, chunk.ItemID)
	if len(chunk.Embedding) != w.dims {
		return 0, &domain.DataIntegrityError{Record: record, Want: w.dims, Got: len(chunk.Embedding)}
	}
	if chunk.Index < 0 {
		return 0, fmt.Errorf("%w: %s: negative index", domain.ErrInvalidInput, record)
	}

	var tsStart, tsEnd sql.NullFloat64
	var path sql.NullString
	var lineStart, lineEnd sql.NullInt64
	switch p := chunk.Provenance.(type) {
	case domain.TimeSpan:
		tsStart = sql.NullFloat64{Float64: p.Start, Valid: true}
		tsEnd = sql.NullFloat64{Float64: p.End, Valid: true}
	case domain.LineSpan:
		path = sql.NullString{String: p.Path, Valid: p.Path != ""}
		lineStart = sql.NullInt64{Int64: int64(p.StartLine), Valid: true}
		lineEnd = sql.NullInt64{Int64: int64(p.EndLine), Valid: true}
	}

	res, err := w.q.ExecContext(ctx, `
		INSERT INTO chunks (item_id, content, chunk_index, timestamp_start, timestamp_end,
			locator_path, line_start, line_end, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, chunk.ItemID, chunk.Content, chunk.Index, tsStart, tsEnd,
		path, lineStart, lineEnd, float32SliceToBytes(chunk.Embedding), createdAt(chunk.CreatedAt))
	if err != nil {
		return 0, insertError(err, "chunk", fmt.Sprintf("item %d index %d", chunk.ItemID, chunk.Index))
	}
	return res.LastInsertId()
}

// SourceByURL returns the source with the given URL.
func (w *writer) SourceByURL(ctx context.Context, url string) (*domain.Source, error) {
	row := w.q.QueryRowContext(ctx, `
		SELECT id, type, name, url, metadata, created_at
		FROM sources WHERE url = ?
	`, url)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", url, domain.ErrNotFound)
	}
	return src, err
}

// ItemByURL returns the item with the given URL.
func (w *writer) ItemByURL(ctx context.Context, url string) (*domain.Item, error) {
	row := w.q.QueryRowContext(ctx, `
		SELECT id, source_id, type, title, url, metadata, created_at
		FROM items WHERE url = ?
	`, url)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", url, domain.ErrNotFound)
	}
	return item, err
}

// ==================== Search ====================

// SimilaritySearch scores every candidate chunk against vec and returns the
// k nearest. Rows whose stored vector is malformed are skipped with a warning.
func (s *Store) SimilaritySearch(ctx context.Context, vec []float32, k int,
	filter domain.SearchFilter) ([]domain.SearchHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	if len(vec) != s.dims {
		return nil, &domain.DataIntegrityError{Record: "query vector", Want: s.dims, Got: len(vec)}
	}
	qnorm := norm(vec)
	if qnorm == 0 {
		return nil, fmt.Errorf("%w: query vector has zero magnitude", domain.ErrInvalidInput)
	}

	query := `
		SELECT c.id, c.item_id, c.content, c.chunk_index, c.timestamp_start, c.timestamp_end,
			c.locator_path, c.line_start, c.line_end, c.embedding, c.created_at,
			i.id, i.source_id, i.type, i.title, i.url, i.metadata, i.created_at,
			s.id, s.type, s.name, s.url, s.metadata, s.created_at
		FROM chunks c
		JOIN items i ON i.id = c.item_id
		JOIN sources s ON s.id = i.source_id
		WHERE 1 = 1`
	var args []any
	if filter.SourceKind != "" {
		query += " AND s.type = ?"
		args = append(args, string(filter.SourceKind))
	}
	if filter.ItemID != 0 {
		query += " AND c.item_id = ?"
		args = append(args, filter.ItemID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying chunks: %w", err)
	}
	defer rows.Close()

	hits := []domain.SearchHit{}
	for rows.Next() {
		hit, err := scanHit(rows)
		if err != nil {
			return nil, err
		}
		emb := hit.Chunk.Embedding
		if len(emb) != s.dims {
			logger.Warn("sqlite: skipping chunk %d: %v", hit.Chunk.ID,
				&domain.DataIntegrityError{Record: fmt.Sprintf("chunk %d", hit.Chunk.ID), Want: s.dims, Got: len(emb)})
			continue
		}
		hit.Similarity = cosine(vec, qnorm, emb)
		hits = append(hits, *hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating chunks: %w", err)
	}

	slices.SortFunc(hits, func(a, b domain.SearchHit) int {
		if c := cmp.Compare(b.Similarity, a.Similarity); c != 0 {
			return c
		}
		return cmp.Compare(a.Chunk.ID, b.Chunk.ID)
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// Stats counts sources, items and chunks.
func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{ItemsByKind: map[domain.ItemKind]int{}}
	err := s.db.QueryRowContext(ctx, `
		SELECT (SELECT COUNT(*) FROM sources), (SELECT COUNT(*) FROM items), (SELECT COUNT(*) FROM chunks)
	`).Scan(&stats.Sources, &stats.Items, &stats.Chunks)
	if err != nil {
		return stats, fmt.Errorf("counting records: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, "SELECT type, COUNT(*) FROM items GROUP BY type")
	if err != nil {
		return stats, fmt.Errorf("counting items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return stats, fmt.Errorf("scanning item count: %w", err)
		}
		stats.ItemsByKind[domain.ItemKind(kind)] = n
	}
	return stats, rows.Err()
}

// ==================== Helper Functions ====================

// float32SliceToBytes converts a []float32 to a byte slice for storage.
func float32SliceToBytes(floats []float32) []byte {
	if len(floats) == 0 {
		return nil
	}
	buf := make([]byte, len(floats)*4)
	for i, f := range floats {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// bytesToFloat32Slice converts a byte slice back to []float32.
// A length that is not a multiple of four yields nil.
func bytesToFloat32Slice(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	floats := make([]float32, len(data)/4)
	for i := range floats {
		floats[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return floats
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

// cosine returns the cosine similarity of q (with precomputed norm) and v.
// A zero vector scores 0.
func cosine(q []float32, qnorm float64, v []float32) float64 {
	var dot float64
	for i := range q {
		dot += float64(q[i]) * float64(v[i])
	}
	vnorm := norm(v)
	if vnorm == 0 {
		return 0
	}
	return dot / (qnorm * vnorm)
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func marshalMetadata(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(s string) (map[string]any, error) {
	if s == "" || s == "{}" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return m, nil
}

// insertError maps constraint violations to domain errors.
func insertError(err error, entity, key string) error {
	var serr *sqlitedrv.Error
	if errors.As(err, &serr) {
		switch serr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return &domain.ConflictError{Entity: entity, Key: key}
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
			return fmt.Errorf("%s %s: parent record: %w", entity, key, domain.ErrNotFound)
		}
	}
	return fmt.Errorf("saving %s: %w", entity, err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSource(row scanner) (*domain.Source, error) {
	var src domain.Source
	var kind, metadataJSON string
	if err := row.Scan(&src.ID, &kind, &src.Name, &src.URL, &metadataJSON, &src.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning source: %w", err)
	}
	src.Kind = domain.SourceKind(kind)
	md, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	src.Metadata = md
	return &src, nil
}

func scanItem(row scanner) (*domain.Item, error) {
	var item domain.Item
	var kind, metadataJSON string
	if err := row.Scan(&item.ID, &item.SourceID, &kind, &item.Title, &item.URL,
		&metadataJSON, &item.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning item: %w", err)
	}
	item.Kind = domain.ItemKind(kind)
	md, err := unmarshalMetadata(metadataJSON)
	if err != nil {
		return nil, err
	}
	item.Metadata = md
	return &item, nil
}

// scanHit scans a joined chunk, item and source row.
func scanHit(rows *sql.Rows) (*domain.SearchHit, error) {
	var hit domain.SearchHit
	c, i, s := &hit.Chunk, &hit.Item, &hit.Source
	var tsStart, tsEnd sql.NullFloat64
	var path sql.NullString
	var lineStart, lineEnd sql.NullInt64
	var embeddingBlob []byte
	var itemKind, itemMeta, srcKind, srcMeta string

	if err := rows.Scan(
		&c.ID, &c.ItemID, &c.Content, &c.Index, &tsStart, &tsEnd,
		&path, &lineStart, &lineEnd, &embeddingBlob, &c.CreatedAt,
		&i.ID, &i.SourceID, &itemKind, &i.Title, &i.URL, &itemMeta, &i.CreatedAt,
		&s.ID, &srcKind, &s.Name, &s.URL, &srcMeta, &s.CreatedAt,
	); err != nil {
		return nil, fmt.Errorf("scanning chunk: %w", err)
	}

	c.Embedding = bytesToFloat32Slice(embeddingBlob)
	switch {
	case tsStart.Valid:
		c.Provenance = domain.TimeSpan{Start: tsStart.Float64, End: tsEnd.Float64}
	case lineStart.Valid:
		c.Provenance = domain.LineSpan{Path: path.String, StartLine: int(lineStart.Int64), EndLine: int(lineEnd.Int64)}
	}
	i.Kind = domain.ItemKind(itemKind)
	s.Kind = domain.SourceKind(srcKind)

	var err error
	if i.Metadata, err = unmarshalMetadata(itemMeta); err != nil {
		return nil, err
	}
	if s.Metadata, err = unmarshalMetadata(srcMeta); err != nil {
		return nil, err
	}
	return &hit, nil
}
