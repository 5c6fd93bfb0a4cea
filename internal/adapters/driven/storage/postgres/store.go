// Package postgres provides the PostgreSQL + pgvector implementation of
// driven.KnowledgeStore. Similarity ordering happens in SQL with the cosine
// distance operator, backed by an HNSW index; filtered searches use
// iterative index scans where pgvector supports them.
package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/audiovideoron/distillyzer/internal/adapters/driven/storage/postgres/migrations"
	"github.com/audiovideoron/distillyzer/internal/core/domain"
	"github.com/audiovideoron/distillyzer/internal/core/ports/driven"
	"github.com/audiovideoron/distillyzer/internal/logger"
)

// Postgres error codes.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

const metaDimensions = "embedding_dimensions"

// Ensure Store implements the interface.
var _ driven.KnowledgeStore = (*Store)(nil)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the Postgres knowledge store.
type Store struct {
	writer
	pool *pgxpool.Pool

	// iterativeScan is set when pgvector can keep scanning the HNSW index
	// until a filtered query has k rows (pgvector 0.8 and later).
	iterativeScan bool
}

// NewStore connects to databaseURL, installs the vector extension, runs
// migrations and checks the embedding dimension.
func NewStore(ctx context.Context, databaseURL string, dims int) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("%w: database URL is required for the postgres backend", domain.ErrConfigMissing)
	}
	if dims <= 0 {
		return nil, fmt.Errorf("%w: embedding dimension must be positive, got %d", domain.ErrInvalidInput, dims)
	}

	// The vector type must exist before pooled connections register it.
	if err := ensureExtension(ctx, databaseURL); err != nil {
		return nil, err
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &Store{writer: writer{q: pool, dims: dims}, pool: pool}
	if err := s.migrate(ctx, migrations.FS); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	if err := s.checkDimensions(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	var version string
	if err := pool.QueryRow(ctx, "SELECT extversion FROM pg_extension WHERE extname = 'vector'").Scan(&version); err != nil {
		pool.Close()
		return nil, fmt.Errorf("read vector extension version: %w", err)
	}
	s.iterativeScan = supportsIterativeScan(version)
	if !s.iterativeScan {
		logger.Warn("postgres: pgvector %s lacks iterative index scans; filtered searches may return fewer than k hits", version)
	}

	logger.Debug("postgres: connected to %s", config.ConnConfig.Host)
	return s, nil
}

func ensureExtension(ctx context.Context, databaseURL string) error {
	conn, err := pgx.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	return nil
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Dimensions returns the embedding dimension enforced on insert.
func (s *Store) Dimensions() int {
	return s.dims
}

// migrate renders and applies pending migrations, each in its own transaction.
func (s *Store) migrate(ctx context.Context, fsys fs.FS) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}

	var currentVersion int
	if err := s.pool.QueryRow(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations").
		Scan(&currentVersion); err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var upFiles []string
	for _, entry := range entries {
		if name := entry.Name(); strings.HasSuffix(name, ".up.sql") {
			upFiles = append(upFiles, name)
		}
	}
	sort.Strings(upFiles)

	for _, name := range upFiles {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= currentVersion {
			continue
		}
		raw, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		sql, err := renderMigration(name, string(raw), s.dims)
		if err != nil {
			return err
		}

		err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, sql); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", version)
			return err
		})
		if err != nil {
			return fmt.Errorf("execute %s: %w", name, err)
		}
		logger.Debug("postgres: applied migration %s", name)
	}
	return nil
}

// renderMigration fills the embedding dimension into a migration template.
func renderMigration(name, raw string, dims int) (string, error) {
	tmpl, err := template.New(name).Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ Dimensions int }{dims}); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

func (s *Store) checkDimensions(ctx context.Context) error {
	var stored string
	err := s.pool.QueryRow(ctx, "SELECT value FROM store_meta WHERE key = $1", metaDimensions).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		_, err = s.pool.Exec(ctx, "INSERT INTO store_meta (key, value) VALUES ($1, $2)",
			metaDimensions, strconv.Itoa(s.dims))
		if err != nil {
			return fmt.Errorf("record embedding dimension: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("read embedding dimension: %w", err)
	}
	if got, err := strconv.Atoi(stored); err != nil || got != s.dims {
		return &domain.DataIntegrityError{
			Record: "database",
			Reason: fmt.Sprintf("database holds %s-dimension embeddings but %d are configured", stored, s.dims),
		}
	}
	return nil
}

// WithinTx runs fn in a transaction, committing when it returns nil.
func (s *Store) WithinTx(ctx context.Context, fn func(tx driven.KnowledgeWriter) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&writer{q: tx, dims: s.dims})
	})
}

// writer implements driven.KnowledgeWriter over the pool or a transaction.
type writer struct {
	q    querier
	dims int
}

// CreateSource inserts a source.
func (w *writer) CreateSource(ctx context.Context, src domain.Source) (int64, error) {
	if src.URL == "" {
		return 0, fmt.Errorf("%w: source URL is required", domain.ErrInvalidInput)
	}
	md, err := marshalMetadata(src.Metadata)
	if err != nil {
		return 0, err
	}
	var id int64
	err = w.q.QueryRow(ctx, `
		INSERT INTO sources (type, name, url, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id
	`, string(src.Kind), src.Name, src.URL, md, createdAt(src.CreatedAt)).Scan(&id)
	if err != nil {
		return 0, insertError(err, "source", src.URL)
	}
	return id, nil
}

// CreateItem inserts an item.
func (w *writer) CreateItem(ctx context.Context, item domain.Item) (int64, error) {
	if item.URL == "" {
		return 0, fmt.Errorf("%w: item URL is required", domain.ErrInvalidInput)
	}
	md, err := marshalMetadata(item.Metadata)
	if err != nil {
		return 0, err
	}
	var id int64
	err = w.q.QueryRow(ctx, `
		INSERT INTO items (source_id, type, title, url, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id
	`, item.SourceID, string(item.Kind), item.Title, item.URL, md, createdAt(item.CreatedAt)).Scan(&id)
	if err != nil {
		return 0, insertError(err, "item", item.URL)
	}
	return id, nil
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

	var tsStart, tsEnd *float64
	var path *string
	var lineStart, lineEnd *int
	switch p := chunk.Provenance.(type) {
	case domain.TimeSpan:
		tsStart, tsEnd = &p.Start, &p.End
	case domain.LineSpan:
		if p.Path != "" {
			path = &p.Path
		}
		lineStart, lineEnd = &p.StartLine, &p.EndLine
	}

	var id int64
	err := w.q.QueryRow(ctx, `
		INSERT INTO chunks (item_id, content, chunk_index, timestamp_start, timestamp_end,
			locator_path, line_start, line_end, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id
	`, chunk.ItemID, chunk.Content, chunk.Index, tsStart, tsEnd,
		path, lineStart, lineEnd, pgvector.NewVector(chunk.Embedding), createdAt(chunk.CreatedAt)).Scan(&id)
	if err != nil {
		return 0, insertError(err, "chunk", fmt.Sprintf("item %d index %d", chunk.ItemID, chunk.Index))
	}
	return id, nil
}

// SourceByURL returns the source with the given URL.
func (w *writer) SourceByURL(ctx context.Context, url string) (*domain.Source, error) {
	var src domain.Source
	var kind string
	err := w.q.QueryRow(ctx, `
		SELECT id, type, name, url, metadata, created_at FROM sources WHERE url = $1
	`, url).Scan(&src.ID, &kind, &src.Name, &src.URL, &src.Metadata, &src.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("source %s: %w", url, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query source: %w", err)
	}
	src.Kind = domain.SourceKind(kind)
	return &src, nil
}

// ItemByURL returns the item with the given URL.
func (w *writer) ItemByURL(ctx context.Context, url string) (*domain.Item, error) {
	var item domain.Item
	var kind string
	err := w.q.QueryRow(ctx, `
		SELECT id, source_id, type, title, url, metadata, created_at FROM items WHERE url = $1
	`, url).Scan(&item.ID, &item.SourceID, &kind, &item.Title, &item.URL, &item.Metadata, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("item %s: %w", url, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query item: %w", err)
	}
	item.Kind = domain.ItemKind(kind)
	return &item, nil
}

// SimilaritySearch orders chunks by cosine distance in SQL.
func (s *Store) SimilaritySearch(ctx context.Context, vec []float32, k int,
	filter domain.SearchFilter) ([]domain.SearchHit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: k must be positive, got %d", domain.ErrInvalidInput, k)
	}
	if len(vec) != s.dims {
		return nil, &domain.DataIntegrityError{Record: "query vector", Want: s.dims, Got: len(vec)}
	}
	if zeroVector(vec) {
		return nil, fmt.Errorf("%w: query vector has zero magnitude", domain.ErrInvalidInput)
	}

	// The HNSW settings are transaction scoped.
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("begin search: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	for _, stmt := range hnswSettings(k, s.iterativeScan) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return nil, fmt.Errorf("configure search: %w", err)
		}
	}

	rows, err := tx.Query(ctx, `
		SELECT c.id, c.item_id, c.content, c.chunk_index, c.timestamp_start, c.timestamp_end,
			c.locator_path, c.line_start, c.line_end, c.embedding, c.created_at,
			i.id, i.source_id, i.type, i.title, i.url, i.metadata, i.created_at,
			s.id, s.type, s.name, s.url, s.metadata, s.created_at,
			1 - (c.embedding <=> $1) AS similarity
		FROM chunks c
		JOIN items i ON i.id = c.item_id
		JOIN sources s ON s.id = i.source_id
		WHERE ($2::text = '' OR s.type = $2::text)
			AND ($3::bigint = 0 OR c.item_id = $3::bigint)
		ORDER BY c.embedding <=> $1, c.id
		LIMIT $4
	`, pgvector.NewVector(vec), string(filter.SourceKind), filter.ItemID, k)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	hits := []domain.SearchHit{}
	for rows.Next() {
		var hit domain.SearchHit
		c, i, src := &hit.Chunk, &hit.Item, &hit.Source
		var tsStart, tsEnd *float64
		var path *string
		var lineStart, lineEnd *int
		var emb pgvector.Vector
		var itemKind, srcKind string

		if err := rows.Scan(
			&c.ID, &c.ItemID, &c.Content, &c.Index, &tsStart, &tsEnd,
			&path, &lineStart, &lineEnd, &emb, &c.CreatedAt,
			&i.ID, &i.SourceID, &itemKind, &i.Title, &i.URL, &i.Metadata, &i.CreatedAt,
			&src.ID, &srcKind, &src.Name, &src.URL, &src.Metadata, &src.CreatedAt,
			&hit.Similarity,
		); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		c.Embedding = emb.Slice()
		c.Provenance = provenance(tsStart, tsEnd, path, lineStart, lineEnd)
		i.Kind = domain.ItemKind(itemKind)
		src.Kind = domain.SourceKind(srcKind)
		hits = append(hits, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate chunks: %w", err)
	}
	rows.Close()
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("end search: %w", err)
	}
	return hits, nil
}

// hnswSettings widens the HNSW candidate list so a filtered search still
// finds k rows. Without iterative scans a filter that rejects most
// candidates can still return fewer.
func hnswSettings(k int, iterative bool) []string {
	ef := min(max(k*4, 40), 1000)
	stmts := []string{"SET LOCAL hnsw.ef_search = " + strconv.Itoa(ef)}
	if iterative {
		stmts = append(stmts, "SET LOCAL hnsw.iterative_scan = strict_order")
	}
	return stmts
}

// supportsIterativeScan reports whether a pgvector version is 0.8 or later.
func supportsIterativeScan(version string) bool {
	parts := strings.SplitN(version, ".", 3)
	if len(parts) < 2 {
		return false
	}
	major, err := strconv.Atoi(parts[0])
	if err != nil {
		return false
	}
	minor, err := strconv.Atoi(parts[1])
	if err != nil {
		return false
	}
	return major > 0 || minor >= 8
}

// Stats counts sources, items and chunks.
func (s *Store) Stats(ctx context.Context) (domain.Stats, error) {
	stats := domain.Stats{ItemsByKind: map[domain.ItemKind]int{}}
	err := s.pool.QueryRow(ctx, `
		SELECT (SELECT COUNT(*) FROM sources), (SELECT COUNT(*) FROM items), (SELECT COUNT(*) FROM chunks)
	`).Scan(&stats.Sources, &stats.Items, &stats.Chunks)
	if err != nil {
		return stats, fmt.Errorf("count records: %w", err)
	}

	rows, err := s.pool.Query(ctx, "SELECT type, COUNT(*) FROM items GROUP BY type")
	if err != nil {
		return stats, fmt.Errorf("count items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return stats, fmt.Errorf("scan item count: %w", err)
		}
		stats.ItemsByKind[domain.ItemKind(kind)] = n
	}
	return stats, rows.Err()
}

func provenance(tsStart, tsEnd *float64, path *string, lineStart, lineEnd *int) domain.Provenance {
	switch {
	case tsStart != nil:
		span := domain.TimeSpan{Start: *tsStart}
		if tsEnd != nil {
			span.End = *tsEnd
		}
		return span
	case lineStart != nil:
		span := domain.LineSpan{StartLine: *lineStart}
		if lineEnd != nil {
			span.EndLine = *lineEnd
		}
		if path != nil {
			span.Path = *path
		}
		return span
	}
	return nil
}

func zeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func createdAt(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t.UTC()
}

func marshalMetadata(m map[string]any) ([]byte, error) {
	if len(m) == 0 {
		return []byte("{}"), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return b, nil
}

// insertError maps constraint violations to domain errors.
func insertError(err error, entity, key string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return &domain.ConflictError{Entity: entity, Key: key}
		case codeForeignKeyViolation:
			return fmt.Errorf("%s %s: parent record: %w", entity, key, domain.ErrNotFound)
		}
	}
	return fmt.Errorf("insert %s: %w", entity, err)
}
