// Package sqlite provides the SQLite implementation of driven.KnowledgeStore.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO, enabling easy cross-compilation. It is the local, offline backend:
// embeddings are stored as little-endian float32 BLOBs and cosine similarity is
// computed in Go over every candidate row.
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
// The embedding dimension is recorded on first open; reopening the database
// with a different dimension fails.
//
// # Data Location
//
// By default, the database is stored at ~/.distillyzer/knowledge.db
//
// # Thread Safety
//
// All operations are thread-safe. The store holds a single connection, so
// writes are serialised and a transaction never waits on itself.
package sqlite
