package cache

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"

	"rpy-converter/internal/parser"
)

// DB is the subset of *pgxpool.Pool the cache needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS script_documents (
	path         TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	options      TEXT NOT NULL,
	document     JSONB NOT NULL,
	block_count  INTEGER NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

const upsertSQL = `
INSERT INTO script_documents (path, content_hash, options, document, block_count, updated_at)
VALUES ($1, $2, $3, $4::jsonb, $5, now())
ON CONFLICT (path) DO UPDATE
SET content_hash = EXCLUDED.content_hash,
    options      = EXCLUDED.options,
    document     = EXCLUDED.document,
    block_count  = EXCLUDED.block_count,
    updated_at   = now()`

const listSQL = `SELECT path, content_hash, options FROM script_documents`

// Record is one converted script as persisted.
type Record struct {
	Path        string
	ContentHash string
	Options     string
	Document    parser.Document
}

type fingerprint struct {
	hash    string
	options string
}

// DocumentCache remembers which scripts were converted from which content,
// in memory and in PostgreSQL, so unchanged scripts can be skipped.
type DocumentCache struct {
	db     DB
	mu     sync.RWMutex
	memory map[string]fingerprint // path → fingerprint
}

// NewDocumentCache creates a cache backed by db.
func NewDocumentCache(db DB) *DocumentCache {
	return &DocumentCache{
		db:     db,
		memory: make(map[string]fingerprint),
	}
}

// EnsureSchema creates the backing table if needed.
func (c *DocumentCache) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create script_documents table: %w", err)
	}
	return nil
}

// Preload loads every stored fingerprint into memory.
func (c *DocumentCache) Preload(ctx context.Context) error {
	rows, err := c.db.Query(ctx, listSQL)
	if err != nil {
		return fmt.Errorf("preload cache: %w", err)
	}
	defer rows.Close()

	loaded := make(map[string]fingerprint)
	for rows.Next() {
		var path string
		var fp fingerprint
		if err := rows.Scan(&path, &fp.hash, &fp.options); err != nil {
			return fmt.Errorf("scan cached document: %w", err)
		}
		loaded[path] = fp
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("preload cache: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for path, fp := range loaded {
		c.memory[path] = fp
	}

	log.Info().Int("count", len(loaded)).Msg("Preloaded document cache")
	return nil
}

// Unchanged reports whether path was last converted from the same content
// with the same options.
func (c *DocumentCache) Unchanged(path, contentHash, options string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fp, ok := c.memory[path]
	return ok && fp.hash == contentHash && fp.options == options
}

// Set stores a converted document in memory and in PostgreSQL.
func (c *DocumentCache) Set(ctx context.Context, rec Record) error {
	data, err := rec.Document.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if _, err := c.db.Exec(ctx, upsertSQL, rec.Path, rec.ContentHash, rec.Options, string(data), len(rec.Document)); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}

	c.mu.Lock()
	c.memory[rec.Path] = fingerprint{hash: rec.ContentHash, options: rec.Options}
	c.mu.Unlock()
	return nil
}
