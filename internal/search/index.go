package search

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgvector "github.com/pgvector/pgvector-go"
	"github.com/rs/zerolog/log"

	"rpy-converter/internal/parser"
)

// DB is the subset of *pgxpool.Pool the index needs.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Embedder turns text into vectors.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string, batchSize int) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

const upsertLineSQL = `
INSERT INTO dialogue_embeddings (hash, file, label, speaker, content, block, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (hash) DO UPDATE
SET label = EXCLUDED.label, speaker = EXCLUDED.speaker, embedding = EXCLUDED.embedding`

const deleteFileSQL = `DELETE FROM dialogue_embeddings WHERE file = $1`

const searchSQL = `
SELECT hash, file, label, speaker, content, block, 1 - (embedding <=> $1) AS similarity
FROM dialogue_embeddings
ORDER BY embedding <=> $1
LIMIT $2`

// Match is one search hit.
type Match struct {
	DialogueLine
	Score float64
}

// DialogueIndex stores dialogue embeddings in a pgvector column.
type DialogueIndex struct {
	db         DB
	dimensions int
}

// NewDialogueIndex creates an index whose vectors have the given length.
func NewDialogueIndex(db DB, dimensions int) *DialogueIndex {
	return &DialogueIndex{db: db, dimensions: dimensions}
}

// EnsureSchema installs the vector extension and the embeddings table.
func (di *DialogueIndex) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS dialogue_embeddings (
	hash      TEXT PRIMARY KEY,
	file      TEXT NOT NULL,
	label     TEXT NOT NULL,
	speaker   TEXT NOT NULL,
	content   TEXT NOT NULL,
	block     INTEGER NOT NULL,
	embedding vector(%d) NOT NULL
)`, di.dimensions),
	}
	for _, s := range stmts {
		if _, err := di.db.Exec(ctx, s); err != nil {
			return fmt.Errorf("ensure dialogue schema: %w", err)
		}
	}
	return nil
}

// Store upserts lines with their vectors; lines and vectors pair by index.
func (di *DialogueIndex) Store(ctx context.Context, lines []DialogueLine, vectors [][]float32) error {
	if len(lines) != len(vectors) {
		return fmt.Errorf("store dialogue: %d lines but %d vectors", len(lines), len(vectors))
	}
	for i, l := range lines {
		_, err := di.db.Exec(ctx, upsertLineSQL,
			l.Hash, l.File, l.Label, l.Speaker, l.Content, l.Block, pgvector.NewVector(vectors[i]))
		if err != nil {
			return fmt.Errorf("insert dialogue %s: %w", l.Hash, err)
		}
	}
	return nil
}

// DeleteFile removes every stored line of file.
func (di *DialogueIndex) DeleteFile(ctx context.Context, file string) error {
	if _, err := di.db.Exec(ctx, deleteFileSQL, file); err != nil {
		return fmt.Errorf("delete dialogue of %s: %w", file, err)
	}
	return nil
}

// Search returns the topK lines closest to vector by cosine similarity.
func (di *DialogueIndex) Search(ctx context.Context, vector []float32, topK int) ([]Match, error) {
	rows, err := di.db.Query(ctx, searchSQL, pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Hash, &m.File, &m.Label, &m.Speaker, &m.Content, &m.Block, &m.Score); err != nil {
			return nil, fmt.Errorf("scan search result: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return matches, nil
}

// Indexer embeds the dialogue of documents and stores it.
type Indexer struct {
	embedder  Embedder
	index     *DialogueIndex
	batchSize int
}

// NewIndexer creates an indexer embedding batchSize lines per request.
func NewIndexer(embedder Embedder, index *DialogueIndex, batchSize int) *Indexer {
	return &Indexer{embedder: embedder, index: index, batchSize: batchSize}
}

// IndexDocument replaces the stored dialogue of file with every dialogue
// line of doc. It returns the number of lines indexed.
func (ix *Indexer) IndexDocument(ctx context.Context, file string, doc parser.Document) (int, error) {
	lines := ExtractDialogue(file, doc)

	var vectors [][]float32
	if len(lines) > 0 {
		texts := make([]string, len(lines))
		for i, l := range lines {
			texts[i] = embedText(l)
		}

		var err error
		vectors, err = ix.embedder.EmbedBatch(ctx, texts, ix.batchSize)
		if err != nil {
			return 0, fmt.Errorf("embed dialogue of %s: %w", file, err)
		}
	}

	if err := ix.index.DeleteFile(ctx, file); err != nil {
		return 0, err
	}
	if len(lines) == 0 {
		return 0, nil
	}
	if err := ix.index.Store(ctx, lines, vectors); err != nil {
		return 0, err
	}

	log.Info().Str("file", file).Int("lines", len(lines)).Msg("Indexed dialogue")
	return len(lines), nil
}

// Search embeds query and returns the closest dialogue lines.
func (ix *Indexer) Search(ctx context.Context, query string, topK int) ([]Match, error) {
	vector, err := ix.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	return ix.index.Search(ctx, vector, topK)
}
