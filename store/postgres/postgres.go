// Package postgres implements papyrus.Store using PostgreSQL with pgvector
// for native nearest-neighbor ordering by Euclidean distance.
//
// The Store accepts an externally-owned *pgxpool.Pool via constructor
// injection. The caller creates and closes the pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	papyrus "github.com/fzimmer/papyrus"
)

// Store implements papyrus.Store backed by PostgreSQL with pgvector.
// Vector search uses HNSW indexes with L2 distance: the <-> operator both
// orders results and produces the distance the router compares, so the two
// always agree on the metric.
type Store struct {
	pool *pgxpool.Pool
	cfg  pgConfig
}

type pgConfig struct {
	embeddingDimension int // 0 = untyped vector
	hnswM              int // 0 = pgvector default (16)
	hnswEFConstruction int // 0 = pgvector default (64)
	hnswEFSearch       int // 0 = pgvector default (40)
}

// Option configures a PostgreSQL Store.
type Option func(*pgConfig)

// WithEmbeddingDimension sets the vector column dimension (e.g. 384). When
// set, CREATE TABLE uses vector(N) instead of untyped vector, catching
// dimension mismatches at insert time. Only affects new table creation.
func WithEmbeddingDimension(dim int) Option {
	return func(c *pgConfig) { c.embeddingDimension = dim }
}

// WithHNSWM sets the HNSW m parameter (max connections per node).
func WithHNSWM(m int) Option {
	return func(c *pgConfig) { c.hnswM = m }
}

// WithEFConstruction sets the HNSW ef_construction parameter.
func WithEFConstruction(ef int) Option {
	return func(c *pgConfig) { c.hnswEFConstruction = ef }
}

// WithEFSearch sets the HNSW ef_search parameter, applied during Init.
func WithEFSearch(ef int) Option {
	return func(c *pgConfig) { c.hnswEFSearch = ef }
}

var _ papyrus.Store = (*Store)(nil)

// New creates a Store using an existing pgxpool.Pool.
// The caller owns the pool and is responsible for closing it.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	var cfg pgConfig
	for _, o := range opts {
		o(&cfg)
	}
	return &Store{pool: pool, cfg: cfg}
}

func (s *Store) vectorType() string {
	if s.cfg.embeddingDimension > 0 {
		return fmt.Sprintf("vector(%d)", s.cfg.embeddingDimension)
	}
	return "vector"
}

func (s *Store) hnswWithClause() string {
	var parts []string
	if s.cfg.hnswM > 0 {
		parts = append(parts, fmt.Sprintf("m = %d", s.cfg.hnswM))
	}
	if s.cfg.hnswEFConstruction > 0 {
		parts = append(parts, fmt.Sprintf("ef_construction = %d", s.cfg.hnswEFConstruction))
	}
	if len(parts) == 0 {
		return ""
	}
	return " WITH (" + strings.Join(parts, ", ") + ")"
}

// Init creates the pgvector extension, all required tables, and indexes.
// Safe to call multiple times (all statements are idempotent). The unique
// index on summaries.document_id makes accidental re-ingestion of the same
// document surface as an insert error instead of silent duplicates.
func (s *Store) Init(ctx context.Context) error {
	vtype := s.vectorType()
	hnswWith := s.hnswWithClause()

	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,

		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at BIGINT NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS parents (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			content TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS parents_document_idx ON parents(document_id)`,

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS children (
			id TEXT PRIMARY KEY,
			parent_chunk_id TEXT NOT NULL REFERENCES parents(id) ON DELETE CASCADE,
			content TEXT NOT NULL,
			embedding %s NOT NULL
		)`, vtype),
		`CREATE INDEX IF NOT EXISTS children_parent_idx ON children(parent_chunk_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS children_embedding_idx ON children USING hnsw (embedding vector_l2_ops)%s`, hnswWith),

		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS summaries (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
			summary_text TEXT NOT NULL,
			embedding %s NOT NULL
		)`, vtype),
		`CREATE UNIQUE INDEX IF NOT EXISTS summaries_document_idx ON summaries(document_id)`,
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS summaries_embedding_idx ON summaries USING hnsw (embedding vector_l2_ops)%s`, hnswWith),
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: init: %w", err)
		}
	}

	if s.cfg.hnswEFSearch > 0 {
		if _, err := s.pool.Exec(ctx, fmt.Sprintf("SET hnsw.ef_search = %d", s.cfg.hnswEFSearch)); err != nil {
			return fmt.Errorf("postgres: set ef_search: %w", err)
		}
	}

	return nil
}

// --- Documents ---

// CreateDocument inserts a document row.
func (s *Store) CreateDocument(ctx context.Context, doc papyrus.Document) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO documents (id, title, created_at) VALUES ($1, $2, $3)`,
		doc.ID, doc.Title, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create document: %w", err)
	}
	return nil
}

// GetDocument returns a document by id.
func (s *Store) GetDocument(ctx context.Context, id string) (papyrus.Document, error) {
	var d papyrus.Document
	err := s.pool.QueryRow(ctx,
		`SELECT id, title, created_at FROM documents WHERE id = $1`, id,
	).Scan(&d.ID, &d.Title, &d.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return papyrus.Document{}, papyrus.ErrNotFound
	}
	if err != nil {
		return papyrus.Document{}, fmt.Errorf("postgres: get document: %w", err)
	}
	return d, nil
}

// ListDocuments returns all documents, most recently created first.
func (s *Store) ListDocuments(ctx context.Context) ([]papyrus.Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list documents: %w", err)
	}
	defer rows.Close()

	var docs []papyrus.Document
	for rows.Next() {
		var d papyrus.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan document: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// --- Ingestion ---

// StoreHierarchy persists the summary, all parents, and all children in a
// single transaction. On any failure the transaction rolls back and no
// partial data is visible.
func (s *Store) StoreHierarchy(ctx context.Context, summary papyrus.SummaryChunk, parents []papyrus.ParentChunk, children []papyrus.ChildChunk) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	_, err = tx.Exec(ctx,
		`INSERT INTO summaries (id, document_id, summary_text, embedding)
		 VALUES ($1, $2, $3, $4::vector)`,
		summary.ID, summary.DocumentID, summary.SummaryText, serializeEmbedding(summary.Embedding))
	if err != nil {
		return fmt.Errorf("postgres: insert summary: %w", err)
	}

	for _, p := range parents {
		_, err = tx.Exec(ctx,
			`INSERT INTO parents (id, document_id, content) VALUES ($1, $2, $3)`,
			p.ID, p.DocumentID, p.Content)
		if err != nil {
			return fmt.Errorf("postgres: insert parent: %w", err)
		}
	}

	for _, c := range children {
		_, err = tx.Exec(ctx,
			`INSERT INTO children (id, parent_chunk_id, content, embedding)
			 VALUES ($1, $2, $3, $4::vector)`,
			c.ID, c.ParentChunkID, c.Content, serializeEmbedding(c.Embedding))
		if err != nil {
			return fmt.Errorf("postgres: insert child: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit tx: %w", err)
	}
	return nil
}

// --- Retrieval ---

// NearestSummary returns the summary nearest to embedding by L2 distance,
// optionally restricted to one document.
func (s *Store) NearestSummary(ctx context.Context, embedding []float32, documentID string) (papyrus.ScoredSummary, error) {
	embStr := serializeEmbedding(embedding)

	q := `SELECT id, document_id, summary_text, embedding <-> $1::vector AS distance
	 FROM summaries
	 ORDER BY embedding <-> $1::vector
	 LIMIT 1`
	args := []any{embStr}
	if documentID != "" {
		q = `SELECT id, document_id, summary_text, embedding <-> $1::vector AS distance
		 FROM summaries
		 WHERE document_id = $2
		 ORDER BY embedding <-> $1::vector
		 LIMIT 1`
		args = append(args, documentID)
	}

	var res papyrus.ScoredSummary
	err := s.pool.QueryRow(ctx, q, args...).Scan(&res.ID, &res.DocumentID, &res.SummaryText, &res.Distance)
	if errors.Is(err, pgx.ErrNoRows) {
		return papyrus.ScoredSummary{}, papyrus.ErrNotFound
	}
	if err != nil {
		return papyrus.ScoredSummary{}, fmt.Errorf("postgres: nearest summary: %w", err)
	}
	return res, nil
}

// NearestChildren returns up to limit child chunks nearest to embedding by
// L2 distance, joined through parents when a document filter is given.
func (s *Store) NearestChildren(ctx context.Context, embedding []float32, documentID string, limit int) ([]papyrus.ScoredChild, error) {
	embStr := serializeEmbedding(embedding)

	q := `SELECT c.id, c.parent_chunk_id, c.content, c.embedding <-> $1::vector AS distance
	 FROM children c
	 ORDER BY c.embedding <-> $1::vector
	 LIMIT $2`
	args := []any{embStr, limit}
	if documentID != "" {
		q = `SELECT c.id, c.parent_chunk_id, c.content, c.embedding <-> $1::vector AS distance
		 FROM children c JOIN parents p ON p.id = c.parent_chunk_id
		 WHERE p.document_id = $3
		 ORDER BY c.embedding <-> $1::vector
		 LIMIT $2`
		args = append(args, documentID)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: nearest children: %w", err)
	}
	defer rows.Close()

	var results []papyrus.ScoredChild
	for rows.Next() {
		var c papyrus.ScoredChild
		if err := rows.Scan(&c.ID, &c.ParentChunkID, &c.Content, &c.Distance); err != nil {
			return nil, fmt.Errorf("postgres: scan child: %w", err)
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// GetParentsByIDs returns the parent chunks matching ids.
func (s *Store) GetParentsByIDs(ctx context.Context, ids []string) ([]papyrus.ParentChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, document_id, content FROM parents WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("postgres: get parents: %w", err)
	}
	defer rows.Close()

	var parents []papyrus.ParentChunk
	for rows.Next() {
		var p papyrus.ParentChunk
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Content); err != nil {
			return nil, fmt.Errorf("postgres: scan parent: %w", err)
		}
		parents = append(parents, p)
	}
	return parents, rows.Err()
}

// Close is a no-op. The caller owns the pool and manages its lifecycle.
func (s *Store) Close() error {
	return nil
}

// serializeEmbedding converts []float32 to a string like "[0.1,0.2,0.3]"
// suitable for pgvector's text input format.
func serializeEmbedding(embedding []float32) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(float64(v), 'f', -1, 32)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
