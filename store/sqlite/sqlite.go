// Package sqlite implements papyrus.Store using pure-Go SQLite
// with in-process brute-force vector search. Zero CGO required.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	papyrus "github.com/fzimmer/papyrus"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// StoreOption configures a SQLite Store.
type StoreOption func(*Store)

// WithLogger sets a structured logger for the store.
// When set, the store emits debug logs for every operation including
// timing, row counts, and key parameters. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

// Store implements papyrus.Store backed by a local SQLite file.
// Embeddings are stored as JSON text and nearest-neighbor search is done
// in-process using brute-force Euclidean distance, the same metric the
// PostgreSQL store's HNSW indexes use, so routing decisions match across
// backends.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ papyrus.Store = (*Store)(nil)

// nopLogger is a logger that discards all output.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// New creates a Store using a local SQLite file at dbPath.
// It opens a single shared connection pool with SetMaxOpenConns(1) so that
// all goroutines serialize through one connection, eliminating SQLITE_BUSY
// errors caused by concurrent writers opening independent connections.
func New(dbPath string, opts ...StoreOption) *Store {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		// sql.Open only fails when the driver is not registered; with the
		// blank import above that never happens.
		panic(fmt.Sprintf("sqlite: open driver: %v", err))
	}
	db.SetMaxOpenConns(1)
	s := &Store{db: db, logger: nopLogger}
	for _, o := range opts {
		o(s)
	}
	s.logger.Debug("sqlite: store opened", "path", dbPath)
	return s
}

// Init creates all required tables and indexes. The unique index on
// summaries.document_id makes re-ingestion of the same document fail at
// commit time instead of leaving duplicate summaries behind.
func (s *Store) Init(ctx context.Context) error {
	start := time.Now()
	s.logger.Debug("sqlite: init started")
	tables := []string{
		`CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS parents (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			content TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS children (
			id TEXT PRIMARY KEY,
			parent_chunk_id TEXT NOT NULL,
			content TEXT NOT NULL,
			embedding TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS summaries (
			id TEXT PRIMARY KEY,
			document_id TEXT NOT NULL,
			summary_text TEXT NOT NULL,
			embedding TEXT NOT NULL
		)`,
	}

	for _, ddl := range tables {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	// Indexes on frequently queried columns.
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_parents_document ON parents(document_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_children_parent ON children(parent_chunk_id)`)
	_, _ = s.db.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_summaries_document ON summaries(document_id)`)

	s.logger.Info("sqlite: init completed", "duration", time.Since(start))
	return nil
}

// CreateDocument inserts a document row.
func (s *Store) CreateDocument(ctx context.Context, doc papyrus.Document) error {
	start := time.Now()
	s.logger.Debug("sqlite: create document", "id", doc.ID, "title", doc.Title)

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (id, title, created_at) VALUES (?, ?, ?)`,
		doc.ID, doc.Title, doc.CreatedAt,
	)
	if err != nil {
		s.logger.Error("sqlite: create document failed", "id", doc.ID, "error", err, "duration", time.Since(start))
		return fmt.Errorf("create document: %w", err)
	}
	s.logger.Debug("sqlite: create document ok", "id", doc.ID, "duration", time.Since(start))
	return nil
}

// GetDocument returns a document by ID.
func (s *Store) GetDocument(ctx context.Context, id string) (papyrus.Document, error) {
	start := time.Now()
	s.logger.Debug("sqlite: get document", "id", id)

	var d papyrus.Document
	err := s.db.QueryRowContext(ctx,
		`SELECT id, title, created_at FROM documents WHERE id = ?`, id,
	).Scan(&d.ID, &d.Title, &d.CreatedAt)
	if err == sql.ErrNoRows {
		return papyrus.Document{}, papyrus.ErrNotFound
	}
	if err != nil {
		s.logger.Error("sqlite: get document failed", "id", id, "error", err, "duration", time.Since(start))
		return papyrus.Document{}, fmt.Errorf("get document: %w", err)
	}
	s.logger.Debug("sqlite: get document ok", "id", id, "duration", time.Since(start))
	return d, nil
}

// ListDocuments returns all documents ordered by creation time (newest first).
func (s *Store) ListDocuments(ctx context.Context) ([]papyrus.Document, error) {
	start := time.Now()
	s.logger.Debug("sqlite: list documents")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		s.logger.Error("sqlite: list documents failed", "error", err)
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []papyrus.Document
	for rows.Next() {
		var d papyrus.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	s.logger.Debug("sqlite: list documents ok", "count", len(docs), "duration", time.Since(start))
	return docs, rows.Err()
}

// StoreHierarchy inserts the summary, all parents, and all children in a
// single transaction.
func (s *Store) StoreHierarchy(ctx context.Context, summary papyrus.SummaryChunk, parents []papyrus.ParentChunk, children []papyrus.ChildChunk) error {
	start := time.Now()
	s.logger.Debug("sqlite: store hierarchy", "document_id", summary.DocumentID, "parents", len(parents), "children", len(children))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT INTO summaries (id, document_id, summary_text, embedding) VALUES (?, ?, ?, ?)`,
		summary.ID, summary.DocumentID, summary.SummaryText, serializeEmbedding(summary.Embedding),
	)
	if err != nil {
		s.logger.Error("sqlite: insert summary failed", "document_id", summary.DocumentID, "error", err)
		return fmt.Errorf("insert summary: %w", err)
	}

	for _, p := range parents {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO parents (id, document_id, content) VALUES (?, ?, ?)`,
			p.ID, p.DocumentID, p.Content,
		)
		if err != nil {
			s.logger.Error("sqlite: insert parent failed", "parent_id", p.ID, "error", err)
			return fmt.Errorf("insert parent: %w", err)
		}
	}

	for _, c := range children {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO children (id, parent_chunk_id, content, embedding) VALUES (?, ?, ?, ?)`,
			c.ID, c.ParentChunkID, c.Content, serializeEmbedding(c.Embedding),
		)
		if err != nil {
			s.logger.Error("sqlite: insert child failed", "child_id", c.ID, "error", err)
			return fmt.Errorf("insert child: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("sqlite: store hierarchy commit failed", "document_id", summary.DocumentID, "error", err)
		return fmt.Errorf("commit tx: %w", err)
	}
	s.logger.Debug("sqlite: store hierarchy ok", "document_id", summary.DocumentID, "duration", time.Since(start))
	return nil
}

// NearestSummary performs brute-force Euclidean distance search over
// summaries and returns the single nearest one.
func (s *Store) NearestSummary(ctx context.Context, embedding []float32, documentID string) (papyrus.ScoredSummary, error) {
	start := time.Now()
	s.logger.Debug("sqlite: nearest summary", "embedding_dim", len(embedding), "document_id", documentID)

	query := `SELECT id, document_id, summary_text, embedding FROM summaries`
	var args []any
	if documentID != "" {
		query += ` WHERE document_id = ?`
		args = append(args, documentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("sqlite: nearest summary failed", "error", err, "duration", time.Since(start))
		return papyrus.ScoredSummary{}, fmt.Errorf("nearest summary: %w", err)
	}
	defer rows.Close()

	var best papyrus.ScoredSummary
	found := false
	scanned := 0

	for rows.Next() {
		var sum papyrus.SummaryChunk
		var embJSON string
		if err := rows.Scan(&sum.ID, &sum.DocumentID, &sum.SummaryText, &embJSON); err != nil {
			return papyrus.ScoredSummary{}, fmt.Errorf("scan summary: %w", err)
		}
		scanned++
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		dist := euclideanDistance(embedding, stored)
		if !found || dist < best.Distance {
			best = papyrus.ScoredSummary{SummaryChunk: sum, Distance: dist}
			found = true
		}
	}
	if err := rows.Err(); err != nil {
		return papyrus.ScoredSummary{}, fmt.Errorf("iterate summaries: %w", err)
	}
	if !found {
		s.logger.Debug("sqlite: nearest summary empty", "scanned", scanned, "duration", time.Since(start))
		return papyrus.ScoredSummary{}, papyrus.ErrNotFound
	}

	s.logger.Debug("sqlite: nearest summary ok", "scanned", scanned, "distance", best.Distance, "duration", time.Since(start))
	return best, nil
}

// NearestChildren performs brute-force Euclidean distance search over child
// chunks, nearest first, joined through parents when a document filter is
// given.
func (s *Store) NearestChildren(ctx context.Context, embedding []float32, documentID string, limit int) ([]papyrus.ScoredChild, error) {
	start := time.Now()
	s.logger.Debug("sqlite: nearest children", "embedding_dim", len(embedding), "document_id", documentID, "limit", limit)

	query := `SELECT id, parent_chunk_id, content, embedding FROM children`
	var args []any
	if documentID != "" {
		query = `SELECT c.id, c.parent_chunk_id, c.content, c.embedding
			FROM children c JOIN parents p ON p.id = c.parent_chunk_id
			WHERE p.document_id = ?`
		args = append(args, documentID)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.Error("sqlite: nearest children failed", "error", err, "duration", time.Since(start))
		return nil, fmt.Errorf("nearest children: %w", err)
	}
	defer rows.Close()

	var results []papyrus.ScoredChild
	scanned := 0

	for rows.Next() {
		var c papyrus.ChildChunk
		var embJSON string
		if err := rows.Scan(&c.ID, &c.ParentChunkID, &c.Content, &embJSON); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		scanned++
		stored, err := deserializeEmbedding(embJSON)
		if err != nil {
			continue
		}
		results = append(results, papyrus.ScoredChild{ChildChunk: c, Distance: euclideanDistance(embedding, stored)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate children: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Distance < results[j].Distance
	})

	if len(results) > limit {
		results = results[:limit]
	}
	s.logger.Debug("sqlite: nearest children ok", "scanned", scanned, "returned", len(results), "duration", time.Since(start))
	return results, nil
}

// GetParentsByIDs returns parent chunks matching the given IDs.
func (s *Store) GetParentsByIDs(ctx context.Context, ids []string) ([]papyrus.ParentChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	start := time.Now()
	s.logger.Debug("sqlite: get parents by ids", "count", len(ids))

	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := fmt.Sprintf(`SELECT id, document_id, content FROM parents WHERE id IN (%s)`,
		strings.Join(placeholders, ","))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("get parents by ids: %w", err)
	}
	defer rows.Close()

	var parents []papyrus.ParentChunk
	for rows.Next() {
		var p papyrus.ParentChunk
		if err := rows.Scan(&p.ID, &p.DocumentID, &p.Content); err != nil {
			return nil, fmt.Errorf("scan parent: %w", err)
		}
		parents = append(parents, p)
	}
	s.logger.Debug("sqlite: get parents by ids ok", "requested", len(ids), "returned", len(parents), "duration", time.Since(start))
	return parents, rows.Err()
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	s.logger.Debug("sqlite: closing store")
	err := s.db.Close()
	if err != nil {
		s.logger.Error("sqlite: close failed", "error", err)
	}
	return err
}

// --- Vector math ---

// euclideanDistance computes the L2 distance between two vectors.
// Mismatched or empty vectors report +Inf so they sort last.
func euclideanDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return float32(math.Inf(1))
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(math.Sqrt(sum))
}

// serializeEmbedding converts []float32 to a JSON array string.
func serializeEmbedding(embedding []float32) string {
	data, _ := json.Marshal(embedding)
	return string(data)
}

// deserializeEmbedding parses a JSON array string back to []float32.
func deserializeEmbedding(s string) ([]float32, error) {
	var v []float32
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
