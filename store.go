package papyrus

import "context"

// Store abstracts persistence with vector distance ordering.
//
// Distance semantics: NearestSummary and NearestChildren order rows by
// Euclidean (L2) distance of the embedding column to the query vector,
// ascending. Both methods must use the same metric definition, since the
// router compares the two distances numerically.
type Store interface {
	// --- Documents ---
	CreateDocument(ctx context.Context, doc Document) error
	GetDocument(ctx context.Context, id string) (Document, error)
	ListDocuments(ctx context.Context) ([]Document, error)

	// --- Ingestion ---
	// StoreHierarchy persists the summary, all parents, and all children in
	// a single transaction. On any failure nothing is visible: no partial
	// summary/parent/child data. Children reference parents by
	// ParentChunkID; every referenced parent must be in parents.
	StoreHierarchy(ctx context.Context, summary SummaryChunk, parents []ParentChunk, children []ChildChunk) error

	// --- Retrieval ---
	// NearestSummary returns the summary chunk nearest to embedding,
	// restricted to documentID when non-empty. Returns ErrNotFound when the
	// (filtered) summary set is empty.
	NearestSummary(ctx context.Context, embedding []float32, documentID string) (ScoredSummary, error)
	// NearestChildren returns up to limit child chunks nearest to embedding,
	// joined through parents and restricted to documentID when non-empty.
	// An empty result is not an error.
	NearestChildren(ctx context.Context, embedding []float32, documentID string, limit int) ([]ScoredChild, error)
	// GetParentsByIDs returns the parent chunks matching ids, in any order.
	GetParentsByIDs(ctx context.Context, ids []string) ([]ParentChunk, error)

	// --- Lifecycle ---
	Init(ctx context.Context) error
	Close() error
}
