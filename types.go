package papyrus

// --- Domain types (database records) ---

// Document is the root of ownership for all derived chunks.
// Created on upload, immutable thereafter.
type Document struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	CreatedAt int64  `json:"created_at"`
}

// ParentChunk is one paragraph of normalized document text, used as the
// expanded context around a matched child chunk. Parents carry no embedding.
type ParentChunk struct {
	ID         string `json:"id"`
	DocumentID string `json:"document_id"`
	Content    string `json:"content"`
}

// ChildChunk is an overlapping sub-window of a parent's text. Children are
// the retrieval unit: each carries an embedding and links to exactly one
// parent.
type ChildChunk struct {
	ID            string    `json:"id"`
	ParentChunkID string    `json:"parent_chunk_id"`
	Content       string    `json:"content"`
	Embedding     []float32 `json:"-"`
}

// SummaryChunk is the whole-document abstractive summary with its own
// embedding, used for broad-question routing. Exactly one per document.
type SummaryChunk struct {
	ID          string    `json:"id"`
	DocumentID  string    `json:"document_id"`
	SummaryText string    `json:"summary_text"`
	Embedding   []float32 `json:"-"`
}

// --- Retrieval results ---

// ScoredChild is a child chunk with its L2 distance to the query embedding.
// Lower distance means more relevant.
type ScoredChild struct {
	ChildChunk
	Distance float32 `json:"distance"`
}

// ScoredSummary is a summary chunk with its L2 distance to the query embedding.
type ScoredSummary struct {
	SummaryChunk
	Distance float32 `json:"distance"`
}

// --- Query protocol (transient, not persisted) ---

// ChatTurn is one entry of the client-supplied conversation history.
type ChatTurn struct {
	Role    string `json:"role"` // "user" or "assistant"
	Content string `json:"content"`
}

// QueryRequest is an incoming question, optionally scoped to one document
// and optionally continuing a conversation.
type QueryRequest struct {
	Question    string     `json:"question"`
	ChatHistory []ChatTurn `json:"chat_history,omitempty"`
	DocumentID  string     `json:"document_id,omitempty"`
}

// --- Ingestion reporting ---

// Task status values reported by an ingestion task.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// IngestReport is the structured result an ingestion task hands back to the
// job system. NumChunks counts persisted child chunks only.
type IngestReport struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	NumChunks int    `json:"num_chunks"`
}
