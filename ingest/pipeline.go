package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	papyrus "github.com/fzimmer/papyrus"
)

// DefaultMinParagraphChars is the minimum normalized paragraph length. Shorter
// paragraphs carry too little retrieval signal and are dropped; the dropped
// text is not preserved anywhere else.
const DefaultMinParagraphChars = 50

// summaryPlaceholder stands in when summary generation yields empty text.
const summaryPlaceholder = "No summary available for this document."

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithChildWindow sets the child chunk window size in bytes.
func WithChildWindow(n int) PipelineOption {
	return func(p *Pipeline) { p.window = n }
}

// WithChildOverlap sets the overlap between consecutive child windows.
func WithChildOverlap(n int) PipelineOption {
	return func(p *Pipeline) { p.overlap = n }
}

// WithMinParagraphChars sets the paragraph length filter.
func WithMinParagraphChars(n int) PipelineOption {
	return func(p *Pipeline) { p.minParagraph = n }
}

// WithExtractor registers or replaces the extractor for a content type.
func WithExtractor(ct ContentType, ex Extractor) PipelineOption {
	return func(p *Pipeline) { p.extractors[ct] = ex }
}

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) PipelineOption {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline is the end-to-end ingestion path for one document: extract →
// normalize → summarize → chunk → embed → persist. A Pipeline holds no
// per-document state and is safe for concurrent use; each Run owns exactly
// one store transaction via StoreHierarchy.
type Pipeline struct {
	store     papyrus.Store
	embedding papyrus.EmbeddingProvider
	llm       papyrus.Generator

	window       int
	overlap      int
	minParagraph int
	extractors   map[ContentType]Extractor
	logger       *slog.Logger
}

// NewPipeline creates a Pipeline with the defaults: 500-byte child windows
// with 100-byte overlap, 50-char paragraph filter, extractors for PDF,
// markdown, HTML, and plain text.
func NewPipeline(store papyrus.Store, embedding papyrus.EmbeddingProvider, llm papyrus.Generator, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		store:        store,
		embedding:    embedding,
		llm:          llm,
		window:       DefaultChildWindow,
		overlap:      DefaultChildOverlap,
		minParagraph: DefaultMinParagraphChars,
		extractors: map[ContentType]Extractor{
			TypePlainText: PlainTextExtractor{},
			TypeMarkdown:  MarkdownExtractor{},
			TypeHTML:      HTMLExtractor{},
			TypePDF:       NewPDFExtractor(),
		},
		logger: slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run ingests raw document bytes for an already-persisted document and
// reports the structured outcome the job system expects. Nothing is retried
// in here; a failure leaves no partial chunk data behind because the only
// write is the single StoreHierarchy transaction.
func (p *Pipeline) Run(ctx context.Context, doc papyrus.Document, content []byte, filename string) papyrus.IngestReport {
	numChunks, err := p.run(ctx, doc, content, filename)
	if err != nil {
		p.logger.Error("ingestion failed", "document_id", doc.ID, "error", err)
		return papyrus.IngestReport{Status: papyrus.StatusError, Message: err.Error()}
	}
	p.logger.Info("ingestion complete", "document_id", doc.ID, "num_chunks", numChunks)
	return papyrus.IngestReport{Status: papyrus.StatusSuccess, NumChunks: numChunks}
}

func (p *Pipeline) run(ctx context.Context, doc papyrus.Document, content []byte, filename string) (int, error) {
	// 1. Extract.
	ct := ContentTypeFromExtension(strings.TrimPrefix(filepath.Ext(filename), "."))
	extractor, ok := p.extractors[ct]
	if !ok {
		extractor = PlainTextExtractor{}
	}
	raw, err := extractor.Extract(content)
	if err != nil {
		return 0, &papyrus.ExtractionError{Source: filename, Err: err}
	}

	// 2. Normalize into blank-line-delimited paragraphs.
	text := NormalizeWhitespace(raw)

	// 3. Summarize the full text before any per-chunk work, so the later
	// context assembly has a bounded summary to route to.
	summaryText, err := p.summarize(ctx, text)
	if err != nil {
		return 0, err
	}

	// 4. Embed the summary and stage its row.
	sumEmbs, err := p.embedding.Embed(ctx, []string{summaryText})
	if err != nil || len(sumEmbs) == 0 {
		if err == nil {
			err = fmt.Errorf("no embedding returned")
		}
		return 0, &papyrus.EncodingError{Stage: "summary", Err: err}
	}
	summary := papyrus.SummaryChunk{
		ID:          papyrus.NewID(),
		DocumentID:  doc.ID,
		SummaryText: summaryText,
		Embedding:   sumEmbs[0],
	}

	// 5–6. Paragraph filter, then stage parents with their child window
	// texts carried as (parent index, texts) pairs so the batch embed can be
	// zipped back by recorded counts rather than iteration order.
	chunker := NewSlidingChunker(p.window, p.overlap)
	var parents []papyrus.ParentChunk
	var childTexts [][]string
	for _, para := range SplitParagraphs(text) {
		if len(para) < p.minParagraph {
			continue
		}
		parents = append(parents, papyrus.ParentChunk{
			ID:         papyrus.NewID(),
			DocumentID: doc.ID,
			Content:    para,
		})
		childTexts = append(childTexts, chunker.Chunk(para))
	}

	// 7. One batched embedding call across all children of all parents.
	children, err := p.embedChildren(ctx, parents, childTexts)
	if err != nil {
		return 0, err
	}

	// 8. One transaction for summary + parents + children.
	if err := p.store.StoreHierarchy(ctx, summary, parents, children); err != nil {
		return 0, &papyrus.PersistenceError{Op: "store hierarchy", Err: err}
	}

	return len(children), nil
}

// summarize asks the generation service for a document summary, falling back
// to a placeholder when generation yields empty text.
func (p *Pipeline) summarize(ctx context.Context, text string) (string, error) {
	out, err := p.llm.Generate(ctx, papyrus.SummaryPrompt(text))
	if err != nil {
		return "", &papyrus.GenerationError{Provider: p.llm.Name(), Err: err}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return summaryPlaceholder, nil
	}
	return out, nil
}

// embedChildren flattens all child texts across all parents into one batch
// call and zips the vectors back by the per-parent counts. The embedding
// provider must return vectors in input order; positional correspondence is
// the only link between a child text and its vector.
func (p *Pipeline) embedChildren(ctx context.Context, parents []papyrus.ParentChunk, childTexts [][]string) ([]papyrus.ChildChunk, error) {
	var flat []string
	for _, texts := range childTexts {
		flat = append(flat, texts...)
	}
	if len(flat) == 0 {
		return nil, nil
	}

	embs, err := p.embedding.Embed(ctx, flat)
	if err != nil {
		return nil, &papyrus.EncodingError{Stage: "children", Err: err}
	}
	if len(embs) != len(flat) {
		return nil, &papyrus.EncodingError{
			Stage: "children",
			Err:   fmt.Errorf("got %d embeddings for %d texts", len(embs), len(flat)),
		}
	}

	children := make([]papyrus.ChildChunk, 0, len(flat))
	k := 0
	for i, texts := range childTexts {
		for _, t := range texts {
			children = append(children, papyrus.ChildChunk{
				ID:            papyrus.NewID(),
				ParentChunkID: parents[i].ID,
				Content:       t,
				Embedding:     embs[k],
			})
			k++
		}
	}
	return children, nil
}

// discardHandler drops all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
