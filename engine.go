package papyrus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// DefaultTopK is the number of nearest child chunks fetched per query.
const DefaultTopK = 8

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithTopK sets the number of nearest child chunks fetched per query.
func WithTopK(k int) EngineOption {
	return func(e *Engine) { e.topK = k }
}

// WithRoutingThreshold sets the multiplicative routing threshold.
func WithRoutingThreshold(t float32) EngineOption {
	return func(e *Engine) { e.threshold = t }
}

// WithHistoryWindow sets how many recent chat turns are kept in the prompt.
func WithHistoryWindow(n int) EngineOption {
	return func(e *Engine) { e.historyWindow = n }
}

// WithHyDE toggles the hypothetical-answer query transform. When enabled the
// engine asks the Generator for a short hypothetical answer and embeds that
// instead of the raw question; on failure or empty output the raw question
// is embedded.
func WithHyDE(enabled bool) EngineOption {
	return func(e *Engine) { e.hyde = enabled }
}

// WithLogger sets a structured logger. If not set, no logs are emitted.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = l }
}

// Engine runs the query path: embed the question, fetch the nearest summary
// and child chunks, route between the two granularities, assemble the
// grounding context, and stream the answer. An Engine is stateless per call
// and safe for concurrent use.
type Engine struct {
	store     Store
	embedding EmbeddingProvider
	llm       Generator

	topK          int
	threshold     float32
	historyWindow int
	hyde          bool
	logger        *slog.Logger
}

// NewEngine creates an Engine with the defaults: top-8 children, routing
// threshold 0.8, 20-turn history window, HyDE enabled.
func NewEngine(store Store, embedding EmbeddingProvider, llm Generator, opts ...EngineOption) *Engine {
	e := &Engine{
		store:         store,
		embedding:     embedding,
		llm:           llm,
		topK:          DefaultTopK,
		threshold:     DefaultRoutingThreshold,
		historyWindow: DefaultHistoryWindow,
		hyde:          true,
		logger:        slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// PreparedQuery holds the assembled prompt plus the routing facts that
// produced it, ready for streaming.
type PreparedQuery struct {
	Prompt          string
	UseSummary      bool
	SummaryDistance *float32
	ChunkDistance   *float32
}

// Prepare runs everything up to (but not including) generation: the query
// transform, embedding, both ranked lookups, the routing decision, and
// context assembly. Failures here happen before any stream starts, so the
// caller can still report a structured error payload.
func (e *Engine) Prepare(ctx context.Context, req QueryRequest) (*PreparedQuery, error) {
	queryEmbedding, err := e.embedQuery(ctx, req.Question)
	if err != nil {
		return nil, err
	}

	var summaryDist *float32
	summary, err := e.store.NearestSummary(ctx, queryEmbedding, req.DocumentID)
	switch {
	case errors.Is(err, ErrNotFound):
		e.logger.Warn("no document summaries found", "document_id", req.DocumentID)
	case err != nil:
		return nil, fmt.Errorf("summary search: %w", err)
	default:
		summaryDist = &summary.Distance
	}

	children, err := e.store.NearestChildren(ctx, queryEmbedding, req.DocumentID, e.topK)
	if err != nil {
		return nil, fmt.Errorf("child search: %w", err)
	}
	var chunkDist *float32
	if len(children) > 0 {
		chunkDist = &children[0].Distance
	}

	useSummary := Route(summaryDist, chunkDist, e.threshold)
	e.logger.Info("routing decision",
		"use_summary", useSummary,
		"summary_distance", distVal(summaryDist),
		"chunk_distance", distVal(chunkDist),
		"children", len(children),
		"document_id", req.DocumentID)

	var grounding string
	if useSummary {
		grounding = SummaryContext(summary.SummaryText)
	} else {
		parentIDs := UniqueParentIDs(children)
		parents, err := e.store.GetParentsByIDs(ctx, parentIDs)
		if err != nil {
			return nil, fmt.Errorf("fetch parents: %w", err)
		}
		grounding = ChunkContext(children, parents)
	}

	history := FormatHistory(req.ChatHistory, e.historyWindow)

	return &PreparedQuery{
		Prompt:          AnswerPrompt(grounding, req.Question, history),
		UseSummary:      useSummary,
		SummaryDistance: summaryDist,
		ChunkDistance:   chunkDist,
	}, nil
}

// Stream submits the prepared prompt in streaming mode and forwards each
// fragment to ch in generation order, buffering at most one fragment. The
// stream is always well-terminated: the final event is EventDone on normal
// completion or EventError on failure, and ch is closed afterward.
func (e *Engine) Stream(ctx context.Context, p *PreparedQuery, ch chan<- StreamEvent) {
	defer close(ch)

	fragments := make(chan string)
	errc := make(chan error, 1)
	go func() {
		errc <- e.llm.GenerateStream(ctx, p.Prompt, fragments)
	}()

	for frag := range fragments {
		ch <- StreamEvent{Type: EventDelta, Content: frag}
	}

	if err := <-errc; err != nil {
		e.logger.Error("streaming failed", "error", err)
		ch <- StreamEvent{Type: EventError, Content: err.Error()}
		return
	}
	ch <- StreamEvent{Type: EventDone}
}

// Answer is the one-call form of Prepare+Stream for library users. When
// Prepare fails the failure is delivered in-band as an EventError so the
// stream contract still holds; the error is also returned.
func (e *Engine) Answer(ctx context.Context, req QueryRequest, ch chan<- StreamEvent) error {
	p, err := e.Prepare(ctx, req)
	if err != nil {
		ch <- StreamEvent{Type: EventError, Content: err.Error()}
		close(ch)
		return err
	}
	e.Stream(ctx, p, ch)
	return nil
}

// embedQuery embeds the (optionally HyDE-transformed) question text.
func (e *Engine) embedQuery(ctx context.Context, question string) ([]float32, error) {
	queryText := question
	if e.hyde {
		hypo, err := e.llm.Generate(ctx, HyDEPrompt(question))
		if err != nil {
			e.logger.Warn("query transform failed, embedding raw question", "error", err)
		} else if t := strings.TrimSpace(hypo); t != "" {
			queryText = t
		}
	}

	embs, err := e.embedding.Embed(ctx, []string{queryText})
	if err != nil {
		return nil, &EncodingError{Stage: "query", Err: err}
	}
	if len(embs) == 0 {
		return nil, &EncodingError{Stage: "query", Err: errors.New("no embedding returned")}
	}
	return embs[0], nil
}

func distVal(d *float32) any {
	if d == nil {
		return "none"
	}
	return *d
}

// discardHandler drops all log records.
type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }
