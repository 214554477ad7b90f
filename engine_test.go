package papyrus

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type stubStore struct {
	summary    ScoredSummary
	summaryErr error
	children   []ScoredChild
	parents    []ParentChunk

	gotParentIDs []string
	gotLimit     int
}

func (s *stubStore) Init(ctx context.Context) error  { return nil }
func (s *stubStore) Close() error                    { return nil }
func (s *stubStore) CreateDocument(ctx context.Context, doc Document) error { return nil }
func (s *stubStore) GetDocument(ctx context.Context, id string) (Document, error) {
	return Document{}, ErrNotFound
}
func (s *stubStore) ListDocuments(ctx context.Context) ([]Document, error) { return nil, nil }
func (s *stubStore) StoreHierarchy(ctx context.Context, summary SummaryChunk, parents []ParentChunk, children []ChildChunk) error {
	return nil
}

func (s *stubStore) NearestSummary(ctx context.Context, embedding []float32, documentID string) (ScoredSummary, error) {
	if s.summaryErr != nil {
		return ScoredSummary{}, s.summaryErr
	}
	return s.summary, nil
}

func (s *stubStore) NearestChildren(ctx context.Context, embedding []float32, documentID string, limit int) ([]ScoredChild, error) {
	s.gotLimit = limit
	return s.children, nil
}

func (s *stubStore) GetParentsByIDs(ctx context.Context, ids []string) ([]ParentChunk, error) {
	s.gotParentIDs = ids
	return s.parents, nil
}

type stubGenerator struct {
	out       string
	genErr    error
	fragments []string
	streamErr error

	prompts []string
}

func (g *stubGenerator) Name() string { return "stub" }

func (g *stubGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	g.prompts = append(g.prompts, prompt)
	return g.out, g.genErr
}

func (g *stubGenerator) GenerateStream(ctx context.Context, prompt string, ch chan<- string) error {
	g.prompts = append(g.prompts, prompt)
	for _, f := range g.fragments {
		ch <- f
	}
	close(ch)
	return g.streamErr
}

type stubEmbedding struct {
	gotTexts []string
}

func (e *stubEmbedding) Name() string    { return "stub-embed" }
func (e *stubEmbedding) Dimensions() int { return 3 }

func (e *stubEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	e.gotTexts = append(e.gotTexts, texts...)
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

func childAt(id, parentID string, dist float32) ScoredChild {
	return ScoredChild{
		ChildChunk: ChildChunk{ID: id, ParentChunkID: parentID, Content: "child " + id},
		Distance:   dist,
	}
}

func TestPrepareRoutesToSummary(t *testing.T) {
	store := &stubStore{
		summary:  ScoredSummary{SummaryChunk: SummaryChunk{SummaryText: "the whole document"}, Distance: 0.5},
		children: []ScoredChild{childAt("c1", "p1", 1.0)},
	}
	e := NewEngine(store, &stubEmbedding{}, &stubGenerator{}, WithHyDE(false))

	p, err := e.Prepare(context.Background(), QueryRequest{Question: "what is this about?"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !p.UseSummary {
		t.Error("expected summary routing for 0.5 vs 1.0")
	}
	if !strings.Contains(p.Prompt, "[Document Summary]:\nthe whole document") {
		t.Error("prompt missing summary context")
	}
	if p.SummaryDistance == nil || *p.SummaryDistance != 0.5 {
		t.Errorf("summary distance not reported: %v", p.SummaryDistance)
	}
	if p.ChunkDistance == nil || *p.ChunkDistance != 1.0 {
		t.Errorf("chunk distance not reported: %v", p.ChunkDistance)
	}
}

func TestPrepareRoutesToChunks(t *testing.T) {
	store := &stubStore{
		summary: ScoredSummary{SummaryChunk: SummaryChunk{SummaryText: "broad"}, Distance: 0.9},
		children: []ScoredChild{
			childAt("c1", "p1", 1.0),
			childAt("c2", "p1", 1.1),
			childAt("c3", "p2", 1.2),
		},
		parents: []ParentChunk{
			{ID: "p1", Content: "parent one"},
			{ID: "p2", Content: "parent two"},
		},
	}
	e := NewEngine(store, &stubEmbedding{}, &stubGenerator{}, WithHyDE(false))

	p, err := e.Prepare(context.Background(), QueryRequest{Question: "detail question"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if p.UseSummary {
		t.Error("expected chunk routing for 0.9 vs 1.0")
	}
	if !strings.Contains(p.Prompt, "[Chunk 1]: child c1") {
		t.Error("prompt missing child excerpts")
	}
	if !strings.Contains(p.Prompt, "[Parent 1]: parent one") {
		t.Error("prompt missing parent excerpts")
	}
	// p1 is referenced twice but must be fetched once.
	if len(store.gotParentIDs) != 2 {
		t.Errorf("expected 2 unique parent ids, got %v", store.gotParentIDs)
	}
	if store.gotLimit != DefaultTopK {
		t.Errorf("expected top-%d child search, got %d", DefaultTopK, store.gotLimit)
	}
}

func TestPrepareNoSummaryRoutesToChunks(t *testing.T) {
	store := &stubStore{
		summaryErr: ErrNotFound,
		children:   []ScoredChild{childAt("c1", "p1", 2.5)},
		parents:    []ParentChunk{{ID: "p1", Content: "parent one"}},
	}
	e := NewEngine(store, &stubEmbedding{}, &stubGenerator{}, WithHyDE(false))

	p, err := e.Prepare(context.Background(), QueryRequest{Question: "q"})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if p.UseSummary {
		t.Error("missing summary must never route to summary")
	}
	if p.SummaryDistance != nil {
		t.Errorf("expected nil summary distance, got %v", *p.SummaryDistance)
	}
}

func TestPrepareHyDETransform(t *testing.T) {
	store := &stubStore{
		summary:  ScoredSummary{SummaryChunk: SummaryChunk{SummaryText: "s"}, Distance: 0.1},
		children: nil,
	}
	gen := &stubGenerator{out: "a hypothetical answer paragraph"}
	emb := &stubEmbedding{}
	e := NewEngine(store, emb, gen)

	if _, err := e.Prepare(context.Background(), QueryRequest{Question: "why?"}); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(emb.gotTexts) != 1 || emb.gotTexts[0] != "a hypothetical answer paragraph" {
		t.Errorf("expected hypothetical answer to be embedded, got %v", emb.gotTexts)
	}
	if len(gen.prompts) != 1 || !strings.Contains(gen.prompts[0], "why?") {
		t.Errorf("query transform prompt missing question: %v", gen.prompts)
	}
}

func TestPrepareHyDEFallsBackOnFailure(t *testing.T) {
	store := &stubStore{
		summary: ScoredSummary{SummaryChunk: SummaryChunk{SummaryText: "s"}, Distance: 0.1},
	}
	gen := &stubGenerator{genErr: errors.New("llm down")}
	emb := &stubEmbedding{}
	e := NewEngine(store, emb, gen)

	if _, err := e.Prepare(context.Background(), QueryRequest{Question: "raw question"}); err != nil {
		t.Fatalf("Prepare should fall back, got: %v", err)
	}
	if len(emb.gotTexts) != 1 || emb.gotTexts[0] != "raw question" {
		t.Errorf("expected raw question embedded on transform failure, got %v", emb.gotTexts)
	}
}

func TestPrepareHistoryInPrompt(t *testing.T) {
	store := &stubStore{
		summary: ScoredSummary{SummaryChunk: SummaryChunk{SummaryText: "s"}, Distance: 0.1},
	}
	e := NewEngine(store, &stubEmbedding{}, &stubGenerator{}, WithHyDE(false))

	p, err := e.Prepare(context.Background(), QueryRequest{
		Question: "and then?",
		ChatHistory: []ChatTurn{
			{Role: "user", Content: "first question"},
			{Role: "assistant", Content: "first answer"},
		},
	})
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if !strings.Contains(p.Prompt, "User: first question\nAssistant: first answer") {
		t.Error("prompt missing serialized history")
	}
}

func TestStreamForwardsFragmentsThenDone(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"The ", "answer", "."}}
	e := NewEngine(&stubStore{}, &stubEmbedding{}, gen)

	ch := make(chan StreamEvent, 16)
	e.Stream(context.Background(), &PreparedQuery{Prompt: "p"}, ch)

	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	if len(events) != 4 {
		t.Fatalf("expected 3 deltas + done, got %d events", len(events))
	}
	var full strings.Builder
	for _, ev := range events[:3] {
		if ev.Type != EventDelta {
			t.Errorf("expected delta, got %s", ev.Type)
		}
		full.WriteString(ev.Content)
	}
	if full.String() != "The answer." {
		t.Errorf("fragments out of order: %q", full.String())
	}
	if events[3].Type != EventDone {
		t.Errorf("last event must be done, got %s", events[3].Type)
	}
}

func TestStreamErrorTerminatesWithErrorEvent(t *testing.T) {
	gen := &stubGenerator{fragments: []string{"partial "}, streamErr: errors.New("connection reset")}
	e := NewEngine(&stubStore{}, &stubEmbedding{}, gen)

	ch := make(chan StreamEvent, 16)
	e.Stream(context.Background(), &PreparedQuery{Prompt: "p"}, ch)

	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	last := events[len(events)-1]
	if last.Type != EventError {
		t.Fatalf("last event must be error, got %s", last.Type)
	}
	if !strings.Contains(last.Content, "connection reset") {
		t.Errorf("error event missing message: %q", last.Content)
	}
	// The partial fragment was still delivered before the error.
	if events[0].Type != EventDelta || events[0].Content != "partial " {
		t.Errorf("partial fragment lost: %+v", events[0])
	}
}

func TestAnswerDeliversPrepareFailureInBand(t *testing.T) {
	// An embedding failure during Prepare must still terminate the stream.
	store := &stubStore{}
	e := NewEngine(store, failingEmbedding{}, &stubGenerator{}, WithHyDE(false))

	ch := make(chan StreamEvent, 16)
	err := e.Answer(context.Background(), QueryRequest{Question: "q"}, ch)
	if err == nil {
		t.Fatal("expected error")
	}
	var encErr *EncodingError
	if !errors.As(err, &encErr) {
		t.Errorf("expected EncodingError, got %T", err)
	}

	var events []StreamEvent
	for ev := range ch {
		events = append(events, ev)
	}
	if len(events) != 1 || events[0].Type != EventError {
		t.Errorf("expected single in-band error event, got %+v", events)
	}
}

type failingEmbedding struct{}

func (failingEmbedding) Name() string    { return "failing" }
func (failingEmbedding) Dimensions() int { return 3 }
func (failingEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding service unavailable")
}
