package observer

import (
	"context"
	"errors"
	"testing"

	papyrus "github.com/fzimmer/papyrus"
)

// testInstruments builds instruments against the default no-op global
// providers, so wrapper tests exercise the full code path without an
// exporter.
func testInstruments(t *testing.T) *Instruments {
	t.Helper()
	inst, err := newInstruments()
	if err != nil {
		t.Fatalf("newInstruments: %v", err)
	}
	return inst
}

type fakeGenerator struct {
	out string
	err error
}

func (f *fakeGenerator) Name() string { return "fake" }

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	return f.out, f.err
}

func (f *fakeGenerator) GenerateStream(ctx context.Context, prompt string, ch chan<- string) error {
	for _, frag := range []string{"a", "b", "c"} {
		ch <- frag
	}
	close(ch)
	return f.err
}

type fakeEmbedding struct{}

func (fakeEmbedding) Name() string    { return "fake-embed" }
func (fakeEmbedding) Dimensions() int { return 3 }
func (fakeEmbedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{1, 2, 3}
	}
	return out, nil
}

func TestObservedGeneratorDelegates(t *testing.T) {
	g := WrapGenerator(&fakeGenerator{out: "hello"}, testInstruments(t))

	if g.Name() != "fake" {
		t.Errorf("Name not delegated: %q", g.Name())
	}
	out, err := g.Generate(context.Background(), "prompt")
	if err != nil || out != "hello" {
		t.Errorf("Generate not delegated: %q, %v", out, err)
	}
}

func TestObservedGeneratorPropagatesError(t *testing.T) {
	wantErr := errors.New("boom")
	g := WrapGenerator(&fakeGenerator{err: wantErr}, testInstruments(t))

	if _, err := g.Generate(context.Background(), "p"); !errors.Is(err, wantErr) {
		t.Errorf("expected wrapped error, got %v", err)
	}
}

func TestObservedGeneratorStream(t *testing.T) {
	g := WrapGenerator(&fakeGenerator{}, testInstruments(t))

	ch := make(chan string, 8)
	if err := g.GenerateStream(context.Background(), "p", ch); err != nil {
		t.Fatalf("GenerateStream: %v", err)
	}

	var frags []string
	for frag := range ch {
		frags = append(frags, frag)
	}
	if len(frags) != 3 {
		t.Errorf("expected 3 fragments forwarded, got %d", len(frags))
	}
}

func TestObservedEmbeddingDelegates(t *testing.T) {
	e := WrapEmbedding(fakeEmbedding{}, testInstruments(t))

	if e.Dimensions() != 3 {
		t.Errorf("Dimensions not delegated: %d", e.Dimensions())
	}
	out, err := e.Embed(context.Background(), []string{"x", "y"})
	if err != nil || len(out) != 2 {
		t.Errorf("Embed not delegated: %v, %v", out, err)
	}
}

type fakeStore struct {
	papyrus.Store // panic on anything not overridden

	stored int
}

func (f *fakeStore) StoreHierarchy(ctx context.Context, summary papyrus.SummaryChunk, parents []papyrus.ParentChunk, children []papyrus.ChildChunk) error {
	f.stored = len(children)
	return nil
}

func (f *fakeStore) NearestSummary(ctx context.Context, embedding []float32, documentID string) (papyrus.ScoredSummary, error) {
	return papyrus.ScoredSummary{}, papyrus.ErrNotFound
}

func TestObservedStoreDelegates(t *testing.T) {
	inner := &fakeStore{}
	s := WrapStore(inner, testInstruments(t))
	ctx := context.Background()

	children := []papyrus.ChildChunk{{ID: "c1"}, {ID: "c2"}}
	if err := s.StoreHierarchy(ctx, papyrus.SummaryChunk{}, nil, children); err != nil {
		t.Fatalf("StoreHierarchy: %v", err)
	}
	if inner.stored != 2 {
		t.Errorf("inner store not called: %d", inner.stored)
	}

	if _, err := s.NearestSummary(ctx, nil, ""); !errors.Is(err, papyrus.ErrNotFound) {
		t.Errorf("sentinel error not preserved: %v", err)
	}
}
