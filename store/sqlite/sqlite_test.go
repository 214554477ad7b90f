package sqlite

import (
	"context"
	"errors"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	papyrus "github.com/fzimmer/papyrus"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	s := New(filepath.Join(t.TempDir(), "test.db"))
	if err := s.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return s
}

func TestInitIdempotent(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "init.db"))
	ctx := context.Background()
	if err := s.Init(ctx); err != nil {
		t.Fatalf("first Init: %v", err)
	}
	if err := s.Init(ctx); err != nil {
		t.Fatalf("second Init: %v", err)
	}
}

func TestDocumentCRUD(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := papyrus.Document{ID: papyrus.NewID(), Title: "manual.pdf", CreatedAt: papyrus.NowUnix()}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	got, err := s.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Title != "manual.pdf" {
		t.Errorf("unexpected document: %+v", got)
	}

	if _, err := s.GetDocument(ctx, "missing"); !errors.Is(err, papyrus.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	docs, err := s.ListDocuments(ctx)
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("expected 1 document, got %d", len(docs))
	}
}

// ingestDoc stores one document with a summary, one parent, and children
// whose embeddings put them at known distances from the origin.
func ingestDoc(t *testing.T, s *Store, title string, summaryEmb []float32, childEmbs [][]float32) papyrus.Document {
	t.Helper()
	ctx := context.Background()

	doc := papyrus.Document{ID: papyrus.NewID(), Title: title, CreatedAt: papyrus.NowUnix()}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}

	summary := papyrus.SummaryChunk{
		ID:          papyrus.NewID(),
		DocumentID:  doc.ID,
		SummaryText: "summary of " + title,
		Embedding:   summaryEmb,
	}
	parent := papyrus.ParentChunk{ID: papyrus.NewID(), DocumentID: doc.ID, Content: "parent of " + title}
	var children []papyrus.ChildChunk
	for i, emb := range childEmbs {
		children = append(children, papyrus.ChildChunk{
			ID:            papyrus.NewID(),
			ParentChunkID: parent.ID,
			Content:       fmt.Sprintf("child %d of %s", i, title),
			Embedding:     emb,
		})
	}
	if err := s.StoreHierarchy(ctx, summary, []papyrus.ParentChunk{parent}, children); err != nil {
		t.Fatalf("StoreHierarchy: %v", err)
	}
	return doc
}

func TestNearestSummary(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ingestDoc(t, s, "near.txt", []float32{1, 0, 0}, nil)
	ingestDoc(t, s, "far.txt", []float32{5, 0, 0}, nil)

	got, err := s.NearestSummary(ctx, []float32{0, 0, 0}, "")
	if err != nil {
		t.Fatalf("NearestSummary: %v", err)
	}
	if got.SummaryText != "summary of near.txt" {
		t.Errorf("expected nearest summary, got %q", got.SummaryText)
	}
	if math.Abs(float64(got.Distance)-1.0) > 1e-5 {
		t.Errorf("expected distance 1.0, got %f", got.Distance)
	}
}

func TestNearestSummaryEmpty(t *testing.T) {
	s := testStore(t)

	_, err := s.NearestSummary(context.Background(), []float32{1, 2, 3}, "")
	if !errors.Is(err, papyrus.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNearestSummaryDocumentFilter(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ingestDoc(t, s, "near.txt", []float32{1, 0, 0}, nil)
	far := ingestDoc(t, s, "far.txt", []float32{5, 0, 0}, nil)

	// Filtered to the far document, the far summary must win even though
	// the near one is globally closer.
	got, err := s.NearestSummary(ctx, []float32{0, 0, 0}, far.ID)
	if err != nil {
		t.Fatalf("NearestSummary: %v", err)
	}
	if got.DocumentID != far.ID {
		t.Errorf("expected summary from filtered document, got %q", got.DocumentID)
	}
}

func TestNearestChildren(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	ingestDoc(t, s, "doc.txt", []float32{9, 9, 9}, [][]float32{
		{3, 0, 0},
		{1, 0, 0},
		{2, 0, 0},
	})

	got, err := s.NearestChildren(ctx, []float32{0, 0, 0}, "", 2)
	if err != nil {
		t.Fatalf("NearestChildren: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 children, got %d", len(got))
	}
	if got[0].Distance > got[1].Distance {
		t.Error("children not ordered nearest first")
	}
	if got[0].Content != "child 1 of doc.txt" {
		t.Errorf("expected nearest child, got %q", got[0].Content)
	}
}

func TestNearestChildrenDocumentIsolation(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	a := ingestDoc(t, s, "a.txt", []float32{9, 9, 9}, [][]float32{{1, 0, 0}})
	ingestDoc(t, s, "b.txt", []float32{9, 9, 9}, [][]float32{{0.5, 0, 0}})

	got, err := s.NearestChildren(ctx, []float32{0, 0, 0}, a.ID, 8)
	if err != nil {
		t.Fatalf("NearestChildren: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 child from filtered document, got %d", len(got))
	}
	if got[0].Content != "child 0 of a.txt" {
		t.Errorf("got child from wrong document: %q", got[0].Content)
	}
}

func TestStoreHierarchyDuplicateSummaryRollsBack(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := ingestDoc(t, s, "once.txt", []float32{1, 0, 0}, [][]float32{{1, 1, 1}})

	// Second hierarchy for the same document violates the unique summary
	// index; nothing from the second attempt may be visible.
	parent := papyrus.ParentChunk{ID: papyrus.NewID(), DocumentID: doc.ID, Content: "second parent"}
	err := s.StoreHierarchy(ctx, papyrus.SummaryChunk{
		ID:          papyrus.NewID(),
		DocumentID:  doc.ID,
		SummaryText: "second summary",
		Embedding:   []float32{2, 0, 0},
	}, []papyrus.ParentChunk{parent}, nil)
	if err == nil {
		t.Fatal("expected duplicate summary insert to fail")
	}

	parents, err := s.GetParentsByIDs(ctx, []string{parent.ID})
	if err != nil {
		t.Fatalf("GetParentsByIDs: %v", err)
	}
	if len(parents) != 0 {
		t.Error("rolled-back parent is still visible")
	}
}

func TestGetParentsByIDs(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	doc := papyrus.Document{ID: papyrus.NewID(), Title: "p.txt", CreatedAt: papyrus.NowUnix()}
	if err := s.CreateDocument(ctx, doc); err != nil {
		t.Fatalf("CreateDocument: %v", err)
	}
	p1 := papyrus.ParentChunk{ID: papyrus.NewID(), DocumentID: doc.ID, Content: "first"}
	p2 := papyrus.ParentChunk{ID: papyrus.NewID(), DocumentID: doc.ID, Content: "second"}
	summary := papyrus.SummaryChunk{ID: papyrus.NewID(), DocumentID: doc.ID, SummaryText: "s", Embedding: []float32{0}}
	if err := s.StoreHierarchy(ctx, summary, []papyrus.ParentChunk{p1, p2}, nil); err != nil {
		t.Fatalf("StoreHierarchy: %v", err)
	}

	got, err := s.GetParentsByIDs(ctx, []string{p2.ID})
	if err != nil {
		t.Fatalf("GetParentsByIDs: %v", err)
	}
	if len(got) != 1 || got[0].Content != "second" {
		t.Errorf("unexpected parents: %+v", got)
	}

	empty, err := s.GetParentsByIDs(ctx, nil)
	if err != nil || empty != nil {
		t.Errorf("expected nil result for no ids, got %v, %v", empty, err)
	}
}

func TestEuclideanDistance(t *testing.T) {
	d := euclideanDistance([]float32{0, 3}, []float32{4, 0})
	if math.Abs(float64(d)-5.0) > 1e-5 {
		t.Errorf("expected 5.0, got %f", d)
	}

	if d := euclideanDistance([]float32{1}, []float32{1, 2}); !math.IsInf(float64(d), 1) {
		t.Errorf("expected +Inf for mismatched dims, got %f", d)
	}
}
