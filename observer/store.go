package observer

import (
	"context"
	"time"

	papyrus "github.com/fzimmer/papyrus"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedStore wraps a papyrus.Store with OTEL instrumentation. Every
// operation gets a span and duration metric; StoreHierarchy additionally
// counts persisted child chunks.
type ObservedStore struct {
	inner papyrus.Store
	inst  *Instruments
}

var _ papyrus.Store = (*ObservedStore)(nil)

// WrapStore returns an instrumented store.
func WrapStore(inner papyrus.Store, inst *Instruments) *ObservedStore {
	return &ObservedStore{inner: inner, inst: inst}
}

func (o *ObservedStore) Init(ctx context.Context) error {
	return o.inner.Init(ctx)
}

func (o *ObservedStore) Close() error {
	return o.inner.Close()
}

func (o *ObservedStore) CreateDocument(ctx context.Context, doc papyrus.Document) error {
	ctx, finish := o.begin(ctx, "create_document", AttrDocumentID.String(doc.ID))
	err := o.inner.CreateDocument(ctx, doc)
	finish(err)
	return err
}

func (o *ObservedStore) GetDocument(ctx context.Context, id string) (papyrus.Document, error) {
	ctx, finish := o.begin(ctx, "get_document", AttrDocumentID.String(id))
	doc, err := o.inner.GetDocument(ctx, id)
	finish(err)
	return doc, err
}

func (o *ObservedStore) ListDocuments(ctx context.Context) ([]papyrus.Document, error) {
	ctx, finish := o.begin(ctx, "list_documents")
	docs, err := o.inner.ListDocuments(ctx)
	finish(err)
	return docs, err
}

func (o *ObservedStore) StoreHierarchy(ctx context.Context, summary papyrus.SummaryChunk, parents []papyrus.ParentChunk, children []papyrus.ChildChunk) error {
	ctx, finish := o.begin(ctx, "store_hierarchy",
		AttrDocumentID.String(summary.DocumentID),
		AttrParentCount.Int(len(parents)),
		AttrChildCount.Int(len(children)),
	)
	err := o.inner.StoreHierarchy(ctx, summary, parents, children)
	finish(err)
	if err == nil {
		o.inst.ChunksStored.Add(ctx, int64(len(children)))
	}
	return err
}

func (o *ObservedStore) NearestSummary(ctx context.Context, embedding []float32, documentID string) (papyrus.ScoredSummary, error) {
	ctx, finish := o.begin(ctx, "nearest_summary", AttrDocumentID.String(documentID))
	res, err := o.inner.NearestSummary(ctx, embedding, documentID)
	finish(err)
	return res, err
}

func (o *ObservedStore) NearestChildren(ctx context.Context, embedding []float32, documentID string, limit int) ([]papyrus.ScoredChild, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "store.nearest_children", trace.WithAttributes(
		AttrStoreOp.String("nearest_children"),
		AttrDocumentID.String(documentID),
	))
	defer span.End()
	start := time.Now()

	res, err := o.inner.NearestChildren(ctx, embedding, documentID, limit)

	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(AttrResultCount.Int(len(res)))
	o.count(ctx, "nearest_children", status, float64(time.Since(start).Milliseconds()))
	return res, err
}

func (o *ObservedStore) GetParentsByIDs(ctx context.Context, ids []string) ([]papyrus.ParentChunk, error) {
	ctx, finish := o.begin(ctx, "get_parents_by_ids")
	parents, err := o.inner.GetParentsByIDs(ctx, ids)
	finish(err)
	return parents, err
}

// begin starts a span for a store operation and returns a finish callback
// that records status and duration.
func (o *ObservedStore) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	spanAttrs := append([]attribute.KeyValue{AttrStoreOp.String(op)}, attrs...)
	ctx, span := o.inst.Tracer.Start(ctx, "store."+op, trace.WithAttributes(spanAttrs...))
	start := time.Now()
	return ctx, func(err error) {
		status := "ok"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		o.count(ctx, op, status, float64(time.Since(start).Milliseconds()))
	}
}

func (o *ObservedStore) count(ctx context.Context, op, status string, durationMs float64) {
	o.inst.StoreOps.Add(ctx, 1, metric.WithAttributes(
		AttrStoreOp.String(op),
		attribute.String("status", status),
	))
	o.inst.StoreDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrStoreOp.String(op),
	))
}
