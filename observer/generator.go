package observer

import (
	"context"
	"time"

	papyrus "github.com/fzimmer/papyrus"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ObservedGenerator wraps a papyrus.Generator with OTEL instrumentation.
type ObservedGenerator struct {
	inner papyrus.Generator
	inst  *Instruments
}

var _ papyrus.Generator = (*ObservedGenerator)(nil)

// WrapGenerator returns an instrumented generator that emits traces, metrics,
// and logs for every call.
func WrapGenerator(inner papyrus.Generator, inst *Instruments) *ObservedGenerator {
	return &ObservedGenerator{inner: inner, inst: inst}
}

func (o *ObservedGenerator) Name() string { return o.inner.Name() }

func (o *ObservedGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.generate", trace.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	out, err := o.inner.Generate(ctx, prompt)

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	o.record(ctx, "generate", status, durationMs)
	return out, err
}

func (o *ObservedGenerator) GenerateStream(ctx context.Context, prompt string, ch chan<- string) error {
	ctx, span := o.inst.Tracer.Start(ctx, "llm.generate_stream", trace.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
	))
	defer span.End()
	start := time.Now()

	// Wrap the channel to count fragments. Buffer generously so the inner
	// provider never blocks on send, preventing a deadlock where the goroutine
	// can't drain wrappedCh because ch is full and nobody reads ch until
	// GenerateStream returns.
	bufSize := max(cap(ch), 64)
	wrappedCh := make(chan string, bufSize)
	chunks := 0
	done := make(chan struct{})
	go func() {
		defer close(ch)
		defer close(done)
		for frag := range wrappedCh {
			chunks++
			select {
			case ch <- frag:
			case <-ctx.Done():
				return
			}
		}
	}()

	err := o.inner.GenerateStream(ctx, prompt, wrappedCh)
	<-done // wait for goroutine to finish before reading chunks

	durationMs := float64(time.Since(start).Milliseconds())
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	span.SetAttributes(AttrStreamChunks.Int(chunks))
	o.record(ctx, "generate_stream", status, durationMs)
	return err
}

func (o *ObservedGenerator) record(ctx context.Context, method, status string, durationMs float64) {
	o.inst.LLMRequests.Add(ctx, 1, metric.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
		attribute.String("status", status),
	))
	o.inst.LLMDuration.Record(ctx, durationMs, metric.WithAttributes(
		AttrLLMProvider.String(o.inner.Name()),
		AttrLLMMethod.String(method),
	))

	// Structured log
	var rec otellog.Record
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue("llm call completed"))
	rec.AddAttributes(
		otellog.String("llm.provider", o.inner.Name()),
		otellog.String("llm.method", method),
		otellog.Float64("llm.duration_ms", durationMs),
		otellog.String("status", status),
	)
	o.inst.Logger.Emit(ctx, rec)
}
