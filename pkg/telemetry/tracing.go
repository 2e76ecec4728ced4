package telemetry

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// SpanContext is the minimal tracing context carried through a pipeline
// operation for log enrichment. The admin surface mints one per request.
type SpanContext struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Sampled      bool
}

type spanContextKey struct{}

// NewSpanContext mints a root span with random trace/span ids.
func NewSpanContext() SpanContext {
	return SpanContext{TraceID: randomHex(16), SpanID: randomHex(8), Sampled: true}
}

// Child returns a span under sc with a fresh span id.
func (sc SpanContext) Child() SpanContext {
	return SpanContext{
		TraceID:      sc.TraceID,
		SpanID:       randomHex(8),
		ParentSpanID: sc.SpanID,
		Sampled:      sc.Sampled,
	}
}

// ContextWithSpanContext returns a context carrying sc.
func ContextWithSpanContext(ctx context.Context, sc SpanContext) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, spanContextKey{}, sc)
}

// SpanContextFromContext extracts the SpanContext from ctx if one is set.
func SpanContextFromContext(ctx context.Context) (SpanContext, bool) {
	if ctx == nil {
		return SpanContext{}, false
	}
	sc, ok := ctx.Value(spanContextKey{}).(SpanContext)
	if !ok {
		return SpanContext{}, false
	}
	if sc.TraceID == "" && sc.SpanID == "" && sc.ParentSpanID == "" && !sc.Sampled {
		return SpanContext{}, false
	}
	return sc, true
}

// Pipeline identity keys: the admin HTTP surface (request, source, consumer)
// and the orchestrator's batch runner (the catalog run id) stamp
// who-is-doing-what through these so log lines carry the same ids.

type ctxKeyRequestID struct{}
type ctxKeyRunID struct{}
type ctxKeySourceID struct{}
type ctxKeyConsumer struct{}

func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID{}, id)
}

// WithRunID tags ctx with the catalog ProcessRun id driving this work.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRunID{}, id)
}

func WithSourceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeySourceID{}, id)
}

// WithConsumer tags ctx with the ingest-log consumer name.
func WithConsumer(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, ctxKeyConsumer{}, name)
}

func stringFromContext(ctx context.Context, key any) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx.Value(key).(string)
	return s
}

func randomHex(nBytes int) string {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return ""
	}
	return hex.EncodeToString(b)
}
