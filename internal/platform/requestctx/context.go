// Package requestctx carries per-request logging and trace state between middleware and handlers.
package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type (
	loggerKey      struct{}
	traceKey       struct{}
	annotationsKey struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// Annotations collects request-scoped fields reported when the request completes.
// Handlers deeper in the chain add to it after the outer middleware has captured the context.
type Annotations struct {
	mu     sync.Mutex
	fields []zap.Field
	index  map[string]int
}

// Add records a field, replacing any earlier value with the same key.
func (a *Annotations) Add(key string, value any) {
	if a == nil || key == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	field := zap.Any(key, value)
	if a.index == nil {
		a.index = make(map[string]int)
	}
	if i, ok := a.index[key]; ok {
		a.fields[i] = field
		return
	}
	a.index[key] = len(a.fields)
	a.fields = append(a.fields, field)
}

// Fields returns a copy of the recorded fields in insertion order.
func (a *Annotations) Fields() []zap.Field {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]zap.Field, len(a.fields))
	copy(out, a.fields)
	return out
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey{}, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey{}, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey{}).(TraceInfo)
	return info, ok
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithAnnotations attaches an empty annotation set unless one is already present.
func WithAnnotations(ctx context.Context) (context.Context, *Annotations) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing := AnnotationsFrom(ctx); existing != nil {
		return ctx, existing
	}
	a := &Annotations{}
	return context.WithValue(ctx, annotationsKey{}, a), a
}

// AnnotationsFrom returns the annotation set on ctx, or nil.
func AnnotationsFrom(ctx context.Context) *Annotations {
	if ctx == nil {
		return nil
	}
	a, _ := ctx.Value(annotationsKey{}).(*Annotations)
	return a
}

// Annotate adds key=value to the request's completion log. It is a no-op outside a request.
func Annotate(ctx context.Context, key string, value any) {
	AnnotationsFrom(ctx).Add(key, value)
}
