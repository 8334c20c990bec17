package observability

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/psicolfis/checkout-api/internal/platform/requestctx"
)

// EventLogger is the structured event sink handed to services.
type EventLogger func(ctx context.Context, event string, fields map[string]any)

var (
	errorSuffixes = []string{"failed", "error"}
	warnSuffixes  = []string{"gap", "rejected", "ignored", "misconfigured"}
)

// NewEventLogger returns an EventLogger that writes through the request logger on the
// context, or fallback when the context carries none. The level follows the event name.
func NewEventLogger(fallback *zap.Logger) EventLogger {
	if fallback == nil {
		fallback = zap.NewNop()
	}
	return func(ctx context.Context, event string, fields map[string]any) {
		logger := requestctx.Logger(ctx)
		if logger == requestctx.NoopLogger() {
			logger = fallback
		}

		zapFields := make([]zap.Field, 0, len(fields)+1)
		zapFields = append(zapFields, zap.String("event", event))
		keys := make([]string, 0, len(fields))
		for key := range fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			value := fields[key]
			if s, ok := value.(string); ok {
				value = sanitizeString(s, 512)
			}
			zapFields = append(zapFields, zap.Any(key, value))
		}

		if ce := logger.Check(EventLevel(event), event); ce != nil {
			ce.Write(zapFields...)
		}
	}
}

// EventLevel maps an event name to its log level.
func EventLevel(event string) zapcore.Level {
	name := strings.ToLower(event)
	if idx := strings.LastIndexAny(name, "._"); idx >= 0 {
		name = name[idx+1:]
	}
	for _, suffix := range errorSuffixes {
		if name == suffix {
			return zapcore.ErrorLevel
		}
	}
	for _, suffix := range warnSuffixes {
		if name == suffix {
			return zapcore.WarnLevel
		}
	}
	return zapcore.InfoLevel
}
