package execution

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"nodelink/internal/models"
)

// Recorder receives run measurements. The services layer backs it with Prometheus.
type Recorder interface {
	RecordBlock(blockType, status string, duration time.Duration)
	RecordFallback(kind string)
	DialogueWaiting(delta int)
}

type nopRecorder struct{}

func (nopRecorder) RecordBlock(string, string, time.Duration) {}
func (nopRecorder) RecordFallback(string)                     {}
func (nopRecorder) DialogueWaiting(int)                       {}

// Fallback kinds
const (
	FallbackUnknownSchema   = "unknown_schema"
	FallbackMissingTemplate = "missing_template_value"
	FallbackInvalidJSON     = "invalid_json_input"
	FallbackRawResponse     = "raw_response"
)

// blockScope is what the engine hands a variant through the context while it runs
type blockScope struct {
	projectID string
	runID     string
	blockID   string
	logger    *slog.Logger
	emit      func(models.ExecutionEvent)
	vars      *Context
	breaker   *CircuitBreaker
	onRetry   func(models.RetryAttempt)
}

type scopeKey struct{}

func withScope(ctx context.Context, s *blockScope) context.Context {
	return context.WithValue(ctx, scopeKey{}, s)
}

// scopeFrom returns the scope installed by the engine, or an inert one
func scopeFrom(ctx context.Context) *blockScope {
	if s, ok := ctx.Value(scopeKey{}).(*blockScope); ok && s != nil {
		return s
	}
	return &blockScope{
		logger: slog.Default(),
		emit:   func(models.ExecutionEvent) {},
	}
}

// fallback logs a degraded-but-handled condition and counts it
func fallback(rec Recorder, kind, format string, args ...any) {
	log.Printf("⚠️ [FALLBACK] %s: %s", kind, fmt.Sprintf(format, args...))
	if rec != nil {
		rec.RecordFallback(kind)
	}
}
