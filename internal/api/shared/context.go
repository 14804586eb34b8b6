package shared

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// Key type for context values
type ContextKey string

// Context keys for various values
const (
	// AgentContextKey is the context key for the authenticated producer agent.
	AgentContextKey ContextKey = "agent"

	// TraceIDKey is the key for the trace ID in the request context
	TraceIDKey ContextKey = "traceID"

	// TraceIDLength is the number of bytes used to generate the trace ID
	TraceIDLength = 16 // 32 hex characters
)

// SetTraceID adds a trace ID to the context. When ctx carries a sampled
// OpenTelemetry span its trace ID is reused so error responses and exported
// spans correlate.
func SetTraceID(ctx context.Context) context.Context {
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		return context.WithValue(ctx, TraceIDKey, sc.TraceID().String())
	}
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// GetTraceID retrieves the trace ID from the context.
// If no trace ID exists, it returns an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, ok := ctx.Value(TraceIDKey).(string)
	if !ok {
		return ""
	}
	return traceID
}

// WithAgent stores the authenticated agent in ctx.
func WithAgent(ctx context.Context, agent string) context.Context {
	return context.WithValue(ctx, AgentContextKey, agent)
}

// AgentFromContext returns the authenticated agent, if any.
func AgentFromContext(ctx context.Context) (string, bool) {
	agent, ok := ctx.Value(AgentContextKey).(string)
	if !ok || agent == "" {
		return "", false
	}
	return agent, true
}

// generateTraceID creates a random 32-character hex trace ID.
// If crypto/rand fails it falls back to a time-based ID, never a static value.
func generateTraceID() string {
	b := make([]byte, TraceIDLength)
	n, err := rand.Read(b)
	if err != nil || n != TraceIDLength {
		slog.Error("failed to generate secure random trace ID",
			"error", err,
			"bytes_read", n,
			"fallback", "time-based generation")
		return generateFallbackTraceID()
	}
	return hex.EncodeToString(b)
}

func generateFallbackTraceID() string {
	id := make([]byte, TraceIDLength)
	now := time.Now()
	binary.BigEndian.PutUint64(id[:8], uint64(now.UnixNano()))
	binary.BigEndian.PutUint32(id[8:12], uint32(now.Nanosecond()))
	binary.BigEndian.PutUint32(id[12:16], uint32(now.Unix()))
	return hex.EncodeToString(id)
}
