package logging

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

type ctxKey int

const (
	workspaceIDKey ctxKey = iota
	blockIDKey
	actionKey
)

// correlationFields lists the context keys copied onto log records, in
// output order.
var correlationFields = []struct {
	key  ctxKey
	attr string
}{
	{workspaceIDKey, "workspace_id"},
	{blockIDKey, "block_id"},
	{actionKey, "action"},
}

// WithWorkspaceID returns a context with the workspace ID set.
func WithWorkspaceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workspaceIDKey, id)
}

// WithBlockID returns a context with the block ID set.
func WithBlockID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, blockIDKey, id)
}

// WithAction returns a context with the action kind set.
func WithAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, actionKey, action)
}

func stringValue(ctx context.Context, key ctxKey) string {
	v, _ := ctx.Value(key).(string)
	return v
}

// WithBlock sets every correlation field of one block execution at once.
func WithBlock(ctx context.Context, workspaceID, blockID, action string) context.Context {
	ctx = WithWorkspaceID(ctx, workspaceID)
	ctx = WithBlockID(ctx, blockID)
	return WithAction(ctx, action)
}

func correlationAttrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, f := range correlationFields {
		if v := stringValue(ctx, f.key); v != "" {
			attrs = append(attrs, slog.String(f.attr, v))
		}
	}
	return attrs
}

// CorrelationHandler wraps an slog.Handler, injecting correlation IDs from
// the context into every record. Callers use logger.InfoContext(ctx, ...).
type CorrelationHandler struct {
	inner slog.Handler
}

// NewCorrelationHandler wraps the given handler with correlation ID injection.
func NewCorrelationHandler(inner slog.Handler) *CorrelationHandler {
	return &CorrelationHandler{inner: inner}
}

func (h *CorrelationHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *CorrelationHandler) Handle(ctx context.Context, r slog.Record) error {
	r.AddAttrs(correlationAttrs(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *CorrelationHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithAttrs(attrs)}
}

func (h *CorrelationHandler) WithGroup(name string) slog.Handler {
	return &CorrelationHandler{inner: h.inner.WithGroup(name)}
}

// ParseLevel maps a configured level name to an slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
}
