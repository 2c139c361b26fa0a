package logging

import (
	"context"
	"log/slog"

	context_ "github.com/mkrupp/homecase-filevault/internal/infra/context"
)

// RequestHandler wraps another slog.Handler and adds request scoped values
// (trace id, authenticated user id) from the context to every record.
type RequestHandler struct {
	h slog.Handler
}

var _ slog.Handler = (*RequestHandler)(nil)

// NewRequestHandler creates a new RequestHandler wrapping the given handler.
func NewRequestHandler(h slog.Handler) *RequestHandler {
	return &RequestHandler{h: h}
}

// Handle implements slog.Handler.
func (h *RequestHandler) Handle(ctx context.Context, r slog.Record) error {
	if traceID, ok := context_.TraceIDFromContext(ctx); ok {
		r.AddAttrs(slog.Group("trace", slog.String("id", traceID)))
	}

	if userID, ok := context_.UserIDFromContext(ctx); ok {
		r.AddAttrs(slog.Group("auth", slog.Int64("uid", int64(userID))))
	}

	//nolint:wrapcheck
	return h.h.Handle(ctx, r)
}

// WithAttrs implements slog.Handler.WithAttrs.
func (h *RequestHandler) WithAttrs(attrs []slog.Attr) Handler {
	return NewRequestHandler(h.h.WithAttrs(attrs))
}

// WithGroup implements slog.Handler.WithGroup.
func (h *RequestHandler) WithGroup(name string) Handler {
	return NewRequestHandler(h.h.WithGroup(name))
}

// Enabled implements slog.Handler.Enabled.
func (h *RequestHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.h.Enabled(ctx, level)
}
