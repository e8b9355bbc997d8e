// Package log wires log/slog with context-scoped attributes, so decode
// call sites can tag every record with the input file they work on.
package log

import (
	"context"
	"log/slog"
	"os"
)

type attrsKey struct{}

// Handler decorates another slog handler with the attributes stored in
// the record's context by WithAttrs.
type Handler struct {
	slog.Handler
}

func NewHandler(inner slog.Handler) Handler {
	return Handler{Handler: inner}
}

func (h Handler) Handle(ctx context.Context, r slog.Record) error {
	if attrs, ok := ctx.Value(attrsKey{}).([]slog.Attr); ok {
		r.AddAttrs(attrs...)
	}
	return h.Handler.Handle(ctx, r)
}

// WithAttrs returns a context carrying the given attributes in addition
// to any the context already holds. The stored slice is never shared, so
// sibling contexts cannot observe each other's attributes.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	prev, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

// New builds a JSON logger to stderr. Verbose lowers the level to debug.
func New(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	inner := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(NewHandler(inner))
}

// Setup installs the logger returned by New as the process default.
func Setup(verbose bool) {
	slog.SetDefault(New(verbose))
}
