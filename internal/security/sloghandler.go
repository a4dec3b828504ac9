package security

import (
	"context"
	"log/slog"
	"unicode/utf8"
)

// DefaultLogValueLimit caps logged string values, in bytes. Debug logs
// carry rule and character file excerpts; a whole chapter is never useful.
const DefaultLogValueLimit = 1024

// RedactingHandler is a slog.Handler that scrubs secrets from the message
// and from every string attribute, then trims long values, before the
// wrapped handler formats the record.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
	limit    int // <= 0 disables trimming
}

var _ slog.Handler = (*RedactingHandler)(nil)

// NewRedactingHandler wraps inner with the default value limit.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: redactor, limit: DefaultLogValueLimit}
}

// WithValueLimit returns a copy trimming string values to n bytes.
// n <= 0 keeps values whole.
func (h *RedactingHandler) WithValueLimit(n int) *RedactingHandler {
	cp := *h
	cp.limit = n
	return &cp
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, record slog.Record) error {
	out := slog.NewRecord(record.Time, record.Level, h.redactor.Redact(record.Message), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.scrub(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, 0, len(attrs))
	for _, a := range attrs {
		scrubbed = append(scrubbed, h.scrub(a))
	}
	return h.derive(h.inner.WithAttrs(scrubbed))
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return h.derive(h.inner.WithGroup(name))
}

func (h *RedactingHandler) derive(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: h.redactor, limit: h.limit}
}

// scrub resolves LogValuers first so the final form is what gets checked.
// Non-string kinds other than groups and Any pass through untouched.
func (h *RedactingHandler) scrub(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()
	switch a.Value.Kind() {
	case slog.KindGroup:
		members := a.Value.Group()
		scrubbed := make([]slog.Attr, len(members))
		for i, m := range members {
			scrubbed[i] = h.scrub(m)
		}
		a.Value = slog.GroupValue(scrubbed...)
	case slog.KindString:
		a.Value = slog.StringValue(h.trim(h.redactor.Redact(a.Value.String())))
	case slog.KindAny:
		// errors and Stringers: only rewrite when formatting exposed a secret
		// or an oversized value.
		s := a.Value.String()
		if clean := h.trim(h.redactor.Redact(s)); clean != s {
			a.Value = slog.StringValue(clean)
		}
	}
	return a
}

func (h *RedactingHandler) trim(s string) string {
	if h.limit <= 0 || len(s) <= h.limit {
		return s
	}
	cut := h.limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
