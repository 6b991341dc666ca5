// Package pii implements the log-pipeline PII scrubber: a slog.Handler
// wrapper that redacts email addresses, phone numbers, SSNs, credit card
// numbers, IPv4 addresses, and key/token-like values before they reach any
// sink that could forward them off-host.
package pii

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

var (
	emailPattern  = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern  = regexp.MustCompile(`\b(?:\d{3}[-.\s]?)?\d{3}[-.\s]?\d{4}\b`)
	ssnPattern    = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	ccPattern     = regexp.MustCompile(`\b\d{4}[\s-]?\d{4}[\s-]?\d{4}[\s-]?\d{4}\b`)
	ipPattern     = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)
	keyishPattern = regexp.MustCompile(`\b[A-Za-z0-9_-]{32,}\b`)
)

// Scrub redacts PII occurrences in value. hintedKeyOrToken should be true
// when the surrounding attribute key or text contains "key" or "token",
// which is when long opaque tokens are also redacted (otherwise ordinary
// long words would be clobbered).
func Scrub(value string, hintedKeyOrToken bool) string {
	out := emailPattern.ReplaceAllString(value, "[EMAIL]")
	out = ssnPattern.ReplaceAllString(out, "[SSN]")
	out = ccPattern.ReplaceAllString(out, "[CREDIT_CARD]")
	out = phonePattern.ReplaceAllString(out, "[PHONE]")
	out = ipPattern.ReplaceAllString(out, "[IP]")
	if hintedKeyOrToken {
		out = keyishPattern.ReplaceAllString(out, "[TOKEN]")
	}
	return out
}

// ScrubAny recursively scrubs strings found in maps, slices, and plain
// values, applying the key/token heuristic to map values whose key contains
// "key" or "token".
func ScrubAny(v any) any {
	return scrubAny(v, false)
}

func scrubAny(v any, hinted bool) any {
	switch t := v.(type) {
	case string:
		return Scrub(t, hinted)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = scrubAny(val, keyHints(k))
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = scrubAny(val, hinted)
		}
		return out
	default:
		return v
	}
}

func keyHints(key string) bool {
	lower := strings.ToLower(key)
	return strings.Contains(lower, "key") || strings.Contains(lower, "token")
}

// Handler wraps a slog.Handler and scrubs every attribute's string value
// before it is forwarded to the wrapped handler. It must sit closest to the
// logger (outermost) so every downstream sink only ever sees scrubbed data.
type Handler struct {
	next slog.Handler
}

// Wrap returns a Handler that scrubs PII before delegating to next.
func Wrap(next slog.Handler) *Handler {
	return &Handler{next: next}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, record slog.Record) error {
	scrubbed := slog.NewRecord(record.Time, record.Level, Scrub(record.Message, false), record.PC)
	record.Attrs(func(a slog.Attr) bool {
		scrubbed.AddAttrs(scrubAttr(a))
		return true
	})
	return h.next.Handle(ctx, scrubbed)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	scrubbed := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		scrubbed[i] = scrubAttr(a)
	}
	return &Handler{next: h.next.WithAttrs(scrubbed)}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{next: h.next.WithGroup(name)}
}

func scrubAttr(a slog.Attr) slog.Attr {
	hinted := keyHints(a.Key)
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, Scrub(a.Value.String(), hinted))
	case slog.KindAny:
		return slog.Any(a.Key, scrubAny(a.Value.Any(), hinted))
	default:
		return a
	}
}
