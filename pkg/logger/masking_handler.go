package logger

import (
	"context"
	"log/slog"
	"strings"
)

// Attribute keys whose values never belong in logs. Wallet addresses and
// redemption payloads identify tourists; the rest are standard credentials.
var redactedKeys = map[string]struct{}{
	"password":        {},
	"token":           {},
	"secret":          {},
	"api_key":         {},
	"authorization":   {},
	"wallet_address":  {},
	"settlement_hash": {},
	"redemption":      {},
}

const redactedValue = "***"

// maskingHandler redacts sensitive attribute values, including inside
// groups, before records reach the wrapped handler.
type maskingHandler struct {
	next slog.Handler
}

// NewMaskingHandler wraps next with attribute redaction.
func NewMaskingHandler(next slog.Handler) slog.Handler {
	return &maskingHandler{next: next}
}

func (h *maskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *maskingHandler) Handle(ctx context.Context, record slog.Record) error {
	clean := slog.NewRecord(record.Time, record.Level, record.Message, record.PC)
	record.Attrs(func(attr slog.Attr) bool {
		clean.AddAttrs(redact(attr))
		return true
	})

	return h.next.Handle(ctx, clean)
}

func (h *maskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cleaned := make([]slog.Attr, len(attrs))
	for i, attr := range attrs {
		cleaned[i] = redact(attr)
	}

	return &maskingHandler{next: h.next.WithAttrs(cleaned)}
}

func (h *maskingHandler) WithGroup(name string) slog.Handler {
	return &maskingHandler{next: h.next.WithGroup(name)}
}

func redact(attr slog.Attr) slog.Attr {
	if attr.Value.Kind() == slog.KindGroup {
		members := attr.Value.Group()
		cleaned := make([]slog.Attr, len(members))
		for i, member := range members {
			cleaned[i] = redact(member)
		}
		attr.Value = slog.GroupValue(cleaned...)
		return attr
	}

	if _, ok := redactedKeys[strings.ToLower(attr.Key)]; ok {
		attr.Value = slog.StringValue(redactedValue)
	}

	return attr
}
