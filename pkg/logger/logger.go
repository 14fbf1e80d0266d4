// Package logger builds the application slog.Logger from configuration.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"

	slogsentry "github.com/samber/slog-sentry/v2"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"

	"github.com/smiletrip/smilecoin/pkg/config"
)

// New assembles a logger according to cfg: text or json output, optional
// file rotation, wallet-address masking, and Sentry fan-out for warnings
// and above when enabled.
func New(cfg config.Config) *slog.Logger {
	var out io.Writer = os.Stdout
	if cfg.Logger.File != "" {
		out = &lumberjack.Logger{
			Filename:   cfg.Logger.File,
			MaxSize:    cfg.Logger.MaxSizeMB,
			MaxBackups: cfg.Logger.MaxBackups,
			MaxAge:     cfg.Logger.MaxAgeDays,
			Compress:   true,
		}
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Logger.Level)}

	var handler slog.Handler
	switch cfg.Logger.Format {
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		handler = slog.NewTextHandler(out, opts)
	}

	if cfg.Sentry.Enabled {
		sentryHandler := slogsentry.Option{
			Level: slog.LevelWarn,
		}.NewSentryHandler()

		handler = newTeeHandler(handler, sentryHandler)
	}

	return slog.New(NewMaskingHandler(handler))
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// teeHandler forwards every record to both wrapped handlers.
type teeHandler struct {
	primary   slog.Handler
	secondary slog.Handler
}

func newTeeHandler(primary, secondary slog.Handler) *teeHandler {
	return &teeHandler{primary: primary, secondary: secondary}
}

func (h *teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.primary.Enabled(ctx, level) || h.secondary.Enabled(ctx, level)
}

func (h *teeHandler) Handle(ctx context.Context, record slog.Record) error {
	var err error
	if h.primary.Enabled(ctx, record.Level) {
		err = h.primary.Handle(ctx, record)
	}
	if h.secondary.Enabled(ctx, record.Level) {
		if secErr := h.secondary.Handle(ctx, record.Clone()); secErr != nil && err == nil {
			err = secErr
		}
	}

	return err
}

func (h *teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &teeHandler{primary: h.primary.WithAttrs(attrs), secondary: h.secondary.WithAttrs(attrs)}
}

func (h *teeHandler) WithGroup(name string) slog.Handler {
	return &teeHandler{primary: h.primary.WithGroup(name), secondary: h.secondary.WithGroup(name)}
}
