// Package observability carries the service's logging, tracing and
// Prometheus surface. Handlers and domain packages call the Observe
// helpers; everything registers itself at init.
package observability

import (
	"io"
	"log/slog"

	"github.com/tabletalk/tabletalk/internal/config"
)

// NewLogger builds the process logger: JSON by default, text when the
// config asks for it, with service and profile attrs on every record.
func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	} else {
		handler = slog.NewTextHandler(writer, &slog.HandlerOptions{Level: cfg.Observability.LogLevel})
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// Discard returns a logger that drops everything. Components accept it
// as the nil-logger fallback so call sites never need nil checks.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
