// Package graceful runs an http.Server until its context is canceled, then
// drains in-flight requests within a deadline before returning.
package graceful

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

const defaultDrainTimeout = 10 * time.Second

// Server couples an http.Server with a drain deadline.
type Server struct {
	srv   *http.Server
	drain time.Duration
	log   *slog.Logger
}

// NewServer wraps srv. A non-positive drainTimeout falls back to ten seconds.
func NewServer(log *slog.Logger, srv *http.Server, drainTimeout time.Duration) *Server {
	if log == nil {
		log = slog.Default()
	}
	if drainTimeout <= 0 {
		drainTimeout = defaultDrainTimeout
	}

	return &Server{srv: srv, drain: drainTimeout, log: log}
}

// ListenAndServe serves until ctx is canceled or the listener fails. On
// cancellation it stops accepting connections and waits up to the drain
// deadline for in-flight requests; connections still open after that are
// forcibly closed.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	listenErr := make(chan error, 1)
	go func() {
		listenErr <- s.srv.ListenAndServe()
	}()

	s.log.Info("http server listening", slog.String("addr", s.srv.Addr))

	select {
	case err := <-listenErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listener: %w", err)
	case <-ctx.Done():
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), s.drain)
	defer cancel()

	s.log.Info("draining http server", slog.Duration("deadline", s.drain))

	if err := s.srv.Shutdown(drainCtx); err != nil {
		s.log.Warn("drain deadline exceeded, closing remaining connections",
			slog.Any("error", err))
		_ = s.srv.Close()
		return fmt.Errorf("drain http server: %w", err)
	}

	return nil
}
