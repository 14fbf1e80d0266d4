// Package middleware carries HTTP middleware that needs shared backing
// state, as opposed to the purely local middleware in internal/server.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/smiletrip/smilecoin/internal/idempotency"
)

const recordTTL = 24 * time.Hour

// Idempotency replays the stored response for a write request repeated with
// the same Idempotency-Key header. Requests without the header pass through
// untouched; a concurrent in-flight duplicate gets 409.
func Idempotency(manager idempotency.Manager, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if manager == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get("Idempotency-Key")
			if clientKey == "" || r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := idempotency.GenerateKey(r.Method, r.URL.Path, clientKey)

			result, err := manager.Execute(r.Context(), key, recordTTL, func(ctx context.Context) (*idempotency.Response, error) {
				recorder := httptest.NewRecorder()
				next.ServeHTTP(recorder, r.WithContext(ctx))

				return &idempotency.Response{
					StatusCode:  recorder.Code,
					ContentType: recorder.Header().Get("Content-Type"),
					Body:        recorder.Body.Bytes(),
				}, nil
			})
			if err != nil {
				if errors.Is(err, idempotency.ErrRequestInProgress) {
					http.Error(w, "request with this idempotency key is in progress", http.StatusConflict)
					return
				}

				// Store failure: run the request without the guarantee
				// rather than failing the write.
				log.Warn("idempotency store unavailable", slog.String("path", r.URL.Path), slog.Any("error", err))
				next.ServeHTTP(w, r)
				return
			}

			if result.Response.ContentType != "" {
				w.Header().Set("Content-Type", result.Response.ContentType)
			}
			if result.Replayed {
				w.Header().Set("Idempotency-Replayed", "true")
			}
			w.WriteHeader(result.Response.StatusCode)
			_, _ = w.Write(result.Response.Body)
		})
	}
}
