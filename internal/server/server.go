// Package server exposes the coin core over a thin HTTP surface. Handlers
// decode, validate, delegate to the core and encode the error taxonomy;
// no business rules live here.
package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	validator "github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smiletrip/smilecoin/internal/eligibility"
	apperrors "github.com/smiletrip/smilecoin/internal/errors"
	"github.com/smiletrip/smilecoin/internal/health"
	"github.com/smiletrip/smilecoin/internal/ledger"
	"github.com/smiletrip/smilecoin/internal/quota"
	"github.com/smiletrip/smilecoin/internal/ranking"
	"github.com/smiletrip/smilecoin/internal/ratelimit"
	"github.com/smiletrip/smilecoin/internal/registration"
	"github.com/smiletrip/smilecoin/internal/voucher"
	"github.com/smiletrip/smilecoin/pkg/config"
	"github.com/smiletrip/smilecoin/pkg/logger"
)

// Server wires the core components to HTTP routes.
type Server struct {
	guard        *quota.Guard
	recorder     *ledger.Recorder
	eligibility  *eligibility.Engine
	vouchers     *voucher.Issuer
	rankings     *ranking.Engine
	registration *registration.Service
	checker      *health.Checker
	limiter      ratelimit.Limiter
	limits       config.LimitsConfig
	idempotent   func(http.Handler) http.Handler
	errs         *apperrors.Handler
	validate     *validator.Validate
	log          *slog.Logger
}

// New constructs the HTTP server facade. idempotent wraps the write routes;
// pass nil to serve writes without replay protection. errs may be nil, in
// which case a handler without Sentry forwarding is used.
func New(
	guard *quota.Guard,
	recorder *ledger.Recorder,
	elig *eligibility.Engine,
	vouchers *voucher.Issuer,
	rankings *ranking.Engine,
	reg *registration.Service,
	checker *health.Checker,
	limiter ratelimit.Limiter,
	limits config.LimitsConfig,
	idempotent func(http.Handler) http.Handler,
	errs *apperrors.Handler,
	log *slog.Logger,
) *Server {
	if log == nil {
		log = slog.Default()
	}
	if idempotent == nil {
		idempotent = func(next http.Handler) http.Handler { return next }
	}
	if errs == nil {
		errs = apperrors.NewHandler(log, false)
	}

	return &Server{
		guard:        guard,
		recorder:     recorder,
		eligibility:  elig,
		vouchers:     vouchers,
		rankings:     rankings,
		registration: reg,
		checker:      checker,
		limiter:      limiter,
		limits:       limits,
		idempotent:   idempotent,
		errs:         errs,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		log:          log,
	}
}

// Router assembles the chi route tree with middleware applied.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(logger.Middleware)
	r.Use(s.requestLogging)
	r.Use(s.requestMetrics)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.rateLimit)

		r.With(s.idempotent).Post("/transfers", s.handleRecord)
		r.Post("/transfers/validate", s.handleValidate)

		r.Post("/users", s.handleRegisterUser)
		r.Get("/users/{userID}", s.handleGetUser)
		r.Post("/restaurants", s.handleRegisterRestaurant)

		r.Get("/rankings", s.handleOverallRanking)
		r.Get("/rankings/origin/{country}", s.handleOriginRanking)
		r.Get("/rankings/nearby", s.handleNearbyRanking)
		r.Post("/rankings/refresh", s.handleRankingRefresh)

		r.Get("/users/{userID}/summary", s.handleSummary)
		r.With(s.idempotent).Post("/users/{userID}/voucher", s.handleIssueVoucher)
		r.Get("/users/{userID}/voucher", s.handleGetVoucher)

		r.Get("/restaurants/{restaurantID}/stats", s.handleRestaurantStats)
	})

	return r
}
