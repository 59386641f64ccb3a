// Package httptransport assembles the public HTTP surface: middleware,
// operational endpoints, and the authenticated credential API.
package httptransport

import (
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"

	"credlife/internal/platform/health"
	"credlife/pkg/platform/middleware/auth"
	"credlife/pkg/platform/middleware/metadata"
	"credlife/pkg/platform/middleware/request"
	"credlife/pkg/platform/middleware/requesttime"
)

// APIHandler mounts a group of authenticated routes.
type APIHandler interface {
	Register(r chi.Router)
}

// Config carries what NewRouter wires together. Nil optional fields are skipped.
type Config struct {
	Logger         *slog.Logger
	Tokens         auth.TokenValidator
	API            []APIHandler
	Health         *health.Handler
	Metrics        *request.Metrics
	MetricsHandler http.Handler
	MaxBodyBytes   int64
	RequestTimeout time.Duration
	TrustedProxies []netip.Prefix
	// Clock overrides the request time source; nil means the wall clock.
	Clock func() time.Time
}

// NewRouter wires every endpoint with its middleware stack.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(request.Recovery(cfg.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.WithClock(cfg.Clock))
	r.Use(metadata.ClientIP(cfg.TrustedProxies))
	r.Use(request.Logger(cfg.Logger))
	r.Use(request.LatencyMiddleware(cfg.Metrics))

	if cfg.Health != nil {
		cfg.Health.Register(r)
	}
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if cfg.RequestTimeout > 0 {
			r.Use(request.Timeout(cfg.RequestTimeout))
		}
		if cfg.MaxBodyBytes > 0 {
			r.Use(request.BodyLimit(cfg.MaxBodyBytes))
		}
		r.Use(request.ContentTypeJSON)
		r.Use(auth.RequireAuth(cfg.Tokens, cfg.Logger))
		for _, h := range cfg.API {
			h.Register(r)
		}
	})

	return r
}
