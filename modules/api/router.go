// Package api assembles the HTTP surface: middleware, the /api/v1 routes,
// health checks and metrics.
package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/faceswap/handler"
	"github.com/dmitrymomot/faceswap/modules/account"
	"github.com/dmitrymomot/faceswap/modules/faceswap"
	"github.com/dmitrymomot/faceswap/modules/payments"
	"github.com/dmitrymomot/faceswap/pkg/httpserver"
	"github.com/dmitrymomot/faceswap/pkg/metrics"
	"github.com/dmitrymomot/faceswap/pkg/ratelimiter"
	"github.com/dmitrymomot/faceswap/pkg/requestid"
	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/entitlement"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// Options holds the services behind the router. Identity, Billing and Swap
// are required.
type Options struct {
	Logger   *slog.Logger
	Identity identity.Service
	Billing  billing.Service
	Swap     faceswap.Processor
	Faceswap faceswap.Config
	Limits   entitlement.Limits

	// AuthLimiter throttles /api/v1/auth per client IP. Nil disables it.
	AuthLimiter *ratelimiter.Limiter
	// Metrics enables request metrics and GET /metrics. Nil disables both.
	Metrics *metrics.Metrics
	// ReadinessChecks back GET /health/ready.
	ReadinessChecks []httpserver.Check
}

// NewRouter builds the application router.
func NewRouter(opts Options) http.Handler {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	errorHandler := handler.NewErrorHandler(log, ErrorMapper(opts.Limits))

	r := chi.NewRouter()
	r.Use(
		requestid.Middleware(),
		middleware.RealIP,
		middleware.Recoverer,
		opts.Metrics.Middleware,
		RequestLogger(log),
	)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.ErrNotFound).Render(w, r)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		_ = handler.JSONError(handler.ErrMethodNotAllowed).Render(w, r)
	})

	r.Get("/health/live", httpserver.HealthCheckHandler(log))
	r.Get("/health/ready", httpserver.HealthCheckHandler(log, readiness(opts.ReadinessChecks)...))
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	var authMiddlewares []func(http.Handler) http.Handler
	if opts.AuthLimiter != nil {
		authMiddlewares = append(authMiddlewares, ratelimiter.Middleware(opts.AuthLimiter, ratelimiter.ByIP,
			func(w http.ResponseWriter, r *http.Request) {
				errorHandler(handler.NewContext(w, r), handler.ErrTooManyRequests)
			},
		))
	}

	r.Route("/api/v1", func(v1 chi.Router) {
		authenticate := Authenticate(opts.Identity, errorHandler)

		v1.Mount("/", account.Router(account.RouterOptions{
			Password:    account.NewPasswordService(opts.Identity, errorHandler),
			GoogleOAuth: account.NewGoogleService(opts.Identity, errorHandler),
			Profile:     account.NewProfileService(errorHandler),
			Logout:      account.NewLogoutService(errorHandler),
			Public:      authMiddlewares,
			Private:     []func(http.Handler) http.Handler{authenticate},
		}))

		v1.Group(func(private chi.Router) {
			private.Use(authenticate)
			private.Mount("/faceswap", faceswap.NewService(opts.Faceswap, opts.Swap, errorHandler).Handle())
			private.Mount("/payments", payments.NewService(opts.Billing, errorHandler).Handle())
		})
	})

	return r
}

// readiness reports ready without dependencies, e.g. on the memory store.
func readiness(checks []httpserver.Check) []httpserver.Check {
	if len(checks) > 0 {
		return checks
	}
	return []httpserver.Check{{Name: "app", Fn: func(context.Context) error { return nil }}}
}
