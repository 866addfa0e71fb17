package httpserver

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"

	"github.com/dmitrymomot/faceswap/pkg/logger"
)

// Check is one named readiness dependency.
type Check struct {
	Name string
	Fn   func(context.Context) error
}

// HealthStatus is the body of a health check response.
type HealthStatus struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthCheckHandler serves a liveness check when checks is empty and a
// readiness check otherwise. Readiness answers 503 if any check fails.
func HealthCheckHandler(log *slog.Logger, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if len(checks) == 0 {
			render.JSON(w, r, HealthStatus{Status: "alive"})
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		body := HealthStatus{Status: "ready", Checks: make(map[string]string, len(checks))}
		for _, c := range checks {
			if err := c.Fn(ctx); err != nil {
				if log != nil {
					log.ErrorContext(ctx, "readiness check failed",
						logger.Component("healthcheck"),
						slog.String("check", c.Name),
						logger.Error(err),
					)
				}
				body.Status = "not_ready"
				body.Checks[c.Name] = "fail"
				continue
			}
			body.Checks[c.Name] = "ok"
		}

		if body.Status != "ready" {
			render.Status(r, http.StatusServiceUnavailable)
		}
		render.JSON(w, r, body)
	}
}
