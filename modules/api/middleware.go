package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmitrymomot/faceswap/handler"
	"github.com/dmitrymomot/faceswap/pkg/jwt"
	"github.com/dmitrymomot/faceswap/pkg/logger"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// Authenticate resolves the bearer access token to an active user and stores
// it with identity.SetUserToContext.
func Authenticate(svc identity.Service, onError handler.ErrorHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := jwt.BearerToken(r)
			if err != nil {
				onError(handler.NewContext(w, r), errors.Join(identity.ErrInvalidToken, err))
				return
			}
			user, err := svc.Authenticate(r.Context(), token)
			if err != nil {
				onError(handler.NewContext(w, r), err)
				return
			}
			next.ServeHTTP(w, r.WithContext(identity.SetUserToContext(r.Context(), user)))
		})
	}
}

// RequestLogger logs one line per request.
func RequestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := []slog.Attr{
				logger.Component("http"),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status_code", status),
				slog.Int("bytes", ww.BytesWritten()),
				logger.Duration(time.Since(start)),
			}
			log.LogAttrs(r.Context(), slog.LevelInfo, "http request", attrs...)
		})
	}
}
