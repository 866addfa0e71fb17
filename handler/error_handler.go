package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/faceswap/pkg/binder"
	"github.com/dmitrymomot/faceswap/pkg/logger"
)

// ErrorMapper translates a domain error into an HTTPError. It returns false
// for errors it does not know.
type ErrorMapper func(err error) (HTTPError, bool)

// Classify resolves err to the HTTP error it is rendered as. Binding errors
// become 400 or 415, mapped domain errors keep their mapping and everything
// else is a 500.
func Classify(err error, mappers ...ErrorMapper) error {
	var verr binder.ValidationError
	if errors.As(err, &verr) {
		return err
	}
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	for _, m := range mappers {
		if mapped, ok := m(err); ok {
			return mapped
		}
	}

	switch {
	case errors.Is(err, binder.ErrMissingContentType), errors.Is(err, binder.ErrUnsupportedMediaType):
		return ErrUnsupportedMedia
	case errors.Is(err, binder.ErrFailedToParseJSON), errors.Is(err, binder.ErrFailedToParseForm), errors.Is(err, binder.ErrFailedToParseQuery):
		return ErrBadRequest.WithMessage(err.Error())
	}
	return err
}

// NewErrorHandler returns an ErrorHandler that logs err with the request id
// and renders it through JSONError after mapping.
func NewErrorHandler(log *slog.Logger, mappers ...ErrorMapper) ErrorHandler {
	if log == nil {
		log = slog.Default()
	}

	return func(ctx Context, err error) {
		resolved := Classify(err, mappers...)
		status, _ := errorToDetail(resolved)

		level := slog.LevelError
		if status < http.StatusInternalServerError {
			level = slog.LevelWarn
		}
		r := ctx.Request()
		log.LogAttrs(r.Context(), level, "request error",
			logger.Component("http"),
			logger.Error(err),
			slog.Int("status_code", status),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)

		if renderErr := JSONError(resolved).Render(ctx.ResponseWriter(), r); renderErr != nil {
			log.ErrorContext(r.Context(), "failed to render error", logger.Error(renderErr))
		}
	}
}
