package handler

import "net/http"

// HandlerFunc serves a request already bound into R.
type HandlerFunc[R any] func(ctx Context, req R) Response

// Response renders itself to an http.ResponseWriter.
type Response interface {
	Render(w http.ResponseWriter, r *http.Request) error
}

// Bind decodes part of a request into v, which is a pointer to R.
type Bind func(r *http.Request, v any) error

// ErrorHandler writes the response for a failed bind, a handler error or a
// render failure.
type ErrorHandler func(ctx Context, err error)

// Decorator wraps a HandlerFunc. Decorators listed first run first.
type Decorator[R any] func(HandlerFunc[R]) HandlerFunc[R]

// Option configures Wrap.
type Option[R any] func(*wrapper[R])

type wrapper[R any] struct {
	binders    []Bind
	onError    ErrorHandler
	decorators []Decorator[R]
}

// WithBinders appends binders. They run in order and the first error aborts
// the request.
func WithBinders[R any](binders ...Bind) Option[R] {
	return func(w *wrapper[R]) {
		w.binders = append(w.binders, binders...)
	}
}

// WithErrorHandler replaces the default error handler, which renders err
// with JSONError. A nil handler is ignored.
func WithErrorHandler[R any](h ErrorHandler) Option[R] {
	return func(w *wrapper[R]) {
		if h != nil {
			w.onError = h
		}
	}
}

// WithDecorators appends decorators around the handler.
func WithDecorators[R any](decorators ...Decorator[R]) Option[R] {
	return func(w *wrapper[R]) {
		w.decorators = append(w.decorators, decorators...)
	}
}

func renderError(ctx Context, err error) {
	_ = JSONError(err).Render(ctx.ResponseWriter(), ctx.Request())
}

// Wrap adapts h to net/http: it binds R, runs the decorated handler and
// renders its Response. Failures at any step go to the error handler.
func Wrap[R any](h HandlerFunc[R], opts ...Option[R]) http.HandlerFunc {
	cfg := &wrapper[R]{onError: renderError}
	for _, opt := range opts {
		opt(cfg)
	}

	serve := h
	for i := len(cfg.decorators) - 1; i >= 0; i-- {
		serve = cfg.decorators[i](serve)
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := NewContext(w, r)

		var req R
		for _, bind := range cfg.binders {
			if err := bind(r, &req); err != nil {
				cfg.onError(ctx, err)
				return
			}
		}

		resp := serve(ctx, req)
		if resp == nil {
			cfg.onError(ctx, ErrNilResponse)
			return
		}
		if err := resp.Render(w, r); err != nil {
			cfg.onError(ctx, err)
		}
	}
}
