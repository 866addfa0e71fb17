package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/faceswap/handler"
	"github.com/dmitrymomot/faceswap/pkg/binder"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// GoogleService serves the Google OAuth redirect and callback.
type GoogleService struct {
	identity     identity.Service
	errorHandler handler.ErrorHandler
}

func NewGoogleService(svc identity.Service, errorHandler handler.ErrorHandler) *GoogleService {
	return &GoogleService{identity: svc, errorHandler: errorHandler}
}

func (s *GoogleService) Handle() http.Handler {
	r := chi.NewRouter()

	r.Get("/login", handler.Wrap(s.login,
		handler.WithErrorHandler[struct{}](s.errorHandler),
	))
	r.Get("/callback", handler.Wrap(s.callback,
		handler.WithBinders[CallbackRequest](binder.Query(), binder.Validate()),
		handler.WithErrorHandler[CallbackRequest](s.errorHandler),
	))

	return r
}

type CallbackRequest struct {
	State string `query:"state" validate:"required"`
	Code  string `query:"code" validate:"required"`
}

func (s *GoogleService) login(ctx handler.Context, _ struct{}) handler.Response {
	url, err := s.identity.GoogleAuthURL(ctx)
	if err != nil {
		return handler.Error(err)
	}
	return handler.Redirect(url)
}

func (s *GoogleService) callback(ctx handler.Context, req CallbackRequest) handler.Response {
	pair, err := s.identity.GoogleCallback(ctx, req.State, req.Code)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(pair)
}
