package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/faceswap/handler"
	"github.com/dmitrymomot/faceswap/pkg/binder"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// PasswordService serves email and password registration, login and token
// refresh.
type PasswordService struct {
	identity     identity.Service
	errorHandler handler.ErrorHandler
}

func NewPasswordService(svc identity.Service, errorHandler handler.ErrorHandler) *PasswordService {
	return &PasswordService{identity: svc, errorHandler: errorHandler}
}

func (s *PasswordService) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/register", handler.Wrap(s.register,
		handler.WithBinders[RegisterRequest](binder.JSON(), binder.Validate()),
		handler.WithErrorHandler[RegisterRequest](s.errorHandler),
	))
	r.Post("/login", handler.Wrap(s.login,
		handler.WithBinders[LoginRequest](binder.JSON(), binder.Validate()),
		handler.WithErrorHandler[LoginRequest](s.errorHandler),
	))
	r.Post("/refresh", handler.Wrap(s.refresh,
		handler.WithBinders[RefreshRequest](binder.JSON(), binder.Validate()),
		handler.WithErrorHandler[RefreshRequest](s.errorHandler),
	))

	// Form login with username/password fields and refresh by query
	// parameter, the shapes OAuth2 password-flow clients send.
	r.Post("/login/email", handler.Wrap(s.login,
		handler.WithBinders[LoginRequest](binder.Form(), binder.Validate()),
		handler.WithErrorHandler[LoginRequest](s.errorHandler),
	))
	r.Post("/token/refresh", handler.Wrap(s.refresh,
		handler.WithBinders[RefreshRequest](binder.Query(), binder.Validate()),
		handler.WithErrorHandler[RefreshRequest](s.errorHandler),
	))

	return r
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	FullName string `json:"full_name" validate:"max=200"`
}

type LoginRequest struct {
	Email    string `json:"email" form:"username" validate:"required,email"`
	Password string `json:"password" form:"password" validate:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" query:"refresh_token" validate:"required"`
}

func (s *PasswordService) register(ctx handler.Context, req RegisterRequest) handler.Response {
	user, err := s.identity.Register(ctx, identity.RegisterInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(user, handler.WithJSONStatus(http.StatusCreated))
}

func (s *PasswordService) login(ctx handler.Context, req LoginRequest) handler.Response {
	pair, err := s.identity.Login(ctx, req.Email, req.Password)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(pair)
}

func (s *PasswordService) refresh(ctx handler.Context, req RefreshRequest) handler.Response {
	pair, err := s.identity.Refresh(ctx, req.RefreshToken)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(pair)
}
