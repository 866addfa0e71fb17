package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/faceswap/handler"
	"github.com/dmitrymomot/faceswap/svc/identity"
)

// ProfileService serves the authenticated user's own record. It must be
// mounted behind a middleware that stores the user with
// identity.SetUserToContext.
type ProfileService struct {
	errorHandler handler.ErrorHandler
}

func NewProfileService(errorHandler handler.ErrorHandler) *ProfileService {
	return &ProfileService{errorHandler: errorHandler}
}

func (s *ProfileService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Get("/me", handler.Wrap(s.me,
		handler.WithErrorHandler[struct{}](s.errorHandler),
	))
	return r
}

func (s *ProfileService) me(ctx handler.Context, _ struct{}) handler.Response {
	user, err := currentUser(ctx)
	if err != nil {
		return handler.Error(err)
	}
	return handler.JSON(user)
}

func currentUser(ctx handler.Context) (*identity.User, error) {
	user := identity.GetUserFromContext(ctx)
	if user == nil {
		return nil, identity.ErrInvalidToken
	}
	return user, nil
}
