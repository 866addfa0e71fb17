package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/faceswap/handler"
)

// LogoutService acknowledges a logout. Tokens are stateless, so the client
// ends the session by discarding them; the route only confirms the caller
// was authenticated.
type LogoutService struct {
	errorHandler handler.ErrorHandler
}

func NewLogoutService(errorHandler handler.ErrorHandler) *LogoutService {
	return &LogoutService{errorHandler: errorHandler}
}

func (s *LogoutService) Handle() http.Handler {
	r := chi.NewRouter()
	r.Post("/", handler.Wrap(s.logout,
		handler.WithErrorHandler[struct{}](s.errorHandler),
	))
	return r
}

type LogoutResponse struct {
	Message string `json:"message"`
}

func (s *LogoutService) logout(ctx handler.Context, _ struct{}) handler.Response {
	if _, err := currentUser(ctx); err != nil {
		return handler.Error(err)
	}
	return handler.JSON(LogoutResponse{Message: "Successfully logged out (client should delete token)"})
}
