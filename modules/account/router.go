package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Mountable is a service that serves its own subtree.
type Mountable interface {
	Handle() http.Handler
}

// RouterOptions selects the account services to mount. Nil services are
// skipped.
type RouterOptions struct {
	Password    Mountable
	GoogleOAuth Mountable
	Profile     Mountable
	Logout      Mountable

	// Public wraps the sign-in routes under /auth, e.g. with a rate limiter.
	Public  []func(http.Handler) http.Handler
	// Private wraps /users and /auth/logout and must authenticate the caller.
	// Logout also passes through Public.
	Private []func(http.Handler) http.Handler
}

// Router builds the /auth and /users subtrees.
//
//	r.Mount("/api/v1", account.Router(account.RouterOptions{
//		Password:    account.NewPasswordService(identitySvc, errorHandler),
//		GoogleOAuth: account.NewGoogleService(identitySvc, errorHandler),
//		Profile:     account.NewProfileService(errorHandler),
//		Logout:      account.NewLogoutService(errorHandler),
//		Private:     []func(http.Handler) http.Handler{authenticate},
//	}))
func Router(opts RouterOptions) chi.Router {
	r := chi.NewRouter()

	r.Route("/auth", func(auth chi.Router) {
		auth.Use(opts.Public...)
		if opts.Logout != nil {
			auth.With(opts.Private...).Mount("/logout", opts.Logout.Handle())
		}
		if opts.GoogleOAuth != nil {
			auth.Mount("/google", opts.GoogleOAuth.Handle())
		}
		if opts.Password != nil {
			auth.Mount("/", opts.Password.Handle())
		}
	})

	if opts.Profile != nil {
		r.Route("/users", func(users chi.Router) {
			users.Use(opts.Private...)
			users.Mount("/", opts.Profile.Handle())
		})
	}

	return r
}
