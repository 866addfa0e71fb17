package identity

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	oauth2api "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// OAuthProfile is the identity asserted by the OAuth provider.
type OAuthProfile struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
}

// OAuthProvider runs the authorization code flow against one provider.
type OAuthProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*OAuthProfile, error)
}

// GoogleConfig configures the Google provider. An empty client id means the
// provider is not configured.
type GoogleConfig struct {
	ClientID     string   `env:"GOOGLE_OAUTH_CLIENT_ID"`
	ClientSecret string   `env:"GOOGLE_OAUTH_CLIENT_SECRET"`
	RedirectURL  string   `env:"GOOGLE_OAUTH_REDIRECT_URL" envDefault:"http://localhost:8080/api/v1/auth/google/callback"`
	Scopes       []string `env:"GOOGLE_OAUTH_SCOPES" envSeparator:","`
}

// Enabled reports whether both client credentials are present.
func (c GoogleConfig) Enabled() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// GoogleProvider exchanges codes with Google and reads the userinfo endpoint.
type GoogleProvider struct {
	conf *oauth2.Config
	opts []option.ClientOption
}

// NewGoogleProvider returns ErrOAuthNotConfigured when cfg lacks credentials.
// Extra client options are passed to the userinfo client.
func NewGoogleProvider(cfg GoogleConfig, opts ...option.ClientOption) (*GoogleProvider, error) {
	if !cfg.Enabled() {
		return nil, ErrOAuthNotConfigured
	}
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oauth2api.OpenIDScope, oauth2api.UserinfoEmailScope, oauth2api.UserinfoProfileScope}
	}
	return &GoogleProvider{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     google.Endpoint,
		},
		opts: opts,
	}, nil
}

func (p *GoogleProvider) AuthURL(state string) string {
	return p.conf.AuthCodeURL(state)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*OAuthProfile, error) {
	tok, err := p.conf.Exchange(ctx, code)
	if err != nil {
		return nil, errors.Join(ErrOAuthExchange, err)
	}

	opts := append([]option.ClientOption{option.WithTokenSource(p.conf.TokenSource(ctx, tok))}, p.opts...)
	svc, err := oauth2api.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Join(ErrOAuthExchange, err)
	}
	info, err := svc.Userinfo.Get().Context(ctx).Do()
	if err != nil {
		return nil, errors.Join(ErrOAuthExchange, err)
	}

	profile := &OAuthProfile{
		ProviderUserID: info.Id,
		Email:          info.Email,
		Name:           info.Name,
	}
	if info.VerifiedEmail != nil {
		profile.EmailVerified = *info.VerifiedEmail
	}
	return profile, nil
}

var _ OAuthProvider = (*GoogleProvider)(nil)
