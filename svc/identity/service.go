package identity

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/faceswap/pkg/jwt"
	"github.com/dmitrymomot/faceswap/pkg/logger"
)

// RegisterInput is the data accepted by Register.
type RegisterInput struct {
	Email    string
	Password string
	FullName string
}

// Service authenticates users and issues token pairs.
type Service interface {
	Register(ctx context.Context, in RegisterInput) (*User, error)
	Login(ctx context.Context, email, password string) (*TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	Authenticate(ctx context.Context, accessToken string) (*User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)

	GoogleAuthURL(ctx context.Context) (string, error)
	GoogleCallback(ctx context.Context, state, code string) (*TokenPair, error)
}

type service struct {
	users      UserStore
	tokens     TokenIssuer
	hasher     PasswordHasher
	oauth      OAuthProvider
	states     StateStore
	stateTTL   time.Duration
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// ServiceOption configures the identity service.
type ServiceOption func(*service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPasswordHasher replaces the default bcrypt hasher.
func WithPasswordHasher(h PasswordHasher) ServiceOption {
	return func(s *service) {
		if h != nil {
			s.hasher = h
		}
	}
}

// WithOAuthProvider enables Google login. Passing nil leaves it disabled.
func WithOAuthProvider(p OAuthProvider) ServiceOption {
	return func(s *service) {
		s.oauth = p
	}
}

// WithStateStore sets where OAuth state is kept between redirect and callback.
func WithStateStore(st StateStore, ttl time.Duration) ServiceOption {
	return func(s *service) {
		if st != nil {
			s.states = st
		}
		if ttl > 0 {
			s.stateTTL = ttl
		}
	}
}

// WithTokenTTL sets the access and refresh token lifetimes.
func WithTokenTTL(access, refresh time.Duration) ServiceOption {
	return func(s *service) {
		if access > 0 {
			s.accessTTL = access
		}
		if refresh > 0 {
			s.refreshTTL = refresh
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates the identity service.
func NewService(users UserStore, tokens TokenIssuer, opts ...ServiceOption) Service {
	s := &service{
		users:      users,
		tokens:     tokens,
		hasher:     NewBcryptHasher(0),
		states:     NewMemoryStateStore(),
		stateTTL:   10 * time.Minute,
		accessTTL:  30 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
		now:        time.Now,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Register(ctx context.Context, in RegisterInput) (*User, error) {
	email := NormalizeEmail(in.Email)
	if _, err := s.users.GetUserByEmail(ctx, email); err == nil {
		return nil, ErrEmailAlreadyExists
	} else if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := NewUser(email, strings.TrimSpace(in.FullName), s.now().UTC())
	user.PasswordHash = hash
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user registered",
		logger.Component("identity"),
		logger.Event("register"),
		logger.UserID(user.ID),
	)
	return user, nil
}

func (s *service) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	user, err := s.users.GetUserByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !user.HasPassword() || !s.hasher.Compare(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return s.issuePair(user)
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	user, err := s.userFromToken(ctx, refreshToken, jwt.RefreshToken)
	if err != nil {
		return nil, err
	}
	return s.issuePair(user)
}

func (s *service) Authenticate(ctx context.Context, accessToken string) (*User, error) {
	return s.userFromToken(ctx, accessToken, jwt.AccessToken)
}

func (s *service) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.users.GetUserByID(ctx, id)
}

func (s *service) GoogleAuthURL(ctx context.Context) (string, error) {
	if s.oauth == nil {
		return "", ErrOAuthNotConfigured
	}
	state, err := newState()
	if err != nil {
		return "", err
	}
	if err := s.states.Save(ctx, state, s.stateTTL); err != nil {
		return "", err
	}
	return s.oauth.AuthURL(state), nil
}

func (s *service) GoogleCallback(ctx context.Context, state, code string) (*TokenPair, error) {
	if s.oauth == nil {
		return nil, ErrOAuthNotConfigured
	}
	if state == "" {
		return nil, ErrInvalidState
	}
	if err := s.states.Consume(ctx, state); err != nil {
		return nil, err
	}

	profile, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		if errors.Is(err, ErrOAuthExchange) {
			return nil, err
		}
		return nil, errors.Join(ErrOAuthExchange, err)
	}
	if profile.ProviderUserID == "" || profile.Email == "" {
		return nil, ErrIncompleteProfile
	}

	user, err := s.resolveGoogleUser(ctx, profile)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return s.issuePair(user)
}

// resolveGoogleUser finds the user for a Google profile, linking the Google id
// to an existing email account or creating a new account when needed.
func (s *service) resolveGoogleUser(ctx context.Context, p *OAuthProfile) (*User, error) {
	user, err := s.users.GetUserByGoogleID(ctx, p.ProviderUserID)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user, err = s.users.GetUserByEmail(ctx, NormalizeEmail(p.Email))
	switch {
	case err == nil:
		if user.GoogleID != "" && user.GoogleID != p.ProviderUserID {
			return nil, ErrProviderLinked
		}
		if user.GoogleID == "" {
			if err := s.users.LinkGoogleID(ctx, user.ID, p.ProviderUserID); err != nil {
				return nil, err
			}
			user.GoogleID = p.ProviderUserID
			s.logger.InfoContext(ctx, "google account linked",
				logger.Component("identity"),
				logger.Event("google_link"),
				logger.UserID(user.ID),
			)
		}
		return user, nil
	case errors.Is(err, ErrUserNotFound):
		user = NewUser(p.Email, p.Name, s.now().UTC())
		user.GoogleID = p.ProviderUserID
		if err := s.users.CreateUser(ctx, user); err != nil {
			return nil, err
		}
		s.logger.InfoContext(ctx, "user registered",
			logger.Component("identity"),
			logger.Event("google_register"),
			logger.UserID(user.ID),
		)
		return user, nil
	default:
		return nil, err
	}
}

func (s *service) userFromToken(ctx context.Context, token string, typ jwt.TokenType) (*User, error) {
	claims, err := s.tokens.Decode(token, typ)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, errors.Join(ErrInvalidToken, err)
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrInactiveUser
	}
	return user, nil
}

func (s *service) issuePair(user *User) (*TokenPair, error) {
	sub := user.ID.String()
	access, err := s.tokens.Issue(sub, jwt.AccessToken, s.accessTTL)
	if err != nil {
		return nil, errors.Join(ErrTokenIssue, err)
	}
	refresh, err := s.tokens.Issue(sub, jwt.RefreshToken, s.refreshTTL)
	if err != nil {
		return nil, errors.Join(ErrTokenIssue, err)
	}
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(s.accessTTL.Seconds()),
	}, nil
}

var _ Service = (*service)(nil)
