package identity

import (
	"time"

	"github.com/dmitrymomot/faceswap/pkg/jwt"
)

// TokenIssuer signs and decodes typed tokens. *jwt.Service implements it.
type TokenIssuer interface {
	Issue(subject string, typ jwt.TokenType, ttl time.Duration) (string, error)
	Decode(token string, want jwt.TokenType) (*jwt.Claims, error)
}

// TokenPair is returned by every successful login.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
