package jwt_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/faceswap/pkg/jwt"
)

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := jwt.New(nil)
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)

	_, err = jwt.NewFromString("")
	assert.ErrorIs(t, err, jwt.ErrMissingSigningKey)

	svc, err := jwt.NewFromString("secret")
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestIssueDecode(t *testing.T) {
	t.Parallel()

	svc, err := jwt.NewFromString("secret", jwt.WithIssuer("faceswap"))
	require.NoError(t, err)

	t.Run("round trip access token", func(t *testing.T) {
		t.Parallel()
		token, err := svc.Issue("user-1", jwt.AccessToken, time.Minute)
		require.NoError(t, err)

		claims, err := svc.Decode(token, jwt.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.Equal(t, jwt.AccessToken, claims.Type)
	})

	t.Run("refresh token rejected as access", func(t *testing.T) {
		t.Parallel()
		token, err := svc.Issue("user-1", jwt.RefreshToken, time.Minute)
		require.NoError(t, err)

		_, err = svc.Decode(token, jwt.AccessToken)
		assert.ErrorIs(t, err, jwt.ErrWrongTokenType)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		past, err := jwt.NewFromString("secret", jwt.WithClock(func() time.Time { return time.Now().Add(-time.Hour) }))
		require.NoError(t, err)
		token, err := past.Issue("user-1", jwt.AccessToken, time.Minute)
		require.NoError(t, err)

		_, err = svc.Decode(token, jwt.AccessToken)
		assert.ErrorIs(t, err, jwt.ErrExpiredToken)
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		other, err := jwt.NewFromString("other", jwt.WithIssuer("faceswap"))
		require.NoError(t, err)
		token, err := other.Issue("user-1", jwt.AccessToken, time.Minute)
		require.NoError(t, err)

		_, err = svc.Decode(token, jwt.AccessToken)
		assert.ErrorIs(t, err, jwt.ErrInvalidSignature)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := svc.Decode("not.a.token", jwt.AccessToken)
		assert.ErrorIs(t, err, jwt.ErrInvalidToken)
	})
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	svc, err := jwt.NewFromString("secret")
	require.NoError(t, err)

	var seen string
	h := jwt.Middleware(svc, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := jwt.GetClaims(r.Context())
		require.True(t, ok)
		seen = claims.Subject
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("missing header", func(t *testing.T) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := svc.Issue("user-7", jwt.AccessToken, time.Minute)
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Equal(t, "user-7", seen)
	})
}
