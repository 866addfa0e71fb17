package binder_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/faceswap/pkg/binder"
)

type verifyRequest struct {
	SessionID string `query:"session_id" validate:"required"`
	Page      *int   `query:"page"`
	Skipped   string `query:"-"`
}

func TestQuery(t *testing.T) {
	t.Parallel()

	t.Run("binds parameters", func(t *testing.T) {
		t.Parallel()
		var req verifyRequest
		r := httptest.NewRequest(http.MethodGet, "/verify?session_id=cs_123&page=2&Skipped=x", nil)
		require.NoError(t, binder.Query()(r, &req))
		assert.Equal(t, "cs_123", req.SessionID)
		require.NotNil(t, req.Page)
		assert.Equal(t, 2, *req.Page)
		assert.Empty(t, req.Skipped)
	})

	t.Run("bad number", func(t *testing.T) {
		t.Parallel()
		var req verifyRequest
		r := httptest.NewRequest(http.MethodGet, "/verify?page=two", nil)
		assert.ErrorIs(t, binder.Query()(r, &req), binder.ErrFailedToParseQuery)
	})

	t.Run("missing value fails validation under its query name", func(t *testing.T) {
		t.Parallel()
		var req verifyRequest
		r := httptest.NewRequest(http.MethodGet, "/verify", nil)
		require.NoError(t, binder.Query()(r, &req))

		err := binder.Struct(&req)
		var verr binder.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr, "session_id")
	})

	t.Run("non pointer target", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/verify", nil)
		assert.ErrorIs(t, binder.Query()(r, verifyRequest{}), binder.ErrInvalidTarget)
	})
}
