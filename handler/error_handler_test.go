package handler_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/faceswap/handler"
	"github.com/dmitrymomot/faceswap/pkg/binder"
)

var errQuota = errors.New("quota exhausted")

func contextWith(r *http.Request, key, val any) context.Context {
	return context.WithValue(r.Context(), key, val)
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	mapper := func(err error) (handler.HTTPError, bool) {
		if errors.Is(err, errQuota) {
			return handler.ErrPaymentRequired.WithReason("monthly_limit_reached"), true
		}
		return handler.HTTPError{}, false
	}

	run := func(t *testing.T, err error) (*httptest.ResponseRecorder, string) {
		t.Helper()
		var logs bytes.Buffer
		log := slog.New(slog.NewJSONHandler(&logs, nil))
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/faceswap/process", nil)
		handler.NewErrorHandler(log, mapper)(handler.NewContext(rec, req), err)
		return rec, logs.String()
	}

	t.Run("mapped domain error", func(t *testing.T) {
		t.Parallel()
		rec, logs := run(t, fmt.Errorf("reserve: %w", errQuota))
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		body := decode(t, rec)
		require.NotNil(t, body.Error)
		assert.Equal(t, "payment_required", body.Error.Code)
		assert.Equal(t, "monthly_limit_reached", body.Error.Reason)
		assert.Contains(t, logs, `"level":"WARN"`)
		assert.Contains(t, logs, `"status_code":402`)
	})

	t.Run("bad json", func(t *testing.T) {
		t.Parallel()
		rec, _ := run(t, fmt.Errorf("%w: unexpected EOF", binder.ErrFailedToParseJSON))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong media type", func(t *testing.T) {
		t.Parallel()
		rec, _ := run(t, binder.ErrMissingContentType)
		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	})

	t.Run("validation", func(t *testing.T) {
		t.Parallel()
		rec, _ := run(t, binder.ValidationError{"plan": {"is required"}})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown error logs at error level", func(t *testing.T) {
		t.Parallel()
		rec, logs := run(t, errors.New("boom"))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, logs, `"level":"ERROR"`)
		assert.Contains(t, logs, `"path":"/api/v1/faceswap/process"`)
	})
}
