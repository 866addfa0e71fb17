package requestid_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/faceswap/pkg/logger"
	"github.com/dmitrymomot/faceswap/pkg/requestid"
)

func serve(t *testing.T, mw func(http.Handler) http.Handler, header string) (seen, echoed string) {
	t.Helper()
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = requestid.FromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(requestid.Header, header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return seen, rec.Header().Get(requestid.Header)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	t.Run("generates uuid", func(t *testing.T) {
		t.Parallel()
		seen, echoed := serve(t, requestid.Middleware(), "")
		assert.Equal(t, seen, echoed)
		_, err := uuid.Parse(seen)
		assert.NoError(t, err)
	})

	t.Run("reuses valid client id", func(t *testing.T) {
		t.Parallel()
		seen, echoed := serve(t, requestid.Middleware(), "client-id_42")
		assert.Equal(t, "client-id_42", seen)
		assert.Equal(t, "client-id_42", echoed)
	})

	t.Run("replaces malformed client id", func(t *testing.T) {
		t.Parallel()
		for _, bad := range []string{"has space", "<script>", strings.Repeat("a", 129)} {
			seen, _ := serve(t, requestid.Middleware(), bad)
			assert.NotEqual(t, bad, seen)
			assert.NotEmpty(t, seen)
		}
	})

	t.Run("custom generator and untrusted clients", func(t *testing.T) {
		t.Parallel()
		mw := requestid.Middleware(requestid.WithGenerator(func() string { return "fixed" }), requestid.WithoutClientIDs())
		seen, echoed := serve(t, mw, "client-id")
		assert.Equal(t, "fixed", seen)
		assert.Equal(t, "fixed", echoed)
	})
}

func TestFromContext(t *testing.T) {
	t.Parallel()
	assert.Empty(t, requestid.FromContext(context.Background()))
	assert.Equal(t, "abc", requestid.FromContext(requestid.WithContext(context.Background(), "abc")))
}

func TestLoggerExtractor(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := logger.New(
		logger.WithOutput(&buf),
		logger.WithFormat(logger.FormatJSON),
		logger.WithContextExtractors(requestid.LoggerExtractor()),
	)

	log.InfoContext(requestid.WithContext(context.Background(), "req-1"), "hello")
	assert.Contains(t, buf.String(), `"request_id":"req-1"`)

	_, ok := requestid.LoggerExtractor()(context.Background())
	require.False(t, ok)
}
