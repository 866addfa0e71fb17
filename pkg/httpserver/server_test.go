package httpserver_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/faceswap/pkg/httpserver"
)

func TestServer(t *testing.T) {
	t.Parallel()

	t.Run("serves until context is cancelled", func(t *testing.T) {
		t.Parallel()

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		var stopped atomic.Bool
		srv := httpserver.New(httpserver.WithStopHook(func() { stopped.Store(true) }))
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan error, 1)
		go func() {
			done <- srv.Serve(ctx, ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.WriteString(w, "pong")
			}))
		}()

		require.Eventually(t, func() bool {
			resp, err := http.Get("http://" + ln.Addr().String())
			if err != nil {
				return false
			}
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			return string(body) == "pong"
		}, 2*time.Second, 20*time.Millisecond)

		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("server did not stop")
		}
		assert.True(t, stopped.Load())
	})

	t.Run("bad address", func(t *testing.T) {
		t.Parallel()
		srv := httpserver.NewFromConfig(httpserver.Config{Addr: "256.0.0.1:bad"})
		err := srv.Run(context.Background(), http.NotFoundHandler())
		assert.ErrorIs(t, err, httpserver.ErrStart)
	})
}

func TestHealthCheckHandler(t *testing.T) {
	t.Parallel()

	serve := func(h http.Handler) (int, httpserver.HealthStatus) {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		var body httpserver.HealthStatus
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		return rec.Code, body
	}

	t.Run("liveness", func(t *testing.T) {
		t.Parallel()
		code, body := serve(httpserver.HealthCheckHandler(nil))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "alive", body.Status)
	})

	t.Run("ready", func(t *testing.T) {
		t.Parallel()
		code, body := serve(httpserver.HealthCheckHandler(nil,
			httpserver.Check{Name: "mongo", Fn: func(context.Context) error { return nil }},
		))
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, "ready", body.Status)
		assert.Equal(t, "ok", body.Checks["mongo"])
	})

	t.Run("not ready", func(t *testing.T) {
		t.Parallel()
		code, body := serve(httpserver.HealthCheckHandler(nil,
			httpserver.Check{Name: "mongo", Fn: func(context.Context) error { return nil }},
			httpserver.Check{Name: "redis", Fn: func(context.Context) error { return errors.New("down") }},
		))
		assert.Equal(t, http.StatusServiceUnavailable, code)
		assert.Equal(t, "not_ready", body.Status)
		assert.Equal(t, "fail", body.Checks["redis"])
		assert.Equal(t, "ok", body.Checks["mongo"])
	})
}
