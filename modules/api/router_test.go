package api_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/dmitrymomot/faceswap/modules/api"
	"github.com/dmitrymomot/faceswap/modules/faceswap"
	"github.com/dmitrymomot/faceswap/pkg/httpserver"
	"github.com/dmitrymomot/faceswap/pkg/jwt"
	"github.com/dmitrymomot/faceswap/pkg/locker"
	"github.com/dmitrymomot/faceswap/pkg/metrics"
	"github.com/dmitrymomot/faceswap/pkg/ratelimiter"
	"github.com/dmitrymomot/faceswap/store/memstore"
	"github.com/dmitrymomot/faceswap/svc/billing"
	"github.com/dmitrymomot/faceswap/svc/entitlement"
	"github.com/dmitrymomot/faceswap/svc/identity"
	"github.com/dmitrymomot/faceswap/svc/swap"
)

type fakeProcessor struct {
	mu      sync.Mutex
	results map[string]*billing.CheckoutResult
}

func (p *fakeProcessor) Name() string { return "fake" }

func (p *fakeProcessor) CreateCheckout(_ context.Context, req billing.CheckoutRequest) (*billing.Checkout, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := "cs_" + uuid.NewString()
	p.results[id] = &billing.CheckoutResult{
		ID:               id,
		Outcome:          billing.OutcomeOpen,
		RawStatus:        "open",
		AmountTotalCents: req.AmountCents,
		Currency:         string(req.Currency),
		Metadata:         req.Metadata,
	}
	return &billing.Checkout{ID: id, URL: "https://pay.example.com/" + id}, nil
}

func (p *fakeProcessor) RetrieveCheckout(_ context.Context, id string) (*billing.CheckoutResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	res, ok := p.results[id]
	if !ok {
		return nil, fmt.Errorf("no such checkout %s", id)
	}
	cp := *res
	return &cp, nil
}

func (p *fakeProcessor) markPaid(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.results[id].Outcome = billing.OutcomePaid
	p.results[id].RawStatus = "complete"
	p.results[id].PaymentReference = "pi_" + id
}

type env struct {
	handler   http.Handler
	processor *fakeProcessor
}

type envOption func(*api.Options)

func newEnv(t *testing.T, opts ...envOption) *env {
	t.Helper()

	store := memstore.New()
	lk := locker.NewMemory()
	limits := entitlement.DefaultLimits()

	tokens, err := jwt.New([]byte("test-signing-key-with-enough-bytes"))
	require.NoError(t, err)
	ids := identity.NewService(store, tokens, identity.WithPasswordHasher(identity.NewBcryptHasher(bcrypt.MinCost)))

	m := metrics.New("faceswap_test")
	engine := entitlement.NewEngine(store, limits, entitlement.WithRecorder(m))
	swapSvc := swap.NewService(entitlement.NewMeter(engine, store, lk), swap.Simulated{})

	proc := &fakeProcessor{results: make(map[string]*billing.CheckoutResult)}
	cfg := billing.DefaultConfig()
	cfg.CryptoWalletAddress = "TWalletAddress"
	bill := billing.NewService(cfg, store, store, store, lk,
		billing.WithCardProcessor(proc),
		billing.WithLimits(limits),
		billing.WithRecorder(m),
	)

	o := api.Options{
		Identity: ids,
		Billing:  bill,
		Swap:     swapSvc,
		Faceswap: faceswap.Config{MaxImageBytes: 1 << 20},
		Limits:   limits,
		Metrics:  m,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &env{handler: api.NewRouter(o), processor: proc}
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string              `json:"code"`
		Message string              `json:"message"`
		Reason  string              `json:"reason"`
		Details map[string][]string `json:"details"`
	} `json:"error"`
}

func (e *env) do(t *testing.T, req *http.Request, token string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var body envelope
	if strings.Contains(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	}
	return rec, body
}

func (e *env) json(t *testing.T, method, path, token string, payload any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(payload))
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	return e.do(t, req, token)
}

func (e *env) login(t *testing.T, email string) identity.TokenPair {
	t.Helper()
	rec, _ := e.json(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": email, "password": "correct-horse", "full_name": "Test User",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec, body := e.json(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": email, "password": "correct-horse",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pair identity.TokenPair
	require.NoError(t, json.Unmarshal(body.Data, &pair))
	return pair
}

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

func swapRequest(t *testing.T, source, target []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for name, data := range map[string][]byte{"source_image": source, "target_image": target} {
		part, err := w.CreateFormFile(name, name+".png")
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/faceswap/process", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestAuthRoutes(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	pair := e.login(t, "ann@example.com")

	t.Run("duplicate email", func(t *testing.T) {
		rec, body := e.json(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"email": "ANN@example.com", "password": "another-pass",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "EMAIL_EXISTS", body.Error.Code)
	})

	t.Run("invalid payload", func(t *testing.T) {
		rec, body := e.json(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"email": "not-an-email", "password": "short",
		})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, body.Error)
		assert.Contains(t, body.Error.Details, "email")
		assert.Contains(t, body.Error.Details, "password")
	})

	t.Run("wrong password", func(t *testing.T) {
		rec, body := e.json(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email": "ann@example.com", "password": "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "LOGIN_INVALID_CREDENTIALS", body.Error.Code)
	})

	t.Run("refresh requires a refresh token", func(t *testing.T) {
		rec, _ := e.json(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
			"refresh_token": pair.AccessToken,
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec, body := e.json(t, http.MethodPost, "/api/v1/auth/refresh", "", map[string]string{
			"refresh_token": pair.RefreshToken,
		})
		assert.Equal(t, http.StatusOK, rec.Code)
		var refreshed identity.TokenPair
		require.NoError(t, json.Unmarshal(body.Data, &refreshed))
		assert.NotEmpty(t, refreshed.AccessToken)
		assert.Equal(t, "bearer", refreshed.TokenType)
	})

	t.Run("profile", func(t *testing.T) {
		rec, _ := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec, body := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil), pair.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code)
		var user map[string]any
		require.NoError(t, json.Unmarshal(body.Data, &user))
		assert.Equal(t, "ann@example.com", user["email"])
		assert.Equal(t, "none", user["entitlement_state"])
		assert.NotContains(t, user, "password_hash")
	})

	t.Run("form login and query refresh paths", func(t *testing.T) {
		form := url.Values{"username": {"ann@example.com"}, "password": {"correct-horse"}}
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login/email", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec, body := e.do(t, req, "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var viaForm identity.TokenPair
		require.NoError(t, json.Unmarshal(body.Data, &viaForm))
		assert.NotEmpty(t, viaForm.RefreshToken)

		path := "/api/v1/auth/token/refresh?refresh_token=" + url.QueryEscape(viaForm.RefreshToken)
		rec, body = e.do(t, httptest.NewRequest(http.MethodPost, path, nil), "")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var refreshed identity.TokenPair
		require.NoError(t, json.Unmarshal(body.Data, &refreshed))
		assert.NotEmpty(t, refreshed.AccessToken)
	})

	t.Run("logout", func(t *testing.T) {
		rec, _ := e.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)

		rec, body := e.do(t, httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil), pair.AccessToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var out struct {
			Message string `json:"message"`
		}
		require.NoError(t, json.Unmarshal(body.Data, &out))
		assert.Contains(t, out.Message, "logged out")
	})

	t.Run("google not configured", func(t *testing.T) {
		rec, body := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/auth/google/login", nil), "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "GOOGLE_OAUTH_NOT_CONFIGURED", body.Error.Code)
	})

	t.Run("request id is echoed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
		req.Header.Set("X-Request-ID", "req-123")
		rec, _ := e.do(t, req, pair.AccessToken)
		assert.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
	})
}

func TestFaceswapRoute(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	token := e.login(t, "bob@example.com").AccessToken

	source := append(append([]byte{}, pngHeader...), []byte("source-face")...)
	target := append(append([]byte{}, pngHeader...), []byte("target-face")...)

	t.Run("rejects non images without consuming", func(t *testing.T) {
		rec, body := e.do(t, swapRequest(t, []byte("plain text, not an image"), target), token)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "INVALID_FILE_TYPE", body.Error.Code)
	})

	t.Run("missing file", func(t *testing.T) {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		require.NoError(t, w.WriteField("note", "no files"))
		require.NoError(t, w.Close())
		req := httptest.NewRequest(http.MethodPost, "/api/v1/faceswap/process", &buf)
		req.Header.Set("Content-Type", w.FormDataContentType())

		rec, body := e.do(t, req, token)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, body.Error)
		assert.Contains(t, body.Error.Details, "source_image")
	})

	t.Run("free unit then payment required", func(t *testing.T) {
		rec, body := e.do(t, swapRequest(t, source, target), token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var out struct {
			Image       string `json:"image_base64"`
			Consumption string `json:"consumption"`
		}
		require.NoError(t, json.Unmarshal(body.Data, &out))
		img, err := base64.StdEncoding.DecodeString(out.Image)
		require.NoError(t, err)
		assert.Equal(t, "simulated_output_"+string(source[:10])+"_"+string(target[:10]), string(img))
		assert.Equal(t, "free", out.Consumption)

		rec, body = e.do(t, swapRequest(t, source, target), token)
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "FREE_LIMIT_REACHED", body.Error.Code)
		assert.Equal(t, "free_limit_reached", body.Error.Reason)
	})

	t.Run("requires authentication", func(t *testing.T) {
		rec, _ := e.do(t, swapRequest(t, source, target), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

type paymentStatus struct {
	Plan      string     `json:"subscription_type"`
	IsActive  bool       `json:"is_active_subscriber"`
	Remaining *int       `json:"requests_remaining"`
	CycleEnd  *time.Time `json:"subscription_end_date"`
}

func TestCryptoPaymentRoutes(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	token := e.login(t, "carol@example.com").AccessToken

	rec, body := e.json(t, http.MethodPost, "/api/v1/payments/crypto/initiate", token, map[string]string{"payment_type": "monthly"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var transfer struct {
		AttemptID string `json:"payment_attempt_id"`
		Wallet    string `json:"wallet_address"`
		Expected  string `json:"expected_amount_usd"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &transfer))
	assert.Equal(t, "TWalletAddress", transfer.Wallet)
	assert.Equal(t, "2.99", transfer.Expected)

	confirm := func(attemptID, hash string) (*httptest.ResponseRecorder, envelope) {
		path := "/api/v1/payments/crypto/confirm?payment_attempt_id=" + attemptID + "&transaction_hash=" + hash
		return e.do(t, httptest.NewRequest(http.MethodPost, path, nil), token)
	}

	t.Run("invalid plan", func(t *testing.T) {
		rec, _ := e.json(t, http.MethodPost, "/api/v1/payments/crypto/initiate", token, map[string]string{"payment_type": "weekly"})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("malformed hash", func(t *testing.T) {
		rec, body := confirm(transfer.AttemptID, "0x1234")
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "INVALID_TX_HASH", body.Error.Code)
	})

	t.Run("malformed attempt id", func(t *testing.T) {
		rec, body := confirm("not-a-uuid", "0x"+strings.Repeat("ab", 32))
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, []string{"must be a valid UUID"}, body.Error.Details["payment_attempt_id"])
	})

	t.Run("unknown attempt", func(t *testing.T) {
		rec, body := confirm(uuid.NewString(), "0x"+strings.Repeat("ab", 32))
		assert.Equal(t, http.StatusNotFound, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "PAYMENT_ATTEMPT_NOT_FOUND", body.Error.Code)
	})

	t.Run("confirm grants monthly", func(t *testing.T) {
		rec, body := confirm(transfer.AttemptID, "0x"+strings.Repeat("cd", 32))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var st paymentStatus
		require.NoError(t, json.Unmarshal(body.Data, &st))
		assert.Equal(t, "monthly", st.Plan)
		assert.True(t, st.IsActive)
		require.NotNil(t, st.Remaining)
		assert.Equal(t, 40, *st.Remaining)
		assert.NotNil(t, st.CycleEnd)

		rec, body = confirm(transfer.AttemptID, "0x"+strings.Repeat("cd", 32))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		require.NotNil(t, body.Error)
		assert.Equal(t, "PAYMENT_ALREADY_CONFIRMED", body.Error.Code)
	})

	t.Run("status", func(t *testing.T) {
		rec, body := e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/payments/status", nil), token)
		require.Equal(t, http.StatusOK, rec.Code)
		var st paymentStatus
		require.NoError(t, json.Unmarshal(body.Data, &st))
		assert.Equal(t, "monthly", st.Plan)
	})

	t.Run("usdt paths", func(t *testing.T) {
		rec, body := e.json(t, http.MethodPost, "/api/v1/payments/usdt/initiate-payment", token, map[string]string{"payment_type": "one_time"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var again struct {
			AttemptID string `json:"payment_attempt_id"`
		}
		require.NoError(t, json.Unmarshal(body.Data, &again))

		path := "/api/v1/payments/usdt/confirm-payment?payment_attempt_id=" + again.AttemptID + "&transaction_hash=0x" + strings.Repeat("ef", 32)
		rec, body = e.do(t, httptest.NewRequest(http.MethodPost, path, nil), token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var st paymentStatus
		require.NoError(t, json.Unmarshal(body.Data, &st))
		assert.Equal(t, "one_time", st.Plan)
	})
}

func TestCardPaymentRoutes(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	token := e.login(t, "dave@example.com").AccessToken

	rec, body := e.json(t, http.MethodPost, "/api/v1/payments/card/checkout", token, map[string]string{"payment_type": "one_time"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var checkout billing.CardCheckout
	require.NoError(t, json.Unmarshal(body.Data, &checkout))
	assert.Equal(t, "https://pay.example.com/"+checkout.SessionID, checkout.RedirectURL)

	verify := func() (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/card/verify?session_id="+checkout.SessionID, nil)
		return e.do(t, req, token)
	}

	rec, body = verify()
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "PAYMENT_PENDING", body.Error.Code)

	e.processor.markPaid(checkout.SessionID)
	rec, body = verify()
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var st paymentStatus
	require.NoError(t, json.Unmarshal(body.Data, &st))
	assert.Equal(t, "one_time", st.Plan)
	assert.True(t, st.IsActive)
	assert.Nil(t, st.Remaining)

	rec, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/api/v1/payments/card/verify", nil), token)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	t.Run("stripe paths", func(t *testing.T) {
		rec, body := e.json(t, http.MethodPost, "/api/v1/payments/stripe/create-checkout-session", token, map[string]string{"payment_type": "monthly"})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var legacy billing.CardCheckout
		require.NoError(t, json.Unmarshal(body.Data, &legacy))

		e.processor.markPaid(legacy.SessionID)
		req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/stripe/verify-payment?session_id="+legacy.SessionID, nil)
		rec, body = e.do(t, req, token)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var st paymentStatus
		require.NoError(t, json.Unmarshal(body.Data, &st))
		assert.Equal(t, "monthly", st.Plan)
	})
}

func TestOperationalRoutes(t *testing.T) {
	t.Parallel()

	failing := httpserver.Check{Name: "mongo", Fn: func(context.Context) error { return assert.AnError }}
	e := newEnv(t, func(o *api.Options) { o.ReadinessChecks = []httpserver.Check{failing} })

	rec, _ := e.do(t, httptest.NewRequest(http.MethodGet, "/health/live", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/health/ready", nil), "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec, body := e.do(t, httptest.NewRequest(http.MethodGet, "/nope", nil), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	require.NotNil(t, body.Error)
	assert.Equal(t, "not_found", body.Error.Code)

	rec, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/metrics", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "faceswap_test_http_requests_total")
}

func TestAuthRateLimit(t *testing.T) {
	t.Parallel()

	limiter, err := ratelimiter.New(ratelimiter.Config{RPS: 0.001, Burst: 2, IdleTTL: time.Minute})
	require.NoError(t, err)
	e := newEnv(t, func(o *api.Options) { o.AuthLimiter = limiter })

	login := func() *httptest.ResponseRecorder {
		rec, _ := e.json(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
			"email": "nobody@example.com", "password": "whatever",
		})
		return rec
	}

	assert.Equal(t, http.StatusUnauthorized, login().Code)
	assert.Equal(t, http.StatusUnauthorized, login().Code)

	rec := login()
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	rec, _ = e.do(t, httptest.NewRequest(http.MethodGet, "/health/live", nil), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
