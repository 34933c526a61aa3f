package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/akeditz/storefront/internal/apiclient"
	"github.com/akeditz/storefront/internal/audit"
	"github.com/akeditz/storefront/internal/checkout"
	"github.com/akeditz/storefront/internal/domain"
	"github.com/akeditz/storefront/internal/payments/intent"
	"github.com/akeditz/storefront/internal/payments/qr"
	"github.com/akeditz/storefront/internal/session"
)

type testEnv struct {
	router  *gin.Engine
	svc     *checkout.Service
	intents int32
}

// newTestEnv wires the checkout routes against a fake marketplace backend
// and a Redis session store holding two signed-in users.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)
	env := &testEnv{}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-"))
		switch r.URL.Path {
		case "/projects/p1":
			w.Write([]byte(`{"success":true,"project":{"_id":"p1","title":"Shop","price":"49.99","isActive":true}}`))
		case "/projects/p2":
			w.Write([]byte(`{"success":true,"data":{"_id":"p2","title":"Old","price":10,"isActive":false}}`))
		case "/payments/create-payment-intent":
			atomic.AddInt32(&env.intents, 1)
			w.Write([]byte(`{"success":true,"clientSecret":"pi_5_secret_q","paymentIntentId":"pi_5"}`))
		case "/payments/confirm-payment":
			w.Write([]byte(`{"success":true,"payment":{"_id":"pay5","status":"succeeded","paymentIntentId":"pi_5"}}`))
		case "/payments/create-qr-payment":
			w.Write([]byte(`{"success":true,"paymentId":"qr5","qrCode":"upi://pay?ref=qr5"}`))
		case "/payments/check-qr-payment-status/qr5":
			w.Write([]byte(`{"success":true,"status":"created"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(backend.Close)

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	store := session.NewRedisStore(rdb, time.Hour)
	for _, u := range []string{"u1", "u2"} {
		require.NoError(t, store.Save(context.Background(), "sid-"+u, &session.Record{
			Token: "tok-" + u,
			User:  &domain.User{ID: u, Email: u + "@example.com", Role: domain.RoleUser},
		}))
	}

	env.svc = checkout.NewService(checkout.ServiceConfig{
		Intent:        intent.Config{MaxRetries: 0, Currency: "usd"},
		QR:            qr.Config{PollInterval: 10 * time.Millisecond, Timeout: time.Second},
		RedirectDelay: 10 * time.Millisecond,
	}, checkout.NewRedisRepository(rdb, time.Hour), nil)
	t.Cleanup(func() { env.svc.Shutdown(context.Background()) })

	api := apiclient.New(backend.URL, apiclient.WithRateLimit(0, 0))

	r := gin.New()
	r.Use(session.Middleware(store))
	New(env.svc, api, fakeHistory{}).Register(r.Group("/api/v1/checkout"))
	env.router = r
	return env
}

type fakeHistory struct{}

func (fakeHistory) ListByUser(ctx context.Context, userID string, limit int) ([]audit.Entry, error) {
	return []audit.Entry{{CheckoutID: "old", UserID: userID, Outcome: "succeeded"}}, nil
}

func (e *testEnv) do(t *testing.T, method, path, sid string, body any) (int, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if sid != "" {
		req.Header.Set(session.HeaderName, sid)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return w.Code, out
}

func checkoutID(t *testing.T, body map[string]any) string {
	t.Helper()
	co, ok := body["checkout"].(map[string]any)
	require.True(t, ok, "response has no checkout: %v", body)
	return co["id"].(string)
}

func TestCheckout_RequiresSession(t *testing.T) {
	env := newTestEnv(t)
	code, body := env.do(t, http.MethodPost, "/api/v1/checkout", "", gin.H{"project_id": "p1"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, false, body["ok"])
}

func TestCheckout_GuardsReturnUnprocessable(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/v1/checkout", "sid-u1", gin.H{"project_id": "p2"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "Project Unavailable", body["title"])

	code, body = env.do(t, http.MethodPost, "/api/v1/checkout", "sid-u1", gin.H{"project_id": "nope"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "Project Not Found", body["title"])
	assert.Zero(t, atomic.LoadInt32(&env.intents))
}

func TestCheckout_CardFlow(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodPost, "/api/v1/checkout", "sid-u1", gin.H{"project_id": "p1"})
	require.Equal(t, http.StatusCreated, code)
	id := checkoutID(t, body)
	base := "/api/v1/checkout/" + id

	code, body = env.do(t, http.MethodPost, base+"/method", "sid-u1", gin.H{"method": "card"})
	require.Equal(t, http.StatusOK, code)
	co := body["checkout"].(map[string]any)
	assert.Equal(t, "pi_5_secret_q", co["intent"].(map[string]any)["client_secret"])

	code, _ = env.do(t, http.MethodPost, base+"/card/confirm", "sid-u1", gin.H{"status": "succeeded"})
	assert.Equal(t, http.StatusConflict, code, "terms not accepted")

	code, _ = env.do(t, http.MethodPost, base+"/card/terms", "sid-u1", gin.H{"accepted": true})
	require.Equal(t, http.StatusOK, code)

	code, body = env.do(t, http.MethodPost, base+"/card/confirm", "sid-u1", gin.H{
		"error": gin.H{"type": "card_error", "code": "card_declined", "message": "Your card was declined."},
	})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["ok"])
	assert.Equal(t, "Your card was declined.", body["error"])

	code, body = env.do(t, http.MethodPost, base+"/card/confirm", "sid-u1", gin.H{"payment_intent_id": "pi_5", "status": "succeeded"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["ok"])
	co = body["checkout"].(map[string]any)
	assert.Equal(t, "success", co["view"])
	assert.Equal(t, "/dashboard", co["redirect_to"])

	code, _ = env.do(t, http.MethodGet, base, "sid-u2", nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestCheckout_QRFlowAndClose(t *testing.T) {
	env := newTestEnv(t)

	_, body := env.do(t, http.MethodPost, "/api/v1/checkout", "sid-u1", gin.H{"project_id": "p1"})
	id := checkoutID(t, body)
	base := "/api/v1/checkout/" + id

	code, body := env.do(t, http.MethodPost, base+"/method", "sid-u1", gin.H{"method": "qr"})
	require.Equal(t, http.StatusOK, code)
	qrSnap := body["checkout"].(map[string]any)["qr"].(map[string]any)
	assert.Equal(t, "qr5", qrSnap["payment_id"])
	assert.Contains(t, qrSnap["image_url"], "data=upi%3A%2F%2Fpay%3Fref%3Dqr5")

	code, _ = env.do(t, http.MethodPost, base+"/method", "sid-u1", gin.H{"method": "paypal"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodDelete, base, "sid-u1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "closed", body["checkout"].(map[string]any)["view"])

	code, _ = env.do(t, http.MethodPost, base+"/qr/refresh", "sid-u1", nil)
	assert.Equal(t, http.StatusConflict, code)

	code, body = env.do(t, http.MethodGet, base, "sid-u1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "closed", body["checkout"].(map[string]any)["view"])

	code, body = env.do(t, http.MethodGet, "/api/v1/checkout", "sid-u1", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, body["checkouts"], 1)
}

func TestCheckout_History(t *testing.T) {
	env := newTestEnv(t)

	code, body := env.do(t, http.MethodGet, "/api/v1/checkout/history", "sid-u2", nil)
	require.Equal(t, http.StatusOK, code)
	entries := body["entries"].([]any)
	require.Len(t, entries, 1)
	assert.Equal(t, "u2", entries[0].(map[string]any)["user_id"])
}
