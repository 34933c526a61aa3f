package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cliEnv struct {
	sessionFile string
	qrChecks    int32
	intents     int32
}

// newCLIEnv points the CLI at a fake marketplace backend and a throwaway
// session file.
func newCLIEnv(t *testing.T) *cliEnv {
	t.Helper()
	env := &cliEnv{sessionFile: filepath.Join(t.TempDir(), "session.yaml")}

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authed := r.Header.Get("Authorization") == "Bearer tok-1"
		switch r.URL.Path {
		case "/auth/login":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			if body["password"] != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"success":false,"message":"Invalid credentials"}`))
				return
			}
			w.Write([]byte(`{"success":true,"token":"tok-1","user":{"_id":"u1","name":"Ann","email":"ann@example.com"}}`))
		case "/auth/me":
			if !authed {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"user":{"_id":"u1","name":"Ann","email":"ann@example.com"}}`))
		case "/auth/logout":
			w.Write([]byte(`{"success":true}`))
		case "/projects":
			w.Write([]byte(`{"projects":[{"_id":"p1","title":"Shop","category":"web","price":"49.99","isActive":true}]}`))
		case "/projects/p1":
			w.Write([]byte(`{"project":{"_id":"p1","title":"Shop","price":"49.99","isActive":true}}`))
		case "/projects/p2":
			w.Write([]byte(`{"project":{"_id":"p2","title":"Old","price":"10","isActive":false}}`))
		case "/payments/my-projects":
			w.Write([]byte(`{"projects":[]}`))
		case "/payments/create-payment-intent":
			atomic.AddInt32(&env.intents, 1)
			w.Write([]byte(`{"clientSecret":"pi_1_secret_x","paymentIntentId":"pi_1"}`))
		case "/payments/create-qr-payment":
			w.Write([]byte(`{"data":{"paymentId":"qr1","qrCode":"upi://pay?id=qr1"}}`))
		case "/payments/check-qr-payment-status/qr1":
			if atomic.AddInt32(&env.qrChecks, 1) < 2 {
				w.Write([]byte(`{"status":"pending"}`))
				return
			}
			w.Write([]byte(`{"status":"succeeded"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(backend.Close)

	t.Setenv("API_URL", backend.URL)
	t.Setenv("API_RATE_LIMIT", "0")
	t.Setenv("QR_POLL_INTERVAL", "10ms")
	t.Setenv("CHECKOUT_REDIRECT_DELAY", "10ms")
	t.Setenv("STRIPE_SECRET_KEY", "")
	return env
}

func (e *cliEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := rootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--session-file", e.sessionFile}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_LoginWhoamiLogout(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "whoami")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")

	_, err = env.run(t, "login", "--email", "ann@example.com", "--password", "wrong")
	require.Error(t, err)
	assert.Equal(t, "Invalid credentials", err.Error())

	out, err := env.run(t, "login", "--email", "ann@example.com", "--password", "secret")
	require.NoError(t, err)
	assert.Contains(t, out, "Signed in as Ann")

	out, err = env.run(t, "whoami")
	require.NoError(t, err)
	assert.Contains(t, out, "Ann <ann@example.com> (u1)")

	_, err = env.run(t, "logout")
	require.NoError(t, err)

	_, err = env.run(t, "whoami")
	assert.Error(t, err)
}

func TestCLI_ProjectsAndPurchases(t *testing.T) {
	env := newCLIEnv(t)

	out, err := env.run(t, "projects")
	require.NoError(t, err)
	assert.Contains(t, out, "p1")
	assert.Contains(t, out, "$49.99")

	out, err = env.run(t, "projects", "show", "p2")
	require.NoError(t, err)
	assert.Contains(t, out, "currently unavailable")

	_, err = env.run(t, "login", "--email", "ann@example.com", "--password", "secret")
	require.NoError(t, err)
	out, err = env.run(t, "purchases")
	require.NoError(t, err)
	assert.Contains(t, out, "No purchases yet")
}

func TestCLI_CheckoutQR(t *testing.T) {
	env := newCLIEnv(t)
	_, err := env.run(t, "login", "--email", "ann@example.com", "--password", "secret")
	require.NoError(t, err)

	out, err := env.run(t, "checkout", "p1", "--method", "qr", "--timeout", "5s")
	require.NoError(t, err)
	assert.Contains(t, out, "Checkout: Shop for $49.99")
	assert.Contains(t, out, "https://api.qrserver.com/v1/create-qr-code/?size=250x250&data=upi%3A%2F%2Fpay%3Fid%3Dqr1")
	assert.Contains(t, out, "Payment successful!")
	assert.Contains(t, out, "(/dashboard)")
	assert.GreaterOrEqual(t, atomic.LoadInt32(&env.qrChecks), int32(2))
}

func TestCLI_CheckoutGuardsAndPreconditions(t *testing.T) {
	env := newCLIEnv(t)

	_, err := env.run(t, "checkout", "p1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not signed in")

	_, err = env.run(t, "login", "--email", "ann@example.com", "--password", "secret")
	require.NoError(t, err)

	_, err = env.run(t, "checkout", "p2", "--method", "qr")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Project Unavailable")

	_, err = env.run(t, "checkout", "p1", "--method", "crypto")
	assert.Error(t, err)

	_, err = env.run(t, "checkout", "p1", "--method", "card", "--accept-terms")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")
	assert.Zero(t, atomic.LoadInt32(&env.intents))
}
