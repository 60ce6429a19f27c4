package mfa_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/availity-rpa/internal/config"
	"github.com/xkilldash9x/availity-rpa/internal/mfa"
)

func backend(t *testing.T, store mfa.Store) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newRouter(t, store, ""))
	t.Cleanup(srv.Close)
	return srv
}

func clientConfig(url string, poll, wait time.Duration) config.MFAConfig {
	return config.MFAConfig{BaseURL: url, PollInterval: poll, WaitTimeout: wait, RequestTimeout: time.Second}
}

func TestClient_CodeSubmittedWithinTTL(t *testing.T) {
	store := mfa.NewMemoryStore(mfa.DefaultTTL)
	srv := backend(t, store)
	c := mfa.NewClient(clientConfig(srv.URL, 10*time.Millisecond, 5*time.Second), "aetna_prior_auth", zaptest.NewLogger(t))

	ctx := context.Background()
	id, err := c.RequestSession(ctx)
	require.NoError(t, err)

	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = store.Submit(context.Background(), id, "482913")
	}()

	code, err := c.WaitForCode(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "482913", code)
}

func TestClient_NoCodeBeforeTimeout(t *testing.T) {
	store := mfa.NewMemoryStore(mfa.DefaultTTL)
	srv := backend(t, store)
	c := mfa.NewClient(clientConfig(srv.URL, 10*time.Millisecond, 80*time.Millisecond), "eligibility", zaptest.NewLogger(t))

	id, err := c.RequestSession(context.Background())
	require.NoError(t, err)

	start := time.Now()
	_, err = c.WaitForCode(context.Background(), id)
	assert.ErrorIs(t, err, mfa.ErrTimeout)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestClient_ExpiredSessionFailsFast(t *testing.T) {
	clock := newFakeClock()
	store := mfa.NewMemoryStore(mfa.DefaultTTL, mfa.WithClock(clock.Now))
	srv := backend(t, store)
	c := mfa.NewClient(clientConfig(srv.URL, 10*time.Millisecond, time.Minute), "eligibility", zaptest.NewLogger(t))

	id, err := c.RequestSession(context.Background())
	require.NoError(t, err)
	clock.Advance(301 * time.Second)

	start := time.Now()
	_, err = c.WaitForCode(context.Background(), id)
	assert.ErrorIs(t, err, mfa.ErrExpired)
	assert.Less(t, time.Since(start), time.Second, "expiry must not wait out the poll timeout")
}

func TestClient_TransientErrorsKeepPolling(t *testing.T) {
	var calls atomic.Int32
	r := chi.NewRouter()
	r.Get("/mfa-check/{id}", func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"code":"000111","status":"completed"}`))
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	c := mfa.NewClient(clientConfig(srv.URL, 5*time.Millisecond, 5*time.Second), "eligibility", zaptest.NewLogger(t))
	code, err := c.WaitForCode(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "000111", code)
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestClient_RequestSessionFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	c := mfa.NewClient(clientConfig(srv.URL, time.Second, time.Second), "eligibility", zaptest.NewLogger(t))
	_, err := c.RequestSession(context.Background())
	assert.ErrorContains(t, err, "unexpected status 500")
}

func TestClient_CancelledContext(t *testing.T) {
	srv := backend(t, mfa.NewMemoryStore(mfa.DefaultTTL))
	c := mfa.NewClient(clientConfig(srv.URL, 10*time.Millisecond, time.Minute), "eligibility", zaptest.NewLogger(t))
	id, err := c.RequestSession(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	_, err = c.WaitForCode(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
