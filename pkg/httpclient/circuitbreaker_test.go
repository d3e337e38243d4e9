package httpclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/predizer/predictx-client/pkg/logger"
)

func testCBConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:         name,
		MaxRequests:  1,
		Interval:     60 * time.Second,
		Timeout:      1 * time.Second, // Short for tests.
		FailureRatio: 0.5,
		MinRequests:  3,
	}
}

func newTestBreaker(name string, cfg CircuitBreakerConfig) *CircuitBreakerClient {
	client := New(Config{Timeout: 5 * time.Second, MaxRetries: 0, MaxConnsPerHost: 10})
	cfg.Name = name
	return NewCircuitBreakerClient(client, cfg, logger.Discard())
}

func TestCircuitBreaker_ClosedState_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	cb := newTestBreaker("test-closed", testCBConfig(""))

	resp, err := get(context.Background(), cb, server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_5xxReturnedToCaller(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"detail":"database unavailable"}`))
	}))
	defer server.Close()

	cb := newTestBreaker("test-5xx-body", testCBConfig(""))

	resp, err := get(context.Background(), cb, server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(body), "database unavailable")
}

func TestCircuitBreaker_TripsOnFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`error`))
	}))
	defer server.Close()

	cb := newTestBreaker("test-trip", testCBConfig(""))

	for i := 0; i < 3; i++ {
		resp, err := get(context.Background(), cb, server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, gobreaker.StateOpen, cb.State())

	_, err := get(context.Background(), cb, server.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_HalfOpenToClosedRecovery(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cfg := testCBConfig("")
	cfg.Timeout = 100 * time.Millisecond
	cb := newTestBreaker("test-recovery", cfg)

	for i := 0; i < 3; i++ {
		if resp, err := get(context.Background(), cb, server.URL); err == nil {
			resp.Body.Close()
		}
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	time.Sleep(150 * time.Millisecond)
	failing.Store(false)

	resp, err := get(context.Background(), cb, server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_4xxNotCountedAsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"token expired"}`))
	}))
	defer server.Close()

	cb := newTestBreaker("test-4xx", testCBConfig(""))

	for i := 0; i < 5; i++ {
		resp, err := get(context.Background(), cb, server.URL)
		require.NoError(t, err)
		resp.Body.Close()
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_Post(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	cb := newTestBreaker("test-post", testCBConfig(""))

	resp, err := post(context.Background(), cb, server.URL, "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestCircuitBreaker_DefaultConfig(t *testing.T) {
	cfg := DefaultCircuitBreakerConfig("test-defaults")
	assert.Equal(t, "test-defaults", cfg.Name)
	assert.Equal(t, uint32(1), cfg.MaxRequests)
	assert.Equal(t, 60*time.Second, cfg.Interval)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, 0.5, cfg.FailureRatio)
	assert.Equal(t, uint32(5), cfg.MinRequests)
}

func TestCircuitBreaker_OpenStateRejectsRequests(t *testing.T) {
	var reqCount atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqCount.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testCBConfig("")
	cfg.Timeout = 5 * time.Second
	cb := newTestBreaker("test-open-reject", cfg)

	for i := 0; i < 3; i++ {
		if resp, err := get(context.Background(), cb, server.URL); err == nil {
			resp.Body.Close()
		}
	}
	assert.Equal(t, gobreaker.StateOpen, cb.State())

	beforeCount := reqCount.Load()

	for i := 0; i < 5; i++ {
		_, err := get(context.Background(), cb, server.URL)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrCircuitOpen)
	}

	assert.Equal(t, beforeCount, reqCount.Load())
}

func TestCircuitBreaker_CanceledCallerNotCounted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	cb := newTestBreaker("test-canceled", testCBConfig(""))

	for i := 0; i < 4; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := get(ctx, cb, server.URL)
		require.Error(t, err)
		assert.ErrorIs(t, err, context.Canceled)
	}

	assert.Equal(t, gobreaker.StateClosed, cb.State())
}

func TestCircuitBreaker_ContextTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	cb := newTestBreaker("test-ctx", testCBConfig(""))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := get(ctx, cb, server.URL)
	require.Error(t, err)
}
