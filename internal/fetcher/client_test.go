package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func TestClientPermanentNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{Timeout: time.Second, MaxRetries: 3}, noopLogger())

	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, &out)
	if err == nil {
		t.Fatal("400 must surface an error")
	}
	if Retryable(err) {
		t.Fatal("400 must be classified permanent")
	}
	if got := attempts.Load(); got != 1 {
		t.Fatalf("permanent failure must not be retried, got %d attempts", got)
	}
}

func TestClientTransientRetriedToCap(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{Timeout: time.Second, MaxRetries: 2}, noopLogger())

	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, &out)
	if err == nil {
		t.Fatal("persistent 502 must surface an error")
	}
	if !Retryable(err) {
		t.Fatal("502 must be classified transient")
	}
	if got := attempts.Load(); got != 3 {
		t.Fatalf("expected initial attempt plus 2 retries, got %d", got)
	}
}

func TestClientRecoversAfterTransientFailure(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{Timeout: time.Second, MaxRetries: 3}, noopLogger())

	var out map[string]bool
	if err := c.GetJSON(context.Background(), srv.URL, &out); err != nil {
		t.Fatalf("expected recovery on second attempt: %v", err)
	}
	if !out["ok"] {
		t.Fatal("decoded payload lost")
	}
}

func TestClientTimeoutClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{Timeout: 20 * time.Millisecond, MaxRetries: 0}, noopLogger())

	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, &out)
	if err == nil {
		t.Fatal("slow upstream must time out")
	}
	if ErrKind(err) != KindTimeout {
		t.Fatalf("expected timeout classification, got %s", ErrKind(err))
	}
}

func TestClientRateLimitedClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(ClientOptions{Timeout: time.Second, MaxRetries: 0}, noopLogger())

	var out map[string]any
	err := c.GetJSON(context.Background(), srv.URL, &out)
	if ErrKind(err) != KindRateLimited {
		t.Fatalf("expected rate_limited classification, got %v", err)
	}
	if !Retryable(err) {
		t.Fatal("429 must stay retryable")
	}
}
