package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// Breaker Tests
// =============================================================================

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Cooldown: time.Minute})

	for i := 0; i < 2; i++ {
		b.Failure()
	}
	if b.State() != BreakerClosed {
		t.Fatalf("State() = %v, want closed", b.State())
	}
	b.Failure()
	if b.State() != BreakerOpen {
		t.Fatalf("State() = %v, want open", b.State())
	}
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow() = %v, want ErrBreakerOpen", err)
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	b.Failure()
	b.Success()
	b.Failure()
	if b.State() != BreakerClosed {
		t.Fatalf("State() = %v, want closed", b.State())
	}
}

func TestBreakerHalfOpenCycle(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Cooldown: 10 * time.Second})
	b.now = func() time.Time { return now }

	b.Failure()
	if err := b.Allow(); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("Allow() = %v during cooldown", err)
	}

	now = now.Add(11 * time.Second)
	if err := b.Allow(); err != nil {
		t.Fatalf("Allow() after cooldown: %v", err)
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("State() = %v, want half-open", b.State())
	}

	b.Failure()
	if b.State() != BreakerOpen {
		t.Fatalf("failure in half-open should reopen, got %v", b.State())
	}

	now = now.Add(11 * time.Second)
	_ = b.Allow()
	b.Success()
	b.Success()
	if b.State() != BreakerClosed {
		t.Fatalf("State() = %v, want closed", b.State())
	}
}

func TestBreakerStateString(t *testing.T) {
	tests := map[BreakerState]string{
		BreakerClosed:    "closed",
		BreakerOpen:      "open",
		BreakerHalfOpen:  "half-open",
		BreakerState(42): "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(s), got, want)
		}
	}
}

// =============================================================================
// Transport Tests
// =============================================================================

func fastPolicy() RetryPolicy {
	p := DefaultRetryPolicy()
	p.InitialBackoff = time.Millisecond
	p.MaxBackoff = 5 * time.Millisecond
	return p
}

func TestTransportRetriesGet(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{Policy: fastPolicy()}}
	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || atomic.LoadInt32(&attempts) != 3 {
		t.Fatalf("status=%d attempts=%d", resp.StatusCode, attempts)
	}
}

func TestTransportDoesNotRetryInserts(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{Policy: fastPolicy()}}
	resp, err := client.Post(srv.URL, "application/json", strings.NewReader(`{"founder_id":"f"}`))
	if err != nil {
		t.Fatalf("Post: %v", err)
	}
	resp.Body.Close()
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Fatalf("insert attempted %d times, want 1", n)
	}
}

func TestTransportRetriesReadOnlyPostWithBody(t *testing.T) {
	var attempts int32
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(b))
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: &Transport{Policy: fastPolicy()}}
	req, _ := http.NewRequestWithContext(ReadOnly(context.Background()), http.MethodPost, srv.URL, strings.NewReader(`{}`))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()
	if len(bodies) != 2 || bodies[1] != `{}` {
		t.Fatalf("retry should resend the body, got %q", bodies)
	}
}

func TestTransportBreakerShortCircuits(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	breaker := NewBreaker(BreakerConfig{FailureThreshold: 2, Cooldown: time.Minute})
	client := &http.Client{Transport: &Transport{Policy: RetryPolicy{}, Breaker: breaker}}

	for i := 0; i < 2; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		resp.Body.Close()
	}
	_, err := client.Get(srv.URL)
	if !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("err = %v, want ErrBreakerOpen", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Fatalf("server saw %d requests, want 2", n)
	}
}

func TestTransportHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	client := &http.Client{Transport: &Transport{Policy: fastPolicy()}}
	if _, err := client.Do(req); err == nil {
		t.Fatal("expected context error")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	if got := RequestID(ctx); got != "req-1" {
		t.Fatalf("RequestID = %q", got)
	}
	if got := RequestID(context.Background()); got != "" {
		t.Fatalf("RequestID on empty ctx = %q", got)
	}
}
