package client

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"
)

// =============================================================================
// Retry Policy
// =============================================================================

// RetryPolicy controls how a failed request is retried. Only requests that
// are safe to repeat are retried: GET/HEAD, or any request whose context was
// marked with ReadOnly.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Multiplier     float64
	Jitter         float64
	RetryStatus    []int
}

// DefaultRetryPolicy retries three times with exponential backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
		Multiplier:     2.0,
		Jitter:         0.1,
		RetryStatus: []int{
			http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout,
		},
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.InitialBackoff) * math.Pow(p.Multiplier, float64(attempt-1))
	if max := float64(p.MaxBackoff); p.MaxBackoff > 0 && d > max {
		d = max
	}
	if p.Jitter > 0 {
		d += d * p.Jitter * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// =============================================================================
// Circuit Breaker
// =============================================================================

// BreakerState is the state of a Breaker.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned without contacting Supabase while the breaker is open.
var ErrBreakerOpen = errors.New("supabase circuit breaker is open")

// BreakerConfig configures a Breaker.
type BreakerConfig struct {
	FailureThreshold int
	SuccessThreshold int
	Cooldown         time.Duration
	OnStateChange    func(from, to BreakerState)
}

// DefaultBreakerConfig opens after five consecutive failures for 30 seconds.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{FailureThreshold: 5, SuccessThreshold: 2, Cooldown: 30 * time.Second}
}

// Breaker stops calling a data store that keeps failing.
type Breaker struct {
	mu        sync.Mutex
	cfg       BreakerConfig
	state     BreakerState
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.SuccessThreshold <= 0 {
		cfg.SuccessThreshold = 1
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Allow returns ErrBreakerOpen while the cooldown has not elapsed.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen {
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return ErrBreakerOpen
		}
		b.set(BreakerHalfOpen)
	}
	return nil
}

// Success records a successful call.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		b.failures = 0
	case BreakerHalfOpen:
		b.successes++
		if b.successes >= b.cfg.SuccessThreshold {
			b.set(BreakerClosed)
		}
	}
}

// Failure records a failed call.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case BreakerClosed:
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.set(BreakerOpen)
		}
	case BreakerHalfOpen:
		b.set(BreakerOpen)
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) set(to BreakerState) {
	from := b.state
	b.state = to
	b.failures, b.successes = 0, 0
	if to == BreakerOpen {
		b.openedAt = b.now()
	}
	if b.cfg.OnStateChange != nil && from != to {
		go b.cfg.OnStateChange(from, to)
	}
}

// =============================================================================
// Resilient Transport
// =============================================================================

// Transport is an http.RoundTripper that retries idempotent requests and
// short-circuits through a Breaker.
type Transport struct {
	Base    http.RoundTripper
	Policy  RetryPolicy
	Breaker *Breaker
}

// StatusError is returned when retries are exhausted on a retryable status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("supabase unavailable: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

func (t *Transport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Breaker != nil {
		if err := t.Breaker.Allow(); err != nil {
			return nil, err
		}
	}

	retries := 0
	if retrySafe(req) {
		retries = t.Policy.MaxRetries
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(t.Policy.backoff(attempt)):
			}
			if req, err = rewind(req); err != nil {
				return nil, err
			}
		}

		resp, err = t.base().RoundTrip(req)
		if err != nil {
			if attempt < retries && transient(err) {
				continue
			}
			t.failure()
			return nil, err
		}
		if slices.Contains(t.Policy.RetryStatus, resp.StatusCode) {
			if attempt < retries {
				resp.Body.Close()
				continue
			}
			t.failure()
			return resp, nil
		}
		if resp.StatusCode >= 500 {
			t.failure()
		} else if t.Breaker != nil {
			t.Breaker.Success()
		}
		return resp, nil
	}
	return resp, err
}

func (t *Transport) failure() {
	if t.Breaker != nil {
		t.Breaker.Failure()
	}
}

func rewind(req *http.Request) (*http.Request, error) {
	next := req.Clone(req.Context())
	if req.Body == nil || req.GetBody == nil {
		return next, nil
	}
	body, err := req.GetBody()
	if err != nil {
		return nil, fmt.Errorf("rewind request body: %w", err)
	}
	next.Body = body
	return next, nil
}

func transient(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func retrySafe(req *http.Request) bool {
	switch req.Method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	v, _ := req.Context().Value(readOnlyKey{}).(bool)
	return v
}

// ResilientConfig extends Config with retry and breaker settings.
type ResilientConfig struct {
	Config
	Policy  RetryPolicy
	Breaker BreakerConfig
}

// NewResilient creates a client whose transport retries safe requests and
// trips a breaker on repeated failures.
func NewResilient(cfg ResilientConfig) (*Client, *Breaker, error) {
	var base http.RoundTripper
	timeout := 30 * time.Second
	if cfg.HTTPClient != nil {
		base = cfg.HTTPClient.Transport
		if cfg.HTTPClient.Timeout > 0 {
			timeout = cfg.HTTPClient.Timeout
		}
	}
	breaker := NewBreaker(cfg.Breaker)
	cfg.Config.HTTPClient = &http.Client{
		Timeout:   timeout,
		Transport: &Transport{Base: base, Policy: cfg.Policy, Breaker: breaker},
	}
	c, err := New(cfg.Config)
	if err != nil {
		return nil, nil, err
	}
	return c, breaker, nil
}

// =============================================================================
// Context Markers
// =============================================================================

const requestIDHeader = "X-Request-ID"

type requestIDKey struct{}

type readOnlyKey struct{}

// WithRequestID attaches a request ID that is forwarded to Supabase.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the request ID stored in ctx, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// ReadOnly marks a POST (such as a read-only stored procedure) as safe to retry.
func ReadOnly(ctx context.Context) context.Context {
	return context.WithValue(ctx, readOnlyKey{}, true)
}
