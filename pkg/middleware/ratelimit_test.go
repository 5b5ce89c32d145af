package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRateLimiter_GeneralBudget(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(GeneralRateLimitConfig()).WithClock(clock.Now)
	ctx := context.Background()

	for i := 1; i <= 100; i++ {
		d, err := limiter.Take(ctx, "203.0.113.7")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d should pass", i)
	}

	d, err := limiter.Take(ctx, "203.0.113.7")
	require.NoError(t, err)
	assert.False(t, d.Allowed, "request 101 must be rejected")
	assert.Equal(t, 0, d.Remaining)
	assert.InDelta(t, 600*time.Millisecond, d.ResetAfter, float64(10*time.Millisecond))

	other, err := limiter.Take(ctx, "198.51.100.1")
	require.NoError(t, err)
	assert.True(t, other.Allowed, "buckets are per key")
}

func TestRateLimiter_Refill(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(AuthRateLimitConfig()).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		d, _ := limiter.Take(ctx, "ip")
		require.True(t, d.Allowed)
	}
	d, _ := limiter.Take(ctx, "ip")
	require.False(t, d.Allowed)

	// one token per 180s
	clock.Advance(179 * time.Second)
	d, _ = limiter.Take(ctx, "ip")
	assert.False(t, d.Allowed)

	clock.Advance(2 * time.Second)
	d, _ = limiter.Take(ctx, "ip")
	assert.True(t, d.Allowed)

	clock.Advance(time.Hour)
	assert.Equal(t, 5, limiter.Remaining("ip"), "refill is capped at capacity")
}

func TestRateLimiter_Concurrent(t *testing.T) {
	clock := newFakeClock()
	limiter := NewRateLimiter(GeneralRateLimitConfig()).WithClock(clock.Now)

	var allowed int64
	var wg sync.WaitGroup
	for i := 0; i < 250; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, _ := limiter.Take(context.Background(), "shared"); d.Allowed {
				atomic.AddInt64(&allowed, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(100), allowed)
	assert.Equal(t, 1, limiter.Len())
}

func TestRateLimitMiddleware_Handler(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	clock := newFakeClock()

	m := NewRateLimitMiddleware(map[Policy]Limiter{
		PolicyGeneral: NewRateLimiter(GeneralRateLimitConfig()).WithClock(clock.Now),
		PolicyAuth:    NewRateLimiter(AuthRateLimitConfig()).WithClock(clock.Now),
	}, metrics, false)

	var reached int
	handler := m.Handler(PolicyGeneral)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached++
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/billing/subscription", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 100; i++ {
		rec := send("203.0.113.7:5000")
		require.Equal(t, http.StatusOK, rec.Code)
	}
	last := send("203.0.113.7:5001")

	assert.Equal(t, http.StatusTooManyRequests, last.Code)
	assert.Equal(t, 100, reached, "downstream not invoked on rejection")
	assert.Equal(t, "1", last.Header().Get("Retry-After"))
	assert.Equal(t, "100", last.Header().Get("X-RateLimit-Limit"))
	assert.JSONEq(t, `{"error":"too many requests, please try again later"}`, last.Body.String())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RateLimitRejectionsTotal.WithLabelValues("general")))

	assert.Equal(t, http.StatusOK, send("198.51.100.9:4000").Code)
}

func TestRateLimitMiddleware_PoliciesIndependent(t *testing.T) {
	m := NewInMemoryRateLimitMiddleware(GeneralRateLimitConfig(), AuthRateLimitConfig(), nil, false)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, m.Consume(ctx, "10.0.0.1", PolicyAuth))
	}
	err := m.Consume(ctx, "10.0.0.1", PolicyAuth)
	assert.True(t, apperrors.IsKind(err, apperrors.KindRateLimited))

	assert.NoError(t, m.Consume(ctx, "10.0.0.1", PolicyGeneral), "general budget unaffected by auth exhaustion")
}

type failingLimiter struct{}

func (failingLimiter) Take(context.Context, string) (Decision, error) {
	return Decision{}, assert.AnError
}

func TestRateLimitMiddleware_FailOpen(t *testing.T) {
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	m := NewRateLimitMiddleware(map[Policy]Limiter{PolicyGeneral: failingLimiter{}}, metrics, false)

	assert.NoError(t, m.Consume(context.Background(), "ip", PolicyGeneral))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RateLimitBackendErrorsTotal.WithLabelValues("general")))
}

func TestRateLimitMiddleware_UnknownPolicy(t *testing.T) {
	m := NewRateLimitMiddleware(map[Policy]Limiter{}, nil, false)
	err := m.Consume(context.Background(), "ip", PolicyAuth)
	require.Error(t, err)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInternal))
	assert.Equal(t, "internal server error", apperrors.As(err).Message)

	rec := httptest.NewRecorder()
	m.Handler(PolicyAuth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without a limiter")
	})).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/auth/verify", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"internal server error"}`, rec.Body.String())
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:44321"
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")

	assert.Equal(t, "192.0.2.10", ClientIP(req, false), "spoofable header ignored by default")
	assert.Equal(t, "10.0.0.1", ClientIP(req, true), "rightmost hop is the proxy-appended one")

	req.Header.Set("X-Forwarded-For", "198.51.100.77, 203.0.113.5 ,")
	assert.Equal(t, "203.0.113.5", ClientIP(req, true))

	req.Header.Set("X-Forwarded-For", "198.51.100.1")
	req.Header.Add("X-Forwarded-For", "198.51.100.2, 203.0.113.9")
	assert.Equal(t, "203.0.113.9", ClientIP(req, true), "repeated headers are joined in order")

	spoofed := httptest.NewRequest(http.MethodGet, "/", nil)
	spoofed.RemoteAddr = "192.0.2.10:44321"
	spoofed.Header.Set("X-Forwarded-For", "1.1.1.1, 203.0.113.5")
	rotated := httptest.NewRequest(http.MethodGet, "/", nil)
	rotated.RemoteAddr = "192.0.2.10:44321"
	rotated.Header.Set("X-Forwarded-For", "2.2.2.2, 203.0.113.5")
	assert.Equal(t, ClientIP(spoofed, true), ClientIP(rotated, true), "client-chosen leading hops do not change the key")

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "192.0.2.10", ClientIP(req, true))

	req.RemoteAddr = "no-port"
	assert.Equal(t, "no-port", ClientIP(req, false))
}

func TestDistributedRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	limiter := NewDistributedRateLimiter(client, AuthRateLimitConfig(), "test")
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d, err := limiter.Take(ctx, "auth:10.0.0.1")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d", i)
		assert.Equal(t, 5-i, d.Remaining)
	}

	d, err := limiter.Take(ctx, "auth:10.0.0.1")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 15*time.Minute, d.ResetAfter)

	ttl, err := limiter.TTL(ctx, "auth:10.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, ttl, "window is not extended by later hits")

	mr.FastForward(15 * time.Minute)
	d, err = limiter.Take(ctx, "auth:10.0.0.1")
	require.NoError(t, err)
	assert.True(t, d.Allowed, "new window after expiry")

	require.NoError(t, limiter.Reset(ctx, "auth:10.0.0.1"))
	assert.False(t, mr.Exists("test:auth:10.0.0.1"))
}

func TestDistributedRateLimiter_RedisDown(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	m := NewRateLimitMiddleware(map[Policy]Limiter{
		PolicyGeneral: NewDistributedRateLimiter(client, GeneralRateLimitConfig(), ""),
	}, nil, false)

	assert.NoError(t, m.Consume(context.Background(), "ip", PolicyGeneral))
}
