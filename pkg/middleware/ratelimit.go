package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/cacchoeira/FinanceProject/pkg/apperrors"
	"github.com/cacchoeira/FinanceProject/pkg/httputil"
	"github.com/cacchoeira/FinanceProject/pkg/observability"
)

// Policy names an independent rate limit budget
type Policy string

const (
	// PolicyGeneral applies to all API traffic
	PolicyGeneral Policy = "general"
	// PolicyAuth applies to authentication traffic only
	PolicyAuth Policy = "auth"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerWindow is the bucket capacity
	RequestsPerWindow int
	// WindowDuration is the time to refill an empty bucket
	WindowDuration time.Duration
	// MaxKeys bounds the number of tracked clients (in-memory only)
	MaxKeys int
}

// GeneralRateLimitConfig returns the general API budget: 100 requests per minute
func GeneralRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 100,
		WindowDuration:    time.Minute,
		MaxKeys:           100000,
	}
}

// AuthRateLimitConfig returns the authentication budget: 5 requests per 15 minutes
func AuthRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		RequestsPerWindow: 5,
		WindowDuration:    15 * time.Minute,
		MaxKeys:           100000,
	}
}

// Decision is the outcome of consuming one unit from a bucket
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// Limiter consumes budget for a key. Implementations must be safe for
// concurrent use and decide each call atomically per key.
type Limiter interface {
	Take(ctx context.Context, key string) (Decision, error)
}

// RateLimiter is an in-process token bucket limiter. Buckets refill
// continuously at RequestsPerWindow/WindowDuration. Idle buckets expire
// after one window, at which point they would be full anyway.
type RateLimiter struct {
	config  *RateLimitConfig
	buckets *lru.LRU[string, *bucket]
	mu      sync.Mutex
	now     func() time.Time
}

type bucket struct {
	tokens     float64
	lastUpdate time.Time
	mu         sync.Mutex
}

// NewRateLimiter creates a new in-memory rate limiter
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = GeneralRateLimitConfig()
	}
	size := config.MaxKeys
	if size <= 0 {
		size = 100000
	}
	return &RateLimiter{
		config:  config,
		buckets: lru.NewLRU[string, *bucket](size, nil, config.WindowDuration),
		now:     time.Now,
	}
}

// WithClock replaces the time source (tests)
func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	rl.now = now
	return rl
}

func (rl *RateLimiter) capacity() float64 {
	return float64(rl.config.RequestsPerWindow)
}

func (rl *RateLimiter) bucketFor(key string, now time.Time) *bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets.Get(key)
	if !ok {
		b = &bucket{tokens: rl.capacity(), lastUpdate: now}
	}
	// re-adding refreshes the idle expiry
	rl.buckets.Add(key, b)
	return b
}

// Take implements Limiter
func (rl *RateLimiter) Take(_ context.Context, key string) (Decision, error) {
	now := rl.now()
	b := rl.bucketFor(key, now)

	b.mu.Lock()
	defer b.mu.Unlock()

	rate := rl.capacity() / rl.config.WindowDuration.Seconds()
	if elapsed := now.Sub(b.lastUpdate).Seconds(); elapsed > 0 {
		b.tokens = math.Min(rl.capacity(), b.tokens+elapsed*rate)
		b.lastUpdate = now
	}

	decision := Decision{Limit: rl.config.RequestsPerWindow}
	if b.tokens >= 1 {
		b.tokens--
		decision.Allowed = true
	}
	decision.Remaining = int(math.Floor(b.tokens))
	if deficit := 1 - b.tokens; deficit > 0 {
		decision.ResetAfter = time.Duration(deficit / rate * float64(time.Second))
	}
	return decision, nil
}

// Remaining returns the whole tokens left for a key without consuming any
func (rl *RateLimiter) Remaining(key string) int {
	rl.mu.Lock()
	b, ok := rl.buckets.Peek(key)
	rl.mu.Unlock()
	if !ok {
		return rl.config.RequestsPerWindow
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	rate := rl.capacity() / rl.config.WindowDuration.Seconds()
	tokens := math.Min(rl.capacity(), b.tokens+rl.now().Sub(b.lastUpdate).Seconds()*rate)
	return int(math.Floor(tokens))
}

// Len returns the number of tracked keys
func (rl *RateLimiter) Len() int {
	return rl.buckets.Len()
}

// RateLimitMiddleware applies per-policy budgets keyed by client IP
type RateLimitMiddleware struct {
	limiters          map[Policy]Limiter
	metrics           *observability.Metrics
	trustProxyHeaders bool
}

// NewRateLimitMiddleware creates the middleware from one limiter per policy
func NewRateLimitMiddleware(limiters map[Policy]Limiter, metrics *observability.Metrics, trustProxyHeaders bool) *RateLimitMiddleware {
	return &RateLimitMiddleware{
		limiters:          limiters,
		metrics:           metrics,
		trustProxyHeaders: trustProxyHeaders,
	}
}

// NewInMemoryRateLimitMiddleware wires in-memory limiters for both policies
func NewInMemoryRateLimitMiddleware(general, authCfg *RateLimitConfig, metrics *observability.Metrics, trustProxyHeaders bool) *RateLimitMiddleware {
	return NewRateLimitMiddleware(map[Policy]Limiter{
		PolicyGeneral: NewRateLimiter(general),
		PolicyAuth:    NewRateLimiter(authCfg),
	}, metrics, trustProxyHeaders)
}

// Consume takes one unit of the policy's budget for key. It returns a
// RateLimited error when the bucket is empty. Backend failures fail open.
func (m *RateLimitMiddleware) Consume(ctx context.Context, key string, policy Policy) error {
	_, err := m.take(ctx, key, policy)
	return err
}

func (m *RateLimitMiddleware) take(ctx context.Context, key string, policy Policy) (Decision, error) {
	limiter, ok := m.limiters[policy]
	if !ok {
		return Decision{}, apperrors.Internal("internal server error", fmt.Errorf("no limiter configured for policy %q", policy))
	}

	decision, err := limiter.Take(ctx, string(policy)+":"+key)
	if err != nil {
		observability.FromContext(ctx).WithError(err).
			WithField("policy", string(policy)).
			Warn("rate limiter backend unavailable, allowing request")
		m.metrics.RecordRateLimitBackendError(string(policy))
		return Decision{Allowed: true}, nil
	}

	if !decision.Allowed {
		m.metrics.RecordRateLimitRejection(string(policy))
		return decision, apperrors.RateLimited(rejectionMessage(policy))
	}
	return decision, nil
}

func rejectionMessage(policy Policy) string {
	if policy == PolicyAuth {
		return "too many authentication attempts, please try again later"
	}
	return "too many requests, please try again later"
}

// Handler returns middleware enforcing the given policy
func (m *RateLimitMiddleware) Handler(policy Policy) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			decision, err := m.take(r.Context(), ClientIP(r, m.trustProxyHeaders), policy)
			if decision.Limit > 0 {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
				w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
			}
			if err != nil {
				if apperrors.IsKind(err, apperrors.KindRateLimited) {
					retry := int(math.Ceil(decision.ResetAfter.Seconds()))
					if retry < 1 {
						retry = 1
					}
					w.Header().Set("Retry-After", strconv.Itoa(retry))
				}
				httputil.WriteAPIError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the rate limit key for a request: the socket peer, or
// the last X-Forwarded-For hop when proxy headers are trusted. The last hop
// is the one appended by the fronting proxy; earlier hops are client-supplied.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			if hop := strings.TrimSpace(hops[i]); hop != "" {
				return hop
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
