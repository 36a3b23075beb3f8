package httpmiddleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var rateLimited = promauto.NewCounter(prometheus.CounterOpts{
	Name: "http_rate_limited_total",
	Help: "Requests rejected by the per-client rate limiter.",
})

// RateLimiter is an in-memory per-client token bucket. Good enough for
// a single API instance; a multi-instance deployment would move the
// buckets to redis.
type RateLimiter struct {
	capacity  int
	perMinute int

	mu      sync.Mutex
	buckets map[string]*clientBucket
}

type clientBucket struct {
	tokens   float64
	refilled time.Time
}

// NewRateLimiter allows perMinute requests per client with bursts up to
// the same size.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute <= 0 {
		perMinute = 60
	}
	return &RateLimiter{
		capacity:  perMinute,
		perMinute: perMinute,
		buckets:   make(map[string]*clientBucket),
	}
}

// Middleware enforces the limit keyed by client IP.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if key == "" {
			key = "unknown"
		}
		if !l.allow(key, time.Now()) {
			rateLimited.Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (l *RateLimiter) allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		l.buckets[key] = &clientBucket{tokens: float64(l.capacity) - 1, refilled: now}
		return true
	}
	b.tokens += now.Sub(b.refilled).Minutes() * float64(l.perMinute)
	if b.tokens > float64(l.capacity) {
		b.tokens = float64(l.capacity)
	}
	b.refilled = now
	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
