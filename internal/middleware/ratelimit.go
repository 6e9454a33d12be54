package middleware

import (
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"goalbreaker/internal/httputil"
	"goalbreaker/internal/metrics"
)

// idleLimiterTTL is how long an unused per-caller limiter is kept
const idleLimiterTTL = 10 * time.Minute

// RateLimiter hands out one token bucket per caller
type RateLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu       sync.Mutex
	limiters map[string]*callerLimiter
	lastGC   time.Time
}

type callerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perSecond requests per caller with the given burst.
// A non-positive rate disables limiting.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:    rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
		limiters: make(map[string]*callerLimiter),
	}
}

// Allow reports whether key may make another request now
func (l *RateLimiter) Allow(key string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.gcLocked(now)

	c, ok := l.limiters[key]
	if !ok {
		c = &callerLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.limiters[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// gcLocked drops limiters that have been idle for a while
func (l *RateLimiter) gcLocked(now time.Time) {
	if now.Sub(l.lastGC) < idleLimiterTTL {
		return
	}
	l.lastGC = now
	for key, c := range l.limiters {
		if now.Sub(c.lastSeen) > idleLimiterTTL {
			delete(l.limiters, key)
		}
	}
}

// Limit wraps a handler; callers are keyed by user ID, or by remote IP when anonymous
func (l *RateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !l.Allow(callerKey(r)) {
			metrics.RecordRateLimited()
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(l.limit)))
			httputil.RespondError(w, http.StatusTooManyRequests, "too many requests, slow down")
			return
		}
		next(w, r)
	}
}

func retryAfterSeconds(limit rate.Limit) int {
	secs := int(1 / float64(limit))
	if secs < 1 {
		return 1
	}
	return secs
}

func callerKey(r *http.Request) string {
	if userID := httputil.GetUserID(r); userID != "" {
		return "user:" + userID
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}
