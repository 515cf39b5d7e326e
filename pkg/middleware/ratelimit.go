package middleware

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/utafrali/checkout-saga/pkg/httputil"
)

// KeyFunc picks the bucket a request is charged to.
type KeyFunc func(r *http.Request) string

// visitor tracks a token bucket per key.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorStore holds per-key limiters. Entries idle for longer than ttl are
// swept on access, at most once per ttl.
type visitorStore struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	ttl       time.Duration
	lastSweep time.Time
	nowFunc   func() time.Time // injectable clock for testing
}

func newVisitorStore(rps float64, burst int, ttl time.Duration) *visitorStore {
	return &visitorStore{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		ttl:      ttl,
		nowFunc:  time.Now,
	}
}

// allow charges one token to key and reports whether it was available.
func (s *visitorStore) allow(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	if now.Sub(s.lastSweep) > s.ttl {
		for k, v := range s.visitors {
			if now.Sub(v.lastSeen) > s.ttl {
				delete(s.visitors, k)
			}
		}
		s.lastSweep = now
	}

	v, ok := s.visitors[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(s.limit, s.burst)}
		s.visitors[key] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (s *visitorStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.visitors)
}

// RateLimit returns middleware enforcing a token bucket of rps requests per
// second with the given burst for each key. Requests over the limit get 429.
// A non-positive rps disables limiting.
func RateLimit(rps float64, burst int, key KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return rateLimit(newVisitorStore(rps, burst, 3*time.Minute), key, logger)
}

func rateLimit(store *visitorStore, key KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)
			if !store.allow(k) {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("key", k),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Retry-After", "1")
				httputil.WriteJSON(w, http.StatusTooManyRequests, httputil.Response{
					Error: &httputil.ErrorResponse{Code: "RATE_LIMITED", Message: "too many requests"},
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
