package api

import (
	"net/http"
	"strconv"
	"sync"
	"time"
)

type rateLimitWindow struct {
	mu       sync.Mutex
	requests []time.Time
}

// take records a request if fewer than limit were seen within window. When
// the window is full it returns how long until the oldest entry expires.
func (w *rateLimitWindow) take(limit int, window time.Duration) (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-window)
	// Remove expired entries
	i := 0
	for i < len(w.requests) && !w.requests[i].After(cutoff) {
		i++
	}
	w.requests = w.requests[i:]

	if len(w.requests) >= limit {
		return false, w.requests[0].Sub(cutoff)
	}
	w.requests = append(w.requests, now)
	return true, 0
}

// RateLimit caps the routes it wraps at perMinute requests across all
// callers. Zero or less disables the limit.
func RateLimit(perMinute int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if perMinute <= 0 {
			return next
		}
		window := &rateLimitWindow{}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, wait := window.take(perMinute, time.Minute)
			if !ok {
				secs := int(wait.Round(time.Second) / time.Second)
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
