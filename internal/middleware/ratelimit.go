package middleware

import (
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ClientLimiter keeps one token bucket per client key.
type ClientLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int

	cleanupTick *time.Ticker
	stopCleanup chan struct{}
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter creates a per-client limiter allowing rps requests per
// second with the given burst.
func NewClientLimiter(rps, burst int) *ClientLimiter {
	cl := &ClientLimiter{
		clients:     make(map[string]*client),
		limit:       rate.Limit(rps),
		burst:       burst,
		cleanupTick: time.NewTicker(5 * time.Minute),
		stopCleanup: make(chan struct{}),
	}

	// Drop idle entries so the map doesn't grow without bound
	go cl.cleanup()

	return cl
}

func (cl *ClientLimiter) cleanup() {
	for {
		select {
		case <-cl.cleanupTick.C:
			cl.mu.Lock()
			now := time.Now()
			for key, c := range cl.clients {
				if now.Sub(c.lastSeen) > time.Hour {
					delete(cl.clients, key)
				}
			}
			cl.mu.Unlock()
		case <-cl.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup goroutine.
func (cl *ClientLimiter) Stop() {
	cl.cleanupTick.Stop()
	close(cl.stopCleanup)
}

// Allow reports whether a request from the given key may proceed.
func (cl *ClientLimiter) Allow(key string) bool {
	cl.mu.Lock()
	c, ok := cl.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(cl.limit, cl.burst)}
		cl.clients[key] = c
	}
	c.lastSeen = time.Now()
	cl.mu.Unlock()

	return c.limiter.Allow()
}

// GetClientKey extracts a client identifier from the request.
// Uses IP address as the key.
func GetClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}
	return r.RemoteAddr
}

// RateLimit creates a middleware that rate limits requests per client.
func RateLimit(limiter *ClientLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(GetClientKey(r)) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error": "rate limit exceeded"}`))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
