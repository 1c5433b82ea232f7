// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements an in-memory token-bucket limiter keyed per farmer
// (or client IP when the request carries no farmer). Every sync request fans
// out into many calls against the remote platform, so the limiter sits in
// front of every route except /metrics.
//
// Features:
//   - Per-key token buckets using golang.org/x/time/rate
//   - Farmer id from path, query or X-Farmer-ID header, client IP otherwise
//   - Idle buckets are evicted during lookups to bound memory
//   - 429 responses carry Retry-After and the request id
//
// Notes:
//   - The limiter is process-local. Several replicas each enforce their own
//     budget, so the effective limit scales with the replica count.
//   - Outbound calls to the platform have their own limiter in the jdoc
//     client; this one only protects the inbound surface.
//   - It is cost control, not authorization. A caller can pick any farmer
//     id, so the IP fallback only applies to anonymous requests.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// keyFunc selects the identity used to key a rate-limit bucket.
//
// The key must be stable for the duration of a request, e.g.
// "farmer:<id>" or "ip:<addr>".
type keyFunc func(*gin.Context) string

// KeyByFarmerOrIP keys buckets by farmer id and falls back to the client IP.
//
// Prefixes keep the two namespaces apart, so a farmer id that happens to
// look like an address ("farmer:203.0.113.7") never shares a bucket with
// that address ("ip:203.0.113.7").
func KeyByFarmerOrIP() keyFunc {
	return func(c *gin.Context) string {
		if id := FarmerID(c); id != "" {
			return "farmer:" + id
		}
		return "ip:" + c.ClientIP()
	}
}

// visitor is one bucket plus the last time it was used.
type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one token bucket per key.
//
// Buckets are created on demand in a mutex-guarded map. Every sweepMax
// lookups, buckets idle for longer than ttl are dropped; a farmer that comes
// back afterwards starts with a full bucket again.
//
// Safe for concurrent use.
type RateLimiter struct {
	rps      rate.Limit
	burst    int
	keyFn    keyFunc
	mu       sync.Mutex
	visitors map[string]*visitor

	ttl      time.Duration
	sweepN   uint64
	sweepMax uint64
	now      func() time.Time
}

// NewRateLimiter builds a limiter keyed by keyFn.
//
//   - rps:   tokens replenished per second; 0 rejects everything after the burst.
//   - burst: bucket size; values <= 0 are coerced to 1.
//   - keyFn: maps a request to its bucket, usually KeyByFarmerOrIP().
//
// Install it with Handler().
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		visitors: make(map[string]*visitor),
		ttl:      10 * time.Minute,
		sweepMax: 5000,
		now:      time.Now,
	}
}

// limiterFor returns the bucket for key, creating it when absent. Eviction
// runs before the lookup so a stale bucket is replaced, not refreshed.
func (rl *RateLimiter) limiterFor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.sweepN++
	if rl.sweepN >= rl.sweepMax {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.sweepN = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// Handler returns the Gin middleware enforcing the per-key budget.
//
// Allowed requests continue down the chain. Others are aborted with:
//
//	HTTP/1.1 429 Too Many Requests
//	Retry-After: 1
//	{
//	  "request_id": "<id>",
//	  "code":       "rate_limited",
//	  "message":    "rate limit exceeded"
//	}
//
// The request id is read from the response header, so RequestID must run
// earlier in the chain for it to be filled.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limiterFor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
