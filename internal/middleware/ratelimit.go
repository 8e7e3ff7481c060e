package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/freeeve/conquest/api/internal/metrics"
)

const (
	// idleLimiterTTL is how long an unused client limiter is kept.
	idleLimiterTTL = 10 * time.Minute
	// sweepInterval bounds how often idle limiters are looked for.
	sweepInterval = time.Minute
)

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter hands out one token bucket per client address.
type RateLimiter struct {
	name    string
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	now     func() time.Time

	lastSweep    time.Time
	trustProxies bool
}

// NewRateLimiter creates a limiter allowing perSecond requests with the given
// burst per client. name labels the rejection metric.
func NewRateLimiter(name string, perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		name:    name,
		clients: make(map[string]*clientLimiter),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
	}
}

// TrustProxy makes the middleware key clients by the address the nearest
// proxy appended to X-Forwarded-For instead of the connection's peer address.
func (rl *RateLimiter) TrustProxy(trust bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.trustProxies = trust
}

// Allow reports whether the client may make another request now.
func (rl *RateLimiter) Allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[client]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[client] = c
	}
	c.lastSeen = now

	if now.Sub(rl.lastSweep) >= sweepInterval {
		rl.lastSweep = now
		for id, other := range rl.clients {
			if now.Sub(other.lastSeen) > idleLimiterTTL {
				delete(rl.clients, id)
			}
		}
	}
	return c.limiter.AllowN(now, 1)
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rl.mu.Lock()
		trust := rl.trustProxies
		rl.mu.Unlock()
		if !rl.Allow(clientAddr(r, trust)) {
			metrics.RateLimited.WithLabelValues(rl.name).Inc()
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientAddr(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			hops := strings.Split(fwd, ",")
			if last := strings.TrimSpace(hops[len(hops)-1]); last != "" {
				return last
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
