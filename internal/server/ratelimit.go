package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/agentrag-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained per-client rate on upload and
	// execute endpoints, in requests per second.
	defaultRateLimit = 10
	// defaultRateBurst is the per-client burst on the same endpoints.
	defaultRateBurst = 20
	// limiterIdle is how long a client bucket survives without traffic.
	limiterIdle = 5 * time.Minute
)

// bucket is a client's token bucket plus its last activity.
type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter enforces a per-client token bucket on expensive endpoints.
// Execution and upload both hold a worker or model slot for seconds, so a
// single client must not be able to monopolise them.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	rps     rate.Limit
	burst   int
	log     *slog.Logger
	now     func() time.Time
}

// newRateLimiter builds a limiter and starts its eviction loop. The returned
// function stops the loop and is safe to call more than once.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*bucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
		now:     time.Now,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	var once sync.Once
	return rl, func() { once.Do(func() { close(stopCh) }) }
}

// allow consumes a token from the client's bucket.
func (rl *rateLimiter) allow(client string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[client]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[client] = b
	}
	b.lastSeen = rl.now()
	return b.limiter.Allow()
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if n := rl.evict(); n > 0 {
				rl.log.Debug("rate limiter evicted idle clients", slog.Int("count", n))
			}
		}
	}
}

// evict drops buckets idle for longer than limiterIdle and returns how many
// were removed.
func (rl *rateLimiter) evict() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterIdle)
	removed := 0
	for client, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, client)
			removed++
		}
	}
	return removed
}

// middleware rejects over-limit requests with 429 and a Retry-After header.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := clientIP(r)
		if !rl.allow(client) {
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("client", client),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", "1")
			writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Detail: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the remote host without its port. X-Forwarded-For is
// ignored; deployments behind a proxy should rate limit at the proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
