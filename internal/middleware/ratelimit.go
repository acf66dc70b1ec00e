package middleware

import (
	"encoding/json"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Credential endpoint limits, per client IP. Each endpoint gets its own
// limiter so failed logins never eat into the registration budget.
//
//	register → 3 per hour
//	login    → 5 per minute
var (
	RegisterRate = rate.Every(time.Hour / 3)
	LoginRate    = rate.Every(time.Minute / 5)
)

const (
	RegisterBurst = 3
	LoginBurst    = 5

	// visitorIdleTTL is the floor; slow limiters keep visitors until their
	// bucket would have refilled anyway.
	visitorIdleTTL  = 3 * time.Minute
	cleanupInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP.
//
// A background goroutine drops visitors once their bucket has had time to
// refill (never sooner than a few minutes) so the map doesn't grow without
// bound. Call Stop on shutdown.
type RateLimiter struct {
	limit      rate.Limit
	burst      int
	idleTTL    time.Duration
	retryAfter string
	logger     *slog.Logger

	mu       sync.Mutex
	visitors map[string]*visitor

	stop     chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewRateLimiter starts a limiter allowing limit requests per second per IP
// with the given burst.
func NewRateLimiter(limit rate.Limit, burst int, logger *slog.Logger) *RateLimiter {
	rl := &RateLimiter{
		limit:      limit,
		burst:      burst,
		idleTTL:    visitorIdleTTL,
		retryAfter: "1",
		logger:     logger,
		visitors:   make(map[string]*visitor),
		stop:       make(chan struct{}),
		now:        time.Now,
	}
	if limit > 0 && limit != rate.Inf {
		interval := time.Duration(math.Round(float64(time.Second) / float64(limit)))
		rl.retryAfter = strconv.Itoa(int(math.Ceil(interval.Seconds())))
		if refill := interval * time.Duration(burst); refill > rl.idleTTL {
			rl.idleTTL = refill
		}
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the cleanup goroutine. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	v, ok := rl.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.visitors[ip] = v
	}
	v.lastSeen = rl.now()
	return v.limiter
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for ip, v := range rl.visitors {
		if rl.now().Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.visitors, ip)
		}
	}
}

func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.visitors)
}

// Limit rejects requests over the rate with 429 and a JSON error body.
//
// The client key is r.RemoteAddr without the port. Behind a proxy, chi's
// RealIP middleware must run first so RemoteAddr holds the real client.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !rl.limiterFor(ip).Allow() {
			rl.logger.Warn("rate limit exceeded", slog.String("ip", ip), slog.String("path", r.URL.Path))
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", rl.retryAfter)
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{
				"error":   "rate_limited",
				"message": "too many requests, try again shortly",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
