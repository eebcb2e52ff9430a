package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"postmedia/internal/telemetry"

	"golang.org/x/time/rate"
)

const (
	limiterCleanupEvery = time.Minute
	limiterIdleAfter    = 3 * time.Minute
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter keeps one token bucket per client address.
type IPRateLimiter struct {
	mu       sync.Mutex
	clients  map[string]*client
	rate     rate.Limit
	burst    int
	clientIP clientIPResolver
	metrics  *telemetry.Metrics
}

func NewIPRateLimiter(ctx context.Context, rps, burst int, trustedProxy bool, metrics *telemetry.Metrics) *IPRateLimiter {
	l := &IPRateLimiter{
		clients:  make(map[string]*client),
		rate:     rate.Limit(rps),
		burst:    burst,
		clientIP: newClientIPResolver(trustedProxy),
		metrics:  metrics,
	}

	go l.backgroundCleanup(ctx)
	return l
}

func (l *IPRateLimiter) backgroundCleanup(ctx context.Context) {
	ticker := time.NewTicker(limiterCleanupEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.evictIdle(now)
		}
	}
}

func (l *IPRateLimiter) evictIdle(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for ip, c := range l.clients {
		if now.Sub(c.lastSeen) > limiterIdleAfter {
			delete(l.clients, ip)
		}
	}
}

func (l *IPRateLimiter) limiterFor(ip string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[ip] = c
	}
	c.lastSeen = now
	return c.limiter
}

func (l *IPRateLimiter) Middleware(logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := l.clientIP(r)
			if ip == "" {
				http.Error(w, "invalid ip address", http.StatusBadRequest)
				return
			}

			now := time.Now()
			limiter := l.limiterFor(ip, now)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.burst))

			if !limiter.AllowN(now, 1) {
				// peek at the next token without consuming it
				reservation := limiter.ReserveN(now, 1)
				retryAfter := max(1, int(reservation.DelayFrom(now).Seconds()))
				reservation.CancelAt(now)

				l.metrics.RateLimitHitsTotal.Add(r.Context(), 1)
				logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)

				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("X-RateLimit-Remaining", "0")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.TokensAt(now))))
			next.ServeHTTP(w, r)
		})
	}
}
