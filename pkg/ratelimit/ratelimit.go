// Package ratelimit enforces the per-IP and per-user request limits.
// The in-process limiter (golang.org/x/time/rate over a visitor
// map) is sufficient for a single instance; the Redis-backed variant
// shares a counter across processes for deployments running more than
// one API instance behind a cache cluster.
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/jmalloway/checksub001/pkg/apierr"
)

// Limiter is satisfied by both the in-process and Redis-backed
// implementations.
type Limiter interface {
	// Allow reports whether key may proceed now, and if not, how long the
	// caller should wait before retrying.
	Allow(ctx context.Context, key string) (ok bool, retryAfter time.Duration, err error)
}

// visitorLimiter is an in-process per-key token bucket limiter: a map of
// keys to *rate.Limiter with a background sweep for idle entries.
type visitorLimiter struct {
	mu       sync.Mutex
	visitors map[string]*visitorEntry
	rps      rate.Limit
	burst    int
}

type visitorEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewInProcess builds a Limiter with the given sustained rate (per minute)
// and burst, backed by an in-memory visitor map. Idle entries are swept
// every minute.
func NewInProcess(perMinute, burst int) Limiter {
	vl := &visitorLimiter{
		visitors: make(map[string]*visitorEntry),
		rps:      rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
	go vl.sweep()
	return vl
}

func (vl *visitorLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	vl.mu.Lock()
	defer vl.mu.Unlock()

	v, ok := vl.visitors[key]
	if !ok {
		v = &visitorEntry{limiter: rate.NewLimiter(vl.rps, vl.burst)}
		vl.visitors[key] = v
	}
	v.lastSeen = time.Now()

	reservation := v.limiter.Reserve()
	if !reservation.OK() {
		return false, time.Second, nil
	}
	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		return false, delay, nil
	}
	return true, 0, nil
}

func (vl *visitorLimiter) sweep() {
	for {
		time.Sleep(time.Minute)
		vl.mu.Lock()
		for k, v := range vl.visitors {
			if time.Since(v.lastSeen) > 3*time.Minute {
				delete(vl.visitors, k)
			}
		}
		vl.mu.Unlock()
	}
}

// redisLimiter is a fixed-window counter shared across processes: INCR a
// per-key-per-window counter with an expiring TTL, compare against the
// configured limit.
type redisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
	prefix string
}

// NewRedisBacked builds a Limiter using Redis INCR+EXPIRE fixed windows,
// for deployments running more than one API process behind a shared cache
// cluster.
func NewRedisBacked(client *redis.Client, limit int, window time.Duration, prefix string) Limiter {
	return &redisLimiter{client: client, limit: limit, window: window, prefix: prefix}
}

func (rl *redisLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	windowKey := fmt.Sprintf("%s:%s:%d", rl.prefix, key, time.Now().Unix()/int64(rl.window.Seconds()))
	count, err := rl.client.Incr(ctx, windowKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: redis incr: %w", err)
	}
	if count == 1 {
		rl.client.Expire(ctx, windowKey, rl.window)
	}
	if count > int64(rl.limit) {
		ttl, _ := rl.client.TTL(ctx, windowKey).Result()
		if ttl < 0 {
			ttl = rl.window
		}
		return false, ttl, nil
	}
	return true, 0, nil
}

// Middleware enforces limiter against keyFunc(r), writing 429 with
// Retry-After on rejection.
func Middleware(limiter Limiter, keyFunc func(*http.Request) string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, retryAfter, err := limiter.Allow(r.Context(), keyFunc(r))
			if err != nil {
				// Fail open: a rate-limiter outage must not take down the
				// whole API.
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				seconds := int(retryAfter.Seconds())
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", fmt.Sprintf("%d", seconds))
				apierr.Write(w, r, apierr.New(apierr.CodeRateLimited, "Rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
