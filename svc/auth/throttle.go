package auth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// throttle keeps one token bucket per key. Buckets idle for longer than ttl
// are dropped on the next sweep.
type throttle struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	buckets map[string]*bucket
	swept   time.Time
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newThrottle(every time.Duration, burst int) *throttle {
	return &throttle{
		limit:   rate.Every(every),
		burst:   burst,
		ttl:     every * time.Duration(max(burst, 1)),
		buckets: make(map[string]*bucket),
	}
}

// allow consumes one attempt for key.
func (t *throttle) allow(key string, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if now.Sub(t.swept) > t.ttl {
		for k, b := range t.buckets {
			if now.Sub(b.lastSeen) > t.ttl {
				delete(t.buckets, k)
			}
		}
		t.swept = now
	}

	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.buckets[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// reset forgets key, used after a successful sign-in.
func (t *throttle) reset(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.buckets, key)
}
