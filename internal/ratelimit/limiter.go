package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	visitorTTL      = 5 * time.Minute
	cleanupInterval = 3 * time.Minute
)

// Limiter is a per-IP token bucket rate limiter. It tracks each caller by IP
// address and automatically drops entries not seen for a while, so the map
// does not grow without bound under webhook traffic.
type Limiter struct {
	visitors map[string]*visitor
	mu       sync.Mutex
	rps      rate.Limit
	burst    int
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiter creates a per-IP rate limiter allowing rps requests per second
// with the given burst size, and starts the background cleanup goroutine.
func NewLimiter(rps float64, burst int) *Limiter {
	l := &Limiter{
		visitors: make(map[string]*visitor),
		rps:      rate.Limit(rps),
		burst:    burst,
	}
	go l.cleanup()
	return l
}

// Allow reports whether a request from the given IP address should be
// permitted, creating a new token bucket for first-time callers.
func (l *Limiter) Allow(ip string) bool {
	l.mu.Lock()
	v, exists := l.visitors[ip]
	if !exists {
		v = &visitor{
			limiter: rate.NewLimiter(l.rps, l.burst),
		}
		l.visitors[ip] = v
	}
	v.lastSeen = time.Now()
	l.mu.Unlock()

	return v.limiter.Allow()
}

func (l *Limiter) cleanup() {
	for {
		time.Sleep(cleanupInterval)

		l.mu.Lock()
		for ip, v := range l.visitors {
			if time.Since(v.lastSeen) >= visitorTTL {
				delete(l.visitors, ip)
			}
		}
		l.mu.Unlock()
	}
}
