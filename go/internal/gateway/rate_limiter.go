package gateway

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// rateLimiter is a token bucket refilled continuously at capacity/interval.
type rateLimiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	tokens    float64
	capacity  float64
	rate      float64
	lastCheck time.Time
}

func newRateLimiter(clock clockwork.Clock, capacity int, interval time.Duration) *rateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		clock:     clock,
		tokens:    float64(capacity),
		capacity:  float64(capacity),
		rate:      float64(capacity) / interval.Seconds(),
		lastCheck: clock.Now(),
	}
}

func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	if elapsed := now.Sub(rl.lastCheck).Seconds(); elapsed > 0 {
		rl.tokens += elapsed * rl.rate
		if rl.tokens > rl.capacity {
			rl.tokens = rl.capacity
		}
	}
	rl.lastCheck = now

	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}
