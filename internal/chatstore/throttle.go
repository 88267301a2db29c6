package chatstore

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultReadCooldown is the minimum spacing of mark-as-read signals per room.
const DefaultReadCooldown = 3 * time.Second

// ReadThrottle spaces out mark-as-read signals per room. It is purely local.
type ReadThrottle struct {
	cooldown time.Duration
	now      func() time.Time

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewReadThrottle builds a throttle with the given cooldown.
func NewReadThrottle(cooldown time.Duration) *ReadThrottle {
	if cooldown <= 0 {
		cooldown = DefaultReadCooldown
	}
	return &ReadThrottle{
		cooldown: cooldown,
		now:      time.Now,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a signal for roomID may be sent now, and if so
// records it as sent.
func (t *ReadThrottle) Allow(roomID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	limiter, ok := t.limiters[roomID]
	if !ok {
		limiter = rate.NewLimiter(rate.Every(t.cooldown), 1)
		t.limiters[roomID] = limiter
	}
	return limiter.AllowN(t.now(), 1)
}
