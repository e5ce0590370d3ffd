package engine

import (
	"sync"
	"time"
)

// Cooldown rate-limits alert patches per correlation id so a sustained
// burst does not flood the outbound queue with one update per event.
// The initial RaiseAlert is never subject to it.
type Cooldown struct {
	mu   sync.Mutex
	last map[string]time.Time
}

func NewCooldown() *Cooldown {
	return &Cooldown{last: make(map[string]time.Time)}
}

func (c *Cooldown) Allow(correlationID string, now time.Time, cooldown time.Duration) bool {
	if cooldown <= 0 {
		return true
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if ts, ok := c.last[correlationID]; ok {
		if now.Sub(ts) < cooldown {
			return false
		}
	}
	c.last[correlationID] = now
	if len(c.last) > 10000 {
		for k, ts := range c.last {
			if now.Sub(ts) >= cooldown {
				delete(c.last, k)
			}
		}
	}
	return true
}
