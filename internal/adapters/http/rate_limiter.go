package http

import (
	"sync"
	"time"
)

// RoomRateLimiter caps room creation per client token within a sliding interval.
type RoomRateLimiter struct {
	mu       sync.Mutex
	history  map[string][]time.Time
	limit    int
	interval time.Duration
	now      func() time.Time
}

func NewRoomRateLimiter(limit int, interval time.Duration) *RoomRateLimiter {
	return &RoomRateLimiter{
		history:  make(map[string][]time.Time),
		limit:    limit,
		interval: interval,
		now:      time.Now,
	}
}

func (rl *RoomRateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-rl.interval)

	attempts := rl.history[key]
	fresh := attempts[:0]
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}
	if len(fresh) >= rl.limit {
		rl.history[key] = fresh
		return false
	}
	rl.history[key] = append(fresh, now)
	return true
}

// Sweep forgets keys without recent attempts.
func (rl *RoomRateLimiter) Sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	windowStart := rl.now().Add(-rl.interval)
	for key, attempts := range rl.history {
		if len(attempts) == 0 || !attempts[len(attempts)-1].After(windowStart) {
			delete(rl.history, key)
		}
	}
}
