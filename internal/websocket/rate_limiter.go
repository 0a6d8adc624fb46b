package websocket

import (
	"sync"
	"time"
)

// Per-account send budget per minute window.
const messagesPerMinute = 60

// RateLimiter enforces a per-account message budget with a minute-based
// window reset.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientLimit
}

type clientLimit struct {
	messageCount int
	windowStart  time.Time
}

// NewRateLimiter creates an empty rate limiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		clients: make(map[string]*clientLimit),
	}
}

// Allow reports whether the account may send another message right now and
// counts the attempt when allowed.
func (rl *RateLimiter) Allow(accountID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()

	limit, exists := rl.clients[accountID]
	if !exists {
		rl.clients[accountID] = &clientLimit{messageCount: 1, windowStart: now}
		return true
	}

	if now.Sub(limit.windowStart) >= time.Minute {
		limit.messageCount = 1
		limit.windowStart = now
		return true
	}

	if limit.messageCount >= messagesPerMinute {
		return false
	}
	limit.messageCount++
	return true
}

// Cleanup removes accounts idle for longer than five windows. Call
// periodically to keep the map bounded.
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for accountID, limit := range rl.clients {
		if now.Sub(limit.windowStart) > 5*time.Minute {
			delete(rl.clients, accountID)
		}
	}
}
