package http

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	DefaultPasswordAttempts = 5
	DefaultAttemptWindow    = 15 * time.Minute
	DefaultAttemptCacheSize = 10000
)

// AttemptLimiter counts wrong passwords per key and blocks the key once the
// budget is spent. Password checks in flight count against the budget
// until they are released, so parallel guesses cannot overrun it.
// Counters expire one window after the last change; the least recently
// touched keys are evicted when the cache is full.
//
// A nil *AttemptLimiter allows everything.
type AttemptLimiter struct {
	maxAttempts int
	attempts    *expirable.LRU[string, attemptCount]

	mu sync.Mutex
}

type attemptCount struct {
	failures int
	pending  int
}

func (c attemptCount) used() int { return c.failures + c.pending }

func NewAttemptLimiter(maxAttempts, cacheSize int, window time.Duration) *AttemptLimiter {
	if maxAttempts <= 0 {
		maxAttempts = DefaultPasswordAttempts
	}
	if cacheSize <= 0 {
		cacheSize = DefaultAttemptCacheSize
	}
	if window <= 0 {
		window = DefaultAttemptWindow
	}
	return &AttemptLimiter{
		maxAttempts: maxAttempts,
		attempts:    expirable.NewLRU[string, attemptCount](cacheSize, nil, window),
	}
}

// Allow reports whether key has budget left, without reserving any.
func (l *AttemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	c, _ := l.attempts.Peek(key)
	return c.used() < l.maxAttempts
}

// Reserve takes one attempt from the budget of key. Every successful
// Reserve must be followed by exactly one Release.
func (l *AttemptLimiter) Reserve(key string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	c, _ := l.attempts.Peek(key)
	if c.used() >= l.maxAttempts {
		return false
	}
	c.pending++
	l.attempts.Add(key, c)
	return true
}

// Release settles an attempt taken by Reserve. A failed attempt stays
// charged as a failure; any other outcome refunds it.
func (l *AttemptLimiter) Release(key string, failed bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	c, _ := l.attempts.Peek(key)
	if c.pending > 0 {
		c.pending--
	}
	if failed {
		c.failures++
	}
	l.store(key, c)
}

// Reset forgets the failures recorded for key. Attempts still in flight
// keep their reservation.
func (l *AttemptLimiter) Reset(key string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	c, _ := l.attempts.Peek(key)
	c.failures = 0
	l.store(key, c)
}

func (l *AttemptLimiter) store(key string, c attemptCount) {
	if c.used() == 0 {
		l.attempts.Remove(key)
		return
	}
	l.attempts.Add(key, c)
}
