package camera

import (
	"sync"
	"time"
)

// Backoff computes exponential reconnect delays. Each failed attempt
// doubles the delay until MaxDelay is reached: 5s, 10s, 20s, 40s, 40s...
// for the defaults. Reset is called after a successful open.
type Backoff struct {
	Delay    time.Duration
	MaxDelay time.Duration

	mu      sync.Mutex
	attempt int
}

// Next advances the attempt counter and returns the delay to wait before
// the next connection attempt.
func (b *Backoff) Next() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.attempt++
	if b.attempt > 30 {
		// shifting further would overflow
		return b.MaxDelay
	}
	delay := b.Delay * time.Duration(1<<uint(b.attempt-1))
	if delay > b.MaxDelay || delay <= 0 {
		delay = b.MaxDelay
	}
	return delay
}

// Reset clears the attempt counter after a successful open.
func (b *Backoff) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.attempt = 0
}

// Attempt returns how many delays have been handed out since the last
// reset.
func (b *Backoff) Attempt() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.attempt
}
