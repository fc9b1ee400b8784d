package importer

import (
	"errors"
	"sync"
	"time"
)

// ErrServiceUnavailable is returned while the breaker is open.
var ErrServiceUnavailable = errors.New("import service unavailable")

type breakerState string

const (
	breakerClosed   breakerState = "closed"
	breakerOpen     breakerState = "open"
	breakerHalfOpen breakerState = "half-open"
)

// breaker stops calling the parsing service after repeated failures. After
// the cooldown one probe request is let through; its outcome closes or
// reopens the breaker.
type breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	state    breakerState
	failures int
	openedAt time.Time
	probing  bool
}

func newBreaker(threshold int, cooldown time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		state:     breakerClosed,
	}
}

// allow reports whether a request may be sent.
func (b *breaker) allow() error {
	if b == nil || b.threshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return ErrServiceUnavailable
		}
		b.state = breakerHalfOpen
		b.probing = true
		return nil
	case breakerHalfOpen:
		if b.probing {
			return ErrServiceUnavailable
		}
		b.probing = true
	}
	return nil
}

func (b *breaker) success() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
	b.probing = false
}

func (b *breaker) failure() {
	if b == nil || b.threshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if b.state == breakerHalfOpen {
		b.trip()
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.trip()
	}
}

// release ends a probe whose outcome says nothing about service health.
func (b *breaker) release() {
	if b == nil {
		return
	}
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *breaker) trip() {
	b.state = breakerOpen
	b.openedAt = b.now()
	b.failures = 0
}

func (b *breaker) current() breakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
