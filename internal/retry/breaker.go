package retry

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen is returned without touching the backend while the breaker
// is open.
var ErrBreakerOpen = errors.New("retry: circuit breaker open")

// Breaker trips after a run of consecutive failures and lets a single probe
// through once the cooldown has elapsed. One breaker guards one backend; the
// per-session VAD fail-open policy sits above it.
type Breaker struct {
	mu        sync.Mutex
	threshold int
	cooldown  time.Duration
	failures  int
	openedAt  time.Time
	probing   bool
}

// NewBreaker creates a breaker that opens after threshold consecutive
// failures and stays open for cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold < 1 {
		threshold = 1
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: threshold, cooldown: cooldown}
}

// Do executes fn under the breaker, composing with the retry budget: the
// whole retried call counts as one breaker observation.
func (b *Breaker) Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}
	err := Do(ctx, policy, fn)
	b.observe(err)
	return err
}

func (b *Breaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.failures < b.threshold {
		return nil
	}
	if time.Since(b.openedAt) < b.cooldown {
		return ErrBreakerOpen
	}
	// Half-open: admit one probe, everyone else keeps failing fast.
	if b.probing {
		return ErrBreakerOpen
	}
	b.probing = true
	return nil
}

func (b *Breaker) observe(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.probing = false
	if err == nil || errors.Is(err, context.Canceled) {
		// Cancellation says nothing about backend health.
		if err == nil {
			b.failures = 0
		}
		return
	}
	b.failures++
	if b.failures == b.threshold {
		b.openedAt = time.Now()
	}
	if b.failures > b.threshold {
		// Failed probe: restart the cooldown.
		b.openedAt = time.Now()
	}
}
