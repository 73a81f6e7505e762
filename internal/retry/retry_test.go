package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts: attempts,
		BaseBackoff: time.Millisecond,
		MaxBackoff:  5 * time.Millisecond,
	}
}

func TestDoSucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errBoom
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoExhaustsBudget(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(3), func(ctx context.Context) error {
		calls++
		return errBoom
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("got %v, want errBoom", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDoPermanentErrorShortCircuits(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastPolicy(5), func(ctx context.Context) error {
		calls++
		return Permanent(errBoom)
	})
	if !errors.Is(err, errBoom) {
		t.Fatalf("got %v, want errBoom", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, fastPolicy(5), func(ctx context.Context) error {
		calls++
		cancel()
		return errBoom
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDoAttemptTimeout(t *testing.T) {
	policy := fastPolicy(1)
	policy.Timeout = 10 * time.Millisecond

	err := Do(context.Background(), policy, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

func TestBreakerOpensAndRecovers(t *testing.T) {
	b := NewBreaker(2, 20*time.Millisecond)
	policy := fastPolicy(1)

	fail := func(ctx context.Context) error { return errBoom }
	ok := func(ctx context.Context) error { return nil }

	// Two consecutive failures trip the breaker.
	for i := 0; i < 2; i++ {
		if err := b.Do(context.Background(), policy, fail); !errors.Is(err, errBoom) {
			t.Fatalf("attempt %d: got %v", i, err)
		}
	}

	if err := b.Do(context.Background(), policy, ok); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected open breaker, got %v", err)
	}

	// After the cooldown a probe goes through and success closes it.
	time.Sleep(25 * time.Millisecond)
	if err := b.Do(context.Background(), policy, ok); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if err := b.Do(context.Background(), policy, ok); err != nil {
		t.Fatalf("breaker should be closed: %v", err)
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b := NewBreaker(1, 20*time.Millisecond)
	policy := fastPolicy(1)
	fail := func(ctx context.Context) error { return errBoom }

	if err := b.Do(context.Background(), policy, fail); !errors.Is(err, errBoom) {
		t.Fatalf("got %v", err)
	}
	time.Sleep(25 * time.Millisecond)
	if err := b.Do(context.Background(), policy, fail); !errors.Is(err, errBoom) {
		t.Fatalf("probe: got %v", err)
	}
	if err := b.Do(context.Background(), policy, fail); !errors.Is(err, ErrBreakerOpen) {
		t.Fatalf("expected reopened breaker, got %v", err)
	}
}
