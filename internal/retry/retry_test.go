package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("connection refused")

func TestDo_SuccessOnRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		if calls < 3 {
			return errTransient
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_AllAttemptsExhausted(t *testing.T) {
	var calls int
	err := Do(context.Background(), 3, time.Millisecond, func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, errTransient) {
		t.Fatalf("expected last error, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestDo_PermanentErrorStopsRetry(t *testing.T) {
	var calls int
	authFailed := errors.New("password authentication failed")
	err := Do(context.Background(), 5, time.Millisecond, func(context.Context) error {
		calls++
		return Permanent(authFailed)
	})
	if err != authFailed {
		t.Fatalf("expected unwrapped error, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	var calls int
	_ = Do(context.Background(), 0, time.Millisecond, func(context.Context) error {
		calls++
		return errTransient
	})
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestPolicy_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{
		Attempts:  10,
		BaseDelay: time.Hour,
		OnRetry:   func(int, error, time.Duration) { cancel() },
	}

	var calls int
	err := p.Do(ctx, func(context.Context) error {
		calls++
		return errTransient
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestPolicy_BackoffDoublesAndCaps(t *testing.T) {
	var waits []time.Duration
	p := Policy{
		Attempts:  5,
		BaseDelay: 4 * time.Millisecond,
		MaxDelay:  10 * time.Millisecond,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			if attempt != len(waits)+1 {
				t.Errorf("attempt %d reported out of order", attempt)
			}
			waits = append(waits, wait)
		},
	}
	_ = p.Do(context.Background(), func(context.Context) error { return errTransient })

	// Nominal delays 4, 8, 10, 10 with +-25% jitter.
	nominal := []time.Duration{4, 8, 10, 10}
	if len(waits) != len(nominal) {
		t.Fatalf("expected %d waits, got %d", len(nominal), len(waits))
	}
	for i, n := range nominal {
		n *= time.Millisecond
		if waits[i] < n-n/4 || waits[i] > n+n/4 {
			t.Errorf("wait %d = %v, want within 25%% of %v", i, waits[i], n)
		}
	}
}

func TestPermanent_Unwrap(t *testing.T) {
	pe := Permanent(errTransient)
	if !errors.Is(pe, errTransient) {
		t.Fatal("Permanent error should unwrap to inner error")
	}
}
