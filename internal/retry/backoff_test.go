package retry

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestBackoff_SuccessAfterRetries(t *testing.T) {
	b := &Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   1.5,
		MaxAttempts:  10,
	}
	calls := 0

	err := b.Do(context.Background(), func(attempt int) error {
		calls++
		if attempt < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestBackoff_ImmediateSuccess(t *testing.T) {
	b := DefaultBackoff()

	err := b.Do(context.Background(), func(_ int) error {
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBackoff_PermanentError(t *testing.T) {
	b := DefaultBackoff()
	calls := 0

	err := b.Do(context.Background(), func(_ int) error {
		calls++
		return Permanent(fmt.Errorf("fatal"))
	})

	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "fatal" {
		t.Errorf("expected 'fatal', got %q", err.Error())
	}
	if calls != 1 {
		t.Errorf("permanent error should stop after 1 call, got %d", calls)
	}
}

func TestBackoff_MaxAttempts(t *testing.T) {
	b := &Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     10 * time.Millisecond,
		Multiplier:   1.5,
		MaxAttempts:  3,
	}
	calls := 0

	err := b.Do(context.Background(), func(_ int) error {
		calls++
		return fmt.Errorf("always fails")
	})

	if err == nil {
		t.Fatal("expected error after max attempts")
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

// Two failures then success must sleep exactly twice, with the second
// delay double the first.
func TestBackoff_DelaySequence(t *testing.T) {
	b := &Backoff{
		InitialDelay: 2 * time.Millisecond,
		MaxDelay:     100 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  5,
	}

	var delays []time.Duration
	b.OnBackoff = func(_ int, wait time.Duration) {
		delays = append(delays, wait)
	}

	err := b.Do(context.Background(), func(attempt int) error {
		if attempt < 3 {
			return fmt.Errorf("transient")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(delays) != 2 {
		t.Fatalf("expected exactly 2 inter-attempt delays, got %d", len(delays))
	}
	if delays[0] != 2*time.Millisecond {
		t.Errorf("first delay = %v, want 2ms", delays[0])
	}
	if delays[1] != 4*time.Millisecond {
		t.Errorf("second delay = %v, want 4ms (doubled)", delays[1])
	}
}

func TestBackoff_DelayCappedAtMax(t *testing.T) {
	b := &Backoff{
		InitialDelay: 4 * time.Millisecond,
		MaxDelay:     6 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  4,
	}

	var delays []time.Duration
	b.OnBackoff = func(_ int, wait time.Duration) {
		delays = append(delays, wait)
	}

	_ = b.Do(context.Background(), func(_ int) error {
		return fmt.Errorf("always fails")
	})

	if len(delays) != 3 {
		t.Fatalf("expected 3 delays, got %d", len(delays))
	}
	// 4ms, then 8ms capped to 6ms, then stays 6ms.
	if delays[1] != 6*time.Millisecond || delays[2] != 6*time.Millisecond {
		t.Errorf("delays not capped at MaxDelay: %v", delays)
	}
}

func TestBackoff_ContextCancelled(t *testing.T) {
	b := &Backoff{
		InitialDelay: 5 * time.Second,
		MaxAttempts:  100,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := b.Do(ctx, func(_ int) error {
		return fmt.Errorf("fail")
	})

	if err == nil {
		t.Fatal("expected cancellation error")
	}
}

func TestIsPermanent(t *testing.T) {
	if !IsPermanent(Permanent(fmt.Errorf("x"))) {
		t.Error("wrapped error should be permanent")
	}
	if IsPermanent(fmt.Errorf("x")) {
		t.Error("plain error should not be permanent")
	}
	if Permanent(nil) != nil {
		t.Error("Permanent(nil) should be nil")
	}
}
