package retry

import (
	"fmt"
	"testing"
	"time"

	severrors "sever/internal/errors"
)

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)
	fail := func() error { return fmt.Errorf("enumeration failed") }

	for i := 0; i < 3; i++ {
		if err := cb.Execute(fail); err == nil {
			t.Fatal("expected failure")
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Errorf("state = %v, want open", cb.CurrentState())
	}

	// Next call must be short-circuited without invoking fn.
	called := false
	err := cb.Execute(func() error { called = true; return nil })
	if !severrors.Is(err, severrors.ErrBreakerOpen) {
		t.Errorf("expected ErrBreakerOpen, got %v", err)
	}
	if called {
		t.Error("fn must not be called while circuit is open")
	}
}

func TestCircuitBreaker_SuccessResetsFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, time.Minute)

	_ = cb.Execute(func() error { return fmt.Errorf("x") })
	_ = cb.Execute(func() error { return fmt.Errorf("x") })
	_ = cb.Execute(func() error { return nil })

	// Two more failures should not open (counter was reset).
	_ = cb.Execute(func() error { return fmt.Errorf("x") })
	_ = cb.Execute(func() error { return fmt.Errorf("x") })
	if cb.CurrentState() != StateClosed {
		t.Errorf("state = %v, want closed", cb.CurrentState())
	}
}

func TestCircuitBreaker_HalfOpenProbe(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(func() error { return fmt.Errorf("x") })
	if cb.CurrentState() != StateOpen {
		t.Fatalf("state = %v, want open", cb.CurrentState())
	}

	time.Sleep(15 * time.Millisecond)

	// Probe succeeds, breaker closes.
	if err := cb.Execute(func() error { return nil }); err != nil {
		t.Fatalf("probe failed: %v", err)
	}
	if cb.CurrentState() != StateClosed {
		t.Errorf("state = %v, want closed after successful probe", cb.CurrentState())
	}
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	cb := NewCircuitBreaker(1, 10*time.Millisecond)

	_ = cb.Execute(func() error { return fmt.Errorf("x") })
	time.Sleep(15 * time.Millisecond)
	_ = cb.Execute(func() error { return fmt.Errorf("still down") })

	if cb.CurrentState() != StateOpen {
		t.Errorf("state = %v, want open after failed probe", cb.CurrentState())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(1, time.Minute)
	_ = cb.Execute(func() error { return fmt.Errorf("x") })
	cb.Reset()
	if cb.CurrentState() != StateClosed {
		t.Errorf("state = %v, want closed after Reset", cb.CurrentState())
	}
}
