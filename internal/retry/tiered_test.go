package retry

import (
	"context"
	"fmt"
	"testing"
	"time"

	"sever/util"
)

func fastBackoff(attempts int) *Backoff {
	return &Backoff{
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		MaxAttempts:  attempts,
	}
}

func TestRunTiers_FirstTierSucceeds(t *testing.T) {
	logger := util.NewLogger(0)
	secondCalled := false

	err := RunTiers(context.Background(), []Tier{
		{Name: "graceful", Attempt: func(context.Context) error { return nil }, Backoff: fastBackoff(3)},
		{Name: "forced", Attempt: func(context.Context) error { secondCalled = true; return nil }, Backoff: fastBackoff(3)},
	}, logger)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if secondCalled {
		t.Error("second tier should not run when first succeeds")
	}
}

func TestRunTiers_EscalatesAfterBudgetExhausted(t *testing.T) {
	logger := util.NewLogger(0)
	gracefulCalls, forcedCalls := 0, 0

	err := RunTiers(context.Background(), []Tier{
		{
			Name:    "graceful",
			Attempt: func(context.Context) error { gracefulCalls++; return fmt.Errorf("busy") },
			Backoff: fastBackoff(2),
		},
		{
			Name:    "forced",
			Attempt: func(context.Context) error { forcedCalls++; return nil },
			Backoff: fastBackoff(2),
		},
	}, logger)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gracefulCalls != 2 {
		t.Errorf("graceful calls = %d, want 2 (full budget)", gracefulCalls)
	}
	if forcedCalls != 1 {
		t.Errorf("forced calls = %d, want 1", forcedCalls)
	}
}

// A permanent error must skip the rest of the tier's budget and
// escalate immediately.
func TestRunTiers_PermanentErrorShortCircuitsTier(t *testing.T) {
	logger := util.NewLogger(0)
	gracefulCalls, forcedCalls := 0, 0

	err := RunTiers(context.Background(), []Tier{
		{
			Name: "graceful",
			Attempt: func(context.Context) error {
				gracefulCalls++
				return Permanent(fmt.Errorf("access denied"))
			},
			Backoff: fastBackoff(5),
		},
		{
			Name:    "forced",
			Attempt: func(context.Context) error { forcedCalls++; return nil },
			Backoff: fastBackoff(2),
		},
	}, logger)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gracefulCalls != 1 {
		t.Errorf("graceful calls = %d, want 1 (no retry on permanent)", gracefulCalls)
	}
	if forcedCalls != 1 {
		t.Errorf("forced calls = %d, want 1", forcedCalls)
	}
}

func TestRunTiers_AllTiersFail(t *testing.T) {
	logger := util.NewLogger(0)

	err := RunTiers(context.Background(), []Tier{
		{Name: "a", Attempt: func(context.Context) error { return fmt.Errorf("a failed") }, Backoff: fastBackoff(1)},
		{Name: "b", Attempt: func(context.Context) error { return fmt.Errorf("b failed") }, Backoff: fastBackoff(1)},
	}, logger)

	if err == nil {
		t.Fatal("expected error when all tiers fail")
	}
}

func TestRunTiers_NoTiers(t *testing.T) {
	if err := RunTiers(context.Background(), nil, util.NewLogger(0)); err == nil {
		t.Fatal("expected error for empty tier list")
	}
}
