package errors

import (
	"errors"
	"testing"
	"time"
)

func TestCircuitOpensAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 3, SuccessThreshold: 1, Timeout: time.Hour})

	for i := 0; i < 3; i++ {
		if err := cb.Allow(); err != nil {
			t.Fatalf("request %d should be allowed: %v", i, err)
		}
		cb.Mark(errors.New("boom"))
	}

	if cb.State() != StateOpen {
		t.Fatalf("expected open state, got %s", cb.State())
	}
	if err := cb.Allow(); err == nil {
		t.Fatal("expected open circuit to reject")
	}
}

func TestCircuitHalfOpenRecovery(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Millisecond})

	if err := cb.Allow(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	cb.Mark(errors.New("boom"))
	if cb.State() != StateOpen {
		t.Fatalf("expected open, got %s", cb.State())
	}

	time.Sleep(5 * time.Millisecond)

	// cool-down elapsed: probe admitted, two successes close the circuit
	if err := cb.Allow(); err != nil {
		t.Fatalf("probe should be admitted: %v", err)
	}
	cb.Mark(nil)
	if err := cb.Allow(); err != nil {
		t.Fatalf("half-open should admit: %v", err)
	}
	cb.Mark(nil)

	if cb.State() != StateClosed {
		t.Fatalf("expected closed after recovery, got %s", cb.State())
	}
}

func TestCircuitReopensOnHalfOpenFailure(t *testing.T) {
	cb := NewCircuitBreaker("test", CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Millisecond})

	_ = cb.Allow()
	cb.Mark(errors.New("boom"))
	time.Sleep(5 * time.Millisecond)

	if err := cb.Allow(); err != nil {
		t.Fatalf("probe should be admitted: %v", err)
	}
	cb.Mark(errors.New("still down"))
	if cb.State() != StateOpen {
		t.Fatalf("expected reopened circuit, got %s", cb.State())
	}
}
