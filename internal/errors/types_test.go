package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"taskpilot/internal/logging"
)

func TestFromHTTPStatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		transient bool
	}{
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{422, false},
	}
	for _, tc := range cases {
		err := FromHTTPStatus(tc.status, "body")
		if got := IsTransient(err); got != tc.transient {
			t.Errorf("status %d: IsTransient = %v, want %v", tc.status, got, tc.transient)
		}
		if got := StatusCode(err); got != tc.status {
			t.Errorf("status %d: StatusCode = %d", tc.status, got)
		}
	}
}

func TestIsTransientWrappedErrors(t *testing.T) {
	inner := NewTransientError(errors.New("boom"), "try again")
	wrapped := fmt.Errorf("calling provider: %w", inner)
	if !IsTransient(wrapped) {
		t.Fatal("wrapped transient error should remain transient")
	}

	perm := NewPermanentError(errors.New("bad key"), "check credentials")
	if IsTransient(perm) {
		t.Fatal("permanent error must not be transient")
	}
	if !IsPermanent(perm) {
		t.Fatal("expected IsPermanent")
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	attempts := 0
	_, err := RetryWithResultAndLog(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond}, func(ctx context.Context) (string, error) {
		attempts++
		return "", NewPermanentError(errors.New("nope"), "")
	}, logging.Nop())
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected exactly 1 attempt, got %d", attempts)
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	attempts := 0
	got, err := RetryWithResultAndLog(context.Background(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, func(ctx context.Context) (string, error) {
		attempts++
		if attempts < 3 {
			return "", NewTransientError(errors.New("blip"), "")
		}
		return "ok", nil
	}, logging.Nop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || attempts != 3 {
		t.Fatalf("got %q after %d attempts", got, attempts)
	}
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := RetryWithResultAndLog(ctx, DefaultRetryConfig(), func(ctx context.Context) (int, error) {
		return 0, NewTransientError(errors.New("blip"), "")
	}, logging.Nop())
	if err == nil {
		t.Fatal("expected context cancellation error")
	}
}
