package errorsx

import (
	"context"
	"syscall"
	"testing"
)

func TestRetryTransientThenSuccess(t *testing.T) {
	ctx := context.Background()
	calls := 0
	err := Retry(ctx, RetryConfig{MaxRetries: 3, BaseDelay: 1, MaxDelay: 1, JitterFactor: 0}, func(attempt int) error {
		calls++
		if calls < 3 {
			return syscall.EBUSY
		}
		return nil
	})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
}

func TestRetryNonRetryableStopsImmediately(t *testing.T) {
	ctx := context.Background()
	calls := 0
	err := Retry(ctx, RetryConfig{MaxRetries: 3, BaseDelay: 1, MaxDelay: 1}, func(attempt int) error {
		calls++
		return syscall.ENOSPC
	})
	if err == nil {
		t.Fatal("expected error to propagate")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for non-retryable error, got %d", calls)
	}
}

func TestRetryZeroMaxRetriesPerformsOneAttempt(t *testing.T) {
	ctx := context.Background()
	calls := 0
	err := Retry(ctx, RetryConfig{MaxRetries: 0, BaseDelay: 1, MaxDelay: 1}, func(attempt int) error {
		calls++
		return syscall.EBUSY
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if calls != 1 {
		t.Fatalf("expected exactly 1 attempt for maxRetries=0, got %d", calls)
	}
}

func TestIsRetryableFlushError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{syscall.EBUSY, true},
		{syscall.EAGAIN, true},
		{syscall.EIO, true},
		{syscall.ENFILE, true},
		{syscall.ENOSPC, false},
		{syscall.ENOENT, false},
		{syscall.EACCES, false},
		{nil, false},
	}
	for _, tc := range cases {
		if got := IsRetryableFlushError(tc.err); got != tc.want {
			t.Fatalf("IsRetryableFlushError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestClassifiedErrors(t *testing.T) {
	base := syscall.ETIMEDOUT
	transient := NewTransientError(base, "timed out")
	if !IsTransient(transient) {
		t.Fatal("expected IsTransient")
	}
	permanent := NewPermanentError(base, "fatal")
	if !IsPermanent(permanent) {
		t.Fatal("expected IsPermanent")
	}
	degraded := NewDegradedError(base, "degraded", "fallback")
	if !IsDegraded(degraded) {
		t.Fatal("expected IsDegraded")
	}
}
