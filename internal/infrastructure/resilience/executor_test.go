package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/kirillkom/document-chat-assistant/internal/core/domain"
)

func fastRetries(attempts int) Policy {
	return Policy{Retry: RetryPolicy{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
	}}
}

func TestExecuteRetriesRetryableFailure(t *testing.T) {
	exec := NewExecutor(fastRetries(3), Options{})

	attempts := 0
	errFlaky := errors.New("flaky")
	err := exec.Execute(context.Background(), "nats publish", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errFlaky
		}
		return nil
	}, func(err error) ErrorClassification {
		return ErrorClassification{Retryable: errors.Is(err, errFlaky), RecordFailure: true}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	exec := NewExecutor(fastRetries(3), Options{})

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Execute(context.Background(), "nats publish", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) ErrorClassification {
		return ErrorClassification{}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestExecuteOpensCircuitAndReportsState(t *testing.T) {
	var transitions []bool
	policy := Policy{
		Retry: RetryPolicy{MaxAttempts: 1},
		Breaker: BreakerPolicy{
			Enabled:          true,
			MinRequests:      2,
			FailureRatio:     0.5,
			OpenTimeout:      50 * time.Millisecond,
			HalfOpenMaxCalls: 1,
		},
	}
	exec := NewExecutor(policy, Options{OnStateChange: func(operation string, open bool) {
		if operation != "index query" {
			t.Errorf("unexpected operation %q", operation)
		}
		transitions = append(transitions, open)
	}})

	errDown := errors.New("index down")
	classifier := func(error) ErrorClassification { return ErrorClassification{RecordFailure: true} }

	for i := 0; i < 2; i++ {
		err := exec.Execute(context.Background(), "index query", func(context.Context) error {
			return errDown
		}, classifier)
		if !errors.Is(err, errDown) {
			t.Fatalf("expected upstream error on iteration %d, got %v", i, err)
		}
	}

	err := exec.Execute(context.Background(), "index query", func(context.Context) error {
		t.Fatalf("circuit should be open and must not call operation")
		return nil
	}, classifier)
	if !errors.Is(err, gobreaker.ErrOpenState) || !IsCircuitOpen(err) {
		t.Fatalf("expected open state error, got %v", err)
	}
	if len(transitions) != 1 || !transitions[0] {
		t.Fatalf("expected a single open transition, got %v", transitions)
	}
}

func TestFailFastMakesSingleAttempt(t *testing.T) {
	exec := NewExecutor(FailFast(), Options{})

	attempts := 0
	_, err := Do(context.Background(), exec, "bing search", func(context.Context) (int, error) {
		attempts++
		return 0, &HTTPStatusError{Service: "bing", Operation: "search", StatusCode: 503, Status: "503 Service Unavailable"}
	}, ClassifyHTTPError)
	if err == nil {
		t.Fatalf("expected error")
	}
	if attempts != 1 {
		t.Fatalf("expected a single attempt, got %d", attempts)
	}
}

func TestExecuteStopsRetryingWhenContextEnds(t *testing.T) {
	exec := NewExecutor(Policy{Retry: RetryPolicy{MaxAttempts: 5, InitialBackoff: time.Second, MaxBackoff: time.Second}}, Options{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	attempts := 0
	errFlaky := errors.New("flaky")
	err := exec.Execute(ctx, "nats publish", func(context.Context) error {
		attempts++
		return errFlaky
	}, func(error) ErrorClassification { return ErrorClassification{Retryable: true} })
	if !errors.Is(err, errFlaky) || attempts != 1 {
		t.Fatalf("expected last upstream error after one attempt, got %v (%d attempts)", err, attempts)
	}
}

func TestRetryDelayIsCapped(t *testing.T) {
	retry := RetryPolicy{InitialBackoff: 100 * time.Millisecond, MaxBackoff: 400 * time.Millisecond, Multiplier: 2}
	for attempt, want := range map[int]time.Duration{1: 100 * time.Millisecond, 2: 200 * time.Millisecond, 3: 400 * time.Millisecond, 6: 400 * time.Millisecond} {
		if got := retry.delay(attempt); got != want {
			t.Fatalf("delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func TestDoReturnsValueAndRunsWithoutExecutor(t *testing.T) {
	var exec *Executor
	got, err := Do(context.Background(), exec, "op", func(context.Context) (string, error) {
		return "value", nil
	}, nil)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if got != "value" {
		t.Fatalf("expected value, got %q", got)
	}
}

func TestWrapTemporaryMarksRetryableStatus(t *testing.T) {
	err := WrapTemporary("index query", &HTTPStatusError{StatusCode: 502, Status: "502 Bad Gateway"}, nil)
	if !domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("expected ErrTemporary, got %v", err)
	}
	err = WrapTemporary("index query", &HTTPStatusError{StatusCode: 400, Status: "400 Bad Request"}, nil)
	if domain.IsKind(err, domain.ErrTemporary) {
		t.Fatalf("400 must not be temporary, got %v", err)
	}
}
