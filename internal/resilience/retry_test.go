package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{
		MaxAttempts:     attempts,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		Multiplier:      2,
		Jitter:          0.1,
		AttemptTimeout:  time.Second,
	}
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), "score", fastPolicy(3), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", errors.New("HTTP 503 backend unavailable")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" || calls != 2 {
		t.Fatalf("expected ok after 2 calls, got %q after %d", got, calls)
	}
}

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	var notified []Attempt
	_, err := Retry(context.Background(), "score", fastPolicy(3), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("unexpected EOF")
	}, WithNotify(func(a Attempt) { notified = append(notified, a) }))

	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
	var classified *Error
	if !errors.As(err, &classified) || classified.Kind != KindUpstream {
		t.Fatalf("expected upstream error, got %v", err)
	}
	if classified.Op != "score" {
		t.Fatalf("expected op to be recorded, got %q", classified.Op)
	}
	if len(notified) != 2 {
		t.Fatalf("expected 2 retry notifications, got %d", len(notified))
	}
}

func TestRetryDoesNotRetryNonRetryableKinds(t *testing.T) {
	for _, msg := range []string{
		"finish reason SAFETY",
		"API key not valid",
		"models/x is not found for API version v1",
	} {
		calls := 0
		_, err := Retry(context.Background(), "score", fastPolicy(5), func(context.Context) (int, error) {
			calls++
			return 0, errors.New(msg)
		})
		if calls != 1 {
			t.Fatalf("%q: expected a single attempt, got %d", msg, calls)
		}
		if Retryable(KindOf(err)) {
			t.Fatalf("%q: expected non-retryable kind, got %s", msg, KindOf(err))
		}
	}
}

func TestRetryPassesTypedErrorsThrough(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), "bizinfo", fastPolicy(5), func(context.Context) (int, error) {
		calls++
		return 0, New(KindAuth, "bizinfo", errors.New("crtfcKey is not configured"))
	})
	if calls != 1 {
		t.Fatalf("auth errors must not be retried, got %d calls", calls)
	}
	if KindOf(err) != KindAuth {
		t.Fatalf("expected auth kind, got %s", KindOf(err))
	}
}

func TestRetryAttemptTimeoutIsUpstream(t *testing.T) {
	policy := fastPolicy(2)
	policy.AttemptTimeout = 5 * time.Millisecond

	calls := 0
	_, err := Retry(context.Background(), "kstartup", policy, func(ctx context.Context) (int, error) {
		calls++
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if calls != 2 {
		t.Fatalf("timeouts must enter the retry path, got %d calls", calls)
	}
	if KindOf(err) != KindUpstream {
		t.Fatalf("expected upstream kind, got %s", KindOf(err))
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded in chain, got %v", err)
	}
}

func TestRetryCustomClassifier(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), "score", fastPolicy(4), func(context.Context) (int, error) {
		calls++
		return 0, errors.New("anything")
	}, WithClassifier(func(err error) *Error {
		return New(KindContentRejected, "score", err)
	}))
	if calls != 1 || KindOf(err) != KindContentRejected {
		t.Fatalf("expected a single content-rejected attempt, got %d calls and %v", calls, err)
	}
}
