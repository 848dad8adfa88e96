package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPoll_ReturnsFirstDoneValue(t *testing.T) {
	calls := 0
	v, err := Poll(context.Background(), Policy{MaxAttempts: 5}, func(context.Context) (int, bool, error) {
		calls++
		return calls * 10, calls == 3, nil
	})
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if v != 30 || calls != 3 {
		t.Fatalf("v=%d calls=%d want 30/3", v, calls)
	}
}

func TestPoll_MaxAttemptsExhausts(t *testing.T) {
	calls := 0
	_, err := Poll(context.Background(), Policy{MaxAttempts: 4}, func(context.Context) (string, bool, error) {
		calls++
		return "", false, nil
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err=%v want ErrExhausted", err)
	}
	if calls != 4 {
		t.Fatalf("calls=%d want 4", calls)
	}
}

func TestPoll_BudgetExhausts(t *testing.T) {
	start := time.Now()
	_, err := Poll(context.Background(), Policy{Budget: 30 * time.Millisecond, Interval: 5 * time.Millisecond}, func(context.Context) (int, bool, error) {
		return 0, false, nil
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err=%v want ErrExhausted", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("budget not honored")
	}
}

func TestPoll_BudgetExpiringInsideAttemptIsExhaustion(t *testing.T) {
	_, err := Poll(context.Background(), Policy{Budget: 10 * time.Millisecond}, func(ctx context.Context) (int, bool, error) {
		<-ctx.Done()
		return 0, false, ctx.Err()
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("err=%v want ErrExhausted", err)
	}
}

func TestPoll_PropagatesHardError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Poll(context.Background(), Policy{}, func(context.Context) (int, bool, error) {
		return 0, false, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err=%v want boom", err)
	}
}

func TestPoll_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Poll(ctx, Policy{}, func(context.Context) (int, bool, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return 0, false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v want context.Canceled", err)
	}
	if errors.Is(err, ErrExhausted) {
		t.Fatalf("caller cancellation must not look like exhaustion")
	}
}

func TestSleepCtx(t *testing.T) {
	if !SleepCtx(context.Background(), time.Millisecond) {
		t.Fatalf("expected sleep to complete")
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if SleepCtx(ctx, time.Hour) {
		t.Fatalf("expected cancelled sleep to return false")
	}
}
