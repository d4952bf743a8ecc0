package breaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

func TestClosedTripsOpenAtThreshold(t *testing.T) {
	b := New(Config{FailureThreshold: 3, RecoveryTimeout: time.Hour, OperationTimeout: time.Second})

	for i := 0; i < 2; i++ {
		err := b.Execute(context.Background(), func(context.Context) error { return errBoom })
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected wrapped op error, got %v", err)
		}
		if b.State() != StateClosed {
			t.Fatalf("expected still closed after %d failures, got %v", i+1, b.State())
		}
	}

	err := b.Execute(context.Background(), func(context.Context) error { return errBoom })
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped op error on tripping call, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after reaching threshold, got %v", b.State())
	}
}

func TestOpenFastFailsUntilRecovery(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: 30 * time.Millisecond, OperationTimeout: time.Second})

	_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })
	if b.State() != StateOpen {
		t.Fatalf("expected open, got %v", b.State())
	}

	err := b.Execute(context.Background(), func(context.Context) error {
		t.Fatal("fn must not be called while open")
		return nil
	})
	if !errors.Is(err, ErrOpen) {
		t.Fatalf("expected ErrOpen, got %v", err)
	}
}

func TestHalfOpenSingleProbeSuccessCloses(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond, OperationTimeout: time.Second})
	_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })

	time.Sleep(15 * time.Millisecond)

	err := b.Execute(context.Background(), func(context.Context) error { return nil })
	if err != nil {
		t.Fatalf("expected probe success, got %v", err)
	}
	if b.State() != StateClosed {
		t.Fatalf("expected closed after successful probe, got %v", b.State())
	}
}

func TestHalfOpenSingleProbeFailureReopens(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: 10 * time.Millisecond, OperationTimeout: time.Second})
	_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })

	time.Sleep(15 * time.Millisecond)

	err := b.Execute(context.Background(), func(context.Context) error { return errBoom })
	if !errors.Is(err, errBoom) {
		t.Fatalf("expected wrapped op error on failed probe, got %v", err)
	}
	if b.State() != StateOpen {
		t.Fatalf("expected re-opened after failed probe, got %v", b.State())
	}
}

func TestOperationTimeoutCountsAsFailure(t *testing.T) {
	b := New(Config{FailureThreshold: 1, RecoveryTimeout: time.Hour, OperationTimeout: 5 * time.Millisecond})

	err := b.Execute(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err == nil {
		t.Fatal("expected a timeout error")
	}
	if b.State() != StateOpen {
		t.Fatalf("expected open after operation timeout, got %v", b.State())
	}
}

func TestSuccessResetsFailureCount(t *testing.T) {
	b := New(Config{FailureThreshold: 3, RecoveryTimeout: time.Hour, OperationTimeout: time.Second})
	_ = b.Execute(context.Background(), func(context.Context) error { return errBoom })
	if b.FailureCount() != 1 {
		t.Fatalf("expected 1 failure recorded, got %d", b.FailureCount())
	}
	_ = b.Execute(context.Background(), func(context.Context) error { return nil })
	if b.FailureCount() != 0 {
		t.Fatalf("expected failure count reset after success, got %d", b.FailureCount())
	}
}
