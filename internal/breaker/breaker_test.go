package breaker

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := New(3, time.Minute)
	for i := 0; i < 3; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("call %d should be allowed: %v", i, err)
		}
		b.Failure()
	}
	if b.State() != StateOpen {
		t.Fatalf("state = %v after threshold failures", b.State())
	}
	if err := b.Allow(); err != ErrOpen {
		t.Fatalf("expected fail-fast, got %v", err)
	}
}

func TestBreakerHalfOpenProbe(t *testing.T) {
	b := New(1, time.Minute)
	clock := time.Now()
	b.now = func() time.Time { return clock }

	b.Failure()
	if err := b.Allow(); err != ErrOpen {
		t.Fatal("should fail fast while cooling down")
	}

	clock = clock.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatalf("probe should be admitted after cooldown: %v", err)
	}
	// Second caller while the probe is in flight still fails fast.
	if err := b.Allow(); err != ErrOpen {
		t.Fatal("concurrent call during probe should fail fast")
	}

	b.Success()
	if b.State() != StateClosed {
		t.Fatalf("state = %v after successful probe", b.State())
	}
	if err := b.Allow(); err != nil {
		t.Fatal("closed circuit should allow calls")
	}
}

func TestBreakerProbeFailureReopens(t *testing.T) {
	b := New(1, time.Minute)
	clock := time.Now()
	b.now = func() time.Time { return clock }

	b.Failure()
	clock = clock.Add(2 * time.Minute)
	if err := b.Allow(); err != nil {
		t.Fatal(err)
	}
	b.Failure()
	if err := b.Allow(); err != ErrOpen {
		t.Fatal("failed probe should reopen the circuit")
	}
}

func TestBreakerSuccessResetsRun(t *testing.T) {
	b := New(3, time.Minute)
	b.Failure()
	b.Failure()
	b.Success()
	b.Failure()
	b.Failure()
	if b.State() != StateClosed {
		t.Fatal("non-consecutive failures should not open the circuit")
	}
}
