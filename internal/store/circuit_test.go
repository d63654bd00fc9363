package store

import (
	"testing"
	"time"
)

func TestCircuitBreaker_StartsClosedAndAllows(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)
	if cb.State() != StateClosed {
		t.Errorf("expected StateClosed, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Error("expected Allow=true for closed circuit")
	}
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Error("expected StateClosed after 2 failures")
	}

	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("expected StateOpen after 3 failures, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("expected Allow=false for open circuit")
	}
}

// fakeClock lets tests move the breaker past its recovery interval.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(threshold int) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1700000000, 0)}
	cb := NewCircuitBreaker(threshold, 10*time.Second)
	cb.now = clock.now
	return cb, clock
}

func TestCircuitBreaker_HalfOpenAfterRecoveryInterval(t *testing.T) {
	cb, clock := newTestBreaker(1)

	if !cb.RecordFailure() {
		t.Error("expected the first failure to open the circuit")
	}
	clock.advance(9 * time.Second)
	if cb.State() != StateOpen {
		t.Fatalf("expected StateOpen before the interval, got %s", cb.State())
	}

	clock.advance(time.Second)
	if cb.State() != StateHalfOpen {
		t.Errorf("expected StateHalfOpen after the recovery interval, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Error("expected Allow=true for the trial read")
	}
}

func TestCircuitBreaker_HalfOpenAdmitsOneRead(t *testing.T) {
	cb, clock := newTestBreaker(1)
	cb.RecordFailure()
	clock.advance(10 * time.Second)

	if !cb.Allow() {
		t.Fatal("expected the first trial read to be admitted")
	}
	if cb.Allow() {
		t.Error("expected a second concurrent read to be refused")
	}

	cb.Release()
	if !cb.Allow() {
		t.Error("expected a new trial read after Release")
	}
}

func TestCircuitBreaker_HalfOpen_SuccessCloses(t *testing.T) {
	cb, clock := newTestBreaker(1)

	cb.RecordFailure()
	clock.advance(10 * time.Second)

	cb.Allow()
	cb.RecordSuccess()

	if cb.State() != StateClosed {
		t.Errorf("expected StateClosed after a successful trial read, got %s", cb.State())
	}
	if !cb.Allow() || !cb.Allow() {
		t.Error("expected a closed circuit to admit every read")
	}
}

func TestCircuitBreaker_HalfOpen_FailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(3)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordFailure()
	clock.advance(10 * time.Second)

	cb.Allow()
	if !cb.RecordFailure() {
		t.Error("expected the failed trial read to reopen the circuit")
	}
	if cb.State() != StateOpen {
		t.Errorf("expected StateOpen after a failed trial read, got %s", cb.State())
	}
	if cb.Allow() {
		t.Error("expected reads refused until the next interval")
	}
}

func TestCircuitBreaker_FailureWhileOpenDoesNotReopen(t *testing.T) {
	cb, _ := newTestBreaker(1)
	cb.RecordFailure()
	if cb.RecordFailure() {
		t.Error("expected no transition for a failure while already open")
	}
}

func TestCircuitBreaker_SuccessResetsConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()

	cb.RecordFailure()
	if cb.State() != StateClosed {
		t.Errorf("expected StateClosed, got %s", cb.State())
	}
}

func TestCircuitBreaker_Reset(t *testing.T) {
	cb := NewCircuitBreaker(1, 5*time.Second)
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Fatal("expected StateOpen")
	}

	cb.Reset()
	if cb.State() != StateClosed {
		t.Errorf("expected StateClosed after reset, got %s", cb.State())
	}
	if !cb.Allow() {
		t.Error("expected Allow=true after reset")
	}
}

func TestCircuitBreaker_ThresholdFloor(t *testing.T) {
	cb := NewCircuitBreaker(0, 5*time.Second)
	cb.RecordFailure()
	if cb.State() != StateOpen {
		t.Errorf("expected a zero threshold to open on the first failure, got %s", cb.State())
	}
}

func TestCircuitState_String(t *testing.T) {
	tests := []struct {
		state CircuitState
		want  string
	}{
		{StateClosed, "closed"},
		{StateOpen, "open"},
		{StateHalfOpen, "half_open"},
		{CircuitState(99), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %s, want %s", tt.state, got, tt.want)
		}
	}
}
