package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failing(_ context.Context) (int, error) {
	return 0, NewTransientError(errors.New("fail"), 503)
}

func ok(_ context.Context) (int, error) { return 1, nil }

func TestBreaker_ClosedPassesThrough(t *testing.T) {
	b := NewBreaker(DefaultBreakerConfig("meteo"))
	v, err := Guard(context.Background(), b, ok)
	if err != nil || v != 1 {
		t.Fatalf("unexpected result: %v, %v", v, err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "meteo", FailureThreshold: 3, ResetTimeout: time.Minute})
	for range 3 {
		_, _ = Guard(context.Background(), b, failing)
	}
	if b.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	_, err := Guard(context.Background(), b, func(_ context.Context) (int, error) {
		t.Error("should not be called while open")
		return 0, nil
	})
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestBreaker_SuccessResetsFailures(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute})
	_, _ = Guard(context.Background(), b, failing)
	_, _ = Guard(context.Background(), b, failing)
	_, _ = Guard(context.Background(), b, ok)
	_, _ = Guard(context.Background(), b, failing)
	if b.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_HalfOpenTrialCall(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Second})
	b.now = func() time.Time { return now }

	_, _ = Guard(context.Background(), b, failing)
	if b.State() != CircuitOpen {
		t.Fatalf("expected open, got %s", b.State())
	}

	now = now.Add(2 * time.Second)
	if b.State() != CircuitHalfOpen {
		t.Fatalf("expected half-open, got %s", b.State())
	}

	// A failed trial call reopens the circuit.
	_, _ = Guard(context.Background(), b, failing)
	if b.State() != CircuitOpen {
		t.Fatalf("expected open after failed trial call, got %s", b.State())
	}

	now = now.Add(2 * time.Second)
	if _, err := Guard(context.Background(), b, ok); err != nil {
		t.Fatalf("trial call should pass: %v", err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed after successful trial call, got %s", b.State())
	}
}

func TestBreaker_PermanentErrorsDoNotTrip(t *testing.T) {
	b := NewBreaker(BreakerConfig{Name: "meteo", FailureThreshold: 2, ResetTimeout: time.Minute})
	permanent := []error{
		StatusError("meteo", 400),
		errors.New("no data"),
	}
	for _, e := range permanent {
		for range 3 {
			_, _ = Guard(context.Background(), b, func(context.Context) (int, error) { return 0, e })
		}
		if b.State() != CircuitClosed {
			t.Fatalf("%v: expected closed, got %s", e, b.State())
		}
	}

	// A permanent error between transient ones breaks the streak.
	_, _ = Guard(context.Background(), b, failing)
	_, _ = Guard(context.Background(), b, func(context.Context) (int, error) { return 0, StatusError("meteo", 404) })
	_, _ = Guard(context.Background(), b, failing)
	if b.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State())
	}
}

func TestBreaker_CallerDeadlineNotRecorded(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	_, err := Guard(ctx, b, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		return 0, NewTransientError(ctx.Err(), 0)
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if b.State() != CircuitClosed {
		t.Errorf("expected closed, got %s", b.State())
	}

	// The same failure with a live context trips.
	_, _ = Guard(context.Background(), b, failing)
	if b.State() != CircuitOpen {
		t.Errorf("expected open, got %s", b.State())
	}
}

func TestBreaker_CustomShouldTrip(t *testing.T) {
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		ShouldTrip:       func(err error) bool { return err != nil },
	})
	_, _ = Guard(context.Background(), b, func(context.Context) (int, error) { return 0, errors.New("any") })
	if b.State() != CircuitOpen {
		t.Errorf("expected open, got %s", b.State())
	}
}

func TestTripOnTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{StatusError("meteo", 503), true},
		{StatusError("meteo", 429), true},
		{StatusError("meteo", 400), false},
		{errors.New("bad field"), false},
	}
	for _, c := range cases {
		if got := TripOnTransient(c.err); got != c.want {
			t.Errorf("%v: expected %v, got %v", c.err, c.want, got)
		}
	}
}

func TestCircuitState_String(t *testing.T) {
	cases := map[CircuitState]string{
		CircuitClosed:    "closed",
		CircuitOpen:      "open",
		CircuitHalfOpen:  "half-open",
		CircuitState(99): "unknown",
	}
	for s, want := range cases {
		if s.String() != want {
			t.Errorf("%d: expected %q, got %q", s, want, s.String())
		}
	}
}
