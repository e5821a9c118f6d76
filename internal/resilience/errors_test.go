package resilience

import (
	"errors"
	"fmt"
	"syscall"
	"testing"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain", errors.New("bad request"), false},
		{"explicit", NewTransientError(errors.New("x"), 503), true},
		{"wrapped explicit", fmt.Errorf("outer: %w", NewTransientError(errors.New("x"), 429)), true},
		{"conn reset", fmt.Errorf("dial: %w", syscall.ECONNRESET), true},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"message", errors.New("read tcp: i/o timeout"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStatusError(t *testing.T) {
	if !IsTransient(StatusError("meteo", 503)) {
		t.Error("503 should be transient")
	}
	if IsTransient(StatusError("meteo", 400)) {
		t.Error("400 should not be transient")
	}
	var te *TransientError
	if !errors.As(StatusError("meteo", 429), &te) || te.StatusCode != 429 {
		t.Error("expected TransientError with status 429")
	}
}
