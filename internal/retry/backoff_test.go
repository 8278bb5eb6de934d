package retry

import (
	"testing"
	"time"
)

func TestExponentialBackoff_NextDelay_NoJitter(t *testing.T) {
	strategy := NewExponentialBackoff(5,
		WithInitialDelay(100*time.Millisecond),
		WithMultiplier(2.0),
		WithMaxDelay(time.Second),
		WithJitter(0),
	)

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		800 * time.Millisecond,
		time.Second,
		time.Second,
	}

	for attempt, want := range expected {
		if got := strategy.NextDelay(attempt); got != want {
			t.Errorf("attempt %d: expected %v, got %v", attempt, want, got)
		}
	}
}

func TestExponentialBackoff_NextDelay_NeverExceedsCap(t *testing.T) {
	strategy := NewExponentialBackoff(100,
		WithInitialDelay(100*time.Millisecond),
		WithMaxDelay(time.Minute),
		WithJitter(0),
	)

	for attempt := 0; attempt <= 100; attempt++ {
		if delay := strategy.NextDelay(attempt); delay > time.Minute {
			t.Fatalf("attempt %d: delay %v exceeds cap", attempt, delay)
		}
	}
}

func TestExponentialBackoff_NextDelay_JitterBounds(t *testing.T) {
	tests := []struct {
		name   string
		random float64
		want   time.Duration
	}{
		{"lowest", 0.0, 500 * time.Millisecond},
		{"middle", 0.5, time.Second},
		{"upper", 0.75, 1250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			strategy := NewExponentialBackoff(3,
				WithInitialDelay(time.Second),
				WithJitter(0.5),
				WithJitterFunc(func() float64 { return tt.random }),
			)
			if got := strategy.NextDelay(0); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestExponentialBackoff_MaxAttempts(t *testing.T) {
	for _, n := range []int{-1, 0, 3} {
		if got := NewExponentialBackoff(n).MaxAttempts(); got != n {
			t.Errorf("expected %d, got %d", n, got)
		}
	}
}

func TestConstantBackoff(t *testing.T) {
	strategy := NewConstantBackoff(2*time.Second, -1)

	for _, attempt := range []int{0, 1, 10, 1000} {
		if got := strategy.NextDelay(attempt); got != 2*time.Second {
			t.Errorf("attempt %d: expected 2s, got %v", attempt, got)
		}
	}
	if strategy.MaxAttempts() != -1 {
		t.Errorf("expected unlimited attempts, got %d", strategy.MaxAttempts())
	}
}
