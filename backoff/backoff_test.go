package backoff_test

import (
	"testing"
	"time"

	"github.com/xraph/postmaster/backoff"
)

func TestConstant(t *testing.T) {
	c := backoff.Constant(5 * time.Second)
	for attempt := 1; attempt <= 5; attempt++ {
		if got := c.Delay(attempt); got != 5*time.Second {
			t.Errorf("Delay(%d) = %v, want 5s", attempt, got)
		}
	}
}

func TestExponential(t *testing.T) {
	e := backoff.NewExponential(time.Second, time.Minute)
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{6, 32 * time.Second},
		{7, time.Minute},
		{500, time.Minute},
	}
	for _, tt := range tests {
		if got := e.Delay(tt.attempt); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestExponentialUncappedDoesNotOverflow(t *testing.T) {
	e := backoff.NewExponential(time.Second, 0)
	if got := e.Delay(200); got <= 0 {
		t.Errorf("Delay(200) = %v, want positive", got)
	}
}

func TestFibonacci(t *testing.T) {
	f := &backoff.Fibonacci{Unit: time.Second, Max: 10 * time.Second}
	want := []time.Duration{1, 1, 2, 3, 5, 8, 10, 10}
	for i, w := range want {
		if got := f.Delay(i + 1); got != w*time.Second {
			t.Errorf("Delay(%d) = %v, want %v", i+1, got, w*time.Second)
		}
	}
}

func TestJitterBounds(t *testing.T) {
	j := backoff.Jitter{Base: backoff.Constant(time.Second), Fraction: 0.5}
	for range 200 {
		d := j.Delay(1)
		if d < 500*time.Millisecond || d > time.Second {
			t.Fatalf("Delay = %v, want within [500ms, 1s]", d)
		}
	}
}

func TestFuncAdapter(t *testing.T) {
	var s backoff.Strategy = backoff.Func(func(attempt int) time.Duration {
		return time.Duration(attempt) * time.Millisecond
	})
	if got := s.Delay(3); got != 3*time.Millisecond {
		t.Errorf("Delay(3) = %v, want 3ms", got)
	}
}

func TestDefaultStaysWithinCap(t *testing.T) {
	s := backoff.Default(time.Second, time.Minute)
	for attempt := 1; attempt <= 20; attempt++ {
		if d := s.Delay(attempt); d <= 0 || d > time.Minute {
			t.Errorf("Delay(%d) = %v, want in (0, 1m]", attempt, d)
		}
	}
}
