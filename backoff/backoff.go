// Package backoff provides retry delay strategies for failed deliveries.
// Strategies are stateless and safe for concurrent use.
package backoff

import (
	"math/rand/v2"
	"time"
)

// Strategy computes the delay before a retry.
type Strategy interface {
	// Delay returns how long to wait after failed attempt n (1-indexed).
	Delay(attempt int) time.Duration
}

// Func adapts a plain function to Strategy.
type Func func(attempt int) time.Duration

// Delay calls f.
func (f Func) Delay(attempt int) time.Duration { return f(attempt) }

// Constant always waits the same interval.
type Constant time.Duration

// Delay returns the fixed interval.
func (c Constant) Delay(int) time.Duration { return time.Duration(c) }

// Exponential doubles the delay each attempt:
// min(Initial * 2^(attempt-1), Max). A zero Max means uncapped.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns the capped exponential delay.
func (e *Exponential) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := e.Initial
	for i := 1; i < attempt; i++ {
		if e.Max > 0 && d >= e.Max {
			return e.Max
		}
		if d > time.Duration(1<<62) {
			break
		}
		d *= 2
	}
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// Fibonacci grows the delay along the Fibonacci sequence:
// Unit, Unit, 2*Unit, 3*Unit, 5*Unit ... capped at Max.
type Fibonacci struct {
	Unit time.Duration
	Max  time.Duration
}

// Delay returns Unit * fib(attempt), capped at Max.
func (f *Fibonacci) Delay(attempt int) time.Duration {
	a, b := time.Duration(0), f.Unit
	for i := 1; i < attempt; i++ {
		a, b = b, a+b
		if f.Max > 0 && b >= f.Max {
			return f.Max
		}
	}
	if f.Max > 0 && b > f.Max {
		return f.Max
	}
	return b
}

// Jitter randomizes the delay of an underlying strategy. With Fraction 1
// the result is uniform in [0, d] (full jitter); with 0.5 it is uniform in
// [d/2, d] (equal jitter).
type Jitter struct {
	Base     Strategy
	Fraction float64
}

// Delay returns Base's delay minus a random share of at most Fraction.
func (j Jitter) Delay(attempt int) time.Duration {
	d := j.Base.Delay(attempt)
	if d <= 0 || j.Fraction <= 0 {
		return d
	}
	frac := min(j.Fraction, 1)
	cut := time.Duration(rand.Float64() * frac * float64(d)) //nolint:gosec // jitter intentionally uses non-crypto rand
	return d - cut
}

// Default returns the strategy used for deliveries: exponential from
// initial to maxDelay with equal jitter.
func Default(initial, maxDelay time.Duration) Strategy {
	return Jitter{Base: NewExponential(initial, maxDelay), Fraction: 0.5}
}
