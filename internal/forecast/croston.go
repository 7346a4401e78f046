package forecast

import (
	"fmt"

	"github.com/redispatch/curtailcast/internal/models"
)

// CrostonMethod selects the smoothing recursion.
type CrostonMethod string

const (
	// MethodStandard smooths demand size and the interval between demands.
	MethodStandard CrostonMethod = "standard"
	// MethodTSB smooths demand size and the probability of demand.
	MethodTSB CrostonMethod = "tsb"
)

// CrostonState is the result of one fit: level a, interval (standard) or
// probability (TSB) p, and forecast f, each indexed 0..N for N observations.
// The zero value is an unfitted model.
type CrostonState struct {
	method CrostonMethod
	a      []float64
	p      []float64
	f      []float64
}

// FitCroston fits a fresh state to d. Every call starts from scratch.
func FitCroston(d []float64, method CrostonMethod, alpha, beta float64) (CrostonState, error) {
	if method != MethodStandard && method != MethodTSB {
		return CrostonState{}, fmt.Errorf("%w: unknown croston method %q, use %q or %q",
			models.ErrConfiguration, method, MethodStandard, MethodTSB)
	}
	if alpha <= 0 || alpha > 1 {
		return CrostonState{}, fmt.Errorf("%w: alpha must be in (0, 1], got %v", models.ErrConfiguration, alpha)
	}
	if method == MethodTSB && (beta <= 0 || beta > 1) {
		return CrostonState{}, fmt.Errorf("%w: beta must be in (0, 1], got %v", models.ErrConfiguration, beta)
	}

	first := firstPositive(d)
	if first < 0 {
		return CrostonState{}, fmt.Errorf("%w: no positive observation among %d values", models.ErrInsufficientData, len(d))
	}

	if method == MethodStandard {
		return fitStandard(d, first, alpha), nil
	}
	return fitTSB(d, first, alpha, beta), nil
}

func firstPositive(d []float64) int {
	for i, v := range d {
		if v > 0 {
			return i
		}
	}
	return -1
}

func fitStandard(d []float64, first int, alpha float64) CrostonState {
	n := len(d)
	a := make([]float64, n+1)
	p := make([]float64, n+1)
	f := make([]float64, n+1)

	a[0] = d[first]
	p[0] = float64(1 + first)
	f[0] = a[0] / p[0]

	q := 1.0 // periods since last demand
	for t := 0; t < n; t++ {
		if d[t] > 0 {
			a[t+1] = alpha*d[t] + (1-alpha)*a[t]
			p[t+1] = alpha*q + (1-alpha)*p[t]
			f[t+1] = a[t+1] / p[t+1]
			q = 1
		} else {
			a[t+1] = a[t]
			p[t+1] = p[t]
			f[t+1] = f[t]
			q++
		}
	}
	return CrostonState{method: MethodStandard, a: a, p: p, f: f}
}

func fitTSB(d []float64, first int, alpha, beta float64) CrostonState {
	n := len(d)
	a := make([]float64, n+1)
	p := make([]float64, n+1)
	f := make([]float64, n+1)

	a[0] = d[first]
	p[0] = 1 / float64(1+first)
	f[0] = p[0] * a[0]

	for t := 0; t < n; t++ {
		if d[t] > 0 {
			a[t+1] = alpha*d[t] + (1-alpha)*a[t]
			p[t+1] = beta + (1-beta)*p[t]
		} else {
			a[t+1] = a[t]
			p[t+1] = (1 - beta) * p[t]
		}
		f[t+1] = p[t+1] * a[t+1]
	}
	return CrostonState{method: MethodTSB, a: a, p: p, f: f}
}

// Fitted reports whether the state came from FitCroston.
func (s CrostonState) Fitted() bool { return len(s.f) > 0 }

// Method returns the recursion the state was fitted with.
func (s CrostonState) Method() CrostonMethod { return s.method }

// Level returns a copy of the level estimates.
func (s CrostonState) Level() []float64 { return clone(s.a) }

// Periodicity returns a copy of the interval (standard) or probability (TSB) estimates.
func (s CrostonState) Periodicity() []float64 { return clone(s.p) }

// Estimates returns a copy of the one-step forecasts.
func (s CrostonState) Estimates() []float64 { return clone(s.f) }

// Forecast repeats the last fitted estimate for steps periods.
func (s CrostonState) Forecast(steps int) ([]float64, error) {
	if !s.Fitted() {
		return nil, models.ErrNotFitted
	}
	if steps < 1 {
		return nil, fmt.Errorf("%w: steps must be at least 1, got %d", models.ErrConfiguration, steps)
	}
	last := s.f[len(s.f)-1]
	out := make([]float64, steps)
	for i := range out {
		out[i] = last
	}
	return out, nil
}

func clone(v []float64) []float64 {
	if v == nil {
		return nil
	}
	out := make([]float64, len(v))
	copy(out, v)
	return out
}
