package ik

import "context"

// Problem is a box-bounded minimization over a real vector. Bounds may be infinite.
type Problem struct {
	Dim  int
	Func func(x []float64) float64
	// Grad writes the gradient at x into grad. It may be nil for derivative-free methods.
	Grad func(grad, x []float64)
	// Lower and Upper have length Dim.
	Lower []float64
	Upper []float64
	// Stop is polled between iterations and ends the solve as budget-limited when it returns true.
	Stop func() bool
}

// MinimizeStatus is how a local minimization ended.
type MinimizeStatus int

const (
	// StatusConverged means the method met its convergence criteria or could make no further progress.
	StatusConverged MinimizeStatus = iota
	// StatusLimitReached means an iteration, evaluation or time budget ran out first.
	StatusLimitReached
)

func (s MinimizeStatus) String() string {
	if s == StatusConverged {
		return "converged"
	}
	return "limit_reached"
}

// MinimizeResult is the best point a minimizer found.
type MinimizeResult struct {
	X           []float64
	F           float64
	Status      MinimizeStatus
	Iterations  int
	Evaluations int
}

// Minimizer is a local nonlinear optimizer. Implementations must keep x within [Lower, Upper] and return
// ErrNumericalFailure when the objective stops being finite.
type Minimizer interface {
	Minimize(ctx context.Context, p Problem, x0 []float64, iterationBudget int) (*MinimizeResult, error)
}

// bestTracker remembers the lowest objective value evaluated.
type bestTracker struct {
	x []float64
	f float64
	n int
}

func (b *bestTracker) observe(x []float64, f float64) {
	if b.n == 0 || f < b.f {
		b.x = append(b.x[:0], x...)
		b.f = f
	}
	b.n++
}
