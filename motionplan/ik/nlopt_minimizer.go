//go:build !windows && !no_cgo

package ik

import (
	"context"
	"math"

	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// MethodSLSQP selects the nlopt SLSQP minimizer.
const MethodSLSQP = "slsqp"

const nloptTolerance = 1e-12

// NloptMinimizer runs nlopt's SLSQP method with the problem bounds handed to nlopt directly.
type NloptMinimizer struct {
	evalsPerIteration int
}

// NewNloptMinimizer returns an SLSQP minimizer. Each unit of iteration budget allows evalsPerIteration
// objective evaluations; values below one use a default of 20.
func NewNloptMinimizer(evalsPerIteration int) (*NloptMinimizer, error) {
	if evalsPerIteration < 1 {
		evalsPerIteration = 20
	}
	return &NloptMinimizer{evalsPerIteration: evalsPerIteration}, nil
}

// Minimize implements Minimizer.
func (nm *NloptMinimizer) Minimize(ctx context.Context, p Problem, x0 []float64, iterationBudget int) (*MinimizeResult, error) {
	if err := checkProblem(p, x0); err != nil {
		return nil, err
	}
	if p.Grad == nil {
		return nil, errors.New("slsqp needs a gradient")
	}
	if iterationBudget < 1 {
		iterationBudget = defaultIterationBudget
	}
	maxEval := iterationBudget * nm.evalsPerIteration

	opt, err := nlopt.NewNLopt(nlopt.LD_SLSQP, uint(p.Dim))
	if err != nil {
		return nil, errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	start := ensureInterior(x0, p.Lower, p.Upper, 0)
	if f0 := p.Func(start); !isFinite(f0) {
		return nil, NewSolverError(ErrNumericalFailure)
	}

	best := &bestTracker{}
	failed := false
	stopped := false
	// Gradient is a C-backed slice that nlopt expects to be written in place.
	minFunc := func(x, gradient []float64) float64 {
		if failed || stopped {
			return math.Inf(1)
		}
		if ctx.Err() != nil || (p.Stop != nil && p.Stop()) {
			stopped = true
			//nolint:errcheck
			opt.ForceStop()
		}
		f := p.Func(x)
		if !isFinite(f) {
			failed = true
			//nolint:errcheck
			opt.ForceStop()
			return math.Inf(1)
		}
		best.observe(x, f)
		if len(gradient) > 0 {
			p.Grad(gradient, x)
			for _, g := range gradient {
				if !isFinite(g) {
					failed = true
					//nolint:errcheck
					opt.ForceStop()
					break
				}
			}
		}
		return f
	}

	err = multierr.Combine(
		opt.SetFtolRel(nloptTolerance),
		opt.SetFtolAbs(nloptTolerance),
		opt.SetLowerBounds(p.Lower),
		opt.SetUpperBounds(p.Upper),
		opt.SetXtolRel(nloptTolerance),
		opt.SetXtolAbs1(nloptTolerance),
		opt.SetMinObjective(minFunc),
		opt.SetMaxEval(maxEval),
	)
	if err != nil {
		return nil, errors.Wrap(err, "configuring nlopt")
	}

	_, _, nloptErr := opt.Optimize(start)
	if failed {
		return nil, NewSolverError(ErrNumericalFailure)
	}
	if best.n == 0 {
		if nloptErr != nil {
			return nil, NewSolverError(nloptErr)
		}
		return nil, NewSolverError(errors.New("nlopt never evaluated the objective"))
	}

	status := StatusConverged
	if stopped || best.n >= maxEval {
		status = StatusLimitReached
	}
	// nlopt reports roundoff-limited stops as errors; the best point seen is still valid.
	return &MinimizeResult{
		X:           best.x,
		F:           best.f,
		Status:      status,
		Iterations:  best.n,
		Evaluations: best.n,
	}, nil
}
