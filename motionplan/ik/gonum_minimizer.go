package ik

import (
	"context"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize"
)

const (
	defaultIterationBudget = 200
	// interiorFraction is how far, as a fraction of the range, starts are pulled inside two-sided bounds.
	interiorFraction = 1e-3
)

// Names of the gonum methods understood by NewGonumMinimizer.
const (
	MethodLBFGS           = "lbfgs"
	MethodBFGS            = "bfgs"
	MethodCG              = "cg"
	MethodGradientDescent = "gradient_descent"
	MethodNelderMead      = "nelder_mead"
)

var gonumMethods = map[string]func() optimize.Method{
	MethodLBFGS:           func() optimize.Method { return &optimize.LBFGS{} },
	MethodBFGS:            func() optimize.Method { return &optimize.BFGS{} },
	MethodCG:              func() optimize.Method { return &optimize.CG{} },
	MethodGradientDescent: func() optimize.Method { return &optimize.GradientDescent{} },
	MethodNelderMead:      func() optimize.Method { return &optimize.NelderMead{} },
}

// IsGonumMethod reports whether name selects a gonum method.
func IsGonumMethod(name string) bool {
	_, ok := gonumMethods[strings.ToLower(name)]
	return ok
}

// GonumMinimizer runs a gonum/optimize method inside a bounds-preserving change of variables. It holds no
// per-solve state and may be used by concurrent restarts.
type GonumMinimizer struct {
	method    string
	newMethod func() optimize.Method
}

// NewGonumMinimizer returns a minimizer for the named method. An empty name selects L-BFGS.
func NewGonumMinimizer(method string) (*GonumMinimizer, error) {
	if method == "" {
		method = MethodLBFGS
	}
	method = strings.ToLower(method)
	ctor, ok := gonumMethods[method]
	if !ok {
		return nil, errors.Errorf("unknown optimization method %q", method)
	}
	return &GonumMinimizer{method: method, newMethod: ctor}, nil
}

// Method returns the name of the wrapped method.
func (gm *GonumMinimizer) Method() string {
	return gm.method
}

// Minimize implements Minimizer.
func (gm *GonumMinimizer) Minimize(ctx context.Context, p Problem, x0 []float64, iterationBudget int) (*MinimizeResult, error) {
	if err := checkProblem(p, x0); err != nil {
		return nil, err
	}
	method := gm.newMethod()
	if _, err := method.Uses(optimize.Available{Grad: p.Grad != nil}); err != nil {
		return nil, errors.Wrapf(err, "method %q", gm.method)
	}
	if iterationBudget < 1 {
		iterationBudget = defaultIterationBudget
	}

	bt := newBoundsTransform(p.Lower, p.Upper)
	start := ensureInterior(x0, p.Lower, p.Upper, interiorFraction)
	best := &bestTracker{}
	failed := false

	f0 := p.Func(start)
	if !isFinite(f0) {
		return nil, NewSolverError(ErrNumericalFailure)
	}
	best.observe(start, f0)

	gx := make([]float64, p.Dim)
	problem := optimize.Problem{
		Func: func(y []float64) float64 {
			x := bt.toExternal(y)
			f := p.Func(x)
			if !isFinite(f) {
				failed = true
				return math.Inf(1)
			}
			best.observe(x, f)
			return f
		},
		Status: func() (optimize.Status, error) {
			if failed {
				return optimize.Failure, ErrNumericalFailure
			}
			if ctx.Err() != nil || (p.Stop != nil && p.Stop()) {
				return optimize.RuntimeLimit, nil
			}
			return optimize.NotTerminated, nil
		},
	}
	if p.Grad != nil {
		problem.Grad = func(grad, y []float64) {
			x := bt.toExternal(y)
			p.Grad(gx, x)
			for i := range grad {
				if !isFinite(gx[i]) {
					failed = true
					grad[i] = 0
					continue
				}
				grad[i] = gx[i] * bt.derivative(i, y[i])
			}
		}
	}

	settings := &optimize.Settings{
		MajorIterations:   iterationBudget,
		GradientThreshold: 1e-10,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-10,
			Iterations: 25,
		},
	}

	result, err := optimize.Minimize(problem, bt.toInternal(start), settings, method)
	if failed {
		return nil, NewSolverError(ErrNumericalFailure)
	}
	status := StatusConverged
	switch {
	case err == nil:
	case errors.Is(err, optimize.ErrNoProgress),
		errors.Is(err, optimize.ErrLinesearcherFailure),
		errors.Is(err, optimize.ErrNonDescentDirection):
		// The method cannot improve on the best point any further.
	default:
		return nil, NewSolverError(err)
	}

	iterations := 0
	if result != nil {
		iterations = result.Stats.MajorIterations
		if isLimitStatus(result.Status) {
			status = StatusLimitReached
		}
	}
	return &MinimizeResult{
		X:           best.x,
		F:           best.f,
		Status:      status,
		Iterations:  iterations,
		Evaluations: best.n,
	}, nil
}

func isLimitStatus(s optimize.Status) bool {
	switch s {
	case optimize.IterationLimit,
		optimize.RuntimeLimit,
		optimize.FunctionEvaluationLimit,
		optimize.GradientEvaluationLimit:
		return true
	default:
		return false
	}
}

func checkProblem(p Problem, x0 []float64) error {
	if p.Dim == 0 {
		return errNothingToSolve
	}
	if p.Func == nil {
		return errors.New("problem has no objective")
	}
	if len(x0) != p.Dim || len(p.Lower) != p.Dim || len(p.Upper) != p.Dim {
		return errors.Errorf("problem of dimension %d given start of length %d and bounds of length %d/%d",
			p.Dim, len(x0), len(p.Lower), len(p.Upper))
	}
	for i := range p.Lower {
		if p.Lower[i] > p.Upper[i] {
			return errors.Errorf("lower bound %v exceeds upper bound %v at %d", p.Lower[i], p.Upper[i], i)
		}
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
