package ik

import (
	"math"
	"sort"

	"go.viam.com/kinopt/referenceframe"
)

// OutcomeKind is the result category of a solve.
type OutcomeKind int

const (
	// Converged means the optimizer converged on a state that satisfies every tolerance.
	Converged OutcomeKind = iota
	// ConvergedInfeasible means the optimizer converged but at least one tolerance is violated.
	ConvergedInfeasible
	// IterationLimitReached means an iteration or time budget ran out; the state is the best one seen.
	IterationLimitReached
	// SolverError means no start produced a usable state.
	SolverError
)

func (k OutcomeKind) String() string {
	switch k {
	case Converged:
		return "converged"
	case ConvergedInfeasible:
		return "converged_infeasible"
	case IterationLimitReached:
		return "iteration_limit_reached"
	case SolverError:
		return "solver_error"
	default:
		return "unknown"
	}
}

// PoseViolation is reported when the position or orientation goal is missed. Penalty violations use the
// term names.
const PoseViolation = "pose"

// Outcome is the single result of a solve. Inputs is the optimization vector; Err is set only for SolverError.
type Outcome struct {
	Kind        OutcomeKind
	Inputs      []referenceframe.Input
	Cost        float64
	Breakdown   Breakdown
	Violations  []string
	Err         error
	Start       int
	Iterations  int
	Evaluations int
}

// Feasible reports whether the collision and joint limit penalties are within tol. A DOF pinned at a bound
// is reported in Violations but leaves the state feasible, since the state itself respects its limits.
func (o *Outcome) Feasible(tol float64) bool {
	if o.Kind == SolverError {
		return false
	}
	return o.Breakdown[CollisionTerm] <= tol && o.Breakdown[JointLimitTerm] <= tol
}

// Tolerances decide when a converged state counts as satisfying the objective.
type Tolerances struct {
	// Feasibility bounds the unweighted collision and joint limit terms.
	Feasibility float64
	// Position bounds the position error, in model length units.
	Position float64
	// Orientation bounds the orientation error, in radians.
	Orientation float64
}

// DefaultTolerances returns tolerances of 1e-3 for the pose and 1e-6 for the penalties.
func DefaultTolerances() Tolerances {
	return Tolerances{Feasibility: 1e-6, Position: 1e-3, Orientation: 1e-3}
}

// pinFraction is how close, relative to the range, a DOF must be to a bound to count as pinned.
const pinFraction = 1e-3

// Violations returns the sorted tolerance violations of a state with the given breakdown. grad is the cost
// gradient at x and may be nil; with it, a missed pose goal with a DOF pressed outward against a bound is
// reported as a joint limit violation.
func Violations(
	breakdown Breakdown,
	x []float64,
	grad []float64,
	limits []referenceframe.Limit,
	tol Tolerances,
) []string {
	found := map[string]bool{}
	if breakdown[CollisionTerm] > tol.Feasibility {
		found[CollisionTerm] = true
	}
	if breakdown[JointLimitTerm] > tol.Feasibility {
		found[JointLimitTerm] = true
	}
	if math.Sqrt(breakdown[PositionTerm]) > tol.Position || math.Sqrt(breakdown[OrientationTerm]) > tol.Orientation {
		found[PoseViolation] = true
	}
	if found[PoseViolation] && grad != nil && pinnedAtLimit(x, grad, limits) {
		found[JointLimitTerm] = true
	}
	out := make([]string, 0, len(found))
	for name := range found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func pinnedAtLimit(x, grad []float64, limits []referenceframe.Limit) bool {
	for i, limit := range limits {
		if i >= len(x) || i >= len(grad) {
			break
		}
		if math.IsInf(limit.Min, -1) && math.IsInf(limit.Max, 1) {
			continue
		}
		width := 1.
		if limit.IsFinite() {
			width = math.Max(limit.Max-limit.Min, 1)
		}
		near := pinFraction * width
		if !math.IsInf(limit.Min, -1) && x[i]-limit.Min <= near && grad[i] > 1e-9 {
			return true
		}
		if !math.IsInf(limit.Max, 1) && limit.Max-x[i] <= near && grad[i] < -1e-9 {
			return true
		}
	}
	return false
}

// Assess evaluates cost at x and reports the state as Converged, or ConvergedInfeasible when a tolerance is
// violated. It does not know how the state was found; callers override Kind for budget-limited solves.
func Assess(cost CostFunction, x []float64, limits []referenceframe.Limit, tol Tolerances) (*Outcome, error) {
	c, breakdown, err := cost.Evaluate(x)
	if err != nil {
		return nil, err
	}
	out := &Outcome{
		Kind:      Converged,
		Inputs:    append([]referenceframe.Input(nil), x...),
		Cost:      c,
		Breakdown: breakdown,
	}
	grad := make([]float64, cost.Dim())
	if err := cost.Gradient(x, grad); err != nil {
		grad = nil
	}
	out.Violations = Violations(breakdown, x, grad, limits, tol)
	if len(out.Violations) > 0 {
		out.Kind = ConvergedInfeasible
	}
	return out, nil
}

// classify builds the outcome for a finished local solve.
func classify(cost CostFunction, res *MinimizeResult, limits []referenceframe.Limit, tol Tolerances) *Outcome {
	out, err := Assess(cost, res.X, limits, tol)
	if err != nil {
		return &Outcome{Kind: SolverError, Err: NewSolverError(err), Cost: math.NaN()}
	}
	if res.Status == StatusLimitReached {
		out.Kind = IterationLimitReached
	}
	out.Iterations = res.Iterations
	out.Evaluations = res.Evaluations
	return out
}
