package ik

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/kinopt/collision"
	"go.viam.com/kinopt/kinematics"
	"go.viam.com/kinopt/logging"
	"go.viam.com/kinopt/referenceframe"
	spatial "go.viam.com/kinopt/spatialmath"
	"go.viam.com/kinopt/utils"
)

type minimizerFunc func(ctx context.Context, p Problem, x0 []float64, budget int) (*MinimizeResult, error)

func (f minimizerFunc) Minimize(ctx context.Context, p Problem, x0 []float64, budget int) (*MinimizeResult, error) {
	return f(ctx, p, x0, budget)
}

// bowlCost is sum (x_i - center_i)^2 reported as the position term.
type bowlCost struct {
	center []float64
}

func (b *bowlCost) Dim() int { return len(b.center) }

func (b *bowlCost) Evaluate(x []float64) (float64, Breakdown, error) {
	if len(x) != len(b.center) {
		return math.NaN(), nil, referenceframe.NewIncorrectDoFError(len(x), len(b.center))
	}
	total := 0.
	for i := range x {
		total += (x[i] - b.center[i]) * (x[i] - b.center[i])
	}
	return total, Breakdown{PositionTerm: total}, nil
}

func (b *bowlCost) Gradient(x, grad []float64) error {
	for i := range x {
		grad[i] = 2 * (x[i] - b.center[i])
	}
	return nil
}

func unboundedLimits(n int) []referenceframe.Limit {
	out := make([]referenceframe.Limit, n)
	for i := range out {
		out[i] = referenceframe.Unbounded()
	}
	return out
}

func TestDriverAbsorbsFailedRestarts(t *testing.T) {
	logger := logging.NewTestLogger(t)
	guess := []float64{0.5, 0.5}
	fake := minimizerFunc(func(_ context.Context, _ Problem, x0 []float64, _ int) (*MinimizeResult, error) {
		if x0[0] != guess[0] || x0[1] != guess[1] {
			return nil, NewSolverError(ErrNumericalFailure)
		}
		return &MinimizeResult{X: []float64{0, 0}, Status: StatusConverged}, nil
	})
	d, err := NewDriver(logger, fake)
	test.That(t, err, test.ShouldBeNil)

	out, err := d.Solve(context.Background(), SolveSpec{
		Cost:         &bowlCost{center: []float64{0, 0}},
		Limits:       unboundedLimits(2),
		InitialGuess: guess,
		Restarts:     5,
		Seed:         3,
		Tolerances:   DefaultTolerances(),
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Kind, test.ShouldEqual, Converged)
	test.That(t, out.Start, test.ShouldEqual, 0)
	test.That(t, out.Inputs, test.ShouldResemble, []float64{0, 0})
	test.That(t, out.Err, test.ShouldBeNil)
}

func TestDriverSurfacesSolverErrorWhenEveryStartFails(t *testing.T) {
	fake := minimizerFunc(func(context.Context, Problem, []float64, int) (*MinimizeResult, error) {
		return nil, ErrNumericalFailure
	})
	d, err := NewDriver(logging.NewTestLogger(t), fake)
	test.That(t, err, test.ShouldBeNil)
	out, err := d.Solve(context.Background(), SolveSpec{
		Cost:         &bowlCost{center: []float64{1}},
		Limits:       unboundedLimits(1),
		InitialGuess: []float64{0},
		Restarts:     3,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Kind, test.ShouldEqual, SolverError)
	test.That(t, errors.Is(out.Err, ErrSolver), test.ShouldBeTrue)
	test.That(t, out.Err.Error(), test.ShouldContainSubstring, "start 3")
	test.That(t, out.Inputs, test.ShouldBeNil)
}

func TestDriverTieBreakAndTiers(t *testing.T) {
	// Every start reports the same state, so the costs tie exactly.
	fake := minimizerFunc(func(context.Context, Problem, []float64, int) (*MinimizeResult, error) {
		return &MinimizeResult{X: []float64{0.25}, Status: StatusConverged}, nil
	})
	d, err := NewDriver(logging.NewTestLogger(t), fake, WithRestartHook(func(int, *Outcome, time.Duration) {}))
	test.That(t, err, test.ShouldBeNil)
	out, err := d.Solve(context.Background(), SolveSpec{
		Cost:         &bowlCost{center: []float64{0}},
		Limits:       unboundedLimits(1),
		InitialGuess: []float64{1},
		Restarts:     6,
		Parallelism:  3,
		Tolerances:   DefaultTolerances(),
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Start, test.ShouldEqual, 0)
	test.That(t, out.Kind, test.ShouldEqual, ConvergedInfeasible)
	test.That(t, out.Violations, test.ShouldResemble, []string{PoseViolation})

	converged := &Outcome{Kind: Converged, Cost: 5, Start: 4}
	infeasible := &Outcome{
		Kind: ConvergedInfeasible, Cost: 1, Start: 1,
		Breakdown: Breakdown{CollisionTerm: 0.2}, Violations: []string{CollisionTerm},
	}
	limited := &Outcome{Kind: IterationLimitReached, Cost: 2, Start: 2}
	tol := DefaultTolerances().Feasibility
	test.That(t, selectOutcome([]*Outcome{nil, infeasible, limited, nil, converged}, tol), test.ShouldEqual, converged)
	test.That(t, selectOutcome([]*Outcome{nil, infeasible, limited}, tol), test.ShouldEqual, limited)
	test.That(t, selectOutcome([]*Outcome{nil, infeasible}, tol), test.ShouldEqual, infeasible)
	test.That(t, selectOutcome([]*Outcome{nil}, tol), test.ShouldBeNil)
}

func TestSelectOutcomeKeepsPinnedStatesFeasible(t *testing.T) {
	// A state pressed against a bound is within its limits; only the report flags it.
	saddle := &Outcome{
		Kind: ConvergedInfeasible, Cost: 10.24, Start: 0,
		Breakdown: Breakdown{PositionTerm: 10.24}, Violations: []string{PoseViolation},
	}
	pinned := &Outcome{
		Kind: ConvergedInfeasible, Cost: 0.545, Start: 2,
		Breakdown: Breakdown{PositionTerm: 0.545}, Violations: []string{JointLimitTerm, PoseViolation},
	}
	tol := DefaultTolerances().Feasibility
	test.That(t, pinned.Feasible(tol), test.ShouldBeTrue)
	test.That(t, selectOutcome([]*Outcome{saddle, nil, pinned}, tol), test.ShouldEqual, pinned)

	overLimit := &Outcome{Kind: ConvergedInfeasible, Cost: 0.1, Breakdown: Breakdown{JointLimitTerm: 1e-3}}
	test.That(t, overLimit.Feasible(tol), test.ShouldBeFalse)
	test.That(t, selectOutcome([]*Outcome{saddle, overLimit, pinned}, tol), test.ShouldEqual, pinned)
	test.That(t, (&Outcome{Kind: SolverError}).Feasible(tol), test.ShouldBeFalse)
}

func TestDriverTimeBudget(t *testing.T) {
	mock := clock.NewMock()
	var mu sync.Mutex
	var finished []int
	fake := minimizerFunc(func(_ context.Context, p Problem, x0 []float64, _ int) (*MinimizeResult, error) {
		mock.Add(2 * time.Second)
		test.That(t, p.Stop(), test.ShouldBeTrue)
		return &MinimizeResult{X: x0, F: p.Func(x0), Status: StatusLimitReached}, nil
	})
	hook := func(start int, _ *Outcome, elapsed time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		finished = append(finished, start)
		test.That(t, elapsed, test.ShouldEqual, 2*time.Second)
	}
	d, err := NewDriver(logging.NewTestLogger(t), fake, WithClock(mock), WithRestartHook(hook))
	test.That(t, err, test.ShouldBeNil)

	out, err := d.Solve(context.Background(), SolveSpec{
		Cost:         &bowlCost{center: []float64{0, 0}},
		Limits:       unboundedLimits(2),
		InitialGuess: []float64{1, 1},
		TimeBudget:   time.Second,
		Restarts:     4,
		Parallelism:  1,
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Kind, test.ShouldEqual, IterationLimitReached)
	test.That(t, out.Inputs, test.ShouldResemble, []float64{1, 1})
	test.That(t, out.Cost, test.ShouldAlmostEqual, 2, 1e-12)
	test.That(t, finished, test.ShouldResemble, []int{0})
}

func TestDriverRejectsBadSpecs(t *testing.T) {
	gm, err := NewGonumMinimizer("")
	test.That(t, err, test.ShouldBeNil)
	d, err := NewDriver(logging.NewTestLogger(t), gm)
	test.That(t, err, test.ShouldBeNil)

	_, err = d.Solve(context.Background(), SolveSpec{
		Cost:         &bowlCost{center: []float64{0, 0}},
		Limits:       unboundedLimits(2),
		InitialGuess: []float64{1},
	})
	test.That(t, errors.Is(err, referenceframe.ErrDimensionMismatch), test.ShouldBeTrue)

	_, err = d.Solve(context.Background(), SolveSpec{
		Cost:         &bowlCost{center: []float64{0}},
		Limits:       unboundedLimits(1),
		InitialGuess: []float64{math.NaN()},
	})
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewDriver(logging.NewTestLogger(t), nil)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestStartsAreSeededPerIndex(t *testing.T) {
	spec := SolveSpec{
		Limits:       []referenceframe.Limit{{Min: -1, Max: 1}, referenceframe.Unbounded()},
		Rotational:   []bool{true, true},
		InitialGuess: []float64{0.9, 0},
		Restarts:     3,
		Seed:         11,
	}
	starts := spec.Starts()
	test.That(t, starts, test.ShouldHaveLength, 4)
	test.That(t, starts[0], test.ShouldResemble, []float64{0.9, 0})
	for _, s := range starts[1:] {
		test.That(t, s[0], test.ShouldBeGreaterThanOrEqualTo, -1)
		test.That(t, s[0], test.ShouldBeLessThanOrEqualTo, 1)
		test.That(t, math.Abs(s[1]), test.ShouldBeLessThanOrEqualTo, math.Pi/2)
	}
	spec.Restarts = 5
	longer := spec.Starts()
	test.That(t, longer[:4], test.ShouldResemble, starts)
}

func planarSpec(t *testing.T, m *referenceframe.Model, terms []WeightedTerm, restarts int) SolveSpec {
	t.Helper()
	obj, err := NewObjective(m, nil, terms)
	test.That(t, err, test.ShouldBeNil)
	mask := obj.Mask()
	rotational := make([]bool, mask.FreeDoF())
	for i := range rotational {
		rotational[i] = mask.IsRotationalFree(i)
	}
	return SolveSpec{
		Cost:            obj,
		Limits:          mask.FreeLimits(),
		Rotational:      rotational,
		InitialGuess:    []float64{0.3, 0.5},
		IterationBudget: 500,
		Restarts:        restarts,
		Seed:            7,
		Parallelism:     2,
		Tolerances:      DefaultTolerances(),
	}
}

func TestPlanarArmReachesTarget(t *testing.T) {
	m := planarArm(t, nil)
	tip := tipIndex(t, m)
	goal := r3.Vector{X: math.Sqrt2, Y: math.Sqrt2}
	gm, err := NewGonumMinimizer(MethodLBFGS)
	test.That(t, err, test.ShouldBeNil)
	d, err := NewDriver(logging.NewTestLogger(t), gm)
	test.That(t, err, test.ShouldBeNil)

	spec := planarSpec(t, m, []WeightedTerm{{Term: NewPositionMetric(tip, goal), Weight: 1}}, 3)
	out, err := d.Solve(context.Background(), spec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Kind, test.ShouldEqual, Converged)

	pose, err := kinematics.LinkPose(m, out.Inputs, "tip")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, pose.Point().Sub(goal).Norm(), test.ShouldBeLessThan, 1e-3)
	// The goal is at full extension, so the elbow converges slowly in angle while the tip is already there.
	test.That(t, utils.WrapAngle(out.Inputs[0]), test.ShouldAlmostEqual, math.Pi/4, 0.05)
	test.That(t, utils.WrapAngle(out.Inputs[1]), test.ShouldAlmostEqual, 0, 0.1)

	again, err := d.Solve(context.Background(), spec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again.Start, test.ShouldEqual, out.Start)
	test.That(t, again.Inputs, test.ShouldResemble, out.Inputs)
	test.That(t, again.Cost, test.ShouldEqual, out.Cost)
}

func TestPlanarArmAvoidsObstacle(t *testing.T) {
	m := planarArm(t, nil)
	tip := tipIndex(t, m)
	store := collision.NewGeometryStore(m)
	engine, err := collision.NewProximityEngine(store, nil)
	test.That(t, err, test.ShouldBeNil)
	obstacles := []spatial.Geometry{obstacleSphere(t, r3.Vector{X: 1, Y: 0.5}, 0.1)}
	collide, err := NewCollisionMetric(engine, obstacles, 0.1)
	test.That(t, err, test.ShouldBeNil)

	gm, err := NewGonumMinimizer(MethodLBFGS)
	test.That(t, err, test.ShouldBeNil)
	d, err := NewDriver(logging.NewTestLogger(t), gm)
	test.That(t, err, test.ShouldBeNil)
	spec := planarSpec(t, m, []WeightedTerm{
		{Term: NewPositionMetric(tip, r3.Vector{X: 1, Y: 1}), Weight: 1},
		{Term: collide, Weight: 100},
	}, 8)
	out, err := d.Solve(context.Background(), spec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, []OutcomeKind{Converged, ConvergedInfeasible}, test.ShouldContain, out.Kind)
	if out.Kind == Converged {
		lt, err := kinematics.ComputeLinkTransforms(m, out.Inputs)
		test.That(t, err, test.ShouldBeNil)
		prox, err := engine.MinDistances(context.Background(), lt, obstacles)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, collision.MinimumDistance(prox), test.ShouldBeGreaterThan, 0.1-2e-3)
	} else {
		test.That(t, out.Violations, test.ShouldNotBeEmpty)
	}
}

func TestPlanarArmJointLimit(t *testing.T) {
	m := planarArm(t, &referenceframe.Limit{Min: -0.5, Max: 0.5})
	tip := tipIndex(t, m)
	gm, err := NewGonumMinimizer(MethodLBFGS)
	test.That(t, err, test.ShouldBeNil)
	d, err := NewDriver(logging.NewTestLogger(t), gm)
	test.That(t, err, test.ShouldBeNil)

	spec := planarSpec(t, m, []WeightedTerm{
		{Term: NewPositionMetric(tip, r3.Vector{X: 1, Y: 1}), Weight: 1},
		{Term: NewJointLimitMetric(m), Weight: 10},
	}, 2)
	out, err := d.Solve(context.Background(), spec)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Kind, test.ShouldEqual, ConvergedInfeasible)
	test.That(t, out.Violations, test.ShouldContain, JointLimitTerm)
	test.That(t, out.Violations, test.ShouldContain, PoseViolation)
	test.That(t, math.Abs(out.Inputs[1]), test.ShouldAlmostEqual, 0.5, 1e-3)
}

func TestZeroDoFSolveEvaluatesFixedState(t *testing.T) {
	m, err := referenceframe.NewSerialChain("rigid", referenceframe.SerialSegment{Kind: referenceframe.FixedJoint, Length: 1})
	test.That(t, err, test.ShouldBeNil)
	obj, err := NewObjective(m, nil, []WeightedTerm{{Term: NewPositionMetric(tipIndex(t, m), r3.Vector{X: 1}), Weight: 1}})
	test.That(t, err, test.ShouldBeNil)
	gm, err := NewGonumMinimizer("")
	test.That(t, err, test.ShouldBeNil)
	d, err := NewDriver(logging.NewTestLogger(t), gm)
	test.That(t, err, test.ShouldBeNil)
	out, err := d.Solve(context.Background(), SolveSpec{Cost: obj, Tolerances: DefaultTolerances()})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, out.Kind, test.ShouldEqual, Converged)
	test.That(t, out.Inputs, test.ShouldBeEmpty)
}
