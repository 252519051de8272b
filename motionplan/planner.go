// Package motionplan solves inverse kinematics and trajectory problems over a kinematic model by multi-start
// optimization of a weighted objective.
package motionplan

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"

	"go.viam.com/kinopt/collision"
	"go.viam.com/kinopt/logging"
	"go.viam.com/kinopt/motionplan/ik"
	"go.viam.com/kinopt/referenceframe"
	spatial "go.viam.com/kinopt/spatialmath"
)

// Goal is a target world pose for one link.
type Goal struct {
	Link string
	Pose spatial.Pose
	// PositionOnly ignores the orientation of Pose.
	PositionOnly bool
}

// Outcome is the result of solving one goal. Its Inputs is the full joint state, locked joints included.
type Outcome = ik.Outcome

// Planner solves goals for one model. It is safe for concurrent use.
type Planner struct {
	model     *referenceframe.Model
	store     *collision.GeometryStore
	filter    *collision.Filter
	distancer collision.Distancer
	minimizer ik.Minimizer
	logger    logging.Logger
	clock     clock.Clock
	metrics   *Metrics
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithCollisionFilter replaces the adjacency filter derived from the model, for example with a learned one.
func WithCollisionFilter(f *collision.Filter) PlannerOption {
	return func(p *Planner) {
		p.filter = f
	}
}

// WithDistancer replaces the signed distance primitive.
func WithDistancer(d collision.Distancer) PlannerOption {
	return func(p *Planner) {
		p.distancer = d
	}
}

// WithMinimizer uses m for every solve instead of the one named by Options.Method.
func WithMinimizer(m ik.Minimizer) PlannerOption {
	return func(p *Planner) {
		p.minimizer = m
	}
}

// WithPlannerClock replaces the clock used for time budgets and durations.
func WithPlannerClock(c clock.Clock) PlannerOption {
	return func(p *Planner) {
		p.clock = c
	}
}

// WithMetrics records solve metrics.
func WithMetrics(m *Metrics) PlannerOption {
	return func(p *Planner) {
		p.metrics = m
	}
}

// NewPlanner returns a planner for the model.
func NewPlanner(model *referenceframe.Model, logger logging.Logger, opts ...PlannerOption) (*Planner, error) {
	if model == nil {
		return nil, errors.New("planner needs a model")
	}
	p := &Planner{
		model:  model,
		store:  collision.NewGeometryStore(model),
		logger: logger,
		clock:  clock.New(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.filter == nil {
		p.filter = collision.NewFilter(model)
	}
	if p.filter.Size() != model.NumLinks() {
		return nil, errors.Errorf("collision filter covers %d links but the model has %d", p.filter.Size(), model.NumLinks())
	}
	return p, nil
}

// Model returns the planner's model.
func (p *Planner) Model() *referenceframe.Model {
	return p.model
}

// solveContext holds what every goal of one solve call shares.
type solveContext struct {
	opts   *Options
	mask   *referenceframe.InputMask
	engine *collision.ProximityEngine
	driver *ik.Driver
}

func (p *Planner) newSolveContext(start []referenceframe.Input, opts *Options) (*solveContext, []referenceframe.Input, error) {
	if opts == nil {
		opts = NewDefaultOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	if start == nil {
		start = p.model.ZeroInputs()
	}
	if err := p.model.ValidateInputs(start); err != nil {
		return nil, nil, err
	}
	mask, err := referenceframe.NewInputMask(p.model, opts.LockedJoints)
	if err != nil {
		return nil, nil, newBadOptionsError("locked_joints: %v", err)
	}

	minimizer := p.minimizer
	if minimizer == nil {
		if minimizer, err = opts.newMinimizer(); err != nil {
			return nil, nil, err
		}
	}
	driver, err := ik.NewDriver(p.logger, minimizer, ik.WithClock(p.clock), ik.WithRestartHook(p.metrics.restartHook()))
	if err != nil {
		return nil, nil, err
	}

	sc := &solveContext{opts: opts, mask: mask, driver: driver}
	if opts.Weights.Collision > 0 {
		engineOpts := []collision.ProximityOption{collision.WithParallelism(opts.Parallelism)}
		if p.distancer != nil {
			engineOpts = append(engineOpts, collision.WithDistancer(p.distancer))
		}
		store := p.store
		if len(opts.AbsentLinks) > 0 {
			if store, err = p.store.WithoutLinks(opts.AbsentLinks...); err != nil {
				return nil, nil, newBadOptionsError("absent_links: %v", err)
			}
		}
		if sc.engine, err = collision.NewProximityEngine(store, p.filter, engineOpts...); err != nil {
			return nil, nil, err
		}
	}
	return sc, referenceframe.CopyInputs(start), nil
}

// objective builds the weighted objective for one goal. reference is the smoothness reference as a full
// joint state, and may be nil to drop the smoothness term.
func (p *Planner) objective(
	sc *solveContext,
	goal Goal,
	reference []referenceframe.Input,
	obstacles []spatial.Geometry,
) (*ik.Objective, error) {
	link, err := p.model.LinkIndex(goal.Link)
	if err != nil {
		return nil, err
	}
	if goal.Pose == nil {
		return nil, errors.Errorf("goal for link %q has no pose", goal.Link)
	}
	w := sc.opts.Weights
	terms := []ik.WeightedTerm{
		{Term: ik.NewPositionMetric(link, goal.Pose.Point()), Weight: w.Position},
		{Term: ik.NewJointLimitMetric(p.model), Weight: w.JointLimit},
	}
	if !goal.PositionOnly {
		terms = append(terms, ik.WeightedTerm{Term: ik.NewOrientationMetric(link, goal.Pose.Orientation()), Weight: w.Orientation})
	}
	if sc.engine != nil {
		collide, err := ik.NewCollisionMetric(sc.engine, obstacles, sc.opts.Margin)
		if err != nil {
			return nil, err
		}
		terms = append(terms, ik.WeightedTerm{Term: collide, Weight: w.Collision})
	}
	if reference != nil {
		terms = append(terms, ik.WeightedTerm{Term: ik.NewSmoothnessMetric(reference), Weight: w.Smoothness})
	}
	return ik.NewObjective(p.model, sc.mask, terms, ik.WithFiniteDifferenceStep(sc.opts.FDStep))
}

func (sc *solveContext) freeBounds() ([]referenceframe.Limit, []bool) {
	rotational := make([]bool, sc.mask.FreeDoF())
	for i := range rotational {
		rotational[i] = sc.mask.IsRotationalFree(i)
	}
	return sc.mask.FreeLimits(), rotational
}

func (sc *solveContext) spec(cost ik.CostFunction, guess []float64, limits []referenceframe.Limit, rotational []bool, seed int64) ik.SolveSpec {
	return ik.SolveSpec{
		Cost:              cost,
		Limits:            limits,
		Rotational:        rotational,
		InitialGuess:      guess,
		IterationBudget:   sc.opts.IterationBudget,
		TimeBudget:        sc.opts.TimeBudget(),
		Restarts:          sc.opts.RestartCount,
		Seed:              seed,
		PerturbationScale: sc.opts.PerturbationScale,
		Parallelism:       sc.opts.Parallelism,
		Tolerances:        sc.opts.tolerances(),
	}
}

// expand replaces the outcome's optimization vector with the full joint state.
func (sc *solveContext) expand(out *Outcome) error {
	if out.Kind == ik.SolverError {
		return nil
	}
	full, err := sc.mask.Expand(out.Inputs)
	if err != nil {
		return err
	}
	out.Inputs = full
	return nil
}

// SolveIK searches for a joint state placing goal.Link at goal.Pose while keeping clear of obstacles, which are
// in the world frame. start is the full initial joint state and the smoothness reference; nil means all
// zeros. A nil opts uses NewDefaultOptions.
func (p *Planner) SolveIK(
	ctx context.Context,
	goal Goal,
	start []referenceframe.Input,
	obstacles []spatial.Geometry,
	opts *Options,
) (*Outcome, error) {
	began := p.clock.Now()
	sc, start, err := p.newSolveContext(start, opts)
	if err != nil {
		return nil, err
	}
	out, err := p.solveGoal(ctx, sc, goal, start, start, obstacles, sc.opts.Seed)
	if err != nil {
		return nil, err
	}
	p.metrics.observeSolve("ik", out.Kind, p.clock.Since(began))
	return out, nil
}

func (p *Planner) solveGoal(
	ctx context.Context,
	sc *solveContext,
	goal Goal,
	guess, reference []referenceframe.Input,
	obstacles []spatial.Geometry,
	seed int64,
) (*Outcome, error) {
	obj, err := p.objective(sc, goal, reference, obstacles)
	if err != nil {
		return nil, err
	}
	free, err := sc.mask.Reduce(guess)
	if err != nil {
		return nil, err
	}
	limits, rotational := sc.freeBounds()
	out, err := sc.driver.Solve(ctx, sc.spec(obj, free, limits, rotational, seed))
	if err != nil {
		return nil, err
	}
	p.metrics.observeCost(obj.Evaluations())
	if err := sc.expand(out); err != nil {
		return nil, err
	}
	return out, nil
}

// SolveIK builds a planner for a single solve. See Planner.SolveIK.
func SolveIK(
	ctx context.Context,
	logger logging.Logger,
	model *referenceframe.Model,
	goal Goal,
	obstacles []spatial.Geometry,
	opts *Options,
) (*Outcome, error) {
	p, err := NewPlanner(model, logger)
	if err != nil {
		return nil, err
	}
	return p.SolveIK(ctx, goal, nil, obstacles, opts)
}
