package motionplan

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/kinopt/logging"
	"go.viam.com/kinopt/motionplan/ik"
	"go.viam.com/kinopt/referenceframe"
	spatial "go.viam.com/kinopt/spatialmath"
)

// waypointSeedStride separates the restart seeds of consecutive sequential waypoints.
const waypointSeedStride = 1009

// SolveTrajectory solves a sequence of goals starting from start (nil means all zeros).
//
// In SequentialMode each waypoint is solved from the previous result, which is also its smoothness reference.
// Solving stops at the first waypoint that does not converge feasibly, so the returned slice may be shorter
// than goals; its last element is then the failing waypoint. In JointMode every waypoint is optimized at once
// with the squared step between consecutive waypoints weighted by Weights.Smoothness, and one outcome is
// returned per goal.
func (p *Planner) SolveTrajectory(
	ctx context.Context,
	goals []Goal,
	start []referenceframe.Input,
	obstacles []spatial.Geometry,
	opts *Options,
) ([]*Outcome, error) {
	if len(goals) == 0 {
		return nil, errors.New("trajectory needs at least one goal")
	}
	began := p.clock.Now()
	sc, start, err := p.newSolveContext(start, opts)
	if err != nil {
		return nil, err
	}
	var outcomes []*Outcome
	if sc.opts.Mode == JointMode {
		outcomes, err = p.solveJoint(ctx, sc, goals, start, obstacles)
	} else {
		outcomes, err = p.solveSequential(ctx, sc, goals, start, obstacles)
	}
	if err != nil {
		return nil, err
	}
	p.metrics.observeSolve("trajectory", outcomes[len(outcomes)-1].Kind, p.clock.Since(began))
	return outcomes, nil
}

func (p *Planner) solveSequential(
	ctx context.Context,
	sc *solveContext,
	goals []Goal,
	start []referenceframe.Input,
	obstacles []spatial.Geometry,
) ([]*Outcome, error) {
	outcomes := make([]*Outcome, 0, len(goals))
	prev := start
	for k, goal := range goals {
		out, err := p.solveGoal(ctx, sc, goal, prev, prev, obstacles, sc.opts.Seed+int64(k)*waypointSeedStride)
		if err != nil {
			return nil, errors.Wrapf(err, "waypoint %d", k)
		}
		outcomes = append(outcomes, out)
		if out.Kind != ik.Converged {
			p.logger.Debugw("stopping trajectory at unsolved waypoint", "waypoint", k, "outcome", out.Kind.String())
			break
		}
		prev = out.Inputs
	}
	return outcomes, nil
}

func (p *Planner) solveJoint(
	ctx context.Context,
	sc *solveContext,
	goals []Goal,
	start []referenceframe.Input,
	obstacles []spatial.Geometry,
) ([]*Outcome, error) {
	waypoints := make([]*ik.Objective, 0, len(goals))
	for k, goal := range goals {
		obj, err := p.objective(sc, goal, nil, obstacles)
		if err != nil {
			return nil, errors.Wrapf(err, "waypoint %d", k)
		}
		waypoints = append(waypoints, obj)
	}
	free, err := sc.mask.Reduce(start)
	if err != nil {
		return nil, err
	}
	traj, err := ik.NewTrajectoryObjective(waypoints, free, sc.opts.Weights.Smoothness)
	if err != nil {
		return nil, err
	}

	waypointLimits, waypointRotational := sc.freeBounds()
	var limits []referenceframe.Limit
	var rotational []bool
	var guess []float64
	for range goals {
		limits = append(limits, waypointLimits...)
		rotational = append(rotational, waypointRotational...)
		guess = append(guess, free...)
	}
	whole, err := sc.driver.Solve(ctx, sc.spec(traj, guess, limits, rotational, sc.opts.Seed))
	if err != nil {
		return nil, err
	}
	for _, obj := range waypoints {
		p.metrics.observeCost(obj.Evaluations())
	}

	outcomes := make([]*Outcome, len(goals))
	if whole.Kind == ik.SolverError {
		for k := range outcomes {
			failed := *whole
			outcomes[k] = &failed
		}
		return outcomes, nil
	}
	parts, err := traj.Split(whole.Inputs)
	if err != nil {
		return nil, err
	}
	for k, part := range parts {
		out, err := ik.Assess(waypoints[k], part, waypointLimits, sc.opts.tolerances())
		if err != nil {
			return nil, errors.Wrapf(err, "waypoint %d", k)
		}
		if whole.Kind == ik.IterationLimitReached {
			out.Kind = ik.IterationLimitReached
		}
		out.Start = whole.Start
		out.Iterations = whole.Iterations
		out.Evaluations = whole.Evaluations
		if err := sc.expand(out); err != nil {
			return nil, err
		}
		outcomes[k] = out
	}
	return outcomes, nil
}

// SolveTrajectory builds a planner for a single trajectory solve. See Planner.SolveTrajectory.
func SolveTrajectory(
	ctx context.Context,
	logger logging.Logger,
	model *referenceframe.Model,
	goals []Goal,
	obstacles []spatial.Geometry,
	opts *Options,
) ([]*Outcome, error) {
	p, err := NewPlanner(model, logger)
	if err != nil {
		return nil, err
	}
	return p.SolveTrajectory(ctx, goals, nil, obstacles, opts)
}
