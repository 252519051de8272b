package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/kinopt/collision"
	"go.viam.com/kinopt/kinematics"
	"go.viam.com/kinopt/logging"
	"go.viam.com/kinopt/motionplan"
)

type runner struct {
	logger  logging.Logger
	closers []io.Closer
}

func (r *runner) close() error {
	// syncing a terminal stderr fails on some platforms
	//nolint:errcheck
	r.logger.Sync()
	var err error
	for _, c := range r.closers {
		err = multierr.Append(err, c.Close())
	}
	r.closers = nil
	return err
}

func (r *runner) load(c *cli.Context) (*problem, error) {
	if c.NArg() != 1 {
		return nil, errors.Errorf("%s expects exactly one problem file, got %d arguments", c.Command.Name, c.NArg())
	}
	p, err := loadProblem(c.Args().First())
	if err != nil {
		return nil, err
	}
	r.logger.Debugw("loaded problem",
		"model", p.model.Name(),
		"dof", p.model.DoF(),
		"goals", len(p.goals),
		"obstacles", len(p.obstacles),
	)
	return p, nil
}

func commandContext(c *cli.Context) (context.Context, context.CancelFunc) {
	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout := c.Duration(flagTimeout); timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return context.WithCancel(ctx)
}

func (r *runner) solveAction(c *cli.Context) error {
	p, err := r.load(c)
	if err != nil {
		return err
	}
	idx := c.Int(flagGoal)
	if idx < 0 || idx >= len(p.goals) {
		return errors.Errorf("goal %d out of range, the problem has %d goals", idx, len(p.goals))
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	planner, err := motionplan.NewPlanner(p.model, r.logger.Sublogger("planner"))
	if err != nil {
		return err
	}
	out, err := planner.SolveIK(ctx, p.goals[idx], p.start, p.obstacles, p.options)
	if err != nil {
		return err
	}
	return printOutcomes(c.App.Writer, p.model, p.goals[idx:idx+1], []*motionplan.Outcome{out})
}

func (r *runner) trajectoryAction(c *cli.Context) error {
	p, err := r.load(c)
	if err != nil {
		return err
	}
	if len(p.goals) == 0 {
		return errors.New("problem has no goals")
	}
	if mode := c.String(flagMode); mode != "" {
		p.options.Mode = motionplan.Mode(mode)
		if err := p.options.Validate(); err != nil {
			return err
		}
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	planner, err := motionplan.NewPlanner(p.model, r.logger.Sublogger("planner"))
	if err != nil {
		return err
	}
	outcomes, err := planner.SolveTrajectory(ctx, p.goals, p.start, p.obstacles, p.options)
	if err != nil {
		return err
	}
	if len(outcomes) < len(p.goals) {
		r.logger.Warnw("trajectory stopped early", "solved", len(outcomes), "goals", len(p.goals))
	}
	return printOutcomes(c.App.Writer, p.model, p.goals[:len(outcomes)], outcomes)
}

func (r *runner) checkAction(c *cli.Context) error {
	p, err := r.load(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	state := p.startState()
	lt, err := kinematics.ComputeLinkTransforms(p.model, state)
	if err != nil {
		return err
	}
	engine, err := collision.NewProximityEngine(collision.NewGeometryStore(p.model), collision.NewFilter(p.model))
	if err != nil {
		return err
	}
	prox, err := engine.MinDistances(ctx, lt, p.obstacles)
	if err != nil {
		return err
	}
	if len(prox) == 0 {
		fmt.Fprintln(c.App.Writer, "no pairs to check")
		return nil
	}
	printProximity(c.App.Writer, p.model, p.obstacles, prox, p.options.Margin)
	return nil
}

func (r *runner) learnAction(c *cli.Context) error {
	p, err := r.load(c)
	if err != nil {
		return err
	}
	ctx, cancel := commandContext(c)
	defer cancel()

	report, err := collision.LearnFilter(ctx, collision.NewGeometryStore(p.model), collision.NewFilter(p.model),
		collision.LearnOptions{
			Samples:     c.Int(flagSamples),
			Seed:        c.Int64(flagSeed),
			Parallelism: p.options.Parallelism,
		})
	if err != nil {
		return err
	}
	printLearnReport(c.App.Writer, p.model, report)
	return nil
}

func schemaAction(c *cli.Context) error {
	schema := jsonschema.Reflect(&problemConfig{})
	out, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(c.App.Writer, string(out))
	return nil
}
