package ik

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/montanaflynn/stats"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"go.viam.com/kinopt/logging"
	"go.viam.com/kinopt/referenceframe"
	"go.viam.com/kinopt/utils"
)

const defaultPerturbationScale = 0.5

// RestartHook is called once for every finished restart, from the restart's goroutine.
type RestartHook func(start int, outcome *Outcome, elapsed time.Duration)

// Driver runs multi-start local optimization of a CostFunction.
type Driver struct {
	logger    logging.Logger
	minimizer Minimizer
	clock     clock.Clock
	hook      RestartHook
}

// DriverOption configures a Driver.
type DriverOption func(*Driver)

// WithClock replaces the wall clock used for time budgets.
func WithClock(c clock.Clock) DriverOption {
	return func(d *Driver) {
		d.clock = c
	}
}

// WithRestartHook registers a callback observing each restart.
func WithRestartHook(hook RestartHook) DriverOption {
	return func(d *Driver) {
		d.hook = hook
	}
}

// NewDriver returns a driver using minimizer for every restart.
func NewDriver(logger logging.Logger, minimizer Minimizer, opts ...DriverOption) (*Driver, error) {
	if minimizer == nil {
		return nil, errors.New("driver needs a minimizer")
	}
	d := &Driver{logger: logger, minimizer: minimizer, clock: clock.New()}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// SolveSpec describes one multi-start solve.
type SolveSpec struct {
	Cost CostFunction
	// Limits and Rotational have one entry per element of the optimization vector. Rotational may be nil.
	Limits          []referenceframe.Limit
	Rotational      []bool
	InitialGuess    []referenceframe.Input
	IterationBudget int
	// TimeBudget is the wall-clock budget of the whole solve. Zero means none.
	TimeBudget time.Duration
	// Restarts is the number of perturbed starts run in addition to the initial guess.
	Restarts int
	Seed     int64
	// PerturbationScale is the fraction of each DOF's sampling half-range used to perturb restarts.
	PerturbationScale float64
	Parallelism       int
	Tolerances        Tolerances
}

// Starts returns the initial guess followed by Restarts perturbed copies. Start i > 0 is drawn from a source
// seeded with Seed+i, so starts do not depend on how many restarts actually run.
func (spec *SolveSpec) Starts() [][]float64 {
	scale := spec.PerturbationScale
	if scale <= 0 {
		scale = defaultPerturbationScale
	}
	starts := [][]float64{append([]float64(nil), spec.InitialGuess...)}
	for i := 1; i <= spec.Restarts; i++ {
		//nolint:gosec
		rng := rand.New(rand.NewSource(spec.Seed + int64(i)))
		x := make([]float64, len(spec.InitialGuess))
		for j, v := range spec.InitialGuess {
			rotational := j < len(spec.Rotational) && spec.Rotational[j]
			lo, hi := referenceframe.SamplingRange(spec.Limits[j], rotational)
			half := (hi - lo) / 2 * scale
			x[j] = utils.Clamp(v+half*(2*rng.Float64()-1), spec.Limits[j].Min, spec.Limits[j].Max)
		}
		starts = append(starts, x)
	}
	return starts
}

func (spec *SolveSpec) validate() error {
	if spec.Cost == nil {
		return errors.New("solve needs a cost function")
	}
	dim := spec.Cost.Dim()
	if len(spec.InitialGuess) != dim {
		return referenceframe.NewIncorrectDoFError(len(spec.InitialGuess), dim)
	}
	if len(spec.Limits) != dim {
		return errors.Errorf("solve of dimension %d given %d limits", dim, len(spec.Limits))
	}
	for i, v := range spec.InitialGuess {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("initial guess value %d is not finite", i)
		}
	}
	if spec.IterationBudget < 0 || spec.TimeBudget < 0 || spec.Restarts < 0 {
		return errors.New("solve budgets and restart count must be non-negative")
	}
	return nil
}

// Solve runs the initial guess and every restart, then selects one outcome: the lowest cost Converged
// outcome, else the lowest cost one whose collision and joint limit penalties are within the feasibility
// tolerance, else the lowest cost of any kind. Ties go to the lowest start.
// Restarts that fail numerically are dropped; SolverError is returned only when every start failed. The
// returned error is reserved for invalid specs and cancellation before any work started.
func (d *Driver) Solve(ctx context.Context, spec SolveSpec) (*Outcome, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	requestID := uuid.New().String()
	logger := d.logger.Sublogger("driver")

	if spec.Cost.Dim() == 0 {
		out := classify(spec.Cost, &MinimizeResult{X: []float64{}}, nil, spec.Tolerances)
		logger.Infow("nothing to optimize, evaluated fixed state", "request_id", requestID, "outcome", out.Kind.String())
		return out, nil
	}

	var deadline time.Time
	if spec.TimeBudget > 0 {
		deadline = d.clock.Now().Add(spec.TimeBudget)
	}
	expired := func() bool {
		return !deadline.IsZero() && !d.clock.Now().Before(deadline)
	}

	starts := spec.Starts()
	lower, upper := referenceframe.LimitsToArrays(spec.Limits)
	parallelism := spec.Parallelism
	if parallelism < 1 {
		parallelism = utils.ParallelFactor
	}

	outcomes := make([]*Outcome, len(starts))
	errs := make([]error, len(starts))
	sem := make(chan struct{}, parallelism)
	var wg sync.WaitGroup
	launched := 0
	for i := range starts {
		sem <- struct{}{}
		if i > 0 && (expired() || ctx.Err() != nil) {
			<-sem
			break
		}
		launched++
		wg.Add(1)
		goutils.PanicCapturingGo(func() {
			defer wg.Done()
			defer func() { <-sem }()
			began := d.clock.Now()
			outcomes[i], errs[i] = d.runOne(ctx, spec, starts[i], lower, upper, expired)
			if outcomes[i] != nil {
				outcomes[i].Start = i
				if d.hook != nil {
					d.hook(i, outcomes[i], d.clock.Since(began))
				}
			}
		})
	}
	wg.Wait()

	var failures error
	costs := make([]float64, 0, launched)
	for i := 0; i < launched; i++ {
		switch {
		case errs[i] != nil:
			logger.Debugw("restart failed", "request_id", requestID, "restart", i, "error", errs[i])
			failures = multierr.Combine(failures, errors.Wrapf(errs[i], "start %d", i))
		case outcomes[i] == nil:
			failures = multierr.Combine(failures, errors.Errorf("start %d did not finish", i))
		default:
			o := outcomes[i]
			costs = append(costs, o.Cost)
			logger.Debugw("restart finished",
				"request_id", requestID,
				"restart", i,
				"outcome", o.Kind.String(),
				"cost", o.Cost,
				"iterations", o.Iterations,
			)
		}
	}

	best := selectOutcome(outcomes[:launched], spec.Tolerances.Feasibility)
	if best == nil {
		out := &Outcome{Kind: SolverError, Cost: math.NaN(), Err: NewSolverError(failures)}
		logger.Infow("every start failed", "request_id", requestID, "starts", launched, "error", failures)
		return out, nil
	}
	median, _ := stats.Median(costs)
	stddev, _ := stats.StandardDeviation(costs)
	logger.Infow("solve finished",
		"request_id", requestID,
		"outcome", best.Kind.String(),
		"start", best.Start,
		"cost", best.Cost,
		"starts", launched,
		"failed", launched-len(costs),
		"cost_median", median,
		"cost_stddev", stddev,
	)
	return best, nil
}

func (d *Driver) runOne(
	ctx context.Context,
	spec SolveSpec,
	x0, lower, upper []float64,
	expired func() bool,
) (*Outcome, error) {
	problem := Problem{
		Dim: spec.Cost.Dim(),
		Func: func(x []float64) float64 {
			c, _, err := spec.Cost.Evaluate(x)
			if err != nil {
				return math.NaN()
			}
			return c
		},
		Grad: func(grad, x []float64) {
			if err := spec.Cost.Gradient(x, grad); err != nil {
				for i := range grad {
					grad[i] = math.NaN()
				}
			}
		},
		Lower: lower,
		Upper: upper,
		Stop:  expired,
	}
	res, err := d.minimizer.Minimize(ctx, problem, x0, spec.IterationBudget)
	if err != nil {
		return nil, NewSolverError(err)
	}
	if len(res.X) != problem.Dim {
		return nil, NewSolverError(errors.Errorf("minimizer returned %d values for %d dof", len(res.X), problem.Dim))
	}
	out := classify(spec.Cost, res, spec.Limits, spec.Tolerances)
	if out.Kind == SolverError {
		return nil, out.Err
	}
	return out, nil
}

// selectOutcome applies the tiered choice described on Solve. Nil entries are ignored.
func selectOutcome(outcomes []*Outcome, feasibility float64) *Outcome {
	tiers := []func(*Outcome) bool{
		func(o *Outcome) bool { return o.Kind == Converged },
		func(o *Outcome) bool { return o.Feasible(feasibility) },
		func(o *Outcome) bool { return true },
	}
	for _, inTier := range tiers {
		var best *Outcome
		for _, o := range outcomes {
			if o == nil || o.Kind == SolverError || !inTier(o) {
				continue
			}
			// Strict comparison keeps the lowest start on exact ties.
			if best == nil || o.Cost < best.Cost {
				best = o
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}
