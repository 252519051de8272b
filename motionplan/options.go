package motionplan

import (
	"math"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"

	"go.viam.com/kinopt/motionplan/ik"
)

// Mode selects how trajectories are solved.
type Mode string

const (
	// SequentialMode solves each waypoint in turn, seeding it with the previous result.
	SequentialMode Mode = "sequential"
	// JointMode optimizes every waypoint in a single vector.
	JointMode Mode = "joint"
)

// default values for planning options.
const (
	defaultMargin               = 0.02
	defaultIterationBudget      = 200
	defaultRestartCount         = 4
	defaultGoalTolerance        = 1e-3
	defaultOrientationTolerance = 1e-3
	defaultFeasibilityTolerance = 1e-6
	defaultPerturbationScale    = 0.5
)

// Weights scale each objective term in the total cost.
type Weights struct {
	Position    float64 `json:"position"`
	Orientation float64 `json:"orientation"`
	Collision   float64 `json:"collision"`
	JointLimit  float64 `json:"joint_limit"`
	Smoothness  float64 `json:"smoothness"`
}

// Options configures a solve.
type Options struct {
	// Margin is the clearance below which the collision term becomes non-zero.
	Margin          float64 `json:"margin"`
	Weights         Weights `json:"weights"`
	IterationBudget int     `json:"iteration_budget"`
	// TimeBudgetMS is the wall-clock budget of each optimization in milliseconds; sequential trajectories
	// apply it per waypoint. Zero means none.
	TimeBudgetMS int   `json:"time_budget_ms"`
	RestartCount int   `json:"restart_count"`
	Mode         Mode  `json:"mode"`
	Seed         int64 `json:"seed"`
	// GoalTolerance is the position error, and OrientationTolerance the orientation error in radians, under
	// which a goal counts as reached.
	GoalTolerance        float64 `json:"goal_tolerance"`
	OrientationTolerance float64 `json:"orientation_tolerance"`
	// FeasibilityTolerance bounds the unweighted collision and joint limit terms of a feasible state.
	FeasibilityTolerance float64 `json:"feasibility_tolerance"`
	PerturbationScale    float64 `json:"perturbation_scale"`
	FDStep               float64 `json:"fd_step"`
	// Method names the local minimizer: one of the gonum methods or slsqp.
	Method string `json:"method"`
	// LockedJoints pins the named joints at the given values for the whole solve.
	LockedJoints map[string][]float64 `json:"locked_joints"`
	// AbsentLinks are links treated as not present: their shapes take no part in collision checks.
	AbsentLinks []string `json:"absent_links"`
	Parallelism int      `json:"parallelism"`
}

// NewDefaultOptions returns the options used when a caller supplies none.
func NewDefaultOptions() *Options {
	return &Options{
		Margin: defaultMargin,
		Weights: Weights{
			Position:    1,
			Orientation: 1,
			Collision:   100,
			JointLimit:  10,
			Smoothness:  1e-6,
		},
		IterationBudget:      defaultIterationBudget,
		RestartCount:         defaultRestartCount,
		Mode:                 SequentialMode,
		GoalTolerance:        defaultGoalTolerance,
		OrientationTolerance: defaultOrientationTolerance,
		FeasibilityTolerance: defaultFeasibilityTolerance,
		PerturbationScale:    defaultPerturbationScale,
		FDStep:               ik.DefaultFiniteDifferenceStep,
		Method:               ik.MethodLBFGS,
	}
}

// NewOptionsFromMap overlays the given attributes on the defaults. Keys use the json names of Options; unknown
// keys are rejected.
func NewOptionsFromMap(attributes map[string]interface{}) (*Options, error) {
	opts := NewDefaultOptions()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           opts,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, newBadOptionsError("%v", err)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

// Validate checks that every option is in range.
func (o *Options) Validate() error {
	nonNegative := map[string]float64{
		"margin":                o.Margin,
		"weights.position":      o.Weights.Position,
		"weights.orientation":   o.Weights.Orientation,
		"weights.collision":     o.Weights.Collision,
		"weights.joint_limit":   o.Weights.JointLimit,
		"weights.smoothness":    o.Weights.Smoothness,
		"goal_tolerance":        o.GoalTolerance,
		"orientation_tolerance": o.OrientationTolerance,
		"feasibility_tolerance": o.FeasibilityTolerance,
		"perturbation_scale":    o.PerturbationScale,
		"fd_step":               o.FDStep,
	}
	for name, v := range nonNegative {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return newBadOptionsError("%s must be finite and non-negative, got %v", name, v)
		}
	}
	if o.IterationBudget < 0 || o.TimeBudgetMS < 0 || o.RestartCount < 0 || o.Parallelism < 0 {
		return newBadOptionsError("budgets, restart_count and parallelism must be non-negative")
	}
	switch o.Mode {
	case SequentialMode, JointMode:
	default:
		return newBadOptionsError("unknown mode %q", o.Mode)
	}
	if !ik.IsGonumMethod(o.Method) && !strings.EqualFold(o.Method, ik.MethodSLSQP) {
		return newBadOptionsError("unknown method %q", o.Method)
	}
	return nil
}

// TimeBudget returns the wall-clock budget as a duration.
func (o *Options) TimeBudget() time.Duration {
	return time.Duration(o.TimeBudgetMS) * time.Millisecond
}

func (o *Options) tolerances() ik.Tolerances {
	return ik.Tolerances{
		Feasibility: o.FeasibilityTolerance,
		Position:    o.GoalTolerance,
		Orientation: o.OrientationTolerance,
	}
}

func (o *Options) newMinimizer() (ik.Minimizer, error) {
	if strings.EqualFold(o.Method, ik.MethodSLSQP) {
		nm, err := ik.NewNloptMinimizer(0)
		if err != nil {
			return nil, err
		}
		return nm, nil
	}
	gm, err := ik.NewGonumMinimizer(o.Method)
	if err != nil {
		return nil, err
	}
	return gm, nil
}
