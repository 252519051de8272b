package ik

import (
	"math"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/atomic"
	"gonum.org/v1/gonum/floats"

	"go.viam.com/kinopt/kinematics"
	"go.viam.com/kinopt/referenceframe"
)

// DefaultFiniteDifferenceStep is the central difference step used for terms without an analytic gradient.
const DefaultFiniteDifferenceStep = 1e-6

// Breakdown maps each term name to its unweighted value. Terms sharing a name are summed.
type Breakdown map[string]float64

// WeightedTerm pairs a term with its weight in the total cost.
type WeightedTerm struct {
	Term   Term
	Weight float64
}

// CostFunction is a scalar objective over an optimization vector.
type CostFunction interface {
	Dim() int
	Evaluate(x []float64) (float64, Breakdown, error)
	Gradient(x, grad []float64) error
}

// Objective is the weighted sum of terms evaluated on the joint state obtained by expanding an optimization
// vector through an input mask. It is safe for concurrent use.
type Objective struct {
	model       *referenceframe.Model
	mask        *referenceframe.InputMask
	terms       []WeightedTerm
	step        float64
	numericOnly bool
	evaluations atomic.Int64
}

// ObjectiveOption configures an Objective.
type ObjectiveOption func(*Objective)

// WithFiniteDifferenceStep sets the central difference step. Non-positive values keep the default.
func WithFiniteDifferenceStep(step float64) ObjectiveOption {
	return func(o *Objective) {
		if step > 0 {
			o.step = step
		}
	}
}

// WithNumericGradient ignores analytic term gradients and differentiates every term numerically.
func WithNumericGradient() ObjectiveOption {
	return func(o *Objective) {
		o.numericOnly = true
	}
}

// NewObjective composes terms over the model. A nil mask leaves every DOF free. Terms with zero weight are
// dropped.
func NewObjective(
	m *referenceframe.Model,
	mask *referenceframe.InputMask,
	terms []WeightedTerm,
	opts ...ObjectiveOption,
) (*Objective, error) {
	if m == nil {
		return nil, errors.New("objective needs a model")
	}
	if mask == nil {
		var err error
		if mask, err = referenceframe.NewInputMask(m, nil); err != nil {
			return nil, err
		}
	}
	if mask.DoF() != m.DoF() {
		return nil, referenceframe.NewIncorrectDoFError(mask.DoF(), m.DoF())
	}
	o := &Objective{model: m, mask: mask, step: DefaultFiniteDifferenceStep}
	for _, wt := range terms {
		if wt.Term == nil {
			return nil, errors.New("objective term is nil")
		}
		if wt.Weight < 0 || math.IsNaN(wt.Weight) || math.IsInf(wt.Weight, 0) {
			return nil, errors.Errorf("weight of term %q must be finite and non-negative, got %v", wt.Term.Name(), wt.Weight)
		}
		if wt.Weight == 0 {
			continue
		}
		o.terms = append(o.terms, wt)
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Dim returns the number of free DOF.
func (o *Objective) Dim() int {
	return o.mask.FreeDoF()
}

// Model returns the model the objective evaluates.
func (o *Objective) Model() *referenceframe.Model {
	return o.model
}

// Mask returns the mask relating optimization vectors to full joint states.
func (o *Objective) Mask() *referenceframe.InputMask {
	return o.mask
}

// TermNames returns the distinct names of the weighted terms in declaration order.
func (o *Objective) TermNames() []string {
	return lo.Uniq(lo.Map(o.terms, func(wt WeightedTerm, _ int) string { return wt.Term.Name() }))
}

// Evaluations returns how many times the cost has been evaluated, including finite difference probes.
func (o *Objective) Evaluations() int64 {
	return o.evaluations.Load()
}

func (o *Objective) state(x []float64) (*State, error) {
	full, err := o.mask.Expand(x)
	if err != nil {
		return nil, err
	}
	lt, err := kinematics.ComputeLinkTransforms(o.model, full)
	if err != nil {
		return nil, err
	}
	return &State{Configuration: full, Transforms: lt}, nil
}

// Evaluate returns the weighted cost at x and the unweighted value of each term.
func (o *Objective) Evaluate(x []float64) (float64, Breakdown, error) {
	o.evaluations.Inc()
	s, err := o.state(x)
	if err != nil {
		return math.NaN(), nil, err
	}
	total := 0.
	breakdown := Breakdown{}
	for _, wt := range o.terms {
		c, err := wt.Term.Cost(s)
		if err != nil {
			return math.NaN(), nil, errors.Wrapf(err, "evaluating %s", wt.Term.Name())
		}
		breakdown[wt.Term.Name()] += c
		total += wt.Weight * c
	}
	return total, breakdown, nil
}

// Cost returns the weighted cost at x, or NaN if it cannot be evaluated.
func (o *Objective) Cost(x []float64) float64 {
	c, _, err := o.Evaluate(x)
	if err != nil {
		return math.NaN()
	}
	return c
}

// numericCost sums the weighted terms that are differentiated numerically.
func (o *Objective) numericCost(x []float64) (float64, error) {
	o.evaluations.Inc()
	s, err := o.state(x)
	if err != nil {
		return 0, err
	}
	total := 0.
	for _, wt := range o.terms {
		if _, ok := wt.Term.(GradientTerm); ok && !o.numericOnly {
			continue
		}
		c, err := wt.Term.Cost(s)
		if err != nil {
			return 0, errors.Wrapf(err, "evaluating %s", wt.Term.Name())
		}
		total += wt.Weight * c
	}
	return total, nil
}

// Gradient writes the gradient of the cost at x into grad. Analytic term gradients are taken on the full joint
// state and reduced to the free DOF; the remaining terms use central differences over the free DOF.
func (o *Objective) Gradient(x, grad []float64) error {
	if len(x) != o.Dim() || len(grad) != o.Dim() {
		return referenceframe.NewIncorrectDoFError(len(x), o.Dim())
	}
	for i := range grad {
		grad[i] = 0
	}
	needNumeric := false
	var s *State
	full := make([]float64, o.model.DoF())
	termGrad := make([]float64, o.model.DoF())
	for _, wt := range o.terms {
		gt, ok := wt.Term.(GradientTerm)
		if !ok || o.numericOnly {
			needNumeric = true
			continue
		}
		if s == nil {
			var err error
			if s, err = o.state(x); err != nil {
				return err
			}
		}
		if err := gt.Gradient(s, termGrad); err != nil {
			return errors.Wrapf(err, "differentiating %s", wt.Term.Name())
		}
		floats.AddScaled(full, wt.Weight, termGrad)
	}
	for i, idx := range o.mask.FreeIndices() {
		grad[i] = full[idx]
	}
	if !needNumeric {
		return nil
	}

	probe := append([]float64(nil), x...)
	for i := range probe {
		orig := probe[i]
		probe[i] = orig + o.step
		up, err := o.numericCost(probe)
		if err != nil {
			return err
		}
		probe[i] = orig - o.step
		down, err := o.numericCost(probe)
		if err != nil {
			return err
		}
		probe[i] = orig
		grad[i] += (up - down) / (2 * o.step)
	}
	return nil
}
