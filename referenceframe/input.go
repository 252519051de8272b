package referenceframe

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// Input is a single degree of freedom value: radians for rotational DOF, model length units for translational DOF.
type Input = float64

// Limit represents the limits of motion for a single degree of freedom. Unbounded sides are infinite.
type Limit struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Unbounded returns a limit with no finite side.
func Unbounded() Limit {
	return Limit{Min: math.Inf(-1), Max: math.Inf(1)}
}

// IsFinite reports whether both sides of the limit are finite.
func (l Limit) IsFinite() bool {
	return !math.IsInf(l.Min, 0) && !math.IsInf(l.Max, 0)
}

// Contains reports whether v lies within the limit.
func (l Limit) Contains(v float64) bool {
	return v >= l.Min && v <= l.Max
}

// Excess returns how far v lies outside the limit, zero if inside.
func (l Limit) Excess(v float64) float64 {
	if v > l.Max {
		return v - l.Max
	}
	if v < l.Min {
		return l.Min - v
	}
	return 0
}

// LimitsToArrays splits limits into lower and upper bound slices, as consumed by box-bounded optimizers.
func LimitsToArrays(limits []Limit) ([]float64, []float64) {
	min := make([]float64, 0, len(limits))
	max := make([]float64, 0, len(limits))
	for _, limit := range limits {
		min = append(min, limit.Min)
		max = append(max, limit.Max)
	}
	return min, max
}

// CopyInputs returns a copy of the given inputs.
func CopyInputs(inputs []Input) []Input {
	out := make([]Input, len(inputs))
	copy(out, inputs)
	return out
}

// InputsL2Distance returns the euclidean distance between two joint states of equal length.
func InputsL2Distance(from, to []Input) float64 {
	return floats.Distance(from, to, 2)
}

// InterpolateInputs returns the linear interpolation between two joint states. by is in [0, 1].
func InterpolateInputs(from, to []Input, by float64) []Input {
	out := make([]Input, len(from))
	for i := range from {
		out[i] = from[i] + (to[i]-from[i])*by
	}
	return out
}

// Sampling span for unbounded degrees of freedom.
const (
	unboundedRotationalSpan    = math.Pi
	unboundedTranslationalSpan = 1.0
)

// RandomInputs will produce a list of valid, in-bounds inputs for the model. Unbounded rotational DOF are
// sampled in [-pi, pi] and unbounded translational DOF in [-1, 1].
func RandomInputs(m *Model, rSeed *rand.Rand) []Input {
	if rSeed == nil {
		//nolint:gosec
		rSeed = rand.New(rand.NewSource(1))
	}
	pos := make([]Input, 0, m.DoF())
	for i, limit := range m.Limits() {
		l, u := SamplingRange(limit, m.IsRotationalDoF(i))
		pos = append(pos, rSeed.Float64()*(u-l)+l)
	}
	return pos
}

// SamplingRange returns the finite interval used when sampling a degree of freedom with the given limit.
func SamplingRange(limit Limit, rotational bool) (float64, float64) {
	span := unboundedTranslationalSpan
	if rotational {
		span = unboundedRotationalSpan
	}
	l, u := limit.Min, limit.Max
	switch {
	case math.IsInf(l, -1) && math.IsInf(u, 1):
		l, u = -span, span
	case math.IsInf(l, -1):
		l = u - 2*span
	case math.IsInf(u, 1):
		u = l + 2*span
	}
	return l, u
}
