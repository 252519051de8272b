package ik

import (
	"math"

	"github.com/pkg/errors"

	"go.viam.com/kinopt/referenceframe"
	"go.viam.com/kinopt/utils"
)

// WaypointSmoothnessTerm is the Breakdown key of the squared step between consecutive waypoints.
const WaypointSmoothnessTerm = "waypoint_smoothness"

// TrajectoryObjective optimizes every waypoint at once. Its vector is the concatenation of the waypoint
// vectors, and it adds the squared step between consecutive waypoints, starting from a fixed start vector.
type TrajectoryObjective struct {
	waypoints []*Objective
	start     []float64
	weight    float64
	dim       int
}

// NewTrajectoryObjective joins per-waypoint objectives that share a free DOF layout. start is a free vector
// treated as the waypoint before the first one.
func NewTrajectoryObjective(waypoints []*Objective, start []referenceframe.Input, smoothnessWeight float64) (*TrajectoryObjective, error) {
	if len(waypoints) == 0 {
		return nil, errors.New("trajectory needs at least one waypoint")
	}
	if smoothnessWeight < 0 || math.IsNaN(smoothnessWeight) {
		return nil, errors.Errorf("smoothness weight must be non-negative, got %v", smoothnessWeight)
	}
	dim := waypoints[0].Dim()
	for i, wp := range waypoints {
		if wp == nil {
			return nil, errors.Errorf("waypoint %d has no objective", i)
		}
		if wp.Dim() != dim {
			return nil, errors.Wrapf(referenceframe.NewIncorrectDoFError(wp.Dim(), dim), "waypoint %d", i)
		}
	}
	if len(start) != dim {
		return nil, errors.Wrap(referenceframe.NewIncorrectDoFError(len(start), dim), "trajectory start")
	}
	return &TrajectoryObjective{
		waypoints: waypoints,
		start:     referenceframe.CopyInputs(start),
		weight:    smoothnessWeight,
		dim:       dim,
	}, nil
}

// Dim returns the length of the concatenated vector.
func (to *TrajectoryObjective) Dim() int {
	return to.dim * len(to.waypoints)
}

// Waypoints returns the per-waypoint objectives.
func (to *TrajectoryObjective) Waypoints() []*Objective {
	return to.waypoints
}

// Split returns copies of each waypoint's slice of x.
func (to *TrajectoryObjective) Split(x []float64) ([][]float64, error) {
	if len(x) != to.Dim() {
		return nil, referenceframe.NewIncorrectDoFError(len(x), to.Dim())
	}
	out := make([][]float64, len(to.waypoints))
	for k := range out {
		out[k] = append([]float64(nil), x[k*to.dim:(k+1)*to.dim]...)
	}
	return out, nil
}

func (to *TrajectoryObjective) previous(x []float64, k int) []float64 {
	if k == 0 {
		return to.start
	}
	return x[(k-1)*to.dim : k*to.dim]
}

// Evaluate sums the waypoint costs and the weighted step term. The breakdown sums each key over waypoints.
func (to *TrajectoryObjective) Evaluate(x []float64) (float64, Breakdown, error) {
	if len(x) != to.Dim() {
		return math.NaN(), nil, referenceframe.NewIncorrectDoFError(len(x), to.Dim())
	}
	total := 0.
	breakdown := Breakdown{}
	steps := 0.
	for k, wp := range to.waypoints {
		xk := x[k*to.dim : (k+1)*to.dim]
		c, b, err := wp.Evaluate(xk)
		if err != nil {
			return math.NaN(), nil, errors.Wrapf(err, "waypoint %d", k)
		}
		total += c
		for name, v := range b {
			breakdown[name] += v
		}
		prev := to.previous(x, k)
		for i := range xk {
			steps += utils.Square(xk[i] - prev[i])
		}
	}
	breakdown[WaypointSmoothnessTerm] = steps
	return total + to.weight*steps, breakdown, nil
}

// Gradient writes the gradient of the cost at x into grad.
func (to *TrajectoryObjective) Gradient(x, grad []float64) error {
	if len(x) != to.Dim() || len(grad) != to.Dim() {
		return referenceframe.NewIncorrectDoFError(len(x), to.Dim())
	}
	for k, wp := range to.waypoints {
		lo, hi := k*to.dim, (k+1)*to.dim
		if err := wp.Gradient(x[lo:hi], grad[lo:hi]); err != nil {
			return errors.Wrapf(err, "waypoint %d", k)
		}
	}
	for k := range to.waypoints {
		xk := x[k*to.dim : (k+1)*to.dim]
		prev := to.previous(x, k)
		for i := range xk {
			d := 2 * to.weight * (xk[i] - prev[i])
			grad[k*to.dim+i] += d
			if k > 0 {
				grad[(k-1)*to.dim+i] -= d
			}
		}
	}
	return nil
}
