package ik

import "math"

// boundsTransform maps an unconstrained internal vector y onto a box-bounded external vector x so that
// unconstrained methods respect joint limits exactly. Two-sided bounds use x = mid + half*sin(y); one-sided
// bounds use the square-root form x = l - 1 + sqrt(y^2 + 1).
type boundsTransform struct {
	lower, upper []float64
}

func newBoundsTransform(lower, upper []float64) *boundsTransform {
	return &boundsTransform{lower: lower, upper: upper}
}

func (bt *boundsTransform) kind(i int) (bool, bool) {
	return !math.IsInf(bt.lower[i], -1), !math.IsInf(bt.upper[i], 1)
}

// toExternal maps y onto x.
func (bt *boundsTransform) toExternal(y []float64) []float64 {
	x := make([]float64, len(y))
	for i, v := range y {
		lo, hi := bt.kind(i)
		switch {
		case lo && hi:
			mid := (bt.lower[i] + bt.upper[i]) / 2
			half := (bt.upper[i] - bt.lower[i]) / 2
			x[i] = mid + half*math.Sin(v)
		case lo:
			x[i] = bt.lower[i] - 1 + math.Sqrt(v*v+1)
		case hi:
			x[i] = bt.upper[i] + 1 - math.Sqrt(v*v+1)
		default:
			x[i] = v
		}
	}
	return x
}

// toInternal maps x onto y. Values outside the bounds are clamped first.
func (bt *boundsTransform) toInternal(x []float64) []float64 {
	y := make([]float64, len(x))
	for i, v := range x {
		lo, hi := bt.kind(i)
		switch {
		case lo && hi:
			half := (bt.upper[i] - bt.lower[i]) / 2
			if half <= 0 {
				y[i] = 0
				continue
			}
			mid := (bt.lower[i] + bt.upper[i]) / 2
			y[i] = math.Asin(math.Max(-1, math.Min(1, (v-mid)/half)))
		case lo:
			d := math.Max(v, bt.lower[i]) - bt.lower[i] + 1
			y[i] = math.Sqrt(d*d - 1)
		case hi:
			d := bt.upper[i] - math.Min(v, bt.upper[i]) + 1
			y[i] = math.Sqrt(d*d - 1)
		default:
			y[i] = v
		}
	}
	return y
}

// derivative returns dx/dy for coordinate i at internal value v.
func (bt *boundsTransform) derivative(i int, v float64) float64 {
	lo, hi := bt.kind(i)
	switch {
	case lo && hi:
		return (bt.upper[i] - bt.lower[i]) / 2 * math.Cos(v)
	case lo:
		return v / math.Sqrt(v*v+1)
	case hi:
		return -v / math.Sqrt(v*v+1)
	default:
		return 1
	}
}

// ensureInterior nudges x away from finite bounds by frac of the range. A start exactly on a two-sided bound
// sits where dx/dy vanishes, which would stall gradient methods.
func ensureInterior(x, lower, upper []float64, frac float64) []float64 {
	out := append([]float64(nil), x...)
	for i := range out {
		lo, hi := lower[i], upper[i]
		if math.IsInf(lo, -1) || math.IsInf(hi, 1) {
			out[i] = math.Max(lo, math.Min(hi, out[i]))
			continue
		}
		margin := (hi - lo) * frac
		out[i] = math.Max(lo+margin, math.Min(hi-margin, out[i]))
	}
	return out
}
