package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

// separatingAxes returns the candidate axes for two cores: the face normals of both and the cross
// products of every pair of edge directions.
func separatingAxes(ca, cb *convexCore) []r3.Vector {
	axes := make([]r3.Vector, 0, len(ca.faceNormals)+len(cb.faceNormals)+len(ca.edges())*len(cb.edges()))
	axes = append(axes, ca.faceNormals...)
	axes = append(axes, cb.faceNormals...)
	for _, ea := range ca.edges() {
		for _, eb := range cb.edges() {
			n := ea.Cross(eb)
			if norm := n.Norm(); norm > floatEpsilon {
				axes = append(axes, n.Mul(1/norm))
			}
		}
	}
	return axes
}

// satPenetration returns the minimum translation distance separating two overlapping cores (radii excluded)
// and the unit direction from A towards B along which it is measured. ok is false if some axis separates the
// cores, in which case they do not overlap.
func satPenetration(ca, cb *convexCore) (depth float64, normal r3.Vector, ok bool) {
	depth = math.Inf(1)
	for _, n := range separatingAxes(ca, cb) {
		maxA := n.Dot(ca.support(n))
		minA := n.Dot(ca.support(n.Mul(-1)))
		maxB := n.Dot(cb.support(n))
		minB := n.Dot(cb.support(n.Mul(-1)))

		pushPos := maxA - minB // move B along +n
		pushNeg := maxB - minA // move B along -n
		if pushPos < 0 || pushNeg < 0 {
			return 0, n, false
		}
		if pushPos < depth {
			depth = pushPos
			normal = n
		}
		if pushNeg < depth {
			depth = pushNeg
			normal = n.Mul(-1)
		}
	}
	if math.IsInf(depth, 1) {
		return 0, r3.Vector{X: 1}, true
	}
	return depth, normal, true
}
