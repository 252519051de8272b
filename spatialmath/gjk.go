package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
)

const (
	gjkMaxIter      = 64
	gjkRelTolerance = 1e-10
)

// simplexVertex is a point of the Minkowski difference A - B along with the points of A and B producing it.
type simplexVertex struct {
	w, a, b r3.Vector
}

// gjkSupport returns support_A(d) - support_B(-d), a support point
// of the Minkowski difference A - B in direction d.
func gjkSupport(ca, cb *convexCore, d r3.Vector) simplexVertex {
	a := ca.support(d)
	b := cb.support(d.Mul(-1))
	return simplexVertex{a.Sub(b), a, b}
}

// gjkDistance computes the distance between two convex cores (radii excluded) with the GJK algorithm, along
// with the closest points on each core. intersecting is true when the cores overlap or touch.
func gjkDistance(ca, cb *convexCore) (dist float64, pa, pb r3.Vector, intersecting bool) {
	d := ca.center.Sub(cb.center)
	if d.Norm2() < floatEpsilon*floatEpsilon {
		d = r3.Vector{X: 1}
	}

	w := gjkSupport(ca, cb, d.Mul(-1))
	simplex := []simplexVertex{w}
	lambdas := []float64{1}
	v := w.w

	for iter := 0; iter < gjkMaxIter; iter++ {
		vv := v.Norm2()
		if vv < 1e-20 {
			intersecting = true
			break
		}

		w = gjkSupport(ca, cb, v.Mul(-1))
		if vv-v.Dot(w.w) <= gjkRelTolerance*vv || simplexContains(simplex, w) {
			break
		}

		simplex = append(simplex, w)
		v, simplex, lambdas = gjkClosestOnSimplex(simplex)
		if len(simplex) == 4 {
			intersecting = true
			break
		}
	}

	for i, sv := range simplex {
		pa = pa.Add(sv.a.Mul(lambdas[i]))
		pb = pb.Add(sv.b.Mul(lambdas[i]))
	}
	if intersecting {
		return 0, pa, pb, true
	}
	return v.Norm(), pa, pb, false
}

func simplexContains(simplex []simplexVertex, w simplexVertex) bool {
	for _, s := range simplex {
		if s.w.Sub(w.w).Norm2() < 1e-24 {
			return true
		}
	}
	return false
}

// gjkClosestOnSimplex returns the point of the simplex closest to the origin, the reduced simplex supporting
// it and its barycentric weights over that reduced simplex.
func gjkClosestOnSimplex(s []simplexVertex) (r3.Vector, []simplexVertex, []float64) {
	switch len(s) {
	case 1:
		return s[0].w, s, []float64{1}
	case 2:
		return gjkClosestOnSegment(s[0], s[1])
	case 3:
		return gjkClosestOnTriangle(s[0], s[1], s[2])
	default:
		return gjkClosestOnTetrahedron(s)
	}
}

// gjkClosestOnSegment returns the closest point on segment [a,b] to the origin,
// along with the reduced simplex.
func gjkClosestOnSegment(a, b simplexVertex) (r3.Vector, []simplexVertex, []float64) {
	ab := b.w.Sub(a.w)
	denom := ab.Norm2()
	if denom < 1e-30 {
		return a.w, []simplexVertex{a}, []float64{1}
	}
	t := a.w.Mul(-1).Dot(ab) / denom
	if t <= 0 {
		return a.w, []simplexVertex{a}, []float64{1}
	}
	if t >= 1 {
		return b.w, []simplexVertex{b}, []float64{1}
	}
	return a.w.Add(ab.Mul(t)), []simplexVertex{a, b}, []float64{1 - t, t}
}

// gjkClosestOnTriangle returns the closest point on triangle [a,b,c] to the origin,
// along with the reduced simplex. Uses Ericson's Voronoi region method from
// "Real-Time Collision Detection".
func gjkClosestOnTriangle(a, b, c simplexVertex) (r3.Vector, []simplexVertex, []float64) {
	ab := b.w.Sub(a.w)
	ac := c.w.Sub(a.w)
	ao := a.w.Mul(-1)

	d1 := ab.Dot(ao)
	d2 := ac.Dot(ao)
	if d1 <= 0 && d2 <= 0 {
		return a.w, []simplexVertex{a}, []float64{1}
	}

	bo := b.w.Mul(-1)
	d3 := ab.Dot(bo)
	d4 := ac.Dot(bo)
	if d3 >= 0 && d4 <= d3 {
		return b.w, []simplexVertex{b}, []float64{1}
	}

	vc := d1*d4 - d3*d2
	if vc <= 0 && d1 >= 0 && d3 <= 0 {
		v := d1 / (d1 - d3)
		return a.w.Add(ab.Mul(v)), []simplexVertex{a, b}, []float64{1 - v, v}
	}

	co := c.w.Mul(-1)
	d5 := ab.Dot(co)
	d6 := ac.Dot(co)
	if d6 >= 0 && d5 <= d6 {
		return c.w, []simplexVertex{c}, []float64{1}
	}

	vb := d5*d2 - d1*d6
	if vb <= 0 && d2 >= 0 && d6 <= 0 {
		w := d2 / (d2 - d6)
		return a.w.Add(ac.Mul(w)), []simplexVertex{a, c}, []float64{1 - w, w}
	}

	va := d3*d6 - d5*d4
	if va <= 0 && (d4-d3) >= 0 && (d5-d6) >= 0 {
		w := (d4 - d3) / ((d4 - d3) + (d5 - d6))
		return b.w.Add(c.w.Sub(b.w).Mul(w)), []simplexVertex{b, c}, []float64{1 - w, w}
	}

	sum := va + vb + vc
	if math.Abs(sum) < 1e-30 {
		// Degenerate triangle; the closest point lies on one of its edges.
		best, bestS, bestL := gjkClosestOnSegment(a, b)
		for _, e := range [][2]simplexVertex{{a, c}, {b, c}} {
			v, s, l := gjkClosestOnSegment(e[0], e[1])
			if v.Norm2() < best.Norm2() {
				best, bestS, bestL = v, s, l
			}
		}
		return best, bestS, bestL
	}
	denom := 1.0 / sum
	v := vb * denom
	w := vc * denom
	return a.w.Add(ab.Mul(v)).Add(ac.Mul(w)), []simplexVertex{a, b, c}, []float64{1 - v - w, v, w}
}

// gjkOriginInTetrahedron checks whether the origin is inside the tetrahedron
// defined by the four given points, by verifying the origin is on the interior
// side of every face. A flat tetrahedron never contains the origin.
func gjkOriginInTetrahedron(pts []simplexVertex) bool {
	type face struct{ v0, v1, v2, opp int }
	faces := [4]face{
		{0, 1, 2, 3},
		{0, 1, 3, 2},
		{0, 2, 3, 1},
		{1, 2, 3, 0},
	}
	for _, f := range faces {
		p0, p1, p2 := pts[f.v0].w, pts[f.v1].w, pts[f.v2].w
		normal := p1.Sub(p0).Cross(p2.Sub(p0))
		dOrigin := normal.Dot(p0.Mul(-1))
		dOpp := normal.Dot(pts[f.opp].w.Sub(p0))
		if math.Abs(dOpp) < 1e-18 || dOrigin*dOpp < 0 {
			return false
		}
	}
	return true
}

// gjkClosestOnTetrahedron returns the closest point on the tetrahedron to the origin.
// If the origin is inside, returns the zero vector and the full simplex.
func gjkClosestOnTetrahedron(pts []simplexVertex) (r3.Vector, []simplexVertex, []float64) {
	if gjkOriginInTetrahedron(pts) {
		// Barycentric weights of the origin are not needed once an intersection is known.
		return r3.Vector{}, pts, []float64{0.25, 0.25, 0.25, 0.25}
	}
	faces := [4][3]int{{0, 1, 2}, {0, 1, 3}, {0, 2, 3}, {1, 2, 3}}
	bestDist := math.Inf(1)
	var bestV r3.Vector
	var bestS []simplexVertex
	var bestL []float64

	for _, f := range faces {
		v, s, l := gjkClosestOnTriangle(pts[f[0]], pts[f[1]], pts[f[2]])
		if d := v.Norm2(); d < bestDist {
			bestDist = d
			bestV = v
			bestS = s
			bestL = l
		}
	}
	return bestV, bestS, bestL
}
