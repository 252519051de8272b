package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// DistanceResult is the signed separation of two geometries and the points realizing it.
type DistanceResult struct {
	// Distance is the separation between the surfaces; negative values are penetration depths.
	Distance float64
	// PointA and PointB are the witness points on each geometry. When penetrating they are the deepest
	// points of each geometry inside the other.
	PointA r3.Vector
	PointB r3.Vector
	// Normal is the unit direction from A towards B along which Distance is measured.
	Normal r3.Vector
}

// SignedDistance computes the signed distance between two geometries expressed in the same frame.
func SignedDistance(a, b Geometry) (DistanceResult, error) {
	if a == nil || b == nil {
		return DistanceResult{}, errors.New("cannot compute distance to a nil geometry")
	}
	ca, cb := a.core(), b.core()

	if ca.kind != polytopeCore && cb.kind != polytopeCore {
		pa, pb := closestPointsSegmentSegment(ca.a, ca.segEnd(), cb.a, cb.segEnd())
		return roundedResult(ca, cb, pa, pb), nil
	}

	dist, pa, pb, intersecting := gjkDistance(ca, cb)
	if !intersecting && dist > floatEpsilon {
		return roundedResult(ca, cb, pa, pb), nil
	}

	depth, normal, overlapping := satPenetration(ca, cb)
	if !overlapping {
		// GJK reported contact within tolerance while an axis separates the cores: they are touching.
		return roundedResult(ca, cb, pa, pb), nil
	}
	pa = ca.support(normal)
	pb = cb.support(normal.Mul(-1))
	return DistanceResult{
		Distance: -depth - ca.radius - cb.radius,
		PointA:   pa.Add(normal.Mul(ca.radius)),
		PointB:   pb.Sub(normal.Mul(cb.radius)),
		Normal:   normal,
	}, nil
}

// DistanceBetween returns only the signed distance between two geometries.
func DistanceBetween(a, b Geometry) (float64, error) {
	res, err := SignedDistance(a, b)
	if err != nil {
		return math.Inf(1), err
	}
	return res.Distance, nil
}

// CollidesWith reports whether two geometries are closer than the given buffer.
func CollidesWith(a, b Geometry, buffer float64) (bool, error) {
	dist, err := DistanceBetween(a, b)
	if err != nil {
		return false, err
	}
	return dist <= buffer, nil
}

// segEnd returns the far end of a point or segment core.
func (c *convexCore) segEnd() r3.Vector {
	if c.kind == segmentCore {
		return c.b
	}
	return c.a
}

// roundedResult builds a result from the closest points of two cores, offsetting by each core's radius.
func roundedResult(ca, cb *convexCore, pa, pb r3.Vector) DistanceResult {
	delta := pb.Sub(pa)
	dist := delta.Norm()
	var normal r3.Vector
	if dist > floatEpsilon {
		normal = delta.Mul(1 / dist)
	} else {
		normal = anyPerpendicular(ca.segEnd().Sub(ca.a))
	}
	return DistanceResult{
		Distance: dist - ca.radius - cb.radius,
		PointA:   pa.Add(normal.Mul(ca.radius)),
		PointB:   pb.Sub(normal.Mul(cb.radius)),
		Normal:   normal,
	}
}

// anyPerpendicular returns a unit vector perpendicular to v, or the x axis if v is zero.
func anyPerpendicular(v r3.Vector) r3.Vector {
	if v.Norm2() < floatEpsilon*floatEpsilon {
		return r3.Vector{X: 1}
	}
	return v.Ortho()
}

// closestPointsSegmentSegment returns the closest pair of points on the segments [p1,q1] and [p2,q2].
// Either segment may be degenerate. From Ericson, "Real-Time Collision Detection" 5.1.9.
func closestPointsSegmentSegment(p1, q1, p2, q2 r3.Vector) (r3.Vector, r3.Vector) {
	d1 := q1.Sub(p1)
	d2 := q2.Sub(p2)
	r := p1.Sub(p2)
	a := d1.Norm2()
	e := d2.Norm2()
	f := d2.Dot(r)

	const eps = 1e-18
	var s, t float64
	switch {
	case a <= eps && e <= eps:
		return p1, p2
	case a <= eps:
		t = clamp01(f / e)
	default:
		c := d1.Dot(r)
		if e <= eps {
			s = clamp01(-c / a)
		} else {
			b := d1.Dot(d2)
			denom := a*e - b*b
			if denom > eps {
				s = clamp01((b*f - c*e) / denom)
			}
			t = (b*s + f) / e
			if t < 0 {
				t = 0
				s = clamp01(-c / a)
			} else if t > 1 {
				t = 1
				s = clamp01((b - c) / a)
			}
		}
	}
	return p1.Add(d1.Mul(s)), p2.Add(d2.Mul(t))
}

// ClosestPointSegmentPoint returns the point on [segA, segB] closest to query.
func ClosestPointSegmentPoint(segA, segB, query r3.Vector) r3.Vector {
	p, _ := closestPointsSegmentSegment(segA, segB, query, query)
	return p
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
