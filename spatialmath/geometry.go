package spatialmath

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// floatEpsilon is the tolerance below which lengths are treated as zero.
const floatEpsilon = 1e-9

// Geometry is a convex volume rigidly attached to a frame. It is posed by Pose and can be moved
// with Transform. Signed distance between two geometries is computed by SignedDistance.
type Geometry interface {
	Pose() Pose
	// Transform premultiplies the geometry's pose, i.e. re-expresses a local geometry in the parent frame.
	Transform(Pose) Geometry
	Label() string
	SetLabel(string)
	String() string
	AlmostEqual(Geometry) bool
	ToConfig() *GeometryConfig
	// core returns the convex core of the geometry in the frame the geometry is expressed in.
	core() *convexCore
}

type coreKind int

const (
	pointCore coreKind = iota
	segmentCore
	polytopeCore
)

// convexCore is the shape every geometry is reduced to for distance queries: a point, a segment
// or a polytope, swept by a sphere of the given radius.
type convexCore struct {
	kind   coreKind
	a, b   r3.Vector // point is a; segment runs from a to b
	center r3.Vector

	// polytope only
	vertices    []r3.Vector
	faceNormals []r3.Vector
	edgeDirs    []r3.Vector

	radius float64
}

// support returns the point of the core (not including the radius) farthest along d.
func (c *convexCore) support(d r3.Vector) r3.Vector {
	switch c.kind {
	case pointCore:
		return c.a
	case segmentCore:
		if d.Dot(c.b.Sub(c.a)) >= 0 {
			return c.b
		}
		return c.a
	default:
		best := c.vertices[0]
		bestDot := d.Dot(best)
		for _, v := range c.vertices[1:] {
			if dot := d.Dot(v); dot > bestDot {
				best = v
				bestDot = dot
			}
		}
		return best
	}
}

// edges returns the edge directions used to build separating axes.
func (c *convexCore) edges() []r3.Vector {
	switch c.kind {
	case segmentCore:
		return []r3.Vector{c.b.Sub(c.a)}
	case polytopeCore:
		return c.edgeDirs
	default:
		return nil
	}
}

// ErrBadGeometryDimensions is returned when a geometry is created with non-positive or otherwise invalid dimensions.
var ErrBadGeometryDimensions = errors.New("invalid geometry dimensions")

func newBadGeometryDimensionsError(g string, format string, args ...interface{}) error {
	return errors.Wrapf(ErrBadGeometryDimensions, "%s: %s", g, fmt.Sprintf(format, args...))
}

func checkFinite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
