package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"

	"go.viam.com/kinopt/utils"
)

// capsule is a collision geometry that represents a capsule, it has a pose and a radius that fully define it.
//
// ....___________________
// .../                   \
// .x|  |-------O-------|  |x
// ...\___________________/
//
// Length is the distance between the x's, or internal segment length + 2*radius. The segment lies on the
// local z axis and is centered on the pose.
type capsule struct {
	pose   Pose
	radius float64
	length float64 // total length of the capsule, tip to tip
	label  string

	// Endpoints of the internal segment, in the frame the capsule is expressed in.
	segA r3.Vector
	segB r3.Vector
}

// NewCapsule instantiates a new capsule Geometry.
func NewCapsule(offset Pose, radius, length float64, label string) (Geometry, error) {
	if radius <= 0 || length <= 0 || !checkFinite(radius, length) {
		return nil, newBadGeometryDimensionsError("capsule", "radius %v and length %v must be positive", radius, length)
	}
	if length < radius*2 {
		return nil, newBadGeometryDimensionsError("capsule", "length %v must be at least twice the radius %v", length, radius)
	}
	if length == radius*2 {
		return NewSphere(offset, radius, label)
	}
	return newCapsuleWithSegPoints(offset, radius, length, label), nil
}

// Will precalculate the linear endpoints for a capsule.
func newCapsuleWithSegPoints(offset Pose, radius, length float64, label string) *capsule {
	half := length/2 - radius
	return &capsule{
		pose:   offset,
		radius: radius,
		length: length,
		label:  label,
		segA:   TransformPoint(offset, r3.Vector{Z: -half}),
		segB:   TransformPoint(offset, r3.Vector{Z: half}),
	}
}

// String returns a human readable string that represents the capsule.
func (c *capsule) String() string {
	return fmt.Sprintf("Type: Capsule, Radius: %.4g, Length: %.4g", c.radius, c.length)
}

// Label returns the label of this capsule.
func (c *capsule) Label() string {
	return c.label
}

// SetLabel sets the label of this capsule.
func (c *capsule) SetLabel(label string) {
	c.label = label
}

// Pose returns the pose of the capsule.
func (c *capsule) Pose() Pose {
	return c.pose
}

// AlmostEqual compares the capsule with another geometry and checks if they are equivalent.
func (c *capsule) AlmostEqual(g Geometry) bool {
	other, ok := g.(*capsule)
	if !ok {
		return false
	}
	return PoseAlmostEqualEps(c.pose, other.pose, 1e-6) &&
		utils.Float64AlmostEqual(c.radius, other.radius, 1e-8) &&
		utils.Float64AlmostEqual(c.length, other.length, 1e-8)
}

// Transform premultiplies the capsule pose with a transform, allowing the capsule to be moved in space.
func (c *capsule) Transform(toPremultiply Pose) Geometry {
	return newCapsuleWithSegPoints(Compose(toPremultiply, c.pose), c.radius, c.length, c.label)
}

func (c *capsule) ToConfig() *GeometryConfig {
	cfg := newGeometryConfigFromPose(CapsuleType, c.pose, c.label)
	cfg.R = c.radius
	cfg.L = c.length
	return cfg
}

func (c *capsule) core() *convexCore {
	return &convexCore{kind: segmentCore, a: c.segA, b: c.segB, center: c.pose.Point(), radius: c.radius}
}
