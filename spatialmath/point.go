package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
)

type point struct {
	position r3.Vector
	label    string
}

// NewPoint instantiates a new point Geometry.
func NewPoint(pt r3.Vector, label string) Geometry {
	return &point{pt, label}
}

// String returns a human readable string that represents the point.
func (pt *point) String() string {
	return fmt.Sprintf("Type: Point, Location X:%.4g, Y:%.4g, Z:%.4g", pt.position.X, pt.position.Y, pt.position.Z)
}

// Label returns the label of this point.
func (pt *point) Label() string {
	return pt.label
}

// SetLabel sets the label of this point.
func (pt *point) SetLabel(label string) {
	pt.label = label
}

// Pose returns the pose of the point.
func (pt *point) Pose() Pose {
	return NewPoseFromPoint(pt.position)
}

// AlmostEqual compares the point with another geometry and checks if they are equivalent.
func (pt *point) AlmostEqual(g Geometry) bool {
	other, ok := g.(*point)
	if !ok {
		return false
	}
	return R3VectorAlmostEqual(pt.position, other.position, 1e-8)
}

// Transform premultiplies the point with a transform, allowing the point to be moved in space.
func (pt *point) Transform(toPremultiply Pose) Geometry {
	return &point{TransformPoint(toPremultiply, pt.position), pt.label}
}

func (pt *point) ToConfig() *GeometryConfig {
	return newGeometryConfigFromPose(PointType, pt.Pose(), pt.label)
}

func (pt *point) core() *convexCore {
	return &convexCore{kind: pointCore, a: pt.position, center: pt.position}
}
