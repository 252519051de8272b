package spatialmath

import (
	"fmt"

	"go.viam.com/kinopt/utils"
)

type sphere struct {
	pose   Pose
	radius float64
	label  string
}

// NewSphere instantiates a new sphere Geometry.
func NewSphere(offset Pose, radius float64, label string) (Geometry, error) {
	if radius <= 0 || !checkFinite(radius) {
		return nil, newBadGeometryDimensionsError("sphere", "radius %v must be positive", radius)
	}
	return &sphere{pose: offset, radius: radius, label: label}, nil
}

// String returns a human readable string that represents the sphere.
func (s *sphere) String() string {
	return fmt.Sprintf("Type: Sphere, Radius: %.4g, Center: %v", s.radius, s.pose.Point())
}

// Label returns the label of this sphere.
func (s *sphere) Label() string {
	return s.label
}

// SetLabel sets the label of this sphere.
func (s *sphere) SetLabel(label string) {
	s.label = label
}

// Pose returns the pose of the sphere.
func (s *sphere) Pose() Pose {
	return s.pose
}

// AlmostEqual compares the sphere with another geometry and checks if they are equivalent.
func (s *sphere) AlmostEqual(g Geometry) bool {
	other, ok := g.(*sphere)
	if !ok {
		return false
	}
	return PoseAlmostEqualEps(s.pose, other.pose, 1e-6) && utils.Float64AlmostEqual(s.radius, other.radius, 1e-8)
}

// Transform premultiplies the sphere pose with a transform, allowing the sphere to be moved in space.
func (s *sphere) Transform(toPremultiply Pose) Geometry {
	return &sphere{pose: Compose(toPremultiply, s.pose), radius: s.radius, label: s.label}
}

func (s *sphere) ToConfig() *GeometryConfig {
	cfg := newGeometryConfigFromPose(SphereType, s.pose, s.label)
	cfg.R = s.radius
	return cfg
}

func (s *sphere) core() *convexCore {
	pt := s.pose.Point()
	return &convexCore{kind: pointCore, a: pt, center: pt, radius: s.radius}
}
