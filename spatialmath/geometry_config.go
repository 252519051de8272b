package spatialmath

import (
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
)

// GeometryType defines what geometry creator representations are known.
type GeometryType string

// The set of allowed representations for geometries.
const (
	UnknownType    = GeometryType("")
	BoxType        = GeometryType("box")
	SphereType     = GeometryType("sphere")
	CapsuleType    = GeometryType("capsule")
	PointType      = GeometryType("point")
	ConvexHullType = GeometryType("convex_hull")
)

// OrientationConfig holds exactly one orientation parameterization. An empty config is the identity.
type OrientationConfig struct {
	AxisAngle  *R4AA        `json:"axis_angle,omitempty" yaml:"axis_angle,omitempty"`
	Euler      *EulerAngles `json:"euler,omitempty" yaml:"euler,omitempty"`
	Quaternion *struct {
		W float64 `json:"w" yaml:"w"`
		X float64 `json:"x" yaml:"x"`
		Y float64 `json:"y" yaml:"y"`
		Z float64 `json:"z" yaml:"z"`
	} `json:"quaternion,omitempty" yaml:"quaternion,omitempty"`
}

// ParseConfig converts an OrientationConfig into an Orientation.
func (config *OrientationConfig) ParseConfig() (Orientation, error) {
	if config == nil {
		return NewZeroOrientation(), nil
	}
	set := 0
	var o Orientation = NewZeroOrientation()
	if config.AxisAngle != nil {
		set++
		aa := *config.AxisAngle
		o = &aa
	}
	if config.Euler != nil {
		set++
		ea := *config.Euler
		o = &ea
	}
	if config.Quaternion != nil {
		set++
		q := config.Quaternion
		if q.W == 0 && q.X == 0 && q.Y == 0 && q.Z == 0 {
			return nil, errors.New("quaternion orientation must be non-zero")
		}
		o = NewQuaternion(q.W, q.X, q.Y, q.Z)
	}
	if set > 1 {
		return nil, errors.New("orientation config must set at most one of axis_angle, euler, quaternion")
	}
	return o, nil
}

// PoseConfig is a translation plus an orientation.
type PoseConfig struct {
	Translation r3.Vector         `json:"translation" yaml:"translation"`
	Orientation OrientationConfig `json:"orientation" yaml:"orientation"`
}

// ParseConfig converts a PoseConfig into a Pose.
func (config *PoseConfig) ParseConfig() (Pose, error) {
	if config == nil {
		return NewZeroPose(), nil
	}
	o, err := config.Orientation.ParseConfig()
	if err != nil {
		return nil, err
	}
	return NewPose(config.Translation, o), nil
}

// GeometryConfig specifies the format of geometries specified through configuration files.
type GeometryConfig struct {
	Type GeometryType `json:"type" yaml:"type"`

	// parameters used for defining a box's rectangular cross-section
	X float64 `json:"x,omitempty" yaml:"x,omitempty"`
	Y float64 `json:"y,omitempty" yaml:"y,omitempty"`
	Z float64 `json:"z,omitempty" yaml:"z,omitempty"`

	// parameter used for defining a sphere's or capsule's radius
	R float64 `json:"r,omitempty" yaml:"r,omitempty"`

	// parameter used for defining a capsule's length
	L float64 `json:"l,omitempty" yaml:"l,omitempty"`

	// local frame points of a convex hull
	Vertices []r3.Vector `json:"vertices,omitempty" yaml:"vertices,omitempty"`

	// define an offset to position the geometry
	TranslationOffset r3.Vector         `json:"translation,omitempty" yaml:"translation,omitempty"`
	OrientationOffset OrientationConfig `json:"orientation,omitempty" yaml:"orientation,omitempty"`

	Label string `json:"label,omitempty" yaml:"label,omitempty"`
}

func newGeometryConfigFromPose(t GeometryType, pose Pose, label string) *GeometryConfig {
	aa := pose.Orientation().AxisAngles()
	cfg := &GeometryConfig{Type: t, TranslationOffset: pose.Point(), Label: label}
	if aa.Theta != 0 {
		cfg.OrientationOffset.AxisAngle = aa
	}
	return cfg
}

// ParseConfig converts a GeometryConfig into the correct Geometry.
func (config *GeometryConfig) ParseConfig() (Geometry, error) {
	orientation, err := config.OrientationOffset.ParseConfig()
	if err != nil {
		return nil, err
	}
	offset := NewPose(config.TranslationOffset, orientation)

	switch config.Type {
	case BoxType:
		return NewBox(offset, r3.Vector{X: config.X, Y: config.Y, Z: config.Z}, config.Label)
	case SphereType:
		return NewSphere(offset, config.R, config.Label)
	case CapsuleType:
		return NewCapsule(offset, config.R, config.L, config.Label)
	case PointType:
		return NewPoint(offset.Point(), config.Label), nil
	case ConvexHullType:
		return NewConvexHull(offset, config.Vertices, config.Label)
	case UnknownType:
		// no type specified, iterate through supported types and try to infer intent
		if config.R != 0 && config.L != 0 {
			return NewCapsule(offset, config.R, config.L, config.Label)
		}
		if config.R != 0 {
			return NewSphere(offset, config.R, config.Label)
		}
		if config.X != 0 || config.Y != 0 || config.Z != 0 {
			return NewBox(offset, r3.Vector{X: config.X, Y: config.Y, Z: config.Z}, config.Label)
		}
		if len(config.Vertices) > 0 {
			return NewConvexHull(offset, config.Vertices, config.Label)
		}
	}
	return nil, errors.Errorf("geometry type %q is unsupported", config.Type)
}
