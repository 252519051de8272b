package referenceframe

import (
	"math"
	"strings"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	spatial "go.viam.com/kinopt/spatialmath"
)

// JointKind is the closed set of joint types a kinematic tree may contain.
type JointKind int

// The joint kinds, keyed by the number and meaning of the degrees of freedom they contribute.
const (
	// FixedJoint rigidly attaches the child link. 0 DOF.
	FixedJoint JointKind = iota
	// RevoluteJoint rotates about its axis within limits. 1 DOF, radians.
	RevoluteJoint
	// PrismaticJoint translates along its axis. 1 DOF, length units.
	PrismaticJoint
	// ContinuousJoint rotates about its axis without limits. 1 DOF, radians.
	ContinuousJoint
	// PlanarJoint moves in the plane normal to its axis: two in-plane translations then a rotation about the axis. 3 DOF.
	PlanarJoint
	// FloatingJoint is a free rigid motion: translation x, y, z then a rotation vector. 6 DOF.
	FloatingJoint
)

var jointKindNames = map[JointKind]string{
	FixedJoint:      "fixed",
	RevoluteJoint:   "revolute",
	PrismaticJoint:  "prismatic",
	ContinuousJoint: "continuous",
	PlanarJoint:     "planar",
	FloatingJoint:   "floating",
}

func (k JointKind) String() string {
	if name, ok := jointKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseJointKind maps a joint type name to its kind.
func ParseJointKind(name string) (JointKind, error) {
	lower := strings.ToLower(strings.TrimSpace(name))
	for k, n := range jointKindNames {
		if n == lower {
			return k, nil
		}
	}
	return FixedJoint, errors.Errorf("unsupported joint type %q", name)
}

// DoF returns the number of degrees of freedom contributed by a joint of this kind.
func (k JointKind) DoF() int {
	switch k {
	case RevoluteJoint, PrismaticJoint, ContinuousJoint:
		return 1
	case PlanarJoint:
		return 3
	case FloatingJoint:
		return 6
	default:
		return 0
	}
}

// rotational reports, per degree of freedom, whether the value is an angle.
func (k JointKind) rotational() []bool {
	switch k {
	case RevoluteJoint, ContinuousJoint:
		return []bool{true}
	case PrismaticJoint:
		return []bool{false}
	case PlanarJoint:
		return []bool{false, false, true}
	case FloatingJoint:
		return []bool{false, false, false, true, true, true}
	default:
		return nil
	}
}

func (k JointKind) needsAxis() bool {
	return k == RevoluteJoint || k == PrismaticJoint || k == ContinuousJoint || k == PlanarJoint
}

// Joint connects a parent link to a child link. Parent and Child are indices into the model's link slice.
type Joint struct {
	Name string
	Kind JointKind
	// Axis is the rotation or translation axis (the plane normal for planar joints), in the joint frame.
	Axis r3.Vector
	// Limits has one entry per degree of freedom, or is empty for an unbounded joint.
	Limits []Limit
	Parent int
	Child  int
	// Origin is the fixed offset from the parent link frame to the joint frame. Nil means identity.
	Origin spatial.Pose
}

// DoF returns the number of degrees of freedom of the joint.
func (j *Joint) DoF() int {
	return j.Kind.DoF()
}

// EffectiveLimits returns one limit per degree of freedom, filling unbounded ones with infinities.
func (j *Joint) EffectiveLimits() []Limit {
	out := make([]Limit, j.DoF())
	for i := range out {
		if i < len(j.Limits) {
			out[i] = j.Limits[i]
		} else {
			out[i] = Unbounded()
		}
	}
	return out
}

// validate checks the joint in isolation; linkCount bounds the parent and child indices.
func (j *Joint) validate(linkCount int) error {
	if j.Name == "" {
		return NewMalformedModelError("joint between links %d and %d has no name", j.Parent, j.Child)
	}
	if _, ok := jointKindNames[j.Kind]; !ok {
		return NewMalformedModelError("joint %q has unknown kind %d", j.Name, j.Kind)
	}
	if j.Parent < 0 || j.Parent >= linkCount || j.Child < 0 || j.Child >= linkCount {
		return NewMalformedModelError("joint %q references link indices (%d, %d) outside [0, %d)", j.Name, j.Parent, j.Child, linkCount)
	}
	if j.Parent == j.Child {
		return NewMalformedModelError("joint %q connects link %d to itself", j.Name, j.Parent)
	}
	if j.Kind.needsAxis() && j.Axis.Norm() < 1e-12 {
		return NewMalformedModelError("%s joint %q needs a non-zero axis", j.Kind, j.Name)
	}
	if len(j.Limits) != 0 && len(j.Limits) != j.DoF() {
		return NewMalformedModelError("joint %q of kind %s declares %d limits but has %d dof", j.Name, j.Kind, len(j.Limits), j.DoF())
	}
	for i, lim := range j.Limits {
		if math.IsNaN(lim.Min) || math.IsNaN(lim.Max) || lim.Min > lim.Max {
			return NewMalformedModelError("joint %q dof %d has invalid limits [%v, %v]", j.Name, i, lim.Min, lim.Max)
		}
		if j.Kind == ContinuousJoint && lim.IsFinite() {
			return NewMalformedModelError("continuous joint %q cannot have finite limits", j.Name)
		}
	}
	return nil
}

// Motion returns the transform contributed by the joint's degrees of freedom, in the joint frame.
func (j *Joint) Motion(values []Input) (spatial.Pose, error) {
	if len(values) != j.DoF() {
		return nil, NewIncorrectDoFError(len(values), j.DoF())
	}
	switch j.Kind {
	case RevoluteJoint, ContinuousJoint:
		axis := j.Axis.Normalize()
		return spatial.NewPoseFromOrientation(&spatial.R4AA{Theta: values[0], RX: axis.X, RY: axis.Y, RZ: axis.Z}), nil
	case PrismaticJoint:
		return spatial.NewPoseFromPoint(j.Axis.Normalize().Mul(values[0])), nil
	case PlanarJoint:
		normal := j.Axis.Normalize()
		u := normal.Ortho()
		v := normal.Cross(u)
		translation := u.Mul(values[0]).Add(v.Mul(values[1]))
		return spatial.NewPose(translation, &spatial.R4AA{Theta: values[2], RX: normal.X, RY: normal.Y, RZ: normal.Z}), nil
	case FloatingJoint:
		translation := r3.Vector{X: values[0], Y: values[1], Z: values[2]}
		rotation := spatial.R3ToR4(r3.Vector{X: values[3], Y: values[4], Z: values[5]})
		return spatial.NewPose(translation, rotation), nil
	default:
		return spatial.NewZeroPose(), nil
	}
}

// Transform returns the pose of the child link frame in the parent link frame for the given joint values.
func (j *Joint) Transform(values []Input) (spatial.Pose, error) {
	motion, err := j.Motion(values)
	if err != nil {
		return nil, err
	}
	if j.Origin == nil {
		return motion, nil
	}
	if j.Kind == FixedJoint {
		return j.Origin, nil
	}
	return spatial.Compose(j.Origin, motion), nil
}
