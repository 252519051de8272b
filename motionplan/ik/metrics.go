package ik

import (
	"context"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/kinopt/collision"
	"go.viam.com/kinopt/kinematics"
	"go.viam.com/kinopt/referenceframe"
	spatial "go.viam.com/kinopt/spatialmath"
	"go.viam.com/kinopt/utils"
)

// Names of the built-in objective terms, used as Breakdown keys.
const (
	PositionTerm    = "position"
	OrientationTerm = "orientation"
	CollisionTerm   = "collision"
	JointLimitTerm  = "joint_limit"
	SmoothnessTerm  = "smoothness"
)

// State is a full joint state together with the link transforms computed from it.
type State struct {
	Configuration []referenceframe.Input
	Transforms    *kinematics.LinkTransforms
}

// Term is one named, unweighted component of an objective.
type Term interface {
	Name() string
	Cost(s *State) (float64, error)
}

// GradientTerm is a Term that supplies its own derivative. Gradient overwrites grad, which has one entry per
// DOF of the full joint state.
type GradientTerm interface {
	Term
	Gradient(s *State, grad []float64) error
}

// HingePenalty is zero when distance is at least margin and grows quadratically below it, including past
// contact into penetration.
func HingePenalty(distance, margin float64) float64 {
	if distance >= margin {
		return 0
	}
	return utils.Square(margin - distance)
}

// OrientDist returns the angle in degrees of the rotation taking o1 onto o2.
func OrientDist(o1, o2 spatial.Orientation) float64 {
	return utils.RadToDeg(spatial.QuatToR4AA(spatial.OrientationBetween(o1, o2).Quaternion()).Theta)
}

type positionMetric struct {
	link int
	goal r3.Vector
}

// NewPositionMetric returns the squared euclidean distance between the origin of link and goal.
func NewPositionMetric(link int, goal r3.Vector) GradientTerm {
	return &positionMetric{link: link, goal: goal}
}

func (pm *positionMetric) Name() string {
	return PositionTerm
}

func (pm *positionMetric) Cost(s *State) (float64, error) {
	pose, err := s.Transforms.Pose(pm.link)
	if err != nil {
		return 0, err
	}
	return pose.Point().Sub(pm.goal).Norm2(), nil
}

func (pm *positionMetric) Gradient(s *State, grad []float64) error {
	pose, err := s.Transforms.Pose(pm.link)
	if err != nil {
		return err
	}
	jac, err := kinematics.Jacobian(s.Transforms, pm.link)
	if err != nil {
		return err
	}
	e := pose.Point().Sub(pm.goal)
	for i := range grad {
		grad[i] = 2 * (e.X*jac.At(0, i) + e.Y*jac.At(1, i) + e.Z*jac.At(2, i))
	}
	return nil
}

type orientationMetric struct {
	link int
	goal spatial.Orientation
}

// NewOrientationMetric returns the squared angle, in radians, of the rotation between the orientation of link
// and goal.
func NewOrientationMetric(link int, goal spatial.Orientation) GradientTerm {
	return &orientationMetric{link: link, goal: goal}
}

func (om *orientationMetric) Name() string {
	return OrientationTerm
}

// residual is the rotation vector taking the goal onto the current orientation, in the world frame.
func (om *orientationMetric) residual(s *State) (r3.Vector, error) {
	pose, err := s.Transforms.Pose(om.link)
	if err != nil {
		return r3.Vector{}, err
	}
	between := spatial.OrientationBetween(om.goal, pose.Orientation())
	return spatial.QuatToR3AA(between.Quaternion()), nil
}

func (om *orientationMetric) Cost(s *State) (float64, error) {
	e, err := om.residual(s)
	if err != nil {
		return 0, err
	}
	return e.Norm2(), nil
}

// Gradient uses d|e|^2 = 2 e.omega, which holds because e is an eigenvector of the rotation vector's
// left jacobian.
func (om *orientationMetric) Gradient(s *State, grad []float64) error {
	e, err := om.residual(s)
	if err != nil {
		return err
	}
	jac, err := kinematics.Jacobian(s.Transforms, om.link)
	if err != nil {
		return err
	}
	for i := range grad {
		grad[i] = 2 * (e.X*jac.At(3, i) + e.Y*jac.At(4, i) + e.Z*jac.At(5, i))
	}
	return nil
}

type collisionMetric struct {
	engine    *collision.ProximityEngine
	obstacles []spatial.Geometry
	margin    float64
}

// NewCollisionMetric sums HingePenalty over every pair the engine checks, self pairs and obstacles alike.
// Obstacles are in the world frame and must not be modified while the metric is in use.
func NewCollisionMetric(engine *collision.ProximityEngine, obstacles []spatial.Geometry, margin float64) (Term, error) {
	if engine == nil {
		return nil, errors.New("collision metric needs a proximity engine")
	}
	if margin < 0 || math.IsNaN(margin) {
		return nil, errors.Errorf("collision margin must be non-negative, got %v", margin)
	}
	return &collisionMetric{engine: engine, obstacles: obstacles, margin: margin}, nil
}

func (cm *collisionMetric) Name() string {
	return CollisionTerm
}

func (cm *collisionMetric) Cost(s *State) (float64, error) {
	prox, err := cm.engine.MinDistances(context.Background(), s.Transforms, cm.obstacles)
	if err != nil {
		return 0, err
	}
	total := 0.
	for _, p := range prox {
		total += HingePenalty(p.Distance, cm.margin)
	}
	return total, nil
}

type jointLimitMetric struct {
	limits []referenceframe.Limit
}

// NewJointLimitMetric returns the summed squared excess of each DOF outside its limits. Unbounded DOF never
// contribute.
func NewJointLimitMetric(m *referenceframe.Model) GradientTerm {
	return &jointLimitMetric{limits: m.Limits()}
}

func (jm *jointLimitMetric) Name() string {
	return JointLimitTerm
}

func (jm *jointLimitMetric) Cost(s *State) (float64, error) {
	if len(s.Configuration) != len(jm.limits) {
		return 0, referenceframe.NewIncorrectDoFError(len(s.Configuration), len(jm.limits))
	}
	total := 0.
	for i, v := range s.Configuration {
		total += utils.Square(jm.limits[i].Excess(v))
	}
	return total, nil
}

func (jm *jointLimitMetric) Gradient(s *State, grad []float64) error {
	if len(s.Configuration) != len(jm.limits) {
		return referenceframe.NewIncorrectDoFError(len(s.Configuration), len(jm.limits))
	}
	for i, v := range s.Configuration {
		switch limit := jm.limits[i]; {
		case v > limit.Max:
			grad[i] = 2 * (v - limit.Max)
		case v < limit.Min:
			grad[i] = -2 * (limit.Min - v)
		default:
			grad[i] = 0
		}
	}
	return nil
}

type smoothnessMetric struct {
	reference []referenceframe.Input
}

// NewSmoothnessMetric returns the squared distance of the joint state from reference.
func NewSmoothnessMetric(reference []referenceframe.Input) GradientTerm {
	return &smoothnessMetric{reference: referenceframe.CopyInputs(reference)}
}

func (sm *smoothnessMetric) Name() string {
	return SmoothnessTerm
}

func (sm *smoothnessMetric) Cost(s *State) (float64, error) {
	if len(s.Configuration) != len(sm.reference) {
		return 0, referenceframe.NewIncorrectDoFError(len(s.Configuration), len(sm.reference))
	}
	total := 0.
	for i, v := range s.Configuration {
		total += utils.Square(v - sm.reference[i])
	}
	return total, nil
}

func (sm *smoothnessMetric) Gradient(s *State, grad []float64) error {
	if len(s.Configuration) != len(sm.reference) {
		return referenceframe.NewIncorrectDoFError(len(s.Configuration), len(sm.reference))
	}
	for i, v := range s.Configuration {
		grad[i] = 2 * (v - sm.reference[i])
	}
	return nil
}
