// Package kinematics propagates joint states through a kinematic tree into world-frame link poses.
package kinematics

import (
	"github.com/pkg/errors"

	"go.viam.com/kinopt/referenceframe"
	spatial "go.viam.com/kinopt/spatialmath"
)

// LinkTransforms is the set of world-frame link poses produced by one joint state. The two are stored
// together and a LinkTransforms is never updated in place, so the poses always match Inputs.
type LinkTransforms struct {
	model  *referenceframe.Model
	inputs []referenceframe.Input
	poses  []spatial.Pose
}

// ComputeLinkTransforms traverses the model's joints parent before child and returns every link's world pose.
// The root link is at the identity. The inputs are copied and never mutated.
func ComputeLinkTransforms(m *referenceframe.Model, inputs []referenceframe.Input) (*LinkTransforms, error) {
	if err := m.ValidateInputs(inputs); err != nil {
		return nil, err
	}
	lt := &LinkTransforms{
		model:  m,
		inputs: referenceframe.CopyInputs(inputs),
		poses:  make([]spatial.Pose, m.NumLinks()),
	}
	lt.poses[m.Root()] = spatial.NewZeroPose()
	for _, idx := range m.TraversalOrder() {
		joint, err := m.Joint(idx)
		if err != nil {
			return nil, err
		}
		local, err := joint.Transform(m.JointInputs(lt.inputs, idx))
		if err != nil {
			return nil, errors.Wrapf(err, "joint %q", joint.Name)
		}
		lt.poses[joint.Child] = spatial.Compose(lt.poses[joint.Parent], local)
	}
	return lt, nil
}

// Model returns the model the transforms were computed for.
func (lt *LinkTransforms) Model() *referenceframe.Model {
	return lt.model
}

// Inputs returns a copy of the joint state that produced these transforms.
func (lt *LinkTransforms) Inputs() []referenceframe.Input {
	return referenceframe.CopyInputs(lt.inputs)
}

// Pose returns the world pose of the given link.
func (lt *LinkTransforms) Pose(link int) (spatial.Pose, error) {
	if link < 0 || link >= len(lt.poses) {
		return nil, errors.Wrapf(referenceframe.ErrUnknownLink, "index %d", link)
	}
	return lt.poses[link], nil
}

// Poses returns every link's world pose, indexed by link.
func (lt *LinkTransforms) Poses() []spatial.Pose {
	return append([]spatial.Pose(nil), lt.poses...)
}

// AlmostEqual reports whether two transform sets hold the same poses within epsilon.
func (lt *LinkTransforms) AlmostEqual(other *LinkTransforms, epsilon float64) bool {
	if other == nil || len(lt.poses) != len(other.poses) {
		return false
	}
	for i := range lt.poses {
		if !spatial.PoseAlmostEqualEps(lt.poses[i], other.poses[i], epsilon) {
			return false
		}
	}
	return true
}

// LinkPose computes the world pose of a single named link.
func LinkPose(m *referenceframe.Model, inputs []referenceframe.Input, link string) (spatial.Pose, error) {
	idx, err := m.LinkIndex(link)
	if err != nil {
		return nil, err
	}
	lt, err := ComputeLinkTransforms(m, inputs)
	if err != nil {
		return nil, err
	}
	return lt.Pose(idx)
}

// JointFrame returns the world pose of the given joint's frame, after its fixed origin and before its motion.
func (lt *LinkTransforms) JointFrame(joint int) (spatial.Pose, error) {
	j, err := lt.model.Joint(joint)
	if err != nil {
		return nil, err
	}
	if j.Origin == nil {
		return lt.poses[j.Parent], nil
	}
	return spatial.Compose(lt.poses[j.Parent], j.Origin), nil
}
