package kinematics

import (
	"sync"

	"go.viam.com/kinopt/referenceframe"
	spatial "go.viam.com/kinopt/spatialmath"
)

// State is a mutable joint state with lazily computed link transforms. Changing the inputs drops the cached
// transforms. A State is owned by a single computation; the mutex only guards against misuse.
type State struct {
	mu     sync.Mutex
	model  *referenceframe.Model
	inputs []referenceframe.Input
	cached *LinkTransforms
}

// NewState returns a state for the model holding a copy of inputs.
func NewState(m *referenceframe.Model, inputs []referenceframe.Input) (*State, error) {
	if err := m.ValidateInputs(inputs); err != nil {
		return nil, err
	}
	return &State{model: m, inputs: referenceframe.CopyInputs(inputs)}, nil
}

// Model returns the model of the state.
func (s *State) Model() *referenceframe.Model {
	return s.model
}

// Inputs returns a copy of the current joint state.
func (s *State) Inputs() []referenceframe.Input {
	s.mu.Lock()
	defer s.mu.Unlock()
	return referenceframe.CopyInputs(s.inputs)
}

// SetInputs replaces the joint state and invalidates the cached transforms.
func (s *State) SetInputs(inputs []referenceframe.Input) error {
	if err := s.model.ValidateInputs(inputs); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = referenceframe.CopyInputs(inputs)
	s.cached = nil
	return nil
}

// Transforms returns the link transforms for the current joint state, computing them if needed.
func (s *State) Transforms() (*LinkTransforms, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cached != nil {
		return s.cached, nil
	}
	lt, err := ComputeLinkTransforms(s.model, s.inputs)
	if err != nil {
		return nil, err
	}
	s.cached = lt
	return lt, nil
}

// LinkPose returns the world pose of a link for the current joint state.
func (s *State) LinkPose(link int) (spatial.Pose, error) {
	lt, err := s.Transforms()
	if err != nil {
		return nil, err
	}
	return lt.Pose(link)
}
