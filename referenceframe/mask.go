package referenceframe

import (
	"sort"

	"github.com/pkg/errors"
)

// InputMask fixes a subset of a model's DOF at given values so that an optimizer only sees the free ones.
// The zero mask is not valid; use NewInputMask.
type InputMask struct {
	full       []Input
	free       []int
	limits     []Limit
	rotational []bool
}

// NewInputMask builds a mask over the model that locks each named joint at the given values. A nil or empty
// map locks nothing.
func NewInputMask(m *Model, locked map[string][]Input) (*InputMask, error) {
	mask := &InputMask{full: m.ZeroInputs()}
	isLocked := make([]bool, m.DoF())

	names := make([]string, 0, len(locked))
	for name := range locked {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		values := locked[name]
		j, err := m.JointIndex(name)
		if err != nil {
			return nil, err
		}
		start, end, err := m.DoFRange(j)
		if err != nil {
			return nil, err
		}
		if len(values) != end-start {
			return nil, errors.Wrapf(NewIncorrectDoFError(len(values), end-start), "locking joint %q", name)
		}
		for k, v := range values {
			mask.full[start+k] = v
			isLocked[start+k] = true
		}
	}

	limits := m.Limits()
	for i := range isLocked {
		if !isLocked[i] {
			mask.free = append(mask.free, i)
			mask.limits = append(mask.limits, limits[i])
			mask.rotational = append(mask.rotational, m.IsRotationalDoF(i))
		}
	}
	return mask, nil
}

// DoF returns the length of a full joint state.
func (mask *InputMask) DoF() int {
	return len(mask.full)
}

// FreeDoF returns the number of unlocked DOF.
func (mask *InputMask) FreeDoF() int {
	return len(mask.free)
}

// FreeIndices returns the full-state indices of the unlocked DOF.
func (mask *InputMask) FreeIndices() []int {
	return append([]int(nil), mask.free...)
}

// FreeLimits returns the limits of the unlocked DOF.
func (mask *InputMask) FreeLimits() []Limit {
	return append([]Limit(nil), mask.limits...)
}

// IsRotationalFree reports whether the i-th free DOF is an angle.
func (mask *InputMask) IsRotationalFree(i int) bool {
	return mask.rotational[i]
}

// Reduce extracts the free values from a full joint state.
func (mask *InputMask) Reduce(full []Input) ([]Input, error) {
	if len(full) != len(mask.full) {
		return nil, NewIncorrectDoFError(len(full), len(mask.full))
	}
	out := make([]Input, len(mask.free))
	for i, idx := range mask.free {
		out[i] = full[idx]
	}
	return out, nil
}

// Expand builds a full joint state from free values, filling locked DOF with their fixed values.
func (mask *InputMask) Expand(free []Input) ([]Input, error) {
	if len(free) != len(mask.free) {
		return nil, NewIncorrectDoFError(len(free), len(mask.free))
	}
	out := CopyInputs(mask.full)
	for i, idx := range mask.free {
		out[idx] = free[i]
	}
	return out, nil
}
