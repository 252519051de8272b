package ik

import "github.com/pkg/errors"

var (
	// ErrSolver is matched by every failure of the numerical optimizer.
	ErrSolver = errors.New("inverse kinematics solver error")

	// ErrNumericalFailure is returned when the objective or its gradient becomes NaN or infinite.
	ErrNumericalFailure = errors.New("objective is not finite")

	errNothingToSolve = errors.New("cannot optimize a problem with no free degrees of freedom")
)

// solverError matches ErrSolver and unwraps to the reason reported by the optimizer.
type solverError struct {
	reason error
}

func (e *solverError) Error() string {
	return ErrSolver.Error() + ": " + e.reason.Error()
}

func (e *solverError) Unwrap() error {
	return e.reason
}

func (e *solverError) Is(target error) bool {
	return target == ErrSolver
}

// NewSolverError returns an error describing why the optimizer failed. The result matches both ErrSolver and
// the reason under errors.Is.
func NewSolverError(reason error) error {
	if reason == nil {
		return ErrSolver
	}
	if _, ok := reason.(*solverError); ok {
		return reason
	}
	return &solverError{reason: reason}
}
