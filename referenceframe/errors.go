package referenceframe

import "github.com/pkg/errors"

var (
	// ErrMalformedModel is wrapped by every structural defect found while building a Model. It is fatal to
	// model construction.
	ErrMalformedModel = errors.New("malformed kinematic model")

	// ErrDimensionMismatch is returned when a joint state does not have one value per degree of freedom.
	ErrDimensionMismatch = errors.New("joint state dimension mismatch")

	// ErrUnknownLink is returned when a link name or index does not exist in the model.
	ErrUnknownLink = errors.New("unknown link")

	// ErrUnknownJoint is returned when a joint name or index does not exist in the model.
	ErrUnknownJoint = errors.New("unknown joint")
)

// NewMalformedModelError returns an error describing a structural defect in a kinematic tree.
func NewMalformedModelError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedModel, format, args...)
}

// NewIncorrectDoFError returns an error indicating that the length of a joint state is not the model's DOF count.
func NewIncorrectDoFError(actual, expected int) error {
	return errors.Wrapf(ErrDimensionMismatch, "number of dof mismatch: got %d, expected %d", actual, expected)
}

// NewUnknownLinkError returns an error indicating the named link is not part of the model.
func NewUnknownLinkError(name string) error {
	return errors.Wrapf(ErrUnknownLink, "%q", name)
}

// NewUnknownJointError returns an error indicating the named joint is not part of the model.
func NewUnknownJointError(name string) error {
	return errors.Wrapf(ErrUnknownJoint, "%q", name)
}
