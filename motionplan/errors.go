package motionplan

import (
	"github.com/pkg/errors"

	"go.viam.com/kinopt/referenceframe"
)

var (
	// ErrUnknownLink is returned when a goal names a link the model does not have.
	ErrUnknownLink = referenceframe.ErrUnknownLink

	// ErrBadOptions is wrapped by every options decoding or validation failure.
	ErrBadOptions = errors.New("invalid planning options")
)

func newBadOptionsError(format string, args ...interface{}) error {
	return errors.Wrapf(ErrBadOptions, format, args...)
}
