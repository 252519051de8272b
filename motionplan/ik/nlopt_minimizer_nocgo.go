//go:build windows || no_cgo

package ik

import (
	"context"

	"github.com/pkg/errors"
)

// MethodSLSQP selects the nlopt SLSQP minimizer.
const MethodSLSQP = "slsqp"

// NloptMinimizer mimics the type in the cgo compiled code.
type NloptMinimizer struct{}

// NewNloptMinimizer is not supported on this build.
func NewNloptMinimizer(evalsPerIteration int) (*NloptMinimizer, error) {
	return nil, errors.New("nlopt is not supported on this build")
}

// Minimize refuses to solve problems without cgo.
func (nm *NloptMinimizer) Minimize(ctx context.Context, p Problem, x0 []float64, iterationBudget int) (*MinimizeResult, error) {
	return nil, errors.New("cannot solve with nlopt without cgo")
}
