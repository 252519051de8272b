package ik

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestBoundsTransformRoundTrip(t *testing.T) {
	inf := math.Inf(1)
	lower := []float64{-1, 0, -inf, -inf}
	upper := []float64{2, inf, 3, inf}
	bt := newBoundsTransform(lower, upper)

	x := []float64{0.5, 4, -2, 7}
	back := bt.toExternal(bt.toInternal(x))
	for i := range x {
		test.That(t, back[i], test.ShouldAlmostEqual, x[i], 1e-9)
	}

	// Any internal value lands inside the bounds.
	for _, v := range []float64{-100, -3, -0.2, 0, 1.7, 42} {
		ext := bt.toExternal([]float64{v, v, v, v})
		test.That(t, ext[0], test.ShouldBeGreaterThanOrEqualTo, -1)
		test.That(t, ext[0], test.ShouldBeLessThanOrEqualTo, 2)
		test.That(t, ext[1], test.ShouldBeGreaterThanOrEqualTo, 0)
		test.That(t, ext[2], test.ShouldBeLessThanOrEqualTo, 3)
		test.That(t, ext[3], test.ShouldEqual, v)
	}
}

func TestBoundsTransformDerivative(t *testing.T) {
	inf := math.Inf(1)
	bt := newBoundsTransform([]float64{-1, 0, -inf, -inf}, []float64{2, inf, 3, inf})
	const h = 1e-6
	for _, v := range []float64{-1.3, 0.2, 0.9} {
		for i := 0; i < 4; i++ {
			y := []float64{v, v, v, v}
			y[i] = v + h
			up := bt.toExternal(y)[i]
			y[i] = v - h
			down := bt.toExternal(y)[i]
			test.That(t, bt.derivative(i, v), test.ShouldAlmostEqual, (up-down)/(2*h), 1e-6)
		}
	}
}

func TestEnsureInterior(t *testing.T) {
	inf := math.Inf(1)
	out := ensureInterior([]float64{-1, 5, -9}, []float64{-1, 0, -inf}, []float64{1, 1, inf}, 1e-3)
	test.That(t, out[0], test.ShouldAlmostEqual, -1+2e-3, 1e-12)
	test.That(t, out[1], test.ShouldAlmostEqual, 1-1e-3, 1e-12)
	test.That(t, out[2], test.ShouldEqual, -9.)
}
