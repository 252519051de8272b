package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
)

func TestGeometryConfigRoundTrip(t *testing.T) {
	pose := NewPose(r3.Vector{X: 1, Y: 2, Z: 3}, &R4AA{Theta: math.Pi / 3, RX: 1})
	capsule := makeTestCapsule(t, pose, 0.2, 1)
	hull, err := NewConvexHull(pose, cubeVertices(1), "hull")
	test.That(t, err, test.ShouldBeNil)
	for _, g := range []Geometry{
		makeTestSphere(t, r3.Vector{X: 1}, 2),
		makeTestBox(t, pose, r3.Vector{X: 1, Y: 2, Z: 3}),
		capsule,
		NewPoint(r3.Vector{Z: 4}, "tip"),
		hull,
	} {
		parsed, err := g.ToConfig().ParseConfig()
		test.That(t, err, test.ShouldBeNil)
		test.That(t, parsed.AlmostEqual(g), test.ShouldBeTrue)
		test.That(t, parsed.Label(), test.ShouldEqual, g.Label())
	}
}

func TestGeometryConfigInference(t *testing.T) {
	g, err := (&GeometryConfig{R: 1, L: 4}).ParseConfig()
	test.That(t, err, test.ShouldBeNil)
	_, ok := g.(*capsule)
	test.That(t, ok, test.ShouldBeTrue)

	g, err = (&GeometryConfig{R: 1}).ParseConfig()
	test.That(t, err, test.ShouldBeNil)
	_, ok = g.(*sphere)
	test.That(t, ok, test.ShouldBeTrue)

	g, err = (&GeometryConfig{X: 1, Y: 1, Z: 1}).ParseConfig()
	test.That(t, err, test.ShouldBeNil)
	_, ok = g.(*box)
	test.That(t, ok, test.ShouldBeTrue)

	_, err = (&GeometryConfig{Type: "mesh"}).ParseConfig()
	test.That(t, err, test.ShouldNotBeNil)
	_, err = (&GeometryConfig{}).ParseConfig()
	test.That(t, err, test.ShouldNotBeNil)
}

func TestOrientationConfig(t *testing.T) {
	o, err := (&OrientationConfig{Euler: &EulerAngles{Yaw: math.Pi / 2}}).ParseConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, OrientationAlmostEqual(o, &R4AA{Theta: math.Pi / 2, RZ: 1}), test.ShouldBeTrue)

	_, err = (&OrientationConfig{Euler: &EulerAngles{}, AxisAngle: NewR4AA()}).ParseConfig()
	test.That(t, err, test.ShouldNotBeNil)

	pc := &PoseConfig{Translation: r3.Vector{X: 1}}
	p, err := pc.ParseConfig()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, PoseAlmostEqual(p, NewPoseFromPoint(r3.Vector{X: 1})), test.ShouldBeTrue)
}
