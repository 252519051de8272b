package collision

import (
	"context"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.viam.com/test"

	"go.viam.com/kinopt/kinematics"
	"go.viam.com/kinopt/referenceframe"
	spatial "go.viam.com/kinopt/spatialmath"
)

func serialArm(t *testing.T, segments int) *referenceframe.Model {
	t.Helper()
	segs := make([]referenceframe.SerialSegment, segments)
	for i := range segs {
		segs[i] = referenceframe.SerialSegment{Kind: referenceframe.RevoluteJoint, Axis: r3.Vector{Z: 1}, Length: 1, Radius: 0.05}
	}
	m, err := referenceframe.NewSerialChain("arm", segs...)
	test.That(t, err, test.ShouldBeNil)
	return m
}

func sphere(t *testing.T, pt r3.Vector, radius float64, label string) spatial.Geometry {
	t.Helper()
	s, err := spatial.NewSphere(spatial.NewPoseFromPoint(pt), radius, label)
	test.That(t, err, test.ShouldBeNil)
	return s
}

// clusterModel has overlapping spheres on links that do not share a joint:
// a-c penetrate by 0.15, a-d by 0.03 and b-d by 0.18. e is far from everything.
func clusterModel(t *testing.T, limit float64) *referenceframe.Model {
	t.Helper()
	lim := []referenceframe.Limit{{Min: -limit, Max: limit}}
	z := r3.Vector{Z: 1}
	links := []referenceframe.Link{
		{Name: "base"},
		{Name: "a", Geometries: []spatial.Geometry{sphere(t, r3.Vector{}, 0.1, "a")}},
		{Name: "b", Geometries: []spatial.Geometry{sphere(t, r3.Vector{}, 0.1, "b")}},
		{Name: "c", Geometries: []spatial.Geometry{sphere(t, r3.Vector{X: -0.1}, 0.1, "c")}},
		{Name: "d", Geometries: []spatial.Geometry{sphere(t, r3.Vector{X: 0.02}, 0.1, "d")}},
		{Name: "e", Geometries: []spatial.Geometry{sphere(t, r3.Vector{}, 0.1, "e")}},
	}
	joints := []referenceframe.Joint{
		{Name: "ja", Kind: referenceframe.RevoluteJoint, Axis: z, Limits: lim, Parent: 0, Child: 1},
		{Name: "jb", Kind: referenceframe.RevoluteJoint, Axis: z, Limits: lim, Parent: 1, Child: 2, Origin: spatial.NewPoseFromPoint(r3.Vector{X: 0.15})},
		{Name: "jc", Kind: referenceframe.RevoluteJoint, Axis: z, Limits: lim, Parent: 2, Child: 3},
		{Name: "jd", Kind: referenceframe.RevoluteJoint, Axis: z, Limits: lim, Parent: 3, Child: 4},
		{Name: "je", Kind: referenceframe.RevoluteJoint, Axis: z, Limits: lim, Parent: 0, Child: 5, Origin: spatial.NewPoseFromPoint(r3.Vector{X: 5})},
	}
	m, err := referenceframe.NewModel("cluster", links, joints)
	test.That(t, err, test.ShouldBeNil)
	return m
}

func TestFilterSymmetryAndReflexivity(t *testing.T) {
	branching, err := referenceframe.ParseModelFile("../referenceframe/testdata/branching.yaml", "")
	test.That(t, err, test.ShouldBeNil)
	for _, m := range []*referenceframe.Model{serialArm(t, 3), branching, clusterModel(t, 1)} {
		f := NewFilter(m)
		test.That(t, f.Size(), test.ShouldEqual, m.NumLinks())
		for a := 0; a < m.NumLinks(); a++ {
			test.That(t, f.IsFiltered(a, a), test.ShouldBeTrue)
			for b := 0; b < m.NumLinks(); b++ {
				test.That(t, f.IsFiltered(a, b), test.ShouldEqual, f.IsFiltered(b, a))
			}
		}
		test.That(t, f.IsFiltered(-1, 0), test.ShouldBeTrue)
	}

	f := NewFilter(branching)
	// left and right are explicitly excluded
	test.That(t, f.IsFiltered(2, 3), test.ShouldBeTrue)
	test.That(t, f.IsFiltered(1, 2), test.ShouldBeTrue)
	test.That(t, f.IsFiltered(0, 2), test.ShouldBeFalse)

	arm := NewFilter(serialArm(t, 3))
	test.That(t, arm.IsFiltered(1, 2), test.ShouldBeTrue)
	test.That(t, arm.IsFiltered(1, 3), test.ShouldBeFalse)
	// link3 and tip are rigidly attached
	test.That(t, arm.IsFiltered(3, 4), test.ShouldBeTrue)
}

func TestRigidGroupsAreFiltered(t *testing.T) {
	links := []referenceframe.Link{{Name: "base"}, {Name: "mount"}, {Name: "sensor"}, {Name: "arm"}}
	joints := []referenceframe.Joint{
		{Name: "m", Kind: referenceframe.FixedJoint, Parent: 0, Child: 1},
		{Name: "s", Kind: referenceframe.FixedJoint, Parent: 1, Child: 2},
		{Name: "a", Kind: referenceframe.RevoluteJoint, Axis: r3.Vector{Z: 1}, Parent: 0, Child: 3},
	}
	m, err := referenceframe.NewModel("rigid", links, joints)
	test.That(t, err, test.ShouldBeNil)
	f := NewFilter(m)
	test.That(t, f.IsFiltered(0, 2), test.ShouldBeTrue)
	test.That(t, f.IsFiltered(0, 3), test.ShouldBeTrue)
	test.That(t, f.IsFiltered(1, 3), test.ShouldBeFalse)
	test.That(t, f.IsFiltered(2, 3), test.ShouldBeFalse)
	test.That(t, f.FilteredPairs(), test.ShouldResemble, [][2]int{{0, 1}, {0, 2}, {0, 3}, {1, 2}})

	more, err := f.WithExclusions([2]int{2, 3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, more.IsFiltered(3, 2), test.ShouldBeTrue)
	test.That(t, f.IsFiltered(3, 2), test.ShouldBeFalse)
	_, err = f.WithExclusions([2]int{2, 9})
	test.That(t, errors.Is(err, referenceframe.ErrUnknownLink), test.ShouldBeTrue)
}

func TestStoreWorldShapes(t *testing.T) {
	m := serialArm(t, 2)
	store := NewGeometryStore(m)
	test.That(t, store.HasShapes(0), test.ShouldBeFalse)
	test.That(t, store.HasShapes(1), test.ShouldBeTrue)
	test.That(t, store.ShapesFor(42), test.ShouldBeNil)

	lt, err := kinematics.ComputeLinkTransforms(m, []referenceframe.Input{math.Pi / 2, 0})
	test.That(t, err, test.ShouldBeNil)
	world, err := store.WorldShapes(lt, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(world), test.ShouldEqual, 1)
	// link2 now lies along y between 1 and 2
	d, err := spatial.DistanceBetween(world[0], spatial.NewPoint(r3.Vector{Y: 1.5}, ""))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldAlmostEqual, -0.05, 1e-9)
	// local shapes are untouched
	d, err = spatial.DistanceBetween(store.ShapesFor(2)[0], spatial.NewPoint(r3.Vector{X: 0.5}, ""))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldAlmostEqual, -0.05, 1e-9)
}

func TestStoreWithoutLinks(t *testing.T) {
	m := serialArm(t, 2)
	store := NewGeometryStore(m)
	absent, err := store.WithoutLinks("link2")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, absent.HasShapes(1), test.ShouldBeTrue)
	test.That(t, absent.HasShapes(2), test.ShouldBeFalse)
	test.That(t, store.HasShapes(2), test.ShouldBeTrue)

	engine, err := NewProximityEngine(absent, NewFilter(m))
	test.That(t, err, test.ShouldBeNil)
	for _, pair := range engine.Pairs(1) {
		test.That(t, pair.LinkA, test.ShouldNotEqual, 2)
		test.That(t, pair.LinkB, test.ShouldNotEqual, 2)
	}

	_, err = store.WithoutLinks("nope")
	test.That(t, errors.Is(err, referenceframe.ErrUnknownLink), test.ShouldBeTrue)
}

func TestMinDistancesObstacle(t *testing.T) {
	m := serialArm(t, 2)
	store := NewGeometryStore(m)
	engine, err := NewProximityEngine(store, NewFilter(m))
	test.That(t, err, test.ShouldBeNil)

	lt, err := kinematics.ComputeLinkTransforms(m, m.ZeroInputs())
	test.That(t, err, test.ShouldBeNil)
	obstacle := sphere(t, r3.Vector{X: 0.5, Y: 0.3}, 0.1, "ball")
	prox, err := engine.MinDistances(context.Background(), lt, []spatial.Geometry{obstacle})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(prox), test.ShouldEqual, 2)

	test.That(t, prox[0].Pair, test.ShouldResemble, PairID{Kind: ObstaclePair, LinkA: 1, LinkB: -1, Obstacle: 0})
	test.That(t, prox[0].Distance, test.ShouldAlmostEqual, 0.15, 1e-9)
	test.That(t, spatial.R3VectorAlmostEqual(prox[0].WitnessA, r3.Vector{X: 0.5, Y: 0.05}, 1e-9), test.ShouldBeTrue)
	test.That(t, spatial.R3VectorAlmostEqual(prox[0].WitnessB, r3.Vector{X: 0.5, Y: 0.2}, 1e-9), test.ShouldBeTrue)

	test.That(t, prox[1].Pair.LinkA, test.ShouldEqual, 2)
	test.That(t, prox[1].Distance, test.ShouldAlmostEqual, math.Sqrt(0.55*0.55+0.3*0.3)-0.15, 1e-9)
	test.That(t, MinimumDistance(prox), test.ShouldAlmostEqual, 0.15, 1e-9)
	test.That(t, MinimumDistance(nil), test.ShouldEqual, math.Inf(1))

	_, err = engine.MinDistances(context.Background(), lt, []spatial.Geometry{nil})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestMinDistancesSelfPairs(t *testing.T) {
	m := serialArm(t, 3)
	engine, err := NewProximityEngine(NewGeometryStore(m), nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, engine.Pairs(0), test.ShouldResemble, []PairID{{Kind: SelfPair, LinkA: 1, LinkB: 3, Obstacle: -1}})

	lt, err := kinematics.ComputeLinkTransforms(m, m.ZeroInputs())
	test.That(t, err, test.ShouldBeNil)
	prox, err := engine.MinDistances(context.Background(), lt, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(prox), test.ShouldEqual, 1)
	test.That(t, prox[0].Distance, test.ShouldAlmostEqual, 1.0, 1e-9)

	// folding the last link back over the first brings them together
	lt, err = kinematics.ComputeLinkTransforms(m, []referenceframe.Input{0, math.Pi / 2, math.Pi / 2})
	test.That(t, err, test.ShouldBeNil)
	prox, err = engine.MinDistances(context.Background(), lt, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, prox[0].Distance, test.ShouldAlmostEqual, 0.9, 1e-9)
}

func TestMinDistancesDeterministicAcrossParallelism(t *testing.T) {
	m := serialArm(t, 4)
	store := NewGeometryStore(m)
	obstacles := []spatial.Geometry{}
	for i := 0; i < 12; i++ {
		obstacles = append(obstacles, sphere(t, r3.Vector{X: float64(i) * 0.4, Y: 0.5 + 0.1*float64(i%3)}, 0.1, ""))
	}
	lt, err := kinematics.ComputeLinkTransforms(m, []referenceframe.Input{0.1, -0.2, 0.3, 0.4})
	test.That(t, err, test.ShouldBeNil)

	serial, err := NewProximityEngine(store, nil, WithParallelism(1))
	test.That(t, err, test.ShouldBeNil)
	parallel, err := NewProximityEngine(store, nil, WithParallelism(4), WithParallelThreshold(2))
	test.That(t, err, test.ShouldBeNil)

	want, err := serial.MinDistances(context.Background(), lt, obstacles)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(want), test.ShouldEqual, len(serial.Pairs(len(obstacles))))
	for i := 0; i < 5; i++ {
		got, err := parallel.MinDistances(context.Background(), lt, obstacles)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, got, test.ShouldResemble, want)
	}
}

func TestInjectedDistancer(t *testing.T) {
	m := serialArm(t, 2)
	var calls atomic.Int64
	fake := DistancerFunc(func(a, b spatial.Geometry) (spatial.DistanceResult, error) {
		calls.Add(1)
		return spatial.DistanceResult{Distance: 0.5}, nil
	})
	engine, err := NewProximityEngine(NewGeometryStore(m), nil, WithDistancer(fake))
	test.That(t, err, test.ShouldBeNil)
	lt, err := kinematics.ComputeLinkTransforms(m, m.ZeroInputs())
	test.That(t, err, test.ShouldBeNil)
	prox, err := engine.MinDistances(context.Background(), lt, []spatial.Geometry{sphere(t, r3.Vector{}, 1, "")})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, calls.Load(), test.ShouldEqual, int64(2))
	for _, p := range prox {
		test.That(t, p.Distance, test.ShouldEqual, 0.5)
	}

	failing := DistancerFunc(func(a, b spatial.Geometry) (spatial.DistanceResult, error) {
		return spatial.DistanceResult{}, errors.New("degenerate")
	})
	engine, err = NewProximityEngine(NewGeometryStore(m), nil, WithDistancer(failing))
	test.That(t, err, test.ShouldBeNil)
	_, err = engine.MinDistances(context.Background(), lt, []spatial.Geometry{sphere(t, r3.Vector{}, 1, "")})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "degenerate")

	_, err = NewProximityEngine(NewGeometryStore(m), NewFilter(serialArm(t, 3)))
	test.That(t, err, test.ShouldNotBeNil)
}

func TestExemptAt(t *testing.T) {
	m := clusterModel(t, 1)
	store := NewGeometryStore(m)
	f := NewFilter(m)
	test.That(t, f.IsFiltered(1, 3), test.ShouldBeFalse)
	test.That(t, f.IsFiltered(1, 4), test.ShouldBeFalse)
	test.That(t, f.IsFiltered(2, 4), test.ShouldBeFalse)

	exempt, err := f.ExemptAt(context.Background(), store, m.ZeroInputs(), 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, exempt.IsFiltered(1, 4), test.ShouldBeTrue)
	test.That(t, exempt.IsFiltered(1, 3), test.ShouldBeFalse)
	test.That(t, exempt.IsFiltered(2, 4), test.ShouldBeFalse)
	test.That(t, f.IsFiltered(1, 4), test.ShouldBeFalse)

	deeper, err := f.ExemptAt(context.Background(), store, m.ZeroInputs(), 0.3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, deeper.IsFiltered(1, 3), test.ShouldBeTrue)
	test.That(t, deeper.IsFiltered(2, 4), test.ShouldBeTrue)

	_, err = f.ExemptAt(context.Background(), store, []referenceframe.Input{0}, 0)
	test.That(t, errors.Is(err, referenceframe.ErrDimensionMismatch), test.ShouldBeTrue)
}

func TestLearnFilter(t *testing.T) {
	m := clusterModel(t, 0.01)
	store := NewGeometryStore(m)
	base := NewFilter(m)

	report, err := LearnFilter(context.Background(), store, base, LearnOptions{Samples: 100, Seed: 1, Parallelism: 2})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Samples, test.ShouldEqual, 100)
	test.That(t, report.Learned, test.ShouldResemble, [][2]int{{1, 3}, {1, 4}, {2, 4}})
	test.That(t, report.Filter.IsFiltered(4, 2), test.ShouldBeTrue)
	test.That(t, report.Filter.IsFiltered(1, 5), test.ShouldBeFalse)
	for k, pair := range report.Pairs {
		if pair.LinkB == 5 {
			test.That(t, report.CollisionRatio[k], test.ShouldEqual, 0.)
			test.That(t, report.AverageDistance[k], test.ShouldBeGreaterThan, 4.)
		}
	}

	report, err = LearnFilter(context.Background(), store, base, LearnOptions{Seed: 1, SkipNeverColliding: true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, report.Samples, test.ShouldEqual, DefaultLearnSamples)
	test.That(t, report.Filter.IsFiltered(1, 5), test.ShouldBeTrue)

	again, err := LearnFilter(context.Background(), store, base, LearnOptions{Seed: 1, SkipNeverColliding: true, Parallelism: 3})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, again.AverageDistance, test.ShouldResemble, report.AverageDistance)

	_, err = LearnFilter(context.Background(), store, base, LearnOptions{Samples: 10})
	test.That(t, err, test.ShouldNotBeNil)
}
