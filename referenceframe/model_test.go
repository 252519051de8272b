package referenceframe

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/test"

	spatial "go.viam.com/kinopt/spatialmath"
)

func loadBranching(t *testing.T) *Model {
	t.Helper()
	m, err := ParseModelFile("testdata/branching.yaml", "")
	test.That(t, err, test.ShouldBeNil)
	return m
}

func TestModelLoading(t *testing.T) {
	m := loadBranching(t)
	test.That(t, m.Name(), test.ShouldEqual, "branching")
	test.That(t, m.DoF(), test.ShouldEqual, 3)
	test.That(t, m.NumLinks(), test.ShouldEqual, 5)
	test.That(t, m.NumJoints(), test.ShouldEqual, 4)
	test.That(t, m.Root(), test.ShouldEqual, 0)

	names := []string{}
	for _, j := range m.JointOrder() {
		names = append(names, j.Name)
	}
	test.That(t, names, test.ShouldResemble, []string{"waist", "left_shoulder", "right_shoulder", "camera_mount"})

	j, err := m.JointIndex("left_shoulder")
	test.That(t, err, test.ShouldBeNil)
	start, end, err := m.DoFRange(j)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, start, test.ShouldEqual, 1)
	test.That(t, end, test.ShouldEqual, 2)

	cam, err := m.JointIndex("camera_mount")
	test.That(t, err, test.ShouldBeNil)
	start, end, err = m.DoFRange(cam)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, end-start, test.ShouldEqual, 0)

	limits := m.Limits()
	test.That(t, limits[1], test.ShouldResemble, Limit{Min: 0, Max: 0.5})
	test.That(t, limits[2].IsFinite(), test.ShouldBeFalse)
	test.That(t, m.IsRotationalDoF(0), test.ShouldBeTrue)
	test.That(t, m.IsRotationalDoF(1), test.ShouldBeFalse)
	test.That(t, m.IsRotationalDoF(2), test.ShouldBeTrue)

	torso, err := m.LinkIndex("torso")
	test.That(t, err, test.ShouldBeNil)
	link, err := m.Link(torso)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(link.Geometries), test.ShouldEqual, 1)
	test.That(t, link.Geometries[0].Label(), test.ShouldEqual, "torso")
	test.That(t, link.ParentJoint, test.ShouldEqual, 0)

	camera, err := m.LinkIndex("camera")
	test.That(t, err, test.ShouldBeNil)
	link, err = m.Link(camera)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, link.VisualMesh, test.ShouldEqual, "meshes/camera.stl")

	test.That(t, m.ExcludedPairs(), test.ShouldResemble, [][2]int{{2, 3}})

	_, err = m.LinkIndex("nope")
	test.That(t, errors.Is(err, ErrUnknownLink), test.ShouldBeTrue)
	_, err = m.JointIndex("nope")
	test.That(t, errors.Is(err, ErrUnknownJoint), test.ShouldBeTrue)

	m, err = ParseModelFile("testdata/branching.yaml", "foo")
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.Name(), test.ShouldEqual, "foo")
}

func TestTreeQueries(t *testing.T) {
	m := loadBranching(t)
	test.That(t, m.TraversalLayers(), test.ShouldResemble, [][]int{{0}, {1}, {2, 3, 4}})
	test.That(t, m.MaxDepth(), test.ShouldEqual, 3)
	test.That(t, m.DownstreamLinks(1), test.ShouldResemble, []int{1, 2, 3, 4})
	test.That(t, m.DownstreamLinks(2), test.ShouldResemble, []int{2})
	test.That(t, m.ParentLink(0), test.ShouldEqual, -1)
	test.That(t, m.ParentLink(4), test.ShouldEqual, 1)
	test.That(t, m.Depth(3), test.ShouldEqual, 2)

	chain, err := m.LinkChain(2, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chain, test.ShouldResemble, []int{2, 1, 3})

	chain, err = m.LinkChain(4, 0)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chain, test.ShouldResemble, []int{4, 1, 0})

	chain, err = m.LinkChain(0, 2)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chain, test.ShouldResemble, []int{0, 1, 2})

	chain, err = m.LinkChain(3, 3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, chain, test.ShouldResemble, []int{3})

	_, err = m.LinkChain(0, 9)
	test.That(t, errors.Is(err, ErrUnknownLink), test.ShouldBeTrue)
}

func TestTraversalOrderIsStable(t *testing.T) {
	links := []Link{{Name: "base"}, {Name: "a"}, {Name: "b"}, {Name: "c"}}
	joints := []Joint{
		{Name: "a_to_c", Kind: RevoluteJoint, Axis: r3.Vector{Z: 1}, Parent: 1, Child: 3},
		{Name: "base_to_b", Kind: PrismaticJoint, Axis: r3.Vector{X: 1}, Parent: 0, Child: 2},
		{Name: "base_to_a", Kind: PlanarJoint, Axis: r3.Vector{Z: 1}, Parent: 0, Child: 1},
	}
	m, err := NewModel("stable", links, joints)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.TraversalOrder(), test.ShouldResemble, []int{1, 2, 0})
	test.That(t, m.DoF(), test.ShouldEqual, 5)

	for idx, want := range map[int][2]int{1: {0, 1}, 2: {1, 4}, 0: {4, 5}} {
		start, end, err := m.DoFRange(idx)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, [2]int{start, end}, test.ShouldResemble, want)
	}
	j, sub := m.DoFOwner(3)
	test.That(t, j, test.ShouldEqual, 2)
	test.That(t, sub, test.ShouldEqual, 2)

	test.That(t, m.JointInputs([]Input{1, 2, 3, 4, 5}, 2), test.ShouldResemble, []Input{2, 3, 4})

	_, _, err = m.DoFRange(7)
	test.That(t, errors.Is(err, ErrUnknownJoint), test.ShouldBeTrue)
}

func TestMalformedModels(t *testing.T) {
	z := r3.Vector{Z: 1}
	threeLinks := []Link{{Name: "r"}, {Name: "a"}, {Name: "b"}}
	for _, tc := range []struct {
		name     string
		links    []Link
		joints   []Joint
		excluded [][2]string
		msg      string
	}{
		{
			name:   "two roots",
			links:  threeLinks,
			joints: []Joint{{Name: "j", Kind: RevoluteJoint, Axis: z, Parent: 0, Child: 1}},
			msg:    "disconnected",
		},
		{
			name: "cycle behind a root",
			links: threeLinks,
			joints: []Joint{
				{Name: "ab", Kind: RevoluteJoint, Axis: z, Parent: 1, Child: 2},
				{Name: "ba", Kind: RevoluteJoint, Axis: z, Parent: 2, Child: 1},
			},
			msg: "cycle",
		},
		{
			name: "no root",
			links: []Link{{Name: "a"}, {Name: "b"}},
			joints: []Joint{
				{Name: "ab", Kind: FixedJoint, Parent: 0, Child: 1},
				{Name: "ba", Kind: FixedJoint, Parent: 1, Child: 0},
			},
			msg: "cyclic",
		},
		{
			name: "multiple parents",
			links: threeLinks,
			joints: []Joint{
				{Name: "rb", Kind: RevoluteJoint, Axis: z, Parent: 0, Child: 2},
				{Name: "ab", Kind: RevoluteJoint, Axis: z, Parent: 1, Child: 2},
			},
			msg: "more than one parent",
		},
		{
			name:   "no links",
			msg:    "no links",
		},
		{
			name:  "duplicate link",
			links: []Link{{Name: "a"}, {Name: "a"}},
			msg:   "duplicate link",
		},
		{
			name:   "self joint",
			links:  threeLinks,
			joints: []Joint{{Name: "j", Kind: FixedJoint, Parent: 1, Child: 1}},
			msg:    "itself",
		},
		{
			name:   "out of range",
			links:  threeLinks,
			joints: []Joint{{Name: "j", Kind: FixedJoint, Parent: 0, Child: 5}},
			msg:    "outside",
		},
		{
			name:   "zero axis",
			links:  threeLinks[:2],
			joints: []Joint{{Name: "j", Kind: RevoluteJoint, Parent: 0, Child: 1}},
			msg:    "non-zero axis",
		},
		{
			name:   "limit count disagrees with kind",
			links:  threeLinks[:2],
			joints: []Joint{{Name: "j", Kind: RevoluteJoint, Axis: z, Parent: 0, Child: 1, Limits: []Limit{{-1, 1}, {-1, 1}}}},
			msg:    "declares 2 limits",
		},
		{
			name:   "inverted limits",
			links:  threeLinks[:2],
			joints: []Joint{{Name: "j", Kind: PrismaticJoint, Axis: z, Parent: 0, Child: 1, Limits: []Limit{{1, -1}}}},
			msg:    "invalid limits",
		},
		{
			name:   "bounded continuous",
			links:  threeLinks[:2],
			joints: []Joint{{Name: "j", Kind: ContinuousJoint, Axis: z, Parent: 0, Child: 1, Limits: []Limit{{-1, 1}}}},
			msg:    "finite limits",
		},
		{
			name:     "unknown exclusion",
			links:    threeLinks[:2],
			joints:   []Joint{{Name: "j", Kind: FixedJoint, Parent: 0, Child: 1}},
			excluded: [][2]string{{"r", "zzz"}},
			msg:      "unknown link",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			m, err := NewModel(tc.name, tc.links, tc.joints, tc.excluded...)
			test.That(t, m, test.ShouldBeNil)
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, errors.Is(err, ErrMalformedModel), test.ShouldBeTrue)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.msg)
		})
	}
}

func TestModelIsNotAliased(t *testing.T) {
	links := []Link{{Name: "base"}, {Name: "arm"}}
	joints := []Joint{{Name: "j", Kind: RevoluteJoint, Axis: r3.Vector{Z: 1}, Parent: 0, Child: 1, Limits: []Limit{{-1, 1}}}}
	m, err := NewModel("alias", links, joints)
	test.That(t, err, test.ShouldBeNil)
	joints[0].Limits[0].Max = 100
	links[1].Name = "changed"
	test.That(t, m.Limits()[0].Max, test.ShouldEqual, 1.)
	test.That(t, m.LinkNames(), test.ShouldResemble, []string{"base", "arm"})
}

func TestValidateInputs(t *testing.T) {
	m := loadBranching(t)
	test.That(t, m.ValidateInputs([]Input{0, 0.1, 0}), test.ShouldBeNil)

	err := m.ValidateInputs([]Input{0, 0})
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, NewIncorrectDoFError(2, 3).Error())

	err = m.ValidateInputs([]Input{0, 0, 0, 0})
	test.That(t, errors.Is(err, ErrDimensionMismatch), test.ShouldBeTrue)

	err = m.ValidateInputs([]Input{0, math.NaN(), 0})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "not finite")

	test.That(t, m.CheckInputLimits([]Input{0, 0.25, 10}), test.ShouldBeNil)
	err = m.CheckInputLimits([]Input{0, 0.75, 10})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "left_shoulder")
}

func TestRandomInputsWithinSamplingRange(t *testing.T) {
	m := loadBranching(t)
	rSeed := rand.New(rand.NewSource(42))
	for i := 0; i < 100; i++ {
		inputs := RandomInputs(m, rSeed)
		test.That(t, len(inputs), test.ShouldEqual, m.DoF())
		for k, v := range inputs {
			l, u := SamplingRange(m.Limits()[k], m.IsRotationalDoF(k))
			test.That(t, v, test.ShouldBeGreaterThanOrEqualTo, l)
			test.That(t, v, test.ShouldBeLessThanOrEqualTo, u)
		}
	}
	test.That(t, RandomInputs(m, nil), test.ShouldResemble, RandomInputs(m, nil))
}

func TestSamplingRange(t *testing.T) {
	l, u := SamplingRange(Unbounded(), true)
	test.That(t, l, test.ShouldAlmostEqual, -math.Pi)
	test.That(t, u, test.ShouldAlmostEqual, math.Pi)
	l, u = SamplingRange(Limit{Min: math.Inf(-1), Max: 0}, false)
	test.That(t, l, test.ShouldAlmostEqual, -2.)
	test.That(t, u, test.ShouldAlmostEqual, 0.)
	l, u = SamplingRange(Limit{Min: -0.5, Max: 0.25}, true)
	test.That(t, l, test.ShouldAlmostEqual, -0.5)
	test.That(t, u, test.ShouldAlmostEqual, 0.25)
}

func TestSerialChain(t *testing.T) {
	m, err := NewSerialChain("planar",
		SerialSegment{Kind: RevoluteJoint, Axis: r3.Vector{Z: 1}, Length: 1, Radius: 0.05},
		SerialSegment{Kind: RevoluteJoint, Axis: r3.Vector{Z: 1}, Length: 1, Radius: 0.05, Limit: &Limit{Min: -0.5, Max: 0.5}},
	)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m.DoF(), test.ShouldEqual, 2)
	test.That(t, m.LinkNames(), test.ShouldResemble, []string{"base", "link1", "link2", "tip"})
	test.That(t, m.Limits()[1], test.ShouldResemble, Limit{Min: -0.5, Max: 0.5})

	link, err := m.Link(1)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(link.Geometries), test.ShouldEqual, 1)
	// the capsule axis runs along the link
	mid := spatial.NewPoint(r3.Vector{X: 0.5}, "")
	d, err := spatial.DistanceBetween(link.Geometries[0], mid)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldAlmostEqual, -0.05, 1e-6)
	end := spatial.NewPoint(r3.Vector{X: 1}, "")
	d, err = spatial.DistanceBetween(link.Geometries[0], end)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, d, test.ShouldAlmostEqual, 0, 1e-6)

	tip, err := m.Link(3)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, tip.Geometries, test.ShouldBeEmpty)
}
