// Package referenceframe defines the kinematic tree model: links, joints, their DOF layout and the
// joint-state vectors that parameterize it.
package referenceframe

import (
	"fmt"
	"math"
	"sort"

	"github.com/pkg/errors"

	spatial "go.viam.com/kinopt/spatialmath"
)

// Link is a rigid body of the kinematic tree. Geometries are expressed in the link's local frame.
type Link struct {
	Name string
	// ParentJoint is the index of the joint whose child is this link, or -1 for the root. It is filled in by NewModel.
	ParentJoint int
	Geometries  []spatial.Geometry
	// VisualMesh is an opaque reference to a render mesh and is not used for any computation.
	VisualMesh string
}

// Model is an immutable kinematic tree. Links and joints are stored in flat slices and refer to each other
// by index. A Model is safe for concurrent use.
type Model struct {
	name   string
	links  []Link
	joints []Joint

	root       int
	order      []int // joint indices, parent before child
	dofStart   []int // per joint index
	dofJoint   []int // per dof, owning joint index
	limits     []Limit
	rotational []bool
	children   [][]int // per link, child link indices
	depth      []int   // per link, 0 at the root
	excluded   [][2]int

	linkByName  map[string]int
	jointByName map[string]int
}

// NewModel validates the links and joints and builds a Model. Joints are traversed parent before child;
// among joints whose parent is already placed, the lowest declared index goes first, so the DOF layout is
// stable for a given declaration. Every structural defect is reported as ErrMalformedModel.
func NewModel(name string, links []Link, joints []Joint, excludedPairs ...[2]string) (*Model, error) {
	if len(links) == 0 {
		return nil, NewMalformedModelError("model %q has no links", name)
	}
	m := &Model{
		name:        name,
		links:       make([]Link, len(links)),
		joints:      make([]Joint, len(joints)),
		linkByName:  make(map[string]int, len(links)),
		jointByName: make(map[string]int, len(joints)),
	}
	copy(m.links, links)
	copy(m.joints, joints)

	for i := range m.links {
		l := &m.links[i]
		if l.Name == "" {
			return nil, NewMalformedModelError("link %d has no name", i)
		}
		if _, ok := m.linkByName[l.Name]; ok {
			return nil, NewMalformedModelError("duplicate link name %q", l.Name)
		}
		m.linkByName[l.Name] = i
		l.ParentJoint = -1
		l.Geometries = append([]spatial.Geometry(nil), l.Geometries...)
	}
	for i := range m.joints {
		j := &m.joints[i]
		if err := j.validate(len(m.links)); err != nil {
			return nil, err
		}
		if _, ok := m.jointByName[j.Name]; ok {
			return nil, NewMalformedModelError("duplicate joint name %q", j.Name)
		}
		m.jointByName[j.Name] = i
		j.Limits = append([]Limit(nil), j.Limits...)
		child := &m.links[j.Child]
		if child.ParentJoint != -1 {
			return nil, NewMalformedModelError("link %q has more than one parent joint (%q and %q)",
				child.Name, m.joints[child.ParentJoint].Name, j.Name)
		}
		child.ParentJoint = i
	}

	roots := []string{}
	for i, l := range m.links {
		if l.ParentJoint == -1 {
			m.root = i
			roots = append(roots, l.Name)
		}
	}
	switch len(roots) {
	case 0:
		return nil, NewMalformedModelError("model %q has no root link, the joint graph is cyclic", name)
	case 1:
	default:
		return nil, NewMalformedModelError("model %q is disconnected, found %d root links %v", name, len(roots), roots)
	}

	if err := m.buildTraversal(); err != nil {
		return nil, err
	}

	for _, pair := range excludedPairs {
		a, okA := m.linkByName[pair[0]]
		b, okB := m.linkByName[pair[1]]
		if !okA || !okB {
			return nil, NewMalformedModelError("collision exclusion references unknown link in pair %v", pair)
		}
		m.excluded = append(m.excluded, [2]int{a, b})
	}
	return m, nil
}

// buildTraversal orders joints parent before child, assigns contiguous DOF offsets and records depths.
func (m *Model) buildTraversal() error {
	m.children = make([][]int, len(m.links))
	m.depth = make([]int, len(m.links))
	m.dofStart = make([]int, len(m.joints))

	placed := make([]bool, len(m.links))
	placed[m.root] = true
	used := make([]bool, len(m.joints))
	m.order = make([]int, 0, len(m.joints))

	for len(m.order) < len(m.joints) {
		next := -1
		for i, j := range m.joints {
			if !used[i] && placed[j.Parent] {
				next = i
				break
			}
		}
		if next == -1 {
			unreached := []string{}
			for i, j := range m.joints {
				if !used[i] {
					unreached = append(unreached, j.Name)
				}
			}
			return NewMalformedModelError("model %q contains a cycle not reachable from root %q through joints %v",
				m.name, m.links[m.root].Name, unreached)
		}
		j := m.joints[next]
		used[next] = true
		placed[j.Child] = true
		m.depth[j.Child] = m.depth[j.Parent] + 1
		m.children[j.Parent] = append(m.children[j.Parent], j.Child)

		m.dofStart[next] = len(m.limits)
		m.limits = append(m.limits, j.EffectiveLimits()...)
		m.rotational = append(m.rotational, j.Kind.rotational()...)
		for k := 0; k < j.DoF(); k++ {
			m.dofJoint = append(m.dofJoint, next)
		}
		m.order = append(m.order, next)
	}
	return nil
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// DoF returns the total number of degrees of freedom, the required length of every joint state.
func (m *Model) DoF() int {
	return len(m.limits)
}

// NumLinks returns the number of links.
func (m *Model) NumLinks() int {
	return len(m.links)
}

// NumJoints returns the number of joints.
func (m *Model) NumJoints() int {
	return len(m.joints)
}

// Root returns the index of the root link.
func (m *Model) Root() int {
	return m.root
}

// JointOrder returns the joints in traversal order, parent before child.
func (m *Model) JointOrder() []Joint {
	out := make([]Joint, 0, len(m.order))
	for _, idx := range m.order {
		out = append(out, m.joints[idx])
	}
	return out
}

// TraversalOrder returns the joint indices in traversal order.
func (m *Model) TraversalOrder() []int {
	return append([]int(nil), m.order...)
}

// DoFRange returns the half-open interval [start, end) of the joint's values within a joint state.
func (m *Model) DoFRange(joint int) (int, int, error) {
	if joint < 0 || joint >= len(m.joints) {
		return 0, 0, errors.Wrapf(ErrUnknownJoint, "index %d", joint)
	}
	start := m.dofStart[joint]
	return start, start + m.joints[joint].DoF(), nil
}

// DoFOwner returns the joint owning the given DOF index and the DOF's offset within that joint.
func (m *Model) DoFOwner(dof int) (int, int) {
	j := m.dofJoint[dof]
	return j, dof - m.dofStart[j]
}

// JointInputs returns the slice of inputs belonging to the given joint. inputs must have length DoF().
func (m *Model) JointInputs(inputs []Input, joint int) []Input {
	start := m.dofStart[joint]
	return inputs[start : start+m.joints[joint].DoF()]
}

// Limits returns one limit per DOF, in joint-state order. Unbounded DOF have infinite limits.
func (m *Model) Limits() []Limit {
	return append([]Limit(nil), m.limits...)
}

// IsRotationalDoF reports whether the DOF at the given index is an angle.
func (m *Model) IsRotationalDoF(dof int) bool {
	return m.rotational[dof]
}

// Link returns the link at the given index.
func (m *Model) Link(i int) (Link, error) {
	if i < 0 || i >= len(m.links) {
		return Link{}, errors.Wrapf(ErrUnknownLink, "index %d", i)
	}
	return m.links[i], nil
}

// Joint returns the joint at the given index.
func (m *Model) Joint(i int) (Joint, error) {
	if i < 0 || i >= len(m.joints) {
		return Joint{}, errors.Wrapf(ErrUnknownJoint, "index %d", i)
	}
	return m.joints[i], nil
}

// LinkIndex returns the index of the named link.
func (m *Model) LinkIndex(name string) (int, error) {
	i, ok := m.linkByName[name]
	if !ok {
		return -1, NewUnknownLinkError(name)
	}
	return i, nil
}

// JointIndex returns the index of the named joint.
func (m *Model) JointIndex(name string) (int, error) {
	i, ok := m.jointByName[name]
	if !ok {
		return -1, NewUnknownJointError(name)
	}
	return i, nil
}

// LinkNames returns every link name in declaration order.
func (m *Model) LinkNames() []string {
	names := make([]string, 0, len(m.links))
	for _, l := range m.links {
		names = append(names, l.Name)
	}
	return names
}

// ParentLink returns the parent link index of the given link, or -1 for the root.
func (m *Model) ParentLink(link int) int {
	pj := m.links[link].ParentJoint
	if pj < 0 {
		return -1
	}
	return m.joints[pj].Parent
}

// Depth returns the number of joints between the root and the given link.
func (m *Model) Depth(link int) int {
	return m.depth[link]
}

// LinkChain returns the ordered link indices from a to b, passing through their closest common ancestor.
func (m *Model) LinkChain(a, b int) ([]int, error) {
	if a < 0 || a >= len(m.links) || b < 0 || b >= len(m.links) {
		return nil, errors.Wrapf(ErrUnknownLink, "chain %d -> %d", a, b)
	}
	up := []int{}
	down := []int{}
	for x, y := a, b; x != y; {
		if m.depth[x] >= m.depth[y] {
			up = append(up, x)
			x = m.ParentLink(x)
		} else {
			down = append(down, y)
			y = m.ParentLink(y)
		}
		if x == y {
			up = append(up, x)
		}
	}
	if len(up) == 0 {
		return []int{a}, nil
	}
	for i := len(down) - 1; i >= 0; i-- {
		up = append(up, down[i])
	}
	return up, nil
}

// DownstreamLinks returns the given link followed by every link whose pose depends on it, breadth first.
func (m *Model) DownstreamLinks(link int) []int {
	out := []int{link}
	for i := 0; i < len(out); i++ {
		out = append(out, m.children[out[i]]...)
	}
	return out
}

// TraversalLayers groups link indices by depth from the root. Links within a layer are sorted by index.
func (m *Model) TraversalLayers() [][]int {
	layers := make([][]int, m.MaxDepth())
	for link, d := range m.depth {
		layers[d] = append(layers[d], link)
	}
	for _, layer := range layers {
		sort.Ints(layer)
	}
	return layers
}

// MaxDepth returns the number of traversal layers.
func (m *Model) MaxDepth() int {
	max := 0
	for _, d := range m.depth {
		if d > max {
			max = d
		}
	}
	return max + 1
}

// ExcludedPairs returns the link index pairs explicitly excluded from collision checking.
func (m *Model) ExcludedPairs() [][2]int {
	return append([][2]int(nil), m.excluded...)
}

// ValidateInputs checks that the joint state has one finite value per DOF.
func (m *Model) ValidateInputs(inputs []Input) error {
	if len(inputs) != m.DoF() {
		return NewIncorrectDoFError(len(inputs), m.DoF())
	}
	for i, v := range inputs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("joint state value %d is not finite: %v", i, v)
		}
	}
	return nil
}

// CheckInputLimits reports every DOF whose value lies outside its limit.
func (m *Model) CheckInputLimits(inputs []Input) error {
	if len(inputs) != m.DoF() {
		return NewIncorrectDoFError(len(inputs), m.DoF())
	}
	var outside []string
	for i, v := range inputs {
		if !m.limits[i].Contains(v) {
			j, sub := m.DoFOwner(i)
			outside = append(outside, fmt.Sprintf("%s[%d]=%.4f not in [%.4f, %.4f]", m.joints[j].Name, sub, v, m.limits[i].Min, m.limits[i].Max))
		}
	}
	if len(outside) > 0 {
		return errors.Errorf("joint state outside limits: %v", outside)
	}
	return nil
}

// ZeroInputs returns a zero joint state for the model.
func (m *Model) ZeroInputs() []Input {
	return make([]Input, m.DoF())
}
