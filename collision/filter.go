package collision

import (
	"context"

	"github.com/pkg/errors"

	"go.viam.com/kinopt/kinematics"
	"go.viam.com/kinopt/referenceframe"
)

// DefaultContactDepth is the deepest penetration ExemptAt accepts as resting contact.
const DefaultContactDepth = 0.12

// Filter is a symmetric relation over link pairs marking pairs that are never checked. Every link is
// filtered against itself. A Filter is not modified after it is built; the derive methods return copies.
type Filter struct {
	n        int
	filtered []bool
}

func newEmptyFilter(n int) *Filter {
	f := &Filter{n: n, filtered: make([]bool, n*n)}
	for i := 0; i < n; i++ {
		f.filtered[i*n+i] = true
	}
	return f
}

// NewFilter builds the static filter of a model. It exempts links sharing a joint, links that are rigidly
// attached to each other through a chain of fixed joints, and the model's explicitly excluded pairs.
func NewFilter(m *referenceframe.Model) *Filter {
	f := newEmptyFilter(m.NumLinks())

	// union links joined by fixed joints into rigid groups
	group := make([]int, m.NumLinks())
	for i := range group {
		group[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		if group[i] != i {
			group[i] = find(group[i])
		}
		return group[i]
	}
	for idx := 0; idx < m.NumJoints(); idx++ {
		j, err := m.Joint(idx)
		if err != nil {
			continue
		}
		f.set(j.Parent, j.Child)
		if j.Kind == referenceframe.FixedJoint {
			group[find(j.Child)] = find(j.Parent)
		}
	}
	for a := 0; a < f.n; a++ {
		for b := a + 1; b < f.n; b++ {
			if find(a) == find(b) {
				f.set(a, b)
			}
		}
	}
	for _, pair := range m.ExcludedPairs() {
		f.set(pair[0], pair[1])
	}
	return f
}

func (f *Filter) set(a, b int) {
	f.filtered[a*f.n+b] = true
	f.filtered[b*f.n+a] = true
}

func (f *Filter) clone() *Filter {
	return &Filter{n: f.n, filtered: append([]bool(nil), f.filtered...)}
}

// Size returns the number of links the filter covers.
func (f *Filter) Size() int {
	return f.n
}

// IsFiltered reports whether the pair is excluded from checking. Indices outside the model are filtered.
func (f *Filter) IsFiltered(a, b int) bool {
	if a < 0 || b < 0 || a >= f.n || b >= f.n {
		return true
	}
	return f.filtered[a*f.n+b]
}

// WithExclusions returns a copy of the filter that additionally exempts the given pairs.
func (f *Filter) WithExclusions(pairs ...[2]int) (*Filter, error) {
	out := f.clone()
	for _, p := range pairs {
		if p[0] < 0 || p[1] < 0 || p[0] >= f.n || p[1] >= f.n {
			return nil, errors.Wrapf(referenceframe.ErrUnknownLink, "exclusion %v outside %d links", p, f.n)
		}
		out.set(p[0], p[1])
	}
	return out, nil
}

// FilteredPairs lists every filtered pair with a < b.
func (f *Filter) FilteredPairs() [][2]int {
	var out [][2]int
	for a := 0; a < f.n; a++ {
		for b := a + 1; b < f.n; b++ {
			if f.filtered[a*f.n+b] {
				out = append(out, [2]int{a, b})
			}
		}
	}
	return out
}

// ExemptAt returns a copy of the filter that also exempts every self pair in shallow contact at a joint state
// known to be valid, such as a robot's home pose. Pairs penetrating deeper than maxDepth stay checked.
// A non-positive maxDepth means DefaultContactDepth.
func (f *Filter) ExemptAt(
	ctx context.Context,
	store *GeometryStore,
	inputs []referenceframe.Input,
	maxDepth float64,
) (*Filter, error) {
	if maxDepth <= 0 {
		maxDepth = DefaultContactDepth
	}
	lt, err := kinematics.ComputeLinkTransforms(store.Model(), inputs)
	if err != nil {
		return nil, err
	}
	engine, err := NewProximityEngine(store, f)
	if err != nil {
		return nil, err
	}
	prox, err := engine.MinDistances(ctx, lt, nil)
	if err != nil {
		return nil, err
	}
	out := f.clone()
	for _, p := range prox {
		if p.Distance <= 0 && p.Distance > -maxDepth {
			out.set(p.Pair.LinkA, p.Pair.LinkB)
		}
	}
	return out, nil
}
