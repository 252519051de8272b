package collision

import (
	"context"
	"fmt"
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"go.viam.com/kinopt/kinematics"
	spatial "go.viam.com/kinopt/spatialmath"
	"go.viam.com/kinopt/utils"
)

// defaultParallelThreshold is the pair count below which queries run on the calling goroutine.
const defaultParallelThreshold = 16

// Distancer measures the signed distance between two world-frame geometries.
type Distancer interface {
	SignedDistance(a, b spatial.Geometry) (spatial.DistanceResult, error)
}

// DistancerFunc adapts a function to the Distancer interface.
type DistancerFunc func(a, b spatial.Geometry) (spatial.DistanceResult, error)

// SignedDistance calls f(a, b).
func (f DistancerFunc) SignedDistance(a, b spatial.Geometry) (spatial.DistanceResult, error) {
	return f(a, b)
}

// DefaultDistancer uses the convex distance routines of spatialmath.
var DefaultDistancer Distancer = DistancerFunc(spatial.SignedDistance)

// PairKind distinguishes link-link pairs from link-obstacle pairs.
type PairKind int

const (
	// SelfPair is a pair of robot links.
	SelfPair PairKind = iota
	// ObstaclePair is a robot link and an external obstacle.
	ObstaclePair
)

// PairID identifies a checked pair. For self pairs LinkA < LinkB and Obstacle is -1; for obstacle pairs
// LinkB is -1.
type PairID struct {
	Kind     PairKind
	LinkA    int
	LinkB    int
	Obstacle int
}

func (p PairID) String() string {
	if p.Kind == SelfPair {
		return fmt.Sprintf("link %d / link %d", p.LinkA, p.LinkB)
	}
	return fmt.Sprintf("link %d / obstacle %d", p.LinkA, p.Obstacle)
}

// Proximity is the minimum signed distance over all shape pairs of one checked pair, with the witness points
// realizing it in the world frame. Negative distances are penetration depths.
type Proximity struct {
	Pair     PairID
	Distance float64
	WitnessA r3.Vector
	WitnessB r3.Vector
}

// ProximityEngine computes signed distances for every unfiltered pair. It only reads its inputs and may be
// shared between goroutines.
type ProximityEngine struct {
	store       *GeometryStore
	filter      *Filter
	distancer   Distancer
	parallelism int
	threshold   int
	selfPairs   []PairID
}

// ProximityOption configures a ProximityEngine.
type ProximityOption func(*ProximityEngine)

// WithDistancer replaces the distance primitive.
func WithDistancer(d Distancer) ProximityOption {
	return func(e *ProximityEngine) {
		e.distancer = d
	}
}

// WithParallelism bounds the number of goroutines used per query. Values below one mean utils.ParallelFactor.
func WithParallelism(n int) ProximityOption {
	return func(e *ProximityEngine) {
		e.parallelism = n
	}
}

// WithParallelThreshold sets the pair count at which queries start fanning out to goroutines.
func WithParallelThreshold(n int) ProximityOption {
	return func(e *ProximityEngine) {
		e.threshold = n
	}
}

// NewProximityEngine returns an engine over the store's links using filter to skip self pairs.
func NewProximityEngine(store *GeometryStore, filter *Filter, opts ...ProximityOption) (*ProximityEngine, error) {
	if store == nil {
		return nil, errors.New("proximity engine needs a geometry store")
	}
	n := store.Model().NumLinks()
	if filter == nil {
		filter = NewFilter(store.Model())
	}
	if filter.Size() != n {
		return nil, errors.Errorf("collision filter covers %d links but the model has %d", filter.Size(), n)
	}
	e := &ProximityEngine{
		store:     store,
		filter:    filter,
		distancer: DefaultDistancer,
		threshold: defaultParallelThreshold,
	}
	for _, opt := range opts {
		opt(e)
	}
	for a := 0; a < n; a++ {
		if !store.HasShapes(a) {
			continue
		}
		for b := a + 1; b < n; b++ {
			if store.HasShapes(b) && !filter.IsFiltered(a, b) {
				e.selfPairs = append(e.selfPairs, PairID{Kind: SelfPair, LinkA: a, LinkB: b, Obstacle: -1})
			}
		}
	}
	return e, nil
}

// Filter returns the filter used for self pairs.
func (e *ProximityEngine) Filter() *Filter {
	return e.filter
}

// Pairs enumerates the checked pairs for the given obstacle count: unfiltered self pairs in (a, b) order, then
// every link with shapes against every obstacle, link-major.
func (e *ProximityEngine) Pairs(numObstacles int) []PairID {
	pairs := append([]PairID(nil), e.selfPairs...)
	n := e.store.Model().NumLinks()
	for link := 0; link < n; link++ {
		if !e.store.HasShapes(link) {
			continue
		}
		for o := 0; o < numObstacles; o++ {
			pairs = append(pairs, PairID{Kind: ObstaclePair, LinkA: link, LinkB: -1, Obstacle: o})
		}
	}
	return pairs
}

// MinDistances returns one Proximity per pair from Pairs(len(obstacles)), in that order. Obstacles are in the
// world frame. Large pair sets are measured concurrently; the result does not depend on scheduling.
func (e *ProximityEngine) MinDistances(
	ctx context.Context,
	lt *kinematics.LinkTransforms,
	obstacles []spatial.Geometry,
) ([]Proximity, error) {
	world, err := e.store.allWorldShapes(lt)
	if err != nil {
		return nil, err
	}
	for i, o := range obstacles {
		if o == nil {
			return nil, errors.Errorf("obstacle %d is nil", i)
		}
	}
	pairs := e.Pairs(len(obstacles))
	out := make([]Proximity, len(pairs))
	work := func(_ context.Context, idx int) error {
		pair := pairs[idx]
		a := world[pair.LinkA]
		var b []spatial.Geometry
		if pair.Kind == SelfPair {
			b = world[pair.LinkB]
		} else {
			b = obstacles[pair.Obstacle : pair.Obstacle+1]
		}
		prox, err := e.closest(a, b)
		if err != nil {
			return errors.Wrapf(err, "measuring %s", pair)
		}
		prox.Pair = pair
		out[idx] = prox
		return nil
	}

	limit := e.parallelism
	if len(pairs) < e.threshold {
		limit = 1
	}
	if err := utils.ForEachIndexParallel(ctx, len(pairs), limit, work); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *ProximityEngine) closest(a, b []spatial.Geometry) (Proximity, error) {
	best := Proximity{Distance: math.Inf(1)}
	for _, ga := range a {
		for _, gb := range b {
			res, err := e.distancer.SignedDistance(ga, gb)
			if err != nil {
				return Proximity{}, err
			}
			if math.IsNaN(res.Distance) {
				return Proximity{}, errors.Errorf("distance between %q and %q is NaN", ga.Label(), gb.Label())
			}
			if res.Distance < best.Distance {
				best.Distance = res.Distance
				best.WitnessA = res.PointA
				best.WitnessB = res.PointB
			}
		}
	}
	return best, nil
}

// MinimumDistance returns the smallest distance over a set of proximities, or +Inf when it is empty.
func MinimumDistance(prox []Proximity) float64 {
	min := math.Inf(1)
	for _, p := range prox {
		if p.Distance < min {
			min = p.Distance
		}
	}
	return min
}
