package collision

import (
	"context"
	"math/rand"

	"github.com/pkg/errors"

	"go.viam.com/kinopt/kinematics"
	"go.viam.com/kinopt/referenceframe"
	"go.viam.com/kinopt/utils"
)

const (
	// DefaultLearnSamples is the number of random joint states LearnFilter draws by default.
	DefaultLearnSamples = 1000
	// MinLearnSamples is the fewest samples from which a pair may be declared always colliding.
	MinLearnSamples = 70
	// neverCollideSamples is the fewest samples from which a pair may be declared never colliding.
	neverCollideSamples = 1000
	alwaysCollideRatio  = 0.99
)

// LearnOptions configures LearnFilter.
type LearnOptions struct {
	// Samples is the number of random joint states to draw. Zero means DefaultLearnSamples.
	Samples int
	// Seed seeds the joint state sampler.
	Seed int64
	// SkipNeverColliding also exempts pairs that never come within contact over at least 1000 samples.
	SkipNeverColliding bool
	Parallelism        int
}

// LearnReport is the result of LearnFilter.
type LearnReport struct {
	Filter *Filter
	// Samples is the number of joint states drawn.
	Samples int
	// Pairs are the self pairs checked under the base filter. CollisionRatio and AverageDistance are indexed
	// the same way.
	Pairs           []PairID
	CollisionRatio  []float64
	AverageDistance []float64
	// Learned lists the pairs the sampling exempted.
	Learned [][2]int
}

// LearnFilter samples random joint states within the model's limits and exempts self pairs that collide in
// more than 99% of samples, which usually means overlapping geometry that no motion can separate.
func LearnFilter(ctx context.Context, store *GeometryStore, base *Filter, opts LearnOptions) (*LearnReport, error) {
	samples := opts.Samples
	if samples == 0 {
		samples = DefaultLearnSamples
	}
	if samples < MinLearnSamples {
		return nil, errors.Errorf("learning a collision filter needs at least %d samples, got %d", MinLearnSamples, samples)
	}
	m := store.Model()
	engine, err := NewProximityEngine(store, base, WithParallelism(1))
	if err != nil {
		return nil, err
	}
	pairs := engine.Pairs(0)

	//nolint:gosec
	rSeed := rand.New(rand.NewSource(opts.Seed))
	states := make([][]referenceframe.Input, samples)
	for i := range states {
		states[i] = referenceframe.RandomInputs(m, rSeed)
	}

	// one row of distances per sample
	distances := make([][]float64, samples)
	err = utils.ForEachIndexParallel(ctx, samples, opts.Parallelism, func(ctx context.Context, i int) error {
		lt, err := kinematics.ComputeLinkTransforms(m, states[i])
		if err != nil {
			return err
		}
		prox, err := engine.MinDistances(ctx, lt, nil)
		if err != nil {
			return err
		}
		row := make([]float64, len(prox))
		for k, p := range prox {
			row[k] = p.Distance
		}
		distances[i] = row
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "sampling self collisions")
	}

	report := &LearnReport{
		Samples:         samples,
		Pairs:           pairs,
		CollisionRatio:  make([]float64, len(pairs)),
		AverageDistance: make([]float64, len(pairs)),
	}
	for k, pair := range pairs {
		colliding := 0
		sum := 0.0
		for _, row := range distances {
			if row[k] <= 0 {
				colliding++
			}
			sum += row[k]
		}
		ratio := float64(colliding) / float64(samples)
		report.CollisionRatio[k] = ratio
		report.AverageDistance[k] = sum / float64(samples)
		never := opts.SkipNeverColliding && samples >= neverCollideSamples && colliding == 0
		if ratio > alwaysCollideRatio || never {
			report.Learned = append(report.Learned, [2]int{pair.LinkA, pair.LinkB})
		}
	}
	report.Filter, err = engine.Filter().WithExclusions(report.Learned...)
	if err != nil {
		return nil, err
	}
	return report, nil
}
