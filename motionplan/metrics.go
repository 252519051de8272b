package motionplan

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"go.viam.com/kinopt/motionplan/ik"
)

// Metrics counts solves, restarts and objective evaluations.
type Metrics struct {
	Solves          *prometheus.CounterVec
	Restarts        *prometheus.CounterVec
	Evaluations     prometheus.Counter
	CostEvaluations prometheus.Counter
	SolveDuration   *prometheus.HistogramVec
}

// NewMetrics registers the planner metrics with reg. A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Solves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinopt",
			Subsystem: "planner",
			Name:      "solves_total",
			Help:      "Solve calls by kind and outcome",
		}, []string{"kind", "outcome"}),
		Restarts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kinopt",
			Subsystem: "planner",
			Name:      "restarts_total",
			Help:      "Finished optimizer restarts by outcome",
		}, []string{"outcome"}),
		Evaluations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kinopt",
			Subsystem: "planner",
			Name:      "objective_evaluations_total",
			Help:      "Objective evaluations reported by finished restarts",
		}),
		CostEvaluations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "kinopt",
			Subsystem: "planner",
			Name:      "cost_evaluations_total",
			Help:      "Weighted cost evaluations per solve, including finite difference steps",
		}),
		SolveDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "kinopt",
			Subsystem: "planner",
			Name:      "solve_duration_seconds",
			Help:      "Wall-clock duration of solve calls",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
		}, []string{"kind"}),
	}
}

func (m *Metrics) restartHook() ik.RestartHook {
	if m == nil {
		return nil
	}
	return func(_ int, out *ik.Outcome, _ time.Duration) {
		m.Restarts.WithLabelValues(out.Kind.String()).Inc()
		m.Evaluations.Add(float64(out.Evaluations))
	}
}

func (m *Metrics) observeCost(evaluations int64) {
	if m == nil {
		return
	}
	m.CostEvaluations.Add(float64(evaluations))
}

func (m *Metrics) observeSolve(kind string, outcome ik.OutcomeKind, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Solves.WithLabelValues(kind, outcome.String()).Inc()
	m.SolveDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
