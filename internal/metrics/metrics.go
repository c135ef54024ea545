// Package metrics counts what the runner does so that operators can scrape
// or export it after a CLI invocation.
package metrics

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "migrant"
	subsystem = "runner"

	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type Recorder struct {
	registry *prometheus.Registry

	// RED metrics
	runs *prometheus.CounterVec
	errs *prometheus.CounterVec
	durs *prometheus.HistogramVec

	pending prometheus.Gauge
	unknown prometheus.Gauge
}

// New creates a recorder with its own registry, reg may be nil
func New(reg *prometheus.Registry) *Recorder {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	r := &Recorder{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "migrations_total",
			Help:      "Number of migrations executed by direction and outcome",
		}, []string{"direction", "outcome"}),
		errs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "errors_total",
			Help:      "Number of failed migrations by direction and migration name",
		}, []string{"direction", "migration"}),
		durs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "migration_duration_seconds",
			Help:      "Duration of a single migration including its ledger write",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"direction"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_migrations",
			Help:      "Registered migrations missing from the ledger at the last diff",
		}),
		unknown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "unknown_ledger_entries",
			Help:      "Ledger entries without a registered migration at the last diff",
		}),
	}

	reg.MustRegister(r.runs, r.errs, r.durs, r.pending, r.unknown)

	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

// Execution records one migration attempt, a nil recorder ignores it
func (r *Recorder) Execution(direction, name string, took time.Duration, err error) {
	if r == nil {
		return
	}

	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeFailure
		r.errs.WithLabelValues(direction, name).Inc()
	}

	r.runs.WithLabelValues(direction, outcome).Inc()
	r.durs.WithLabelValues(direction).Observe(took.Seconds())
}

func (r *Recorder) Pending(n int) {
	if r == nil {
		return
	}

	r.pending.Set(float64(n))
}

func (r *Recorder) UnknownEntries(n int) {
	if r == nil {
		return
	}

	r.unknown.Set(float64(n))
}

// WriteTextfile dumps the registry in the node exporter textfile format
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}

	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return errors.Wrapf(err, "could not write metrics to %s", path)
	}

	return nil
}
