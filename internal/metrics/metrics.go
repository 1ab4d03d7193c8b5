// Package metrics collects per-run counters for the batch tools and writes
// them in the node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "plinko_ubt"

// Run holds the metrics of one tool invocation. Each Run has its own registry.
type Run struct {
	reg *prometheus.Registry

	records      prometheus.Counter
	warnings     *prometheus.CounterVec
	distinct     *prometheus.GaugeVec
	duration     prometheus.Gauge
	lastFinished prometheus.Gauge
}

// New returns the metrics of a run of the named pipeline (analyze, convert...).
func New(pipeline string) *Run {
	labels := prometheus.Labels{"pipeline": pipeline}
	r := &Run{
		reg: prometheus.NewRegistry(),
		records: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "records_total",
			Help:        "Records read from the input dump.",
			ConstLabels: labels,
		}),
		warnings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "warnings_total",
			Help:        "Recoverable input problems by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		distinct: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "distinct_keys",
			Help:        "Distinct keys seen, by key kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		duration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Wall time of the last run.",
			ConstLabels: labels,
		}),
		lastFinished: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "last_run_timestamp_seconds",
			Help:        "Unix time the last run finished.",
			ConstLabels: labels,
		}),
	}
	r.reg.MustRegister(r.records, r.warnings, r.distinct, r.duration, r.lastFinished)
	return r
}

func (r *Run) Registry() *prometheus.Registry { return r.reg }

// Finish records the outcome of a completed pass.
func (r *Run) Finish(records uint64, elapsed time.Duration) {
	r.records.Add(float64(records))
	r.duration.Set(elapsed.Seconds())
	r.lastFinished.SetToCurrentTime()
}

func (r *Run) Warn(kind string) { r.warnings.WithLabelValues(kind).Inc() }

func (r *Run) SetDistinct(kind string, n uint64) {
	r.distinct.WithLabelValues(kind).Set(float64(n))
}

// WriteTextfile writes the registry to path. An empty path is a no-op.
func (r *Run) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.reg)
}
