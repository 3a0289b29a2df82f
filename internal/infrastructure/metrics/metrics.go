// Package metrics counts what happened during a booking run. The run is a
// short-lived process, so the numbers are written once, at exit, in the
// node-exporter textfile format.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/recreserve/internal/domain/reservation"
)

const namespace = "recreserve"

type Run struct {
	registry *prometheus.Registry

	attempts     *prometheus.CounterVec
	retryPrompts prometheus.Counter
	codePolls    prometheus.Counter
	duration     prometheus.Gauge
	lastRun      prometheus.Gauge
}

func New() *Run {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Run{
		registry: reg,
		attempts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Facility/slot pairs attempted, by outcome.",
		}, []string{"outcome"}),
		retryPrompts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_prompts_total",
			Help:      "Times the booking site asked to retry a submission.",
		}),
		codePolls: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_polls_total",
			Help:      "Inbox polls made while waiting for confirmation codes.",
		}),
		duration: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run, excluding the cron wait.",
		}),
		lastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
	}
}

func (r *Run) RetryPrompt() { r.retryPrompts.Inc() }
func (r *Run) CodePoll()    { r.codePolls.Inc() }

func (r *Run) Outcome(o reservation.Outcome) {
	r.attempts.WithLabelValues(string(o)).Inc()
}

// Finish records the run duration and completion time.
func (r *Run) Finish(started, finished time.Time) {
	r.duration.Set(finished.Sub(started).Seconds())
	r.lastRun.Set(float64(finished.Unix()))
}

// WriteFile writes every metric to path atomically.
func (r *Run) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
