// Package metrics exposes Prometheus instruments for command dispatch.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "homectl"

// Status labels for the commands counter.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// Metrics groups the engine's instruments. A nil *Metrics is a no-op.
type Metrics struct {
	commands       *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	gateRejections prometheus.Counter
	fragments      prometheus.Counter
	refreshArmed   prometheus.Counter

	gatherer prometheus.Gatherer
}

// New creates the instruments and registers them on reg.
func New(reg *prometheus.Registry) (*Metrics, error) {
	m := &Metrics{
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Command invocations by command and status.",
		}, []string{"command", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Round-trip duration of command invocations.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		gateRejections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gate_rejections_total",
			Help:      "Triggers dropped because a command was in flight.",
		}),
		fragments: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_applied_total",
			Help:      "Fragments swapped into the document.",
		}),
		refreshArmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_armed_total",
			Help:      "Auto-refresh timers started.",
		}),
		gatherer: reg,
	}

	for _, c := range []prometheus.Collector{m.commands, m.duration, m.gateRejections, m.fragments, m.refreshArmed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) ObserveCommand(command, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.commands.WithLabelValues(command, status).Inc()
	m.duration.WithLabelValues(command).Observe(d.Seconds())
}

func (m *Metrics) GateRejected() {
	if m == nil {
		return
	}
	m.gateRejections.Inc()
}

func (m *Metrics) FragmentApplied() {
	if m == nil {
		return
	}
	m.fragments.Inc()
}

func (m *Metrics) RefreshArmed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.refreshArmed.Add(float64(n))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
