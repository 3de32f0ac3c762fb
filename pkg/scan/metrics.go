package scan

import (
	"net/http"

	"autovader.dev/cmd/pkg/browser"
	"autovader.dev/cmd/pkg/finding"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "autovader"

type Metrics struct {
	Rendered  prometheus.Counter
	Failed    prometheus.Counter
	Rejected  prometheus.Counter
	Reported  prometheus.Counter
	Duplicate prometheus.Counter
	Flows     prometheus.Counter

	gatherer prometheus.Gatherer
}

// NewMetrics registers the scan counters with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	g, ok := reg.(prometheus.Gatherer)
	if !ok {
		g = prometheus.DefaultGatherer
	}

	return &Metrics{
		gatherer: g,
		Rendered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "targets_rendered_total",
			Help:      "Targets DOM Invader finished with.",
		}),
		Failed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "targets_failed_total",
			Help:      "Targets that could not be loaded.",
		}),
		Rejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bindings_rejected_total",
			Help:      "Binding calls refused because of their origin.",
		}),
		Reported: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_reported_total",
			Help:      "New issues reported.",
		}),
		Duplicate: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "issues_duplicate_total",
			Help:      "Issues suppressed as duplicates.",
		}),
		Flows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_captured_total",
			Help:      "Captured flows evaluated for auto-run.",
		}),
	}
}

// Handler serves the counters in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func (m *Metrics) observeResult(r browser.Result) {
	m.Rendered.Add(float64(r.Rendered))
	m.Failed.Add(float64(r.Failed))
	m.Rejected.Add(float64(r.Rejected))
}

func (m *Metrics) observeIssue(_ finding.Issue, added bool) {
	if added {
		m.Reported.Inc()
	} else {
		m.Duplicate.Inc()
	}
}

func (m *Metrics) observeFlow() {
	m.Flows.Inc()
}
