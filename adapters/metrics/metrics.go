// Package metrics provides Prometheus metrics collection for the
// document runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/albmarin/umongo/ports"
)

// Collector implements ports.Metrics on Prometheus counters.
type Collector struct {
	DocumentsCommitted *prometheus.CounterVec
	ValidationFailures *prometheus.CounterVec
	IndexesEnsured     *prometheus.CounterVec
}

// New creates a collector registered on the default registry.
func New() *Collector {
	return newCollector(promauto.With(prometheus.DefaultRegisterer))
}

// NewWithRegistry creates a collector on a custom registry. Useful for
// testing to avoid global state.
func NewWithRegistry(reg prometheus.Registerer) *Collector {
	return newCollector(promauto.With(reg))
}

func newCollector(factory promauto.Factory) *Collector {
	return &Collector{
		DocumentsCommitted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "umongo",
				Name:      "documents_committed_total",
				Help:      "Total number of documents written to the backend",
			},
			[]string{"collection", "op"},
		),
		ValidationFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "umongo",
				Name:      "validation_failures_total",
				Help:      "Total number of documents rejected by validation",
			},
			[]string{"collection"},
		),
		IndexesEnsured: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "umongo",
				Name:      "indexes_ensured_total",
				Help:      "Total number of index specs submitted to the backend",
			},
			[]string{"collection"},
		),
	}
}

// DocumentCommitted counts a persisted document.
func (c *Collector) DocumentCommitted(collection, op string) {
	c.DocumentsCommitted.WithLabelValues(collection, op).Inc()
}

// ValidationFailed counts a rejected document.
func (c *Collector) ValidationFailed(collection string) {
	c.ValidationFailures.WithLabelValues(collection).Inc()
}

// IndexEnsured counts an ensured index.
func (c *Collector) IndexEnsured(collection string) {
	c.IndexesEnsured.WithLabelValues(collection).Inc()
}

// Ensure interface compliance.
var _ ports.Metrics = (*Collector)(nil)
