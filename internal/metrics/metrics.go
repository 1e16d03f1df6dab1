// Package metrics registers prometheus collectors under a common namespace.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "blinkenbox"

// Registry holds every collector created by this package.
var Registry = prometheus.NewRegistry()

// MustRegisterCounter creates and registers a counter.
func MustRegisterCounter(subsystem, name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	})
	Registry.MustRegister(c)
	return c
}

// MustRegisterCounterVec creates and registers a counter vector.
func MustRegisterCounterVec(subsystem, name, help string, labelNames ...string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, labelNames)
	Registry.MustRegister(c)
	return c
}

// SetGaugeFunc registers a gauge that reads its value from fn at scrape
// time. A gauge already registered under the same name is replaced, so the
// value always comes from the most recent fn.
func SetGaugeFunc(subsystem, name, help string, fn func() float64) prometheus.GaugeFunc {
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: subsystem,
		Name:      name,
		Help:      help,
	}, fn)
	Registry.Unregister(g)
	Registry.MustRegister(g)
	return g
}
