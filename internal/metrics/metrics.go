// Package metrics exposes the server's runtime counters as Prometheus
// collectors, mounted by internal/admin at /metrics.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the server's collectors. internal/server updates
// ActiveChannels, ConnectionsTotal and ConnectionsLimit as it accepts and
// closes connections; no code in this module updates PendingTasks,
// BytesIn, BytesOut or RequestDuration, so they stay at zero.
type Registry struct {
	ActiveChannels   prometheus.Gauge
	PendingTasks     prometheus.Gauge
	ConnectionsTotal prometheus.Counter
	ConnectionsLimit prometheus.Gauge
	BytesIn          prometheus.Counter
	BytesOut         prometheus.Counter
	RequestDuration  *prometheus.HistogramVec
}

// NewRegistry creates and registers every collector against reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		ActiveChannels: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "multiserve",
			Name:      "active_channels",
			Help:      "Number of currently open client channels.",
		}),
		PendingTasks: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "multiserve",
			Name:      "dispatcher_pending_tasks",
			Help:      "Approximate number of tasks queued in the dispatcher.",
		}),
		ConnectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multiserve",
			Name:      "connections_total",
			Help:      "Total connections accepted since start.",
		}),
		ConnectionsLimit: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "multiserve",
			Name:      "connections_limit",
			Help:      "Configured connection_limit admission ceiling.",
		}),
		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multiserve",
			Name:      "bytes_in_total",
			Help:      "Total bytes read from client sockets.",
		}),
		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "multiserve",
			Name:      "bytes_out_total",
			Help:      "Total bytes written to client sockets.",
		}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "multiserve",
			Name:      "request_duration_seconds",
			Help:      "Task service() latency by protocol.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"protocol"}),
	}
	reg.MustRegister(
		r.ActiveChannels,
		r.PendingTasks,
		r.ConnectionsTotal,
		r.ConnectionsLimit,
		r.BytesIn,
		r.BytesOut,
		r.RequestDuration,
	)
	return r
}
