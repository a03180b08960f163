package socket

import (
	"sync/atomic"

	"github.com/irctrakz/sockmgr/pkg/core"
)

// Metrics is an alias for core.SocketMetrics
type Metrics = core.SocketMetrics

// Metrics returns a snapshot of the aggregate counters.
func (r *Registry) Metrics() Metrics {
	return r.totals.Load()
}

// MetricsMap returns the aggregate counters plus live gauges, keyed for
// reporting.
func (r *Registry) MetricsMap() map[string]uint64 {
	m := r.totals.Load().Map()
	m["handles"] = uint64(r.Count())
	if c := atomic.LoadInt64(&r.connected); c > 0 {
		m["connected"] = uint64(c)
	} else {
		m["connected"] = 0
	}
	return m
}
