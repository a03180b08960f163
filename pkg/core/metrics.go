package core

import "sync/atomic"

// SocketMetrics contains aggregate counters for a set of sockets. Fields are
// updated with sync/atomic; use Load for a consistent copy.
type SocketMetrics struct {
	// ConnectionsCreated is the number of sockets created.
	ConnectionsCreated uint64

	// ConnectionsClosed is the number of sockets that reached a terminal state.
	ConnectionsClosed uint64

	// PacketsSent is the number of packets written to transports.
	PacketsSent uint64

	// PacketsReceived is the number of packets pushed to receive queues.
	PacketsReceived uint64

	// BytesSent is the number of payload bytes written to transports.
	BytesSent uint64

	// BytesReceived is the number of payload bytes received.
	BytesReceived uint64

	// Errors is the number of sockets that entered EVENTERROR.
	Errors uint64
}

// Load returns an atomically loaded copy of m.
func (m *SocketMetrics) Load() SocketMetrics {
	if m == nil {
		return SocketMetrics{}
	}
	return SocketMetrics{
		ConnectionsCreated: atomic.LoadUint64(&m.ConnectionsCreated),
		ConnectionsClosed:  atomic.LoadUint64(&m.ConnectionsClosed),
		PacketsSent:        atomic.LoadUint64(&m.PacketsSent),
		PacketsReceived:    atomic.LoadUint64(&m.PacketsReceived),
		BytesSent:          atomic.LoadUint64(&m.BytesSent),
		BytesReceived:      atomic.LoadUint64(&m.BytesReceived),
		Errors:             atomic.LoadUint64(&m.Errors),
	}
}

// Reset zeroes the traffic counters. Connection and error counts are kept.
func (m *SocketMetrics) Reset() {
	atomic.StoreUint64(&m.PacketsSent, 0)
	atomic.StoreUint64(&m.PacketsReceived, 0)
	atomic.StoreUint64(&m.BytesSent, 0)
	atomic.StoreUint64(&m.BytesReceived, 0)
}

// Map flattens the metrics for reporting.
func (m SocketMetrics) Map() map[string]uint64 {
	return map[string]uint64{
		"conns_created": m.ConnectionsCreated,
		"conns_closed":  m.ConnectionsClosed,
		"pkts_sent":     m.PacketsSent,
		"pkts_recv":     m.PacketsReceived,
		"bytes_sent":    m.BytesSent,
		"bytes_recv":    m.BytesReceived,
		"errors":        m.Errors,
	}
}
