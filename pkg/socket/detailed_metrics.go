package socket

import (
	"sync/atomic"
	"time"

	"github.com/irctrakz/sockmgr/pkg/core"
)

// HandleMetrics is a point-in-time view of one handle.
type HandleMetrics struct {
	ID        uint64        `json:"id"`
	Ident     string        `json:"ident"`
	Address   string        `json:"address"`
	IP        string        `json:"ip,omitempty"`
	Secure    bool          `json:"secure"`
	Cipher    string        `json:"cipher,omitempty"`
	Status    string        `json:"status"`
	ErrorCode int           `json:"error_code,omitempty"`
	RXBytes   uint64        `json:"rx_bytes"`
	TXBytes   uint64        `json:"tx_bytes"`
	RXPackets uint64        `json:"rx_packets"`
	TXPackets uint64        `json:"tx_packets"`
	RecvQ     int           `json:"recv_q"`
	SendQ     int           `json:"send_q"`
	Connected time.Duration `json:"t_connected"`
	LastRead  time.Duration `json:"t_read"`
	LastWrite time.Duration `json:"t_write"`
}

// DetailedMetrics exposes total and per-handle metrics for a registry.
type DetailedMetrics struct {
	Total      core.SocketMetrics `json:"total"`
	Count      int                `json:"count"`
	Connected  int                `json:"connected"`
	Handles    []HandleMetrics    `json:"handles"`
	Dispatcher map[string]uint64  `json:"dispatcher"`
}

// DetailedMetrics returns per-handle snapshots ordered by id. Destroyed
// handles are skipped.
func (r *Registry) DetailedMetrics() DetailedMetrics {
	handles := r.Handles()
	d := DetailedMetrics{
		Total:      r.totals.Load(),
		Count:      len(handles),
		Connected:  r.Connected(),
		Handles:    make([]HandleMetrics, 0, len(handles)),
		Dispatcher: r.disp.Metrics(),
	}
	for _, h := range handles {
		if h.isDestroyed() {
			continue
		}
		d.Handles = append(d.Handles, h.snapshot())
	}
	return d
}

func (h *Handle) snapshot() HandleMetrics {
	h.mu.RLock()
	m := HandleMetrics{
		ID:      h.id,
		Ident:   h.ident,
		Address: h.address,
		IP:      h.ip,
		Secure:  h.secure,
		Cipher:  h.negotiated,
	}
	if h.sockErr != nil {
		m.ErrorCode = h.sockErr.Code
	}
	h.mu.RUnlock()

	m.Status = h.currentStatus().String()
	m.RXBytes = atomic.LoadUint64(&h.rxBytes)
	m.TXBytes = atomic.LoadUint64(&h.txBytes)
	m.RXPackets = atomic.LoadUint64(&h.rxPackets)
	m.TXPackets = atomic.LoadUint64(&h.txPackets)
	m.RecvQ = h.rx.Count()
	m.SendQ = h.tx.Count()
	m.Connected = loadStamp(&h.tConnected)
	m.LastRead = loadStamp(&h.tRead)
	m.LastWrite = loadStamp(&h.tWrite)
	return m
}
