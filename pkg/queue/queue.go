// Package queue provides the FIFO packet queues exchanged between a socket
// worker and its caller.
package queue

import (
	"sync"

	"github.com/irctrakz/sockmgr/pkg/core"
)

// PacketQueue is a FIFO of packets. It is intended for one producer and one
// consumer; the mutex only guards the push/pop boundary.
type PacketQueue struct {
	mu      sync.Mutex
	packets []core.Packet
	head    int
	bytes   int

	// notify is signalled (non-blocking) after every Push.
	notify chan struct{}
}

// New creates an empty queue.
func New() *PacketQueue {
	return &PacketQueue{notify: make(chan struct{}, 1)}
}

// Push appends a packet. It never blocks.
func (q *PacketQueue) Push(p core.Packet) {
	if p == nil {
		return
	}
	q.mu.Lock()
	q.packets = append(q.packets, p)
	q.bytes += p.Length()
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// PopFront removes and returns the oldest packet and its length, or
// (nil, 0) when the queue is empty.
func (q *PacketQueue) PopFront() (core.Packet, int) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.packets) {
		return nil, 0
	}
	p := q.packets[q.head]
	q.packets[q.head] = nil
	q.head++
	q.bytes -= p.Length()
	q.compactLocked()
	return p, p.Length()
}

// PopAll removes every pending packet and returns them oldest first.
func (q *PacketQueue) PopAll() []core.Packet {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]core.Packet, len(q.packets)-q.head)
	copy(out, q.packets[q.head:])
	q.resetLocked()
	return out
}

// CompactAll removes every pending packet and returns their concatenation
// and its total length.
func (q *PacketQueue) CompactAll() ([]byte, int) {
	q.mu.Lock()
	pending := q.packets[q.head:]
	buf := make([]byte, 0, q.bytes)
	for _, p := range pending {
		buf = append(buf, p.Data()...)
		core.ReleasePacket(p)
	}
	q.resetLocked()
	q.mu.Unlock()
	return buf, len(buf)
}

// Count returns the number of whole packets queued.
func (q *PacketQueue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.packets) - q.head
}

// Bytes returns the number of payload bytes queued.
func (q *PacketQueue) Bytes() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.bytes
}

// Notify returns a channel that receives a value after a Push. A single
// value may stand for several pushes.
func (q *PacketQueue) Notify() <-chan struct{} { return q.notify }

func (q *PacketQueue) resetLocked() {
	q.packets = nil
	q.head = 0
	q.bytes = 0
}

// compactLocked drops the consumed prefix once it dominates the slice.
func (q *PacketQueue) compactLocked() {
	if q.head == len(q.packets) {
		q.packets = q.packets[:0]
		q.head = 0
		return
	}
	if q.head >= 64 && q.head*2 >= len(q.packets) {
		n := copy(q.packets, q.packets[q.head:])
		for i := n; i < len(q.packets); i++ {
			q.packets[i] = nil
		}
		q.packets = q.packets[:n]
		q.head = 0
	}
}
