package core

import (
	"sync/atomic"
)

// Global debug flag that can be set via configuration
var debugMode uint32

// SetDebugMode sets the global debug mode flag.
// When enabled, packet payloads are copied on the way in and out of queues so
// that a caller mutating its buffer after Write cannot corrupt queued data.
func SetDebugMode(enabled bool) {
	if enabled {
		atomic.StoreUint32(&debugMode, 1)
	} else {
		atomic.StoreUint32(&debugMode, 0)
	}
}

// IsDebugMode returns whether debug mode is enabled
func IsDebugMode() bool {
	return atomic.LoadUint32(&debugMode) == 1
}

// Packet is one opaque payload exchanged between a socket worker and its
// caller through a queue.
type Packet interface {
	// Data returns the payload. Callers must not modify it.
	Data() []byte

	// Length returns the payload length.
	Length() int
}

// pooledPacket is a Packet backed by a buffer borrowed from a pool. Release
// returns the buffer; the packet must not be used afterwards.
type pooledPacket struct {
	data     []byte
	releaser func([]byte)
}

// NewPooledPacket wraps data with an optional releaser. Do not mutate data
// after passing it in.
func NewPooledPacket(data []byte, releaser func([]byte)) Packet {
	if data == nil {
		data = make([]byte, 0)
	}
	return &pooledPacket{data: data, releaser: releaser}
}

func (p *pooledPacket) Data() []byte { return p.data }
func (p *pooledPacket) Length() int  { return len(p.data) }

// ReleasePacket returns a pooled packet's buffer. It is a no-op for other
// packet kinds and on second call.
func ReleasePacket(p Packet) {
	if pp, ok := p.(*pooledPacket); ok {
		if pp.releaser != nil && pp.data != nil {
			pp.releaser(pp.data)
			pp.data = nil
			pp.releaser = nil
		}
	}
}

// SimplePacket is a heap-allocated Packet.
type SimplePacket struct {
	data []byte
}

// NewPacket creates a new packet. In debug mode the payload is copied.
func NewPacket(data []byte) Packet {
	if data == nil {
		return &SimplePacket{data: make([]byte, 0)}
	}
	if IsDebugMode() {
		dataCopy := make([]byte, len(data))
		copy(dataCopy, data)
		return &SimplePacket{data: dataCopy}
	}
	return &SimplePacket{data: data}
}

// CopyPacket creates a packet that owns a private copy of data regardless of
// debug mode. Used wherever the source buffer is reused by the producer.
func CopyPacket(data []byte) Packet {
	return &SimplePacket{data: append(make([]byte, 0, len(data)), data...)}
}

// Data returns the packet data. In debug mode a copy is returned.
func (p *SimplePacket) Data() []byte {
	if IsDebugMode() {
		dataCopy := make([]byte, len(p.data))
		copy(dataCopy, p.data)
		return dataCopy
	}
	return p.data
}

// Length returns the packet length
func (p *SimplePacket) Length() int {
	return len(p.data)
}
