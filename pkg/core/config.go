package core

import "time"

// Framing modes for the byte stream of a point-to-point socket.
const (
	// FramingRaw pushes each successful read as one packet and writes
	// packets verbatim.
	FramingRaw = "raw"

	// FramingLength prefixes every packet with a 4 byte big-endian length.
	FramingLength = "length"
)

// SocketConfig contains defaults applied to every socket a registry creates.
type SocketConfig struct {
	// DelayMs is the default throttle delay between worker loop iterations.
	DelayMs int `json:"delay_ms" yaml:"delayMs"`

	// ReadPollMs bounds how long a single read may block in the stream loop.
	ReadPollMs int `json:"read_poll_ms" yaml:"readPollMs"`

	// ConnectTimeoutMs bounds the TCP dial.
	ConnectTimeoutMs int `json:"connect_timeout_ms" yaml:"connectTimeoutMs"`

	// HandshakeTimeoutMs bounds the TLS handshake.
	HandshakeTimeoutMs int `json:"handshake_timeout_ms" yaml:"handshakeTimeoutMs"`

	// WriteTimeoutMs bounds a single transport write.
	WriteTimeoutMs int `json:"write_timeout_ms" yaml:"writeTimeoutMs"`

	// ResolveTimeoutMs bounds hostname resolution.
	ResolveTimeoutMs int `json:"resolve_timeout_ms" yaml:"resolveTimeoutMs"`

	// ReadBufferSize is the size of the per-read buffer.
	ReadBufferSize int `json:"read_buffer_size" yaml:"readBufferSize"`

	// MaxPacketSize is the largest packet accepted by Write or by the
	// length-prefixed decoder.
	MaxPacketSize int `json:"max_packet_size" yaml:"maxPacketSize"`

	// Framing is "raw" or "length".
	Framing string `json:"framing" yaml:"framing"`

	// FlushOnDisconnect writes pending TX packets before closing.
	FlushOnDisconnect bool `json:"flush_on_disconnect" yaml:"flushOnDisconnect"`

	// InsecureSkipVerify disables TLS certificate verification.
	// WARNING: only for testing against self-signed peers.
	InsecureSkipVerify bool `json:"insecure_skip_verify" yaml:"insecureSkipVerify"`

	// EventQueueCap is the capacity of the callback dispatch queue.
	EventQueueCap int `json:"event_queue_cap" yaml:"eventQueueCap"`
}

// HTTPConfig contains defaults for HTTP mode sockets.
type HTTPConfig struct {
	// UserAgent is sent unless the request carries its own.
	UserAgent string `json:"user_agent" yaml:"userAgent"`

	// ReplyTimeoutMs bounds each blocking read while waiting for and
	// downloading the reply.
	ReplyTimeoutMs int `json:"reply_timeout_ms" yaml:"replyTimeoutMs"`

	// MaxBodyBytes caps the downloaded body (0 = unlimited).
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"maxBodyBytes"`
}

// DefaultSocketConfig returns the socket defaults.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		DelayMs:            1,
		ReadPollMs:         10,
		ConnectTimeoutMs:   10000,
		HandshakeTimeoutMs: 10000,
		WriteTimeoutMs:     10000,
		ResolveTimeoutMs:   5000,
		ReadBufferSize:     16384,
		MaxPacketSize:      1 << 20,
		Framing:            FramingRaw,
		FlushOnDisconnect:  true,
		EventQueueCap:      1024,
	}
}

// DefaultHTTPConfig returns the HTTP mode defaults.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		UserAgent:      "sockmgr/1.0",
		ReplyTimeoutMs: 30000,
		MaxBodyBytes:   0,
	}
}

// Delay returns DelayMs as a duration.
func (c SocketConfig) Delay() time.Duration { return ms(c.DelayMs) }

// ReadPoll returns ReadPollMs as a duration (at least 1ms).
func (c SocketConfig) ReadPoll() time.Duration {
	if c.ReadPollMs <= 0 {
		return time.Millisecond
	}
	return ms(c.ReadPollMs)
}

// ConnectTimeout returns ConnectTimeoutMs as a duration.
func (c SocketConfig) ConnectTimeout() time.Duration { return ms(c.ConnectTimeoutMs) }

// HandshakeTimeout returns HandshakeTimeoutMs as a duration.
func (c SocketConfig) HandshakeTimeout() time.Duration { return ms(c.HandshakeTimeoutMs) }

// WriteTimeout returns WriteTimeoutMs as a duration.
func (c SocketConfig) WriteTimeout() time.Duration { return ms(c.WriteTimeoutMs) }

// ResolveTimeout returns ResolveTimeoutMs as a duration.
func (c SocketConfig) ResolveTimeout() time.Duration { return ms(c.ResolveTimeoutMs) }

// ReplyTimeout returns ReplyTimeoutMs as a duration.
func (c HTTPConfig) ReplyTimeout() time.Duration { return ms(c.ReplyTimeoutMs) }

func ms(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Millisecond
}
