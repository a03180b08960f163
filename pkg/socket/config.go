package socket

import (
	"context"
	"net"

	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/oauth"
	"github.com/irctrakz/sockmgr/pkg/resolver"
)

// Dialer opens transport connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Options contains configuration for a Registry
type Options struct {
	// Socket defaults applied to every handle
	Socket core.SocketConfig

	// HTTP mode defaults
	HTTP core.HTTPConfig

	// Dialer used for TCP connections (default: net.Dialer)
	Dialer Dialer

	// Resolver used for address validation and lookups
	Resolver *resolver.Resolver

	// Signer used by OAuth11
	Signer *oauth.Signer
}

// DefaultOptions returns the default registry options
func DefaultOptions() Options {
	return Options{
		Socket: core.DefaultSocketConfig(),
		HTTP:   core.DefaultHTTPConfig(),
	}
}

// withDefaults fills unset fields.
func (o Options) withDefaults() Options {
	def := core.DefaultSocketConfig()
	if o.Socket.ReadBufferSize <= 0 {
		o.Socket.ReadBufferSize = def.ReadBufferSize
	}
	if o.Socket.MaxPacketSize <= 0 {
		o.Socket.MaxPacketSize = def.MaxPacketSize
	}
	if o.Socket.Framing == "" {
		o.Socket.Framing = core.FramingRaw
	}
	if o.Socket.EventQueueCap <= 0 {
		o.Socket.EventQueueCap = def.EventQueueCap
	}
	if o.HTTP.UserAgent == "" {
		o.HTTP.UserAgent = core.DefaultHTTPConfig().UserAgent
	}
	if o.Dialer == nil {
		o.Dialer = &net.Dialer{}
	}
	if o.Resolver == nil {
		o.Resolver = resolver.New(resolver.WithTimeout(o.Socket.ResolveTimeout()))
	}
	if o.Signer == nil {
		o.Signer = oauth.NewSigner(oauth.Credentials{})
	}
	return o
}
