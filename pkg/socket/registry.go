package socket

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/httpreq"
	"github.com/irctrakz/sockmgr/pkg/logging"
	"github.com/irctrakz/sockmgr/pkg/oauth"
	"github.com/irctrakz/sockmgr/pkg/resolver"
)

// Registry creates handles and tracks every live one together with
// aggregate traffic counters.
type Registry struct {
	opts Options
	disp *dispatcher

	mu      sync.RWMutex
	handles map[uint64]*Handle
	nextID  uint64

	connected int64
	totals    core.SocketMetrics
	closed    uint32
}

// NewRegistry creates a registry and starts its event dispatcher.
func NewRegistry(opts Options) *Registry {
	opts = opts.withDefaults()
	r := &Registry{
		opts:    opts,
		disp:    newDispatcher(opts.Socket.EventQueueCap),
		handles: make(map[uint64]*Handle),
	}
	r.disp.start()
	logging.Infof("Socket registry started: framing=%s delay=%v readPoll=%v",
		opts.Socket.Framing, opts.Socket.Delay(), opts.Socket.ReadPoll())
	return r
}

// Create starts an asynchronous point-to-point connection and returns its
// handle immediately, normally in STANDBY or INITIALISING. An empty cipher
// means plain TCP. A negative delay selects the configured default.
func (r *Registry) Create(address string, port int, cipher string, delay time.Duration, onError ErrorFunc, onEvent EventFunc) (*Handle, error) {
	return r.create(address, port, cipher, delay, nil, onError, onEvent)
}

// CreateHTTP starts an HTTP mode exchange. port 0 selects the scheme default
// (443 with a cipher, 80 without).
func (r *Registry) CreateHTTP(cipher, address string, port int, resource, method string, headers []httpreq.Header, body []byte, onError ErrorFunc, onEvent EventFunc) (*Handle, error) {
	scheme := "http"
	if cipher != "" {
		scheme = "https"
	}
	if port == 0 {
		port = httpreq.DefaultPort(scheme)
	}
	if method == "" {
		method = "GET"
	}
	req := &httpreq.Request{
		Method:   method,
		Scheme:   scheme,
		Host:     strings.Trim(address, "[]"),
		Port:     port,
		Resource: resource,
		Headers:  append([]httpreq.Header(nil), headers...),
		Body:     append([]byte(nil), body...),
	}
	if err := req.Validate(); err != nil {
		return nil, errors.Wrap(err, "http request")
	}
	return r.create(address, port, cipher, -1, req, onError, onEvent)
}

func (r *Registry) create(address string, port int, cipher string, delay time.Duration, req *httpreq.Request, onError ErrorFunc, onEvent EventFunc) (*Handle, error) {
	if atomic.LoadUint32(&r.closed) == 1 {
		return nil, ErrClosed
	}
	address = strings.TrimSpace(address)
	if ip, ok := resolver.ParseIP(address); ok {
		address = ip.String()
	} else if _, err := resolver.CanonicalHost(address); err != nil {
		return nil, errors.Wrapf(ErrInvalidAddress, "%q", address)
	}
	if port <= 0 || port > 65535 {
		return nil, errors.Wrapf(ErrInvalidAddress, "port %d", port)
	}
	var spec *cipherSpec
	if cipher != "" {
		var err error
		if spec, err = parseCipher(cipher); err != nil {
			return nil, err
		}
	}
	if delay < 0 {
		delay = r.opts.Socket.Delay()
	}

	id := atomic.AddUint64(&r.nextID, 1)
	h := newHandle(r, id, address, port, spec, delay)
	h.req = req
	if onEvent != nil {
		h.onEvent.Store(&onEvent)
	}
	if onError != nil {
		h.onError.Store(&onError)
	}

	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()
	atomic.AddUint64(&r.totals.ConnectionsCreated, 1)

	mode := "stream"
	if req != nil {
		mode = "http"
	}
	h.log.Debugf("Handle created: mode=%s secure=%v delay=%v", mode, h.secure, delay)

	w := &worker{h: h}
	go w.run()
	return h, nil
}

// ValidAddress reports whether address is an IP literal or a resolvable
// hostname.
func (r *Registry) ValidAddress(address string) bool {
	return r.opts.Resolver.ValidAddress(address)
}

// Get returns the live handle with id.
func (r *Registry) Get(id uint64) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handles[id]
	return h, ok
}

// Handles returns the live handles ordered by id.
func (r *Registry) Handles() []*Handle {
	r.mu.RLock()
	out := make([]*Handle, 0, len(r.handles))
	for _, h := range r.handles {
		out = append(out, h)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// Count returns the number of live handles.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

// Connected returns the number of handles in the connected phase.
func (r *Registry) Connected() int { return int(atomic.LoadInt64(&r.connected)) }

func (r *Registry) TotalRXBytes() uint64   { return atomic.LoadUint64(&r.totals.BytesReceived) }
func (r *Registry) TotalTXBytes() uint64   { return atomic.LoadUint64(&r.totals.BytesSent) }
func (r *Registry) TotalRXPackets() uint64 { return atomic.LoadUint64(&r.totals.PacketsReceived) }
func (r *Registry) TotalTXPackets() uint64 { return atomic.LoadUint64(&r.totals.PacketsSent) }

// ResetTotals zeroes the aggregate traffic counters.
func (r *Registry) ResetTotals() { r.totals.Reset() }

// FlushAll requests a disconnect on every live handle and returns how many
// requests were new. It does not wait.
func (r *Registry) FlushAll() int {
	n := 0
	for _, h := range r.Handles() {
		if h.requestDisconnect() {
			n++
		}
		if h.currentStatus() == core.StatusEventError {
			_ = h.Disconnect()
		}
	}
	if n > 0 {
		logging.Debugf("Flush requested disconnect on %d sockets", n)
	}
	return n
}

// WaitAll disconnects every live handle and blocks, without a timeout, until
// each worker has exited. It returns the number of handles waited on.
func (r *Registry) WaitAll() int {
	r.FlushAll()
	handles := r.Handles()
	var g errgroup.Group
	for _, h := range handles {
		h := h
		g.Go(func() error {
			<-h.done
			return nil
		})
	}
	_ = g.Wait()
	logging.Debugf("All %d sockets stopped (connected=%d)", len(handles), r.Connected())
	return len(handles)
}

// Close waits for every worker, destroys every handle and stops the
// dispatcher. Create fails with ErrClosed afterwards. It must not be called
// from a callback.
func (r *Registry) Close() error {
	if !atomic.CompareAndSwapUint32(&r.closed, 0, 1) {
		return nil
	}
	r.WaitAll()
	for _, h := range r.Handles() {
		_ = h.Destroy()
	}
	r.disp.stop()
	logging.Infof("Socket registry closed")
	return nil
}

// OAuth11 signs a request with the registry's signer. port may be empty.
func (r *Registry) OAuth11(method, scheme, address, port, resource, params, body string) (oauth.Params, error) {
	if port != "" {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return nil, errors.Wrapf(ErrInvalidAddress, "port %q", port)
		}
	}
	return r.opts.Signer.Sign(method, scheme, address, port, resource, params, body)
}

func (r *Registry) remove(id uint64) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

func (r *Registry) connectedInc() { atomic.AddInt64(&r.connected, 1) }
func (r *Registry) connectedDec() { atomic.AddInt64(&r.connected, -1) }
