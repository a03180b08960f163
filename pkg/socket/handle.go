package socket

import (
	"context"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/httpreq"
	"github.com/irctrakz/sockmgr/pkg/logging"
	"github.com/irctrakz/sockmgr/pkg/queue"
)

// processStart anchors the handle timestamps.
var processStart = time.Now()

// Handle is the caller's view of one connection. All methods are safe to
// call from any goroutine and never block, except Destroy.
type Handle struct {
	id      uint64
	reg     *Registry
	log     *logrus.Entry
	address string
	port    int
	secure  bool
	cipher  *cipherSpec
	delay   time.Duration
	cfg     core.SocketConfig
	httpCfg core.HTTPConfig
	req     *httpreq.Request // nil in stream mode

	status  uint32
	histMu  sync.Mutex
	history []core.Status

	mu         sync.RWMutex
	ident      string
	ip         string
	negotiated string
	sockErr    *SocketError
	reply      *httpreq.Reply

	rx *queue.PacketQueue
	tx *queue.PacketQueue

	rxBytes   uint64
	txBytes   uint64
	rxPackets uint64
	txPackets uint64

	tConnect      int64
	tConnected    int64
	tRead         int64
	tWrite        int64
	tDisconnect   int64
	tDisconnected int64

	onEvent atomic.Pointer[EventFunc]
	onError atomic.Pointer[ErrorFunc]
	errOnce sync.Once

	disconnect   uint32
	disconnectAt int64 // unix nanos of the first disconnect request
	destroyed    uint32
	counted      uint32
	closed       uint32

	ctx    context.Context
	cancel context.CancelFunc
	wake   chan struct{}
	done   chan struct{}
	gone   chan struct{} // closed by Destroy

	connMu sync.Mutex
	conn   net.Conn
}

func newHandle(reg *Registry, id uint64, address string, port int, cipher *cipherSpec, delay time.Duration) *Handle {
	ctx, cancel := context.WithCancel(context.Background())
	ident := net.JoinHostPort(address, strconv.Itoa(port))
	h := &Handle{
		id:      id,
		reg:     reg,
		log:     logging.WithSocket(id, ident),
		address: address,
		port:    port,
		secure:  cipher != nil,
		cipher:  cipher,
		delay:   delay,
		cfg:     reg.opts.Socket,
		httpCfg: reg.opts.HTTP,
		status:  uint32(core.StatusStandby),
		history: []core.Status{core.StatusStandby},
		ident:   ident,
		rx:      queue.New(),
		tx:      queue.New(),
		ctx:     ctx,
		cancel:  cancel,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		gone:    make(chan struct{}),
	}
	return h
}

func (h *Handle) isDestroyed() bool { return atomic.LoadUint32(&h.destroyed) == 1 }

func (h *Handle) check() error {
	if h.isDestroyed() {
		return destroyedErr(h.id)
	}
	return nil
}

func (h *Handle) eventFunc() EventFunc {
	if p := h.onEvent.Load(); p != nil {
		return *p
	}
	return nil
}

func (h *Handle) errorFunc() ErrorFunc {
	if p := h.onError.Load(); p != nil {
		return *p
	}
	return nil
}

func (h *Handle) currentStatus() core.Status { return core.Status(atomic.LoadUint32(&h.status)) }

// setStatus moves the handle along one state machine edge. Illegal edges are
// refused and logged.
func (h *Handle) setStatus(to core.Status) bool {
	for {
		from := h.currentStatus()
		if !core.CanTransition(from, to) {
			h.log.Warnf("Refused status transition %s -> %s", from, to)
			return false
		}
		if !atomic.CompareAndSwapUint32(&h.status, uint32(from), uint32(to)) {
			continue
		}
		h.histMu.Lock()
		h.history = append(h.history, to)
		h.histMu.Unlock()

		h.log.Debugf("Status %s -> %s", from, to)
		if to == core.StatusConnected {
			stamp(&h.tConnected)
			if atomic.CompareAndSwapUint32(&h.counted, 0, 1) {
				h.reg.connectedInc()
			}
		} else if !to.In(core.StatusConnectedPhase) {
			h.uncount()
		}
		if to.IsTerminal() && to != core.StatusEventError {
			h.markClosed()
		}
		h.reg.disp.post(h, Event{Kind: EventStatus, Status: to, Prev: from})
		return true
	}
}

// uncount removes the handle from the registry's connected count, once.
func (h *Handle) uncount() {
	if atomic.CompareAndSwapUint32(&h.counted, 1, 0) {
		h.reg.connectedDec()
	}
}

func (h *Handle) markClosed() {
	if atomic.CompareAndSwapUint32(&h.closed, 0, 1) {
		atomic.AddUint64(&h.reg.totals.ConnectionsClosed, 1)
	}
}

func (h *Handle) setError(se *SocketError) {
	h.mu.Lock()
	h.sockErr = se
	h.mu.Unlock()
	atomic.AddUint64(&h.reg.totals.Errors, 1)
}

// notifyError queues the error callback; only the first call has effect.
func (h *Handle) notifyError(se *SocketError) {
	h.errOnce.Do(func() {
		h.reg.disp.postError(h, se)
	})
}

func (h *Handle) disconnectRequested() bool { return atomic.LoadUint32(&h.disconnect) == 1 }

// drainGrace is how long writes may continue after a disconnect request,
// covering both an in-flight write and the flush of queued packets.
const drainGrace = 500 * time.Millisecond

func (h *Handle) drainDeadline() time.Time {
	if at := atomic.LoadInt64(&h.disconnectAt); at != 0 {
		return time.Unix(0, at).Add(drainGrace)
	}
	return time.Now().Add(drainGrace)
}

// requestDisconnect sets the disconnect flag, interrupts a blocked dial,
// handshake or read, and bounds any write by the drain deadline.
func (h *Handle) requestDisconnect() bool {
	if !atomic.CompareAndSwapUint32(&h.disconnect, 0, 1) {
		return false
	}
	atomic.StoreInt64(&h.disconnectAt, time.Now().UnixNano())
	h.cancel()
	h.connMu.Lock()
	if h.conn != nil {
		_ = h.conn.SetReadDeadline(time.Now())
		_ = h.conn.SetWriteDeadline(h.drainDeadline())
	}
	h.connMu.Unlock()
	select {
	case h.wake <- struct{}{}:
	default:
	}
	return true
}

func (h *Handle) setConn(c net.Conn) {
	h.connMu.Lock()
	h.conn = c
	h.connMu.Unlock()
	// A disconnect that raced the dial finds no conn to poke.
	if c != nil && h.disconnectRequested() {
		_ = c.SetReadDeadline(time.Now())
		_ = c.SetWriteDeadline(h.drainDeadline())
	}
}

func (h *Handle) countRX(n int) {
	atomic.AddUint64(&h.rxBytes, uint64(n))
	atomic.AddUint64(&h.rxPackets, 1)
	atomic.AddUint64(&h.reg.totals.BytesReceived, uint64(n))
	atomic.AddUint64(&h.reg.totals.PacketsReceived, 1)
	stamp(&h.tRead)
}

func (h *Handle) countTX(n int) {
	atomic.AddUint64(&h.txBytes, uint64(n))
	atomic.AddUint64(&h.txPackets, 1)
	atomic.AddUint64(&h.reg.totals.BytesSent, uint64(n))
	atomic.AddUint64(&h.reg.totals.PacketsSent, 1)
	stamp(&h.tWrite)
}

// stamp records the current process-relative time; 0 means never.
func stamp(p *int64) {
	d := int64(time.Since(processStart))
	if d <= 0 {
		d = 1
	}
	atomic.StoreInt64(p, d)
}

func loadStamp(p *int64) time.Duration {
	d := atomic.LoadInt64(p)
	if d < 0 {
		return 0
	}
	return time.Duration(d)
}

// Disconnect requests an orderly shutdown. It returns immediately; the
// worker observes the request within one loop iteration. A handle already in
// EVENTERROR is closed synchronously. Repeated calls are no-ops.
func (h *Handle) Disconnect() error {
	if err := h.check(); err != nil {
		return err
	}
	h.requestDisconnect()
	if h.currentStatus() == core.StatusEventError {
		// The worker has exited; nobody else moves the status.
		<-h.done
		if h.setStatus(core.StatusDisconnecting) {
			stamp(&h.tDisconnect)
			h.setStatus(core.StatusClosedByClient)
			stamp(&h.tDisconnected)
		}
	}
	return nil
}

// GetStatus returns the current status.
func (h *Handle) GetStatus() (core.Status, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.currentStatus(), nil
}

// StatusHistory returns every status visited, in order, starting with
// STANDBY.
func (h *Handle) StatusHistory() ([]core.Status, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	h.histMu.Lock()
	defer h.histMu.Unlock()
	return append([]core.Status(nil), h.history...), nil
}

// GetError returns the recorded error code, or CodeNone.
func (h *Handle) GetError() (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.sockErr == nil {
		return CodeNone, nil
	}
	return h.sockErr.Code, nil
}

// GetReason returns the recorded error text, or "".
func (h *Handle) GetReason() (string, error) {
	if err := h.check(); err != nil {
		return "", err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.sockErr == nil {
		return "", nil
	}
	return h.sockErr.Reason, nil
}

// Err returns the recorded SocketError, or nil.
func (h *Handle) Err() (*SocketError, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.sockErr, nil
}

func (h *Handle) GetSecure() (bool, error) {
	if err := h.check(); err != nil {
		return false, err
	}
	return h.secure, nil
}

func (h *Handle) GetAddress() (string, error) {
	if err := h.check(); err != nil {
		return "", err
	}
	return h.address, nil
}

func (h *Handle) GetAddressAndPort() (string, error) {
	if err := h.check(); err != nil {
		return "", err
	}
	return net.JoinHostPort(h.address, strconv.Itoa(h.port)), nil
}

// GetIPAddress returns the resolved IP, or "" before resolution.
func (h *Handle) GetIPAddress() (string, error) {
	if err := h.check(); err != nil {
		return "", err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ip, nil
}

func (h *Handle) GetIPAddressAndPort() (string, error) {
	ip, err := h.GetIPAddress()
	if err != nil || ip == "" {
		return "", err
	}
	return net.JoinHostPort(ip, strconv.Itoa(h.port)), nil
}

func (h *Handle) GetPort() (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.port, nil
}

// GetCipher returns the negotiated cipher suite name, or "" for plain
// sockets and before the handshake completes.
func (h *Handle) GetCipher() (string, error) {
	if err := h.check(); err != nil {
		return "", err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.negotiated, nil
}

func (h *Handle) GetID() (uint64, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.id, nil
}

func (h *Handle) GetIdent() (string, error) {
	if err := h.check(); err != nil {
		return "", err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ident, nil
}

func (h *Handle) SetIdent(ident string) error {
	if err := h.check(); err != nil {
		return err
	}
	h.mu.Lock()
	h.ident = ident
	h.mu.Unlock()
	return nil
}

func (h *Handle) RecvQCount() (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.rx.Count(), nil
}

func (h *Handle) SendQCount() (int, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return h.tx.Count(), nil
}

// PopRecvQ removes the oldest received packet. It returns (nil, 0, nil)
// when the queue is empty.
func (h *Handle) PopRecvQ() ([]byte, int, error) {
	if err := h.check(); err != nil {
		return nil, 0, err
	}
	p, n := h.rx.PopFront()
	if p == nil {
		return nil, 0, nil
	}
	return p.Data(), n, nil
}

// PopSendQ removes the oldest packet not yet written.
func (h *Handle) PopSendQ() ([]byte, int, error) {
	if err := h.check(); err != nil {
		return nil, 0, err
	}
	p, n := h.tx.PopFront()
	if p == nil {
		return nil, 0, nil
	}
	return p.Data(), n, nil
}

// PopSendQAsTable removes every packet not yet written.
func (h *Handle) PopSendQAsTable() ([][]byte, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	pkts := h.tx.PopAll()
	out := make([][]byte, len(pkts))
	for i, p := range pkts {
		out[i] = p.Data()
	}
	return out, nil
}

// CompactRecvQ removes all received packets and returns them concatenated.
func (h *Handle) CompactRecvQ() ([]byte, int, error) {
	if err := h.check(); err != nil {
		return nil, 0, err
	}
	b, n := h.rx.CompactAll()
	return b, n, nil
}

func (h *Handle) CompactSendQ() ([]byte, int, error) {
	if err := h.check(); err != nil {
		return nil, 0, err
	}
	b, n := h.tx.CompactAll()
	return b, n, nil
}

// Write queues a copy of b for transmission and returns immediately.
func (h *Handle) Write(b []byte) error {
	if err := h.check(); err != nil {
		return err
	}
	if h.req != nil {
		return errors.Wrap(ErrNotWritable, "http mode")
	}
	st := h.currentStatus()
	if h.disconnectRequested() || st.IsTerminal() || st == core.StatusDisconnecting {
		return errors.Wrapf(ErrNotWritable, "status %s", st)
	}
	if len(b) == 0 {
		return ErrEmptyPacket
	}
	if len(b) > h.cfg.MaxPacketSize {
		return errors.Wrapf(ErrPacketTooLarge, "%d > %d", len(b), h.cfg.MaxPacketSize)
	}
	h.tx.Push(wrapTX(b))
	return nil
}

func (h *Handle) WriteString(s string) error { return h.Write([]byte(s)) }

func (h *Handle) GetRXBytes() (uint64, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return atomic.LoadUint64(&h.rxBytes), nil
}

func (h *Handle) GetTXBytes() (uint64, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return atomic.LoadUint64(&h.txBytes), nil
}

func (h *Handle) GetRXPackets() (uint64, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return atomic.LoadUint64(&h.rxPackets), nil
}

func (h *Handle) GetTXPackets() (uint64, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return atomic.LoadUint64(&h.txPackets), nil
}

// Timestamps are offsets from process start; 0 means the event has not
// happened.

func (h *Handle) TConnect() (time.Duration, error)      { return h.timing(&h.tConnect) }
func (h *Handle) TConnected() (time.Duration, error)    { return h.timing(&h.tConnected) }
func (h *Handle) TRead() (time.Duration, error)         { return h.timing(&h.tRead) }
func (h *Handle) TWrite() (time.Duration, error)        { return h.timing(&h.tWrite) }
func (h *Handle) TDisconnect() (time.Duration, error)   { return h.timing(&h.tDisconnect) }
func (h *Handle) TDisconnected() (time.Duration, error) { return h.timing(&h.tDisconnected) }

func (h *Handle) timing(p *int64) (time.Duration, error) {
	if err := h.check(); err != nil {
		return 0, err
	}
	return loadStamp(p), nil
}

// SetCallback replaces the event callback; nil removes it.
func (h *Handle) SetCallback(fn EventFunc) error {
	if err := h.check(); err != nil {
		return err
	}
	if fn == nil {
		h.onEvent.Store(nil)
	} else {
		h.onEvent.Store(&fn)
	}
	return nil
}

// SetErrorCallback replaces the error callback; nil removes it.
func (h *Handle) SetErrorCallback(fn ErrorFunc) error {
	if err := h.check(); err != nil {
		return err
	}
	if fn == nil {
		h.onError.Store(nil)
	} else {
		h.onError.Store(&fn)
	}
	return nil
}

// Response returns the HTTP reply status line and headers once received,
// or nil.
func (h *Handle) Response() (*httpreq.Reply, error) {
	if err := h.check(); err != nil {
		return nil, err
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reply.Clone(), nil
}

// Done is closed when the worker goroutine has exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Destroy disconnects, waits for the worker to exit, drops queued packets
// and removes the handle from its registry. Every later call on the handle
// returns ErrDestroyed.
func (h *Handle) Destroy() error {
	if !atomic.CompareAndSwapUint32(&h.destroyed, 0, 1) {
		return destroyedErr(h.id)
	}
	close(h.gone)
	h.requestDisconnect()
	<-h.done
	h.uncount()
	h.markClosed()
	h.rx.CompactAll()
	h.tx.CompactAll()
	h.reg.remove(h.id)
	h.log.Debugf("Handle destroyed")
	return nil
}
