package socket

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/framing"
)

// worker drives one Handle through the state machine on its own goroutine.
type worker struct {
	h         *Handle
	conn      net.Conn
	codec     framing.Codec
	connected bool
	// writeBroken is set once a write failed; the stream may hold a partial
	// frame and must not be flushed again.
	writeBroken bool
}

func (w *worker) run() {
	h := w.h
	defer close(h.done)
	defer w.closeConn()

	if h.disconnectRequested() {
		w.shutdown()
		return
	}
	if !h.setStatus(core.StatusInitialising) {
		return
	}
	stamp(&h.tConnect)

	ip, err := w.resolve()
	if err != nil {
		if h.disconnectRequested() {
			w.shutdown()
			return
		}
		w.failCode("resolve", CodeResolve, err)
		return
	}

	var tlsCfg *tls.Config
	if h.secure {
		h.setStatus(core.StatusEncryption)
		serverName := h.address
		tlsCfg = h.cipher.tlsConfig(serverName, h.cfg.InsecureSkipVerify)
		if h.disconnectRequested() {
			w.shutdown()
			return
		}
	}

	h.setStatus(core.StatusConnecting)
	if err := w.connect(ip, tlsCfg); err != nil {
		if h.disconnectRequested() {
			w.shutdown()
			return
		}
		w.fail("connect", err)
		return
	}
	if !h.setStatus(core.StatusConnected) {
		return
	}
	w.connected = true
	h.log.Debugf("Connected to %s (secure=%v)", w.conn.RemoteAddr(), h.secure)

	if h.req != nil {
		w.runHTTP()
		return
	}
	w.runStream()
}

func (w *worker) resolve() (string, error) {
	h := w.h
	ip, err := h.reg.opts.Resolver.Resolve(h.ctx, h.address)
	if err != nil {
		return "", err
	}
	h.mu.Lock()
	h.ip = ip
	h.mu.Unlock()
	return ip, nil
}

// connect dials ip and performs the TLS handshake when tlsCfg is set.
func (w *worker) connect(ip string, tlsCfg *tls.Config) error {
	h := w.h
	ctx := h.ctx
	if d := h.cfg.ConnectTimeout(); d > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}
	raw, err := h.reg.opts.Dialer.DialContext(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(h.port)))
	if err != nil {
		return err
	}
	w.conn = raw
	h.setConn(raw)

	if tlsCfg == nil {
		return nil
	}
	hctx := h.ctx
	if d := h.cfg.HandshakeTimeout(); d > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, d)
		defer cancel()
	}
	tc := tls.Client(raw, tlsCfg)
	if err := tc.HandshakeContext(hctx); err != nil {
		return errors.Wrap(err, "tls handshake")
	}
	w.conn = tc
	h.setConn(tc)

	state := tc.ConnectionState()
	h.mu.Lock()
	h.negotiated = tls.CipherSuiteName(state.CipherSuite)
	h.mu.Unlock()
	h.log.Debugf("TLS established: version=%s cipher=%s", tls.VersionName(state.Version), h.negotiated)
	return nil
}

// runStream is the CONNECTED loop for point-to-point sockets.
func (w *worker) runStream() {
	h := w.h
	codec, err := framing.New(h.cfg.Framing, h.cfg.MaxPacketSize)
	if err != nil {
		w.failCode("framing", CodeProtocol, err)
		return
	}
	w.codec = codec

	size := h.cfg.ReadBufferSize
	buf := bufGet(size)
	defer bufPut(buf)

	for {
		if h.disconnectRequested() {
			w.shutdown()
			return
		}

		w.armRead(h.cfg.ReadPoll())
		n, rerr := w.conn.Read(buf)
		if n > 0 {
			pkts, ferr := w.codec.Decode(buf[:n])
			w.pushRX(pkts)
			if ferr != nil {
				w.failCode("read", CodeProtocol, ferr)
				return
			}
		}
		if rerr != nil {
			if isTimeout(rerr) {
				// poll expired or a disconnect poked the deadline
			} else if h.disconnectRequested() {
				w.shutdown()
				return
			} else if isEOF(rerr) {
				w.closedByServer()
				return
			} else {
				w.fail("read", rerr)
				return
			}
		}

		if err := w.flushTX(); err != nil {
			if h.disconnectRequested() {
				w.shutdown()
				return
			}
			w.fail("write", err)
			return
		}

		w.throttle()
	}
}

// armRead sets the next read deadline. A disconnect that arrived before the
// deadline was set is honoured immediately.
func (w *worker) armRead(d time.Duration) {
	if d > 0 {
		_ = w.conn.SetReadDeadline(time.Now().Add(d))
	} else {
		_ = w.conn.SetReadDeadline(time.Time{})
	}
	if w.h.disconnectRequested() {
		_ = w.conn.SetReadDeadline(time.Now())
	}
}

// armWrite sets the deadline for the next write. Once a disconnect is
// requested no write may outlive the drain deadline.
func (w *worker) armWrite() {
	var deadline time.Time
	if d := w.h.cfg.WriteTimeout(); d > 0 {
		deadline = time.Now().Add(d)
	}
	_ = w.conn.SetWriteDeadline(deadline)
	if w.h.disconnectRequested() {
		if dd := w.h.drainDeadline(); deadline.IsZero() || dd.Before(deadline) {
			_ = w.conn.SetWriteDeadline(dd)
		}
	}
}

func (w *worker) pushRX(pkts [][]byte) {
	if len(pkts) == 0 {
		return
	}
	h := w.h
	for _, p := range pkts {
		h.rx.Push(core.NewPacket(p))
		h.countRX(len(p))
	}
	h.reg.disp.post(h, Event{Kind: EventData, Status: h.currentStatus(), Packets: len(pkts)})
}

// flushTX writes every queued TX packet in order.
func (w *worker) flushTX() error {
	h := w.h
	for {
		p, n := h.tx.PopFront()
		if p == nil {
			return nil
		}
		data := p.Data()
		if w.codec != nil {
			data = w.codec.Encode(data)
		}
		w.armWrite()
		_, err := w.conn.Write(data)
		core.ReleasePacket(p)
		if err != nil {
			w.writeBroken = true
			return err
		}
		h.countTX(n)
	}
}

// throttle sleeps the per-iteration delay, waking early on a disconnect
// request or new TX data.
func (w *worker) throttle() {
	h := w.h
	if h.delay <= 0 {
		return
	}
	t := time.NewTimer(h.delay)
	defer t.Stop()
	select {
	case <-t.C:
	case <-h.wake:
	case <-h.tx.Notify():
	}
}

// shutdown performs DISCONNECTING -> CLOSEDBYCLIENT.
func (w *worker) shutdown() {
	h := w.h
	if !h.setStatus(core.StatusDisconnecting) {
		return
	}
	stamp(&h.tDisconnect)
	if w.connected && w.conn != nil && !w.writeBroken && h.cfg.FlushOnDisconnect && h.req == nil && h.tx.Count() > 0 {
		if err := w.flushTX(); err != nil {
			h.log.Debugf("Flush on disconnect failed: %v", err)
		}
	}
	w.closeConn()
	h.setStatus(core.StatusClosedByClient)
	stamp(&h.tDisconnected)
	h.log.Debugf("Closed by client")
}

// closedByServer handles EOF from the peer.
func (w *worker) closedByServer() {
	h := w.h
	stamp(&h.tDisconnect)
	w.closeConn()
	h.setStatus(core.StatusClosedByServer)
	stamp(&h.tDisconnected)
	h.log.Debugf("Closed by server")
}

func (w *worker) fail(op string, err error) {
	w.record(classify(op, err))
}

func (w *worker) failCode(op string, code int, err error) {
	se := classify(op, err)
	se.Code = code
	w.record(se)
}

func (w *worker) record(se *SocketError) {
	h := w.h
	h.setError(se)
	w.closeConn()
	h.setStatus(core.StatusEventError)
	h.log.Warnf("Socket error: %v", se)
	h.notifyError(se)
}

func (w *worker) closeConn() {
	if w.conn == nil {
		return
	}
	_ = w.conn.Close()
	w.conn = nil
	w.h.setConn(nil)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
