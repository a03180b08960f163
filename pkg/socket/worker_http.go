package socket

import (
	"bufio"
	"io"

	"github.com/pkg/errors"

	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/httpreq"
)

// runHTTP performs one request/response exchange, blocking in each phase:
// SENDREQUEST -> REPLYWAIT -> DOWNLOADING -> READPACKET, then closes.
// Body chunks are pushed to the RX queue as they arrive.
func (w *worker) runHTTP() {
	h := w.h
	req := h.req

	raw, err := req.Build(h.httpCfg.UserAgent)
	if err != nil {
		w.failCode("request", CodeProtocol, err)
		return
	}

	if !h.setStatus(core.StatusSendRequest) {
		return
	}
	w.armWrite()
	if _, err := w.conn.Write(raw); err != nil {
		w.writeBroken = true
		w.httpFailed("send", err)
		return
	}
	h.countTX(len(raw))
	h.log.Debugf("HTTP request sent: %s %s (%d bytes)", req.Method, req.Resource, len(raw))

	if !h.setStatus(core.StatusReplyWait) {
		return
	}
	br := bufio.NewReaderSize(w.conn, h.cfg.ReadBufferSize)
	w.armRead(h.httpCfg.ReplyTimeout())
	rep, body, err := httpreq.ReadReply(br, req.Method)
	if err != nil {
		if !h.disconnectRequested() && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
			w.closedByServer()
			return
		}
		w.httpFailed("reply", err)
		return
	}
	defer body.Close()

	h.mu.Lock()
	h.reply = rep
	h.mu.Unlock()
	h.log.Debugf("HTTP reply: %s (length=%d chunked=%v)", rep.Status, rep.ContentLength, rep.Chunked)

	if !h.setStatus(core.StatusDownloading) {
		return
	}
	buf := bufGet(h.cfg.ReadBufferSize)
	defer bufPut(buf)

	var total int64
	for {
		if h.disconnectRequested() {
			w.shutdown()
			return
		}
		w.armRead(h.httpCfg.ReplyTimeout())
		n, rerr := body.Read(buf)
		if n > 0 {
			total += int64(n)
			if limit := h.httpCfg.MaxBodyBytes; limit > 0 && total > limit {
				w.failCode("download", CodeProtocol, errors.Errorf("body exceeds %d bytes", limit))
				return
			}
			w.pushRX([][]byte{append([]byte(nil), buf[:n]...)})
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			w.httpFailed("download", rerr)
			return
		}
	}

	if !h.setStatus(core.StatusReadPacket) {
		return
	}
	h.log.Debugf("HTTP body complete: %d bytes", total)
	w.shutdown()
}

// httpFailed turns an I/O error in a blocking phase into either an orderly
// shutdown (when a disconnect interrupted it) or EVENTERROR.
func (w *worker) httpFailed(op string, err error) {
	if w.h.disconnectRequested() {
		w.shutdown()
		return
	}
	w.fail(op, err)
}
