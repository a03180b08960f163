package socket

import (
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/irctrakz/sockmgr/pkg/logging"
)

// dispatch is one queued callback invocation. err is set for error
// callbacks.
type dispatch struct {
	h   *Handle
	ev  Event
	err *SocketError
}

// dispatcher runs user callbacks on a single goroutine so that they observe
// events in order and never run on a worker goroutine.
type dispatcher struct {
	eventCh chan dispatch
	stopCh  chan struct{}
	wg      sync.WaitGroup
	stopped uint32

	// Metrics
	delivered      uint64
	skipped        uint64
	queueFullDrops uint64
	panics         uint64
}

func newDispatcher(capacity int) *dispatcher {
	if capacity <= 0 {
		capacity = 1024
	}
	if v := strings.TrimSpace(os.Getenv("SOCKET_EVENT_QUEUE_CAP")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			capacity = n
		}
	}
	return &dispatcher{
		eventCh: make(chan dispatch, capacity),
		stopCh:  make(chan struct{}),
	}
}

func (d *dispatcher) start() {
	d.wg.Add(1)
	go d.loop()
	logging.Debugf("Event dispatcher started (queue=%d)", cap(d.eventCh))
}

// stop delivers what is already queued and waits for the goroutine to exit.
func (d *dispatcher) stop() {
	if !atomic.CompareAndSwapUint32(&d.stopped, 0, 1) {
		return
	}
	close(d.stopCh)
	d.wg.Wait()
	logging.Debugf("Event dispatcher stopped")
}

// post queues a status or data event. Events are dropped when the queue is
// full so a slow callback cannot stall a worker.
func (d *dispatcher) post(h *Handle, ev Event) {
	if atomic.LoadUint32(&d.stopped) == 1 {
		return
	}
	select {
	case d.eventCh <- dispatch{h: h, ev: ev}:
	default:
		atomic.AddUint64(&d.queueFullDrops, 1)
		h.log.Debugf("Event dropped: dispatcher queue full (kind=%s status=%s)", ev.Kind, ev.Status)
	}
}

// postError queues an error callback. It blocks until there is room, the
// dispatcher stops or the handle is destroyed; a destroyed handle gets no
// callbacks anyway, and a callback may be the one destroying it.
func (d *dispatcher) postError(h *Handle, err *SocketError) {
	if atomic.LoadUint32(&d.stopped) == 1 {
		return
	}
	select {
	case d.eventCh <- dispatch{h: h, err: err}:
	case <-d.stopCh:
	case <-h.gone:
		atomic.AddUint64(&d.skipped, 1)
	}
}

func (d *dispatcher) loop() {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			for {
				select {
				case e := <-d.eventCh:
					d.deliver(e)
				default:
					return
				}
			}
		case e := <-d.eventCh:
			d.deliver(e)
		}
	}
}

func (d *dispatcher) deliver(e dispatch) {
	h := e.h
	if h.isDestroyed() {
		atomic.AddUint64(&d.skipped, 1)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			atomic.AddUint64(&d.panics, 1)
			h.log.Errorf("Recovered from panic in socket callback: %v", r)
		}
	}()

	if e.err != nil {
		if fn := h.errorFunc(); fn != nil {
			fn(h, e.err)
			atomic.AddUint64(&d.delivered, 1)
		} else {
			atomic.AddUint64(&d.skipped, 1)
		}
		return
	}
	if fn := h.eventFunc(); fn != nil {
		fn(h, e.ev)
		atomic.AddUint64(&d.delivered, 1)
	} else {
		atomic.AddUint64(&d.skipped, 1)
	}
}

// Metrics returns the dispatcher counters.
func (d *dispatcher) Metrics() map[string]uint64 {
	return map[string]uint64{
		"delivered":      atomic.LoadUint64(&d.delivered),
		"skipped":        atomic.LoadUint64(&d.skipped),
		"queueFullDrops": atomic.LoadUint64(&d.queueFullDrops),
		"panics":         atomic.LoadUint64(&d.panics),
		"pending":        uint64(len(d.eventCh)),
	}
}
