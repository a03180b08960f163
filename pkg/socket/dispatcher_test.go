package socket

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/sockmgr/pkg/core"
)

func detachedHandle(t *testing.T) *Handle {
	t.Helper()
	r := newTestRegistry(t, nil)
	return newHandle(r, 1000, "127.0.0.1", 9, nil, 0)
}

func TestDispatcherOrdering(t *testing.T) {
	h := detachedHandle(t)
	var mu sync.Mutex
	var got []int
	require.NoError(t, h.SetCallback(func(_ *Handle, ev Event) {
		mu.Lock()
		got = append(got, ev.Packets)
		mu.Unlock()
	}))

	d := newDispatcher(256)
	d.start()
	for i := 0; i < 200; i++ {
		d.post(h, Event{Kind: EventData, Packets: i})
	}
	d.stop()

	require.Len(t, got, 200)
	for i, n := range got {
		assert.Equal(t, i, n)
	}
	assert.EqualValues(t, 200, d.Metrics()["delivered"])
}

func TestDispatcherRecoversPanic(t *testing.T) {
	h := detachedHandle(t)
	var calls int32
	require.NoError(t, h.SetCallback(func(_ *Handle, ev Event) {
		if atomic.AddInt32(&calls, 1) == 1 {
			panic("callback failure")
		}
	}))

	d := newDispatcher(8)
	d.start()
	d.post(h, Event{Kind: EventStatus, Status: core.StatusConnecting})
	d.post(h, Event{Kind: EventStatus, Status: core.StatusConnected})
	d.stop()

	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))
	m := d.Metrics()
	assert.EqualValues(t, 1, m["panics"])
	assert.EqualValues(t, 1, m["delivered"])
}

func TestDispatcherSkipsDestroyed(t *testing.T) {
	h := detachedHandle(t)
	var calls int32
	require.NoError(t, h.SetCallback(func(*Handle, Event) { atomic.AddInt32(&calls, 1) }))
	atomic.StoreUint32(&h.destroyed, 1)

	d := newDispatcher(8)
	d.start()
	d.post(h, Event{Kind: EventData, Packets: 1})
	d.stop()

	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.EqualValues(t, 1, d.Metrics()["skipped"])
}

func TestDispatcherDropsWhenFull(t *testing.T) {
	h := detachedHandle(t)
	d := newDispatcher(2)
	for i := 0; i < 5; i++ {
		d.post(h, Event{Kind: EventData, Packets: i})
	}
	m := d.Metrics()
	assert.EqualValues(t, 3, m["queueFullDrops"])
	assert.EqualValues(t, 2, m["pending"])

	d.start()
	d.stop()
	assert.EqualValues(t, 0, d.Metrics()["pending"])
}

func TestDispatcherErrorNotDropped(t *testing.T) {
	h := detachedHandle(t)
	errs := make(chan *SocketError, 1)
	require.NoError(t, h.SetErrorCallback(func(_ *Handle, se *SocketError) { errs <- se }))

	d := newDispatcher(1)
	d.post(h, Event{Kind: EventData})

	posted := make(chan struct{})
	go func() {
		d.postError(h, &SocketError{Op: "read", Code: CodeEOF})
		close(posted)
	}()
	select {
	case <-posted:
		t.Fatal("postError returned while queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	d.start()
	select {
	case se := <-errs:
		assert.Equal(t, CodeEOF, se.Code)
	case <-time.After(settle):
		t.Fatal("error callback not delivered")
	}
	<-posted
	d.stop()

	d.postError(h, &SocketError{Op: "late"})
	d.post(h, Event{})
	assert.EqualValues(t, 0, d.Metrics()["pending"])
}

func TestDispatcherErrorYieldsToDestroy(t *testing.T) {
	h := detachedHandle(t)
	d := newDispatcher(1)
	d.post(h, Event{Kind: EventData})

	posted := make(chan struct{})
	go func() {
		d.postError(h, &SocketError{Op: "write", Code: CodeEOF})
		close(posted)
	}()
	select {
	case <-posted:
		t.Fatal("postError returned while queue was full")
	case <-time.After(20 * time.Millisecond):
	}

	// Destroy closes gone before joining the worker.
	atomic.StoreUint32(&h.destroyed, 1)
	close(h.gone)
	select {
	case <-posted:
	case <-time.After(settle):
		t.Fatal("postError still blocked after destroy")
	}
	m := d.Metrics()
	assert.EqualValues(t, 1, m["skipped"])
	assert.EqualValues(t, 1, m["pending"])
}

func TestDispatcherQueueCapEnv(t *testing.T) {
	t.Setenv("SOCKET_EVENT_QUEUE_CAP", "7")
	d := newDispatcher(100)
	assert.Equal(t, 7, cap(d.eventCh))

	t.Setenv("SOCKET_EVENT_QUEUE_CAP", "nope")
	d = newDispatcher(0)
	assert.Equal(t, 1024, cap(d.eventCh))
}
