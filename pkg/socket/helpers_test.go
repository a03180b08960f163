package socket

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/resolver"
)

const settle = 5 * time.Second

func fakeLookup(ctx context.Context, host string) ([]string, error) {
	switch host {
	case "localhost", "loopback.test":
		return []string{"127.0.0.1"}, nil
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, IsNotFound: true}
}

// newTestRegistry returns a registry with fast polling and a fake resolver.
// It is closed when the test ends.
func newTestRegistry(t *testing.T, mutate func(o *Options)) *Registry {
	t.Helper()
	opts := DefaultOptions()
	opts.Socket.ReadPollMs = 5
	opts.Socket.DelayMs = 1
	opts.Socket.ConnectTimeoutMs = 2000
	opts.Socket.HandshakeTimeoutMs = 2000
	opts.Socket.WriteTimeoutMs = 2000
	opts.HTTP.ReplyTimeoutMs = 2000
	opts.Resolver = resolver.New(resolver.WithLookup(fakeLookup))
	if mutate != nil {
		mutate(&opts)
	}
	r := NewRegistry(opts)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

// testListener is a loopback TCP listener whose accepted conns are handed
// to the test.
type testListener struct {
	ln    net.Listener
	port  int
	conns chan net.Conn
}

func listen(t *testing.T) *testListener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Skipf("cannot listen locally: %v", err)
	}
	tl := &testListener{
		ln:    ln,
		port:  ln.Addr().(*net.TCPAddr).Port,
		conns: make(chan net.Conn, 64),
	}
	var mu sync.Mutex
	var accepted []net.Conn
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			mu.Lock()
			accepted = append(accepted, c)
			mu.Unlock()
			tl.conns <- c
		}
	}()
	t.Cleanup(func() {
		ln.Close()
		mu.Lock()
		for _, c := range accepted {
			c.Close()
		}
		mu.Unlock()
	})
	return tl
}

func (l *testListener) accept(t *testing.T) net.Conn {
	t.Helper()
	select {
	case c := <-l.conns:
		return c
	case <-time.After(settle):
		t.Fatal("no connection accepted")
		return nil
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(settle)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func waitStatus(t *testing.T, h *Handle, want core.Status) {
	t.Helper()
	waitFor(t, "status "+want.String(), func() bool {
		st, err := h.GetStatus()
		require.NoError(t, err)
		return st == want
	})
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(settle):
		st, _ := h.GetStatus()
		t.Fatalf("worker did not exit (status %s)", st)
	}
}

// recorder collects callback invocations.
type recorder struct {
	mu     sync.Mutex
	events []Event
	errs   []*SocketError
	errCh  chan *SocketError
}

func newRecorder() *recorder {
	return &recorder{errCh: make(chan *SocketError, 8)}
}

func (r *recorder) onEvent(h *Handle, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) onError(h *Handle, err *SocketError) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.errCh <- err
}

func (r *recorder) statuses() []core.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []core.Status
	for _, ev := range r.events {
		if ev.Kind == EventStatus {
			out = append(out, ev.Status)
		}
	}
	return out
}

func (r *recorder) errorCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}
