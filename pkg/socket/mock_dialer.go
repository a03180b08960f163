package socket

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/irctrakz/sockmgr/pkg/logging"
)

// MockDialer is a Dialer for tests. Each successful dial returns one end of
// an in-memory pipe; the other end is available from Accept.
type MockDialer struct {
	mu    sync.Mutex
	err   error
	delay time.Duration
	dials []string
	peers chan net.Conn
}

// Ensure MockDialer implements Dialer
var _ Dialer = (*MockDialer)(nil)

// NewMockDialer creates a new mock dialer
func NewMockDialer() *MockDialer {
	return &MockDialer{peers: make(chan net.Conn, 16)}
}

// FailWith makes every later dial return err.
func (m *MockDialer) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// SetDelay makes dials wait d (or until the context ends) before completing.
func (m *MockDialer) SetDelay(d time.Duration) {
	m.mu.Lock()
	m.delay = d
	m.mu.Unlock()
}

// DialContext implements Dialer
func (m *MockDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	m.mu.Lock()
	m.dials = append(m.dials, address)
	err, delay := m.err, m.delay
	m.mu.Unlock()

	if delay > 0 {
		t := time.NewTimer(delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return nil, &net.OpError{Op: "dial", Net: network, Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, &net.OpError{Op: "dial", Net: network, Err: err}
	}

	client, server := net.Pipe()
	select {
	case m.peers <- server:
	default:
		client.Close()
		server.Close()
		return nil, fmt.Errorf("mock dialer: too many unaccepted peers")
	}
	logging.Debugf("Mock dial %s %s", network, address)
	return client, nil
}

// Accept returns the server end of the next dialed connection.
func (m *MockDialer) Accept(timeout time.Duration) (net.Conn, error) {
	select {
	case c := <-m.peers:
		return c, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("mock dialer: no connection within %v", timeout)
	}
}

// Dials returns every address dialed so far.
func (m *MockDialer) Dials() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Return a copy to avoid race conditions
	out := make([]string, len(m.dials))
	copy(out, m.dials)
	return out
}
