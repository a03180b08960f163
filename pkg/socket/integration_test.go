//go:build integration
// +build integration

package socket

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/sockmgr/pkg/core"
)

// Real network round trips. Run with -tags integration; HTTP_TEST_HOST
// overrides the target host.
func integrationHost() string {
	if h := os.Getenv("HTTP_TEST_HOST"); h != "" {
		return h
	}
	return "example.com"
}

func TestIntegration_HTTPSGet(t *testing.T) {
	r := NewRegistry(DefaultOptions())
	defer r.Close()

	h, err := r.CreateHTTP("DEFAULT", integrationHost(), 0, "/", "GET", nil, nil, nil, nil)
	require.NoError(t, err)
	select {
	case <-h.Done():
	case <-time.After(30 * time.Second):
		t.Fatal("request did not finish")
	}

	st, _ := h.GetStatus()
	if st == core.StatusEventError {
		se, _ := h.Err()
		t.Skipf("network unavailable: %v", se)
	}
	assert.Equal(t, core.StatusClosedByClient, st)
	rep, _ := h.Response()
	require.NotNil(t, rep)
	assert.Equal(t, 200, rep.StatusCode)
	cipher, _ := h.GetCipher()
	assert.True(t, strings.HasPrefix(cipher, "TLS_"), cipher)
	ip, _ := h.GetIPAddress()
	assert.NotEmpty(t, ip)
}

func TestIntegration_ResolveUnknownHost(t *testing.T) {
	r := NewRegistry(DefaultOptions())
	defer r.Close()

	rec := newRecorder()
	h, err := r.Create("does-not-exist.invalid", 80, "", -1, rec.onError, nil)
	require.NoError(t, err)
	select {
	case se := <-rec.errCh:
		assert.Equal(t, CodeResolve, se.Code)
	case <-time.After(30 * time.Second):
		t.Fatal("no resolve error")
	}
	waitDone(t, h)
}
