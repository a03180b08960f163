package socket

import (
	"crypto/tls"
	"crypto/x509"
	"io"
	"net"
	"os"
	"strconv"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	"github.com/irctrakz/sockmgr/pkg/framing"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"unknown", errors.New("boom"), CodeUnknown},
		{"alert", tls.AlertError(40), 40},
		{"unknown authority", x509.UnknownAuthorityError{}, CodeCert},
		{"verify", &tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}, CodeCert},
		{"hostname", x509.HostnameError{Host: "x"}, CodeCert},
		{"record header", tls.RecordHeaderError{Msg: "bad"}, CodeProtocol},
		{"frame", errors.Wrap(framing.ErrFrameTooLarge, "decode"), CodeProtocol},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, CodeResolve},
		{"refused", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}, int(syscall.ECONNREFUSED)},
		{"timeout", &net.OpError{Op: "read", Err: timeoutErr{}}, CodeTimeout},
		{"eof", io.EOF, CodeEOF},
		{"unexpected eof", errors.Wrap(io.ErrUnexpectedEOF, "reply"), CodeEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			se := classify("op", tt.err)
			assert.Equal(t, tt.code, se.Code)
			assert.Equal(t, "op", se.Op)
			assert.NotEmpty(t, se.Reason)
			assert.ErrorIs(t, se, tt.err)
		})
	}
}

func TestSocketErrorString(t *testing.T) {
	se := classify("connect", &net.OpError{Op: "dial", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)})
	assert.Equal(t, "connect: ["+strconv.Itoa(int(syscall.ECONNREFUSED))+"] "+syscall.ECONNREFUSED.Error(), se.Error())
}

func TestDestroyedErr(t *testing.T) {
	err := destroyedErr(7)
	assert.ErrorIs(t, err, ErrDestroyed)
	assert.Contains(t, err.Error(), "handle 7")
}
