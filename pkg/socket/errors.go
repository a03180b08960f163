package socket

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/pkg/errors"

	"github.com/irctrakz/sockmgr/pkg/framing"
)

// Misuse errors returned synchronously by Handle and Registry methods.
var (
	ErrDestroyed      = errors.New("socket: handle destroyed")
	ErrNotWritable    = errors.New("socket: not writable")
	ErrEmptyPacket    = errors.New("socket: empty packet")
	ErrPacketTooLarge = errors.New("socket: packet too large")
	ErrInvalidCipher  = errors.New("socket: invalid cipher")
	ErrInvalidAddress = errors.New("socket: invalid address")
	ErrClosed         = errors.New("socket: registry closed")
)

// Error codes for failures that carry no errno or TLS alert.
const (
	CodeNone     = 0
	CodeUnknown  = -1
	CodeTimeout  = -2
	CodeResolve  = -3
	CodeCert     = -4
	CodeProtocol = -5
	CodeEOF      = -6
)

// SocketError is the failure recorded when a worker enters EVENTERROR.
// Code is a syscall errno, a TLS alert number, or one of the Code*
// constants.
type SocketError struct {
	Op     string
	Code   int
	Reason string
	Err    error
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("%s: [%d] %s", e.Op, e.Code, e.Reason)
}

func (e *SocketError) Unwrap() error { return e.Err }

// classify maps a transport error to a SocketError.
func classify(op string, err error) *SocketError {
	se := &SocketError{Op: op, Code: CodeUnknown, Reason: err.Error(), Err: err}

	var (
		alert   tls.AlertError
		verify  *tls.CertificateVerificationError
		unknown x509.UnknownAuthorityError
		host    x509.HostnameError
		invalid x509.CertificateInvalidError
		record  tls.RecordHeaderError
		dns     *net.DNSError
		errno   syscall.Errno
		nerr    net.Error
	)
	switch {
	case errors.As(err, &alert):
		se.Code = int(alert)
	case errors.As(err, &verify), errors.As(err, &unknown), errors.As(err, &host), errors.As(err, &invalid):
		se.Code = CodeCert
	case errors.As(err, &record), errors.Is(err, framing.ErrFrameTooLarge):
		se.Code = CodeProtocol
	case errors.As(err, &dns):
		se.Code = CodeResolve
	case errors.As(err, &errno):
		se.Code = int(errno)
		se.Reason = errno.Error()
	case errors.As(err, &nerr) && nerr.Timeout():
		se.Code = CodeTimeout
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		se.Code = CodeEOF
	}
	return se
}

func destroyedErr(id uint64) error {
	return errors.Wrapf(ErrDestroyed, "handle %d", id)
}
