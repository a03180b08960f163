package socket

import (
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/irctrakz/sockmgr/pkg/core"
)

// Buffer pools for common read and write sizes. Only buffers that came from
// bufGet are returned (checked via capacity match).

const (
	bufSmall = 2048
	bufMed   = 4096
	bufLarge = 8192
	bufXL    = 16384
)

var (
	poolSmall = sync.Pool{New: func() any { b := make([]byte, bufSmall); return &b }}
	poolMed   = sync.Pool{New: func() any { b := make([]byte, bufMed); return &b }}
	poolLarge = sync.Pool{New: func() any { b := make([]byte, bufLarge); return &b }}
	poolXL    = sync.Pool{New: func() any { b := make([]byte, bufXL); return &b }}
)

var poolFlag uint32

func init() {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SOCKET_POOLING")))
	if v == "1" || v == "true" || v == "yes" || v == "on" {
		atomic.StoreUint32(&poolFlag, 1)
	}
}

// SetPooling toggles pooled buffers for TX packets.
func SetPooling(enabled bool) {
	if enabled {
		atomic.StoreUint32(&poolFlag, 1)
	} else {
		atomic.StoreUint32(&poolFlag, 0)
	}
}

func poolingEnabled() bool { return atomic.LoadUint32(&poolFlag) == 1 }

func bufGet(n int) []byte {
	switch {
	case n <= bufSmall:
		p := poolSmall.Get().(*[]byte)
		return (*p)[:n]
	case n <= bufMed:
		p := poolMed.Get().(*[]byte)
		return (*p)[:n]
	case n <= bufLarge:
		p := poolLarge.Get().(*[]byte)
		return (*p)[:n]
	case n <= bufXL:
		p := poolXL.Get().(*[]byte)
		return (*p)[:n]
	default:
		return make([]byte, n)
	}
}

func bufPut(b []byte) {
	switch cap(b) {
	case bufSmall:
		bb := b[:bufSmall]
		poolSmall.Put(&bb)
	case bufMed:
		bb := b[:bufMed]
		poolMed.Put(&bb)
	case bufLarge:
		bb := b[:bufLarge]
		poolLarge.Put(&bb)
	case bufXL:
		bb := b[:bufXL]
		poolXL.Put(&bb)
	}
}

// wrapTX copies a caller buffer into a Packet the worker owns. With pooling
// enabled the copy lives in a pooled buffer released after the write.
func wrapTX(b []byte) core.Packet {
	if poolingEnabled() && len(b) <= bufXL {
		buf := bufGet(len(b))
		copy(buf, b)
		return core.NewPooledPacket(buf, bufPut)
	}
	return core.CopyPacket(b)
}
