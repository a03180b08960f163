package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/logging"
	"github.com/irctrakz/sockmgr/pkg/socket"
)

// startEcho runs a loopback server that echoes every connection.
func startEcho() (net.Listener, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer c.Close()
				io.Copy(c, c)
			}()
		}
	}()
	return ln, nil
}

func main() {
	var (
		conns   = flag.Int("conns", 8, "number of sockets")
		perConn = flag.Int("per", 2000, "packets written per socket")
		pktSize = flag.Int("size", 512, "packet size (bytes)")
		delayMs = flag.Int("delay", 0, "worker loop delay in milliseconds")
		evCap   = flag.Int("evcap", 64, "callback queue capacity (SOCKET_EVENT_QUEUE_CAP)")
		framing = flag.String("framing", core.FramingRaw, "framing: raw or length")
		pooling = flag.Bool("pool", true, "use pooled TX buffers")
		timeout = flag.Duration("timeout", 30*time.Second, "give up waiting for echoes after this long")
	)
	flag.Parse()

	logging.SetLevel(logging.InfoLevel)
	socket.SetPooling(*pooling)

	// Small callback queue so status/data drops show up under load.
	_ = os.Setenv("SOCKET_EVENT_QUEUE_CAP", fmt.Sprintf("%d", *evCap))

	ln, err := startEcho()
	if err != nil {
		fmt.Fprintf(os.Stderr, "listen: %v\n", err)
		os.Exit(1)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	opts := socket.DefaultOptions()
	opts.Socket.Framing = *framing
	opts.Socket.DelayMs = *delayMs
	reg := socket.NewRegistry(opts)

	if *pktSize < 1 {
		*pktSize = 1
	}
	payload := make([]byte, *pktSize)
	rand.Read(payload)
	want := uint64(*perConn) * uint64(*pktSize)

	var eventCount uint64
	onEvent := func(h *socket.Handle, ev socket.Event) { atomic.AddUint64(&eventCount, 1) }

	start := time.Now()
	var g errgroup.Group
	for i := 0; i < *conns; i++ {
		g.Go(func() error {
			h, err := reg.Create("127.0.0.1", port, "", time.Duration(*delayMs)*time.Millisecond, nil, onEvent)
			if err != nil {
				return err
			}
			for j := 0; j < *perConn; j++ {
				if err := h.Write(payload); err != nil {
					return fmt.Errorf("socket %d write %d: %w", i, j, err)
				}
			}
			deadline := time.Now().Add(*timeout)
			for time.Now().Before(deadline) {
				rx, err := h.GetRXBytes()
				if err != nil {
					return err
				}
				if rx >= want {
					return nil
				}
				if st, _ := h.GetStatus(); st.IsTerminal() {
					return fmt.Errorf("socket %d ended in %s after %d/%d bytes", i, st, rx, want)
				}
				_, _, _ = h.CompactRecvQ()
				time.Sleep(time.Millisecond)
			}
			return fmt.Errorf("socket %d timed out", i)
		})
	}
	runErr := g.Wait()
	elapsed := time.Since(start)

	waited := reg.WaitAll()
	dm := reg.DetailedMetrics()
	reg.Close()

	totalBytes := dm.Total.BytesSent + dm.Total.BytesReceived
	fmt.Printf("Duration: %v (%d sockets waited)\n", elapsed, waited)
	fmt.Printf("Totals: sent=%d/%d recv=%d/%d errors=%d conns=%d/%d\n",
		dm.Total.PacketsSent, dm.Total.BytesSent,
		dm.Total.PacketsReceived, dm.Total.BytesReceived,
		dm.Total.Errors, dm.Total.ConnectionsCreated, dm.Total.ConnectionsClosed)
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Printf("Throughput: %.1f MiB/s\n", float64(totalBytes)/secs/(1024*1024))
	}
	fmt.Printf("Dispatcher: delivered=%d drops=%d panics=%d callbacks=%d\n",
		dm.Dispatcher["delivered"], dm.Dispatcher["queueFullDrops"], dm.Dispatcher["panics"],
		atomic.LoadUint64(&eventCount))

	if runErr != nil {
		fmt.Println("ERROR:", runErr)
		os.Exit(1)
	}
	if dm.Total.BytesReceived != uint64(*conns)*want {
		fmt.Printf("ERROR: echoed %d bytes, expected %d\n", dm.Total.BytesReceived, uint64(*conns)*want)
		os.Exit(1)
	}
	if dm.Dispatcher["queueFullDrops"] == 0 {
		fmt.Println("WARN: no dispatcher drops observed; lower evcap or raise per")
	}
}
