package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/logging"
	"github.com/irctrakz/sockmgr/pkg/socket"
)

type connectOptions struct {
	address         string
	port            int
	cipher          string
	delay           time.Duration
	framing         string
	healthAddr      string
	metricsInterval time.Duration
	metricsFormat   string
}

func newConnectCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "connect [options] ADDRESS PORT",
		Short:                 "open a stream socket and pipe stdin lines to it",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ExactArgs(2),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(connectOptions)
	c.Flags().StringVar(&opts.cipher, "cipher", "", "TLS cipher `string` (empty for plain TCP)")
	c.Flags().DurationVar(&opts.delay, "delay", -1, "worker loop delay (negative uses the configured default)")
	c.Flags().StringVar(&opts.framing, "framing", "", "packet framing: raw or length")
	c.Flags().StringVar(&opts.healthAddr, "health-addr", "", "serve /health and /metrics on `addr`")
	c.Flags().DurationVar(&opts.metricsInterval, "metrics-interval", 0, "log registry metrics every `interval`")
	c.Flags().StringVar(&opts.metricsFormat, "metrics-format", "text", "metrics log format: text or json")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.address = args[0]
		port, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("invalid port %q", args[1])
		}
		opts.port = port
		return runConnect(cmd.Context(), g, opts, os.Stdin, os.Stdout)
	}
	return c
}

func runConnect(ctx context.Context, g *globalConfig, opts *connectOptions, in io.Reader, out io.Writer) error {
	sopts := g.options()
	if opts.framing != "" {
		sopts.Socket.Framing = opts.framing
	}
	reg := socket.NewRegistry(sopts)
	defer reg.Close()

	if opts.healthAddr != "" {
		srv := startHealthServer(opts.healthAddr, reg)
		defer srv.Close()
	}
	if opts.metricsInterval > 0 {
		go runMetricsReporter(ctx, reg, opts.metricsInterval, opts.metricsFormat)
	}

	failed := make(chan *socket.SocketError, 1)
	onError := func(h *socket.Handle, se *socket.SocketError) {
		select {
		case failed <- se:
		default:
		}
	}
	ready := make(chan struct{}, 1)
	onEvent := func(h *socket.Handle, ev socket.Event) {
		switch ev.Kind {
		case socket.EventData:
			select {
			case ready <- struct{}{}:
			default:
			}
		case socket.EventStatus:
			logging.Infof("%s -> %s", ev.Prev, ev.Status)
		}
	}

	h, err := reg.Create(opts.address, opts.port, opts.cipher, opts.delay, onError, onEvent)
	if err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			lines <- sc.Text() + "\n"
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return h.Disconnect()
		case se := <-failed:
			_ = h.Disconnect()
			return se
		case <-ready:
			drainRecv(h, out)
		case <-h.Done():
			drainRecv(h, out)
			st, _ := h.GetStatus()
			if st == core.StatusEventError {
				if se, _ := h.Err(); se != nil {
					return se
				}
			}
			return nil
		case line, ok := <-lines:
			if !ok {
				// stdin closed: flush what is queued and hang up.
				_ = h.Disconnect()
				<-h.Done()
				drainRecv(h, out)
				return nil
			}
			if err := h.WriteString(line); err != nil {
				return err
			}
		}
	}
}

// drainRecv copies queued packets to out. Zero-length frames are valid
// packets; only a nil slice means the queue is empty.
func drainRecv(h *socket.Handle, out io.Writer) {
	for {
		b, _, err := h.PopRecvQ()
		if err != nil || b == nil {
			return
		}
		out.Write(b)
	}
}
