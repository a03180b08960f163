package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"

	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/httpreq"
	"github.com/irctrakz/sockmgr/pkg/socket"
)

type httpOptions struct {
	rawURL  string
	method  string
	headers []string
	data    string
	cipher  string
	field   string
	include bool
}

func newHTTPCommand(g *globalConfig) *cobra.Command {
	c := &cobra.Command{
		Use:                   "http [options] URL",
		Short:                 "perform one HTTP request over a managed socket",
		DisableFlagsInUseLine: true,
		Args:                  cobra.ExactArgs(1),
		SilenceErrors:         true,
		SilenceUsage:          true,
	}
	opts := new(httpOptions)
	c.Flags().StringVarP(&opts.method, "method", "X", "GET", "request `method`")
	c.Flags().StringArrayVarP(&opts.headers, "header", "H", nil, "extra `header` as \"Name: value\" (repeatable)")
	c.Flags().StringVarP(&opts.data, "data", "d", "", "request `body`")
	c.Flags().StringVar(&opts.cipher, "cipher", "DEFAULT", "TLS cipher `string` for https URLs")
	c.Flags().StringVar(&opts.field, "field", "", "print only the JSON value at gjson `path`")
	c.Flags().BoolVarP(&opts.include, "include", "i", false, "print the status line and headers")
	c.RunE = func(cmd *cobra.Command, args []string) error {
		opts.rawURL = args[0]
		return runHTTP(cmd.Context(), g, opts, os.Stdout)
	}
	return c
}

// splitURL breaks an http(s) URL into the pieces CreateHTTP takes.
func splitURL(raw string) (scheme, host string, port int, resource string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", 0, "", fmt.Errorf("parse url: %w", err)
	}
	scheme = strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", 0, "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	host = u.Hostname()
	if host == "" {
		return "", "", 0, "", fmt.Errorf("url %q has no host", raw)
	}
	if p := u.Port(); p != "" {
		if port, err = strconv.Atoi(p); err != nil {
			return "", "", 0, "", fmt.Errorf("invalid port %q", p)
		}
	}
	resource = u.RequestURI()
	return scheme, host, port, resource, nil
}

func runHTTP(ctx context.Context, g *globalConfig, opts *httpOptions, out io.Writer) error {
	scheme, host, port, resource, err := splitURL(opts.rawURL)
	if err != nil {
		return err
	}
	cipher := ""
	if scheme == "https" {
		cipher = opts.cipher
		if cipher == "" {
			cipher = "DEFAULT"
		}
	}
	headers, err := httpreq.ParseHeaders(opts.headers)
	if err != nil {
		return err
	}
	var body []byte
	if opts.data != "" {
		body = []byte(opts.data)
	}

	reg := socket.NewRegistry(g.options())
	defer reg.Close()

	h, err := reg.CreateHTTP(cipher, host, port, resource, opts.method, headers, body, nil, nil)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
		_ = h.Disconnect()
		return ctx.Err()
	case <-h.Done():
	}

	st, _ := h.GetStatus()
	if st == core.StatusEventError {
		if se, _ := h.Err(); se != nil {
			return se
		}
	}
	rep, _ := h.Response()
	if rep == nil {
		return fmt.Errorf("no reply from %s (status %s)", opts.rawURL, st)
	}
	payload, _, err := h.CompactRecvQ()
	if err != nil {
		return err
	}

	if opts.include {
		writeReplyHead(out, rep)
	}
	if opts.field != "" {
		res := gjson.GetBytes(payload, opts.field)
		if !res.Exists() {
			return fmt.Errorf("field %q not found in reply", opts.field)
		}
		fmt.Fprintln(out, res.String())
		return nil
	}
	out.Write(payload)
	return nil
}

func writeReplyHead(out io.Writer, rep *httpreq.Reply) {
	fmt.Fprintf(out, "%s %s\n", rep.Proto, rep.Status)
	names := make([]string, 0, len(rep.Header))
	for name := range rep.Header {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		for _, v := range rep.Header[name] {
			fmt.Fprintf(out, "%s: %s\n", name, v)
		}
	}
	fmt.Fprintln(out)
}
