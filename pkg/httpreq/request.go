// Package httpreq builds HTTP/1.1 requests and reads replies over a raw
// connection for the socket manager's HTTP mode.
package httpreq

import (
	"bytes"
	"fmt"
	"net"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// Header is a single request header. Order is preserved on the wire.
type Header struct {
	Name  string
	Value string
}

// Request describes one HTTP exchange.
type Request struct {
	Method   string
	Scheme   string // "http" or "https"
	Host     string
	Port     int
	Resource string
	Headers  []Header
	Body     []byte
}

// DefaultPort returns the default port of scheme, or 0 if unknown.
func DefaultPort(scheme string) int {
	switch strings.ToLower(scheme) {
	case "http":
		return 80
	case "https":
		return 443
	}
	return 0
}

// HostHeader returns the Host header value; the port is omitted when it is
// the scheme default.
func (r *Request) HostHeader() string {
	host := r.Host
	if strings.Contains(host, ":") && !strings.HasPrefix(host, "[") {
		host = "[" + host + "]"
	}
	if r.Port == 0 || r.Port == DefaultPort(r.Scheme) {
		return host
	}
	return host + ":" + strconv.Itoa(r.Port)
}

// Validate checks the request for values that cannot be put on the wire.
func (r *Request) Validate() error {
	if r.Method == "" || !httpguts.ValidHeaderFieldName(r.Method) {
		return fmt.Errorf("invalid method %q", r.Method)
	}
	if DefaultPort(r.Scheme) == 0 {
		return fmt.Errorf("unsupported scheme %q", r.Scheme)
	}
	if r.Host == "" || !httpguts.ValidHostHeader(r.Host) {
		return fmt.Errorf("invalid host %q", r.Host)
	}
	if r.Port < 0 || r.Port > 65535 {
		return fmt.Errorf("invalid port %d", r.Port)
	}
	if r.Resource != "" && r.Resource[0] != '/' && r.Resource != "*" {
		return fmt.Errorf("resource must start with '/': %q", r.Resource)
	}
	if strings.ContainsAny(r.Resource, " \r\n") {
		return fmt.Errorf("invalid resource %q", r.Resource)
	}
	for _, h := range r.Headers {
		if !httpguts.ValidHeaderFieldName(h.Name) {
			return fmt.Errorf("invalid header name %q", h.Name)
		}
		if !httpguts.ValidHeaderFieldValue(h.Value) {
			return fmt.Errorf("invalid value for header %q", h.Name)
		}
	}
	return nil
}

// Has reports whether the request carries a header (case-insensitive).
func (r *Request) Has(name string) bool {
	for _, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			return true
		}
	}
	return false
}

// Set replaces or appends a header.
func (r *Request) Set(name, value string) {
	for i, h := range r.Headers {
		if strings.EqualFold(h.Name, name) {
			r.Headers[i].Value = value
			return
		}
	}
	r.Headers = append(r.Headers, Header{Name: name, Value: value})
}

// Build renders the request. Host, User-Agent (when userAgent is not empty),
// Content-Length and Connection: close are added unless already present.
func (r *Request) Build(userAgent string) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	resource := r.Resource
	if resource == "" {
		resource = "/"
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "%s %s HTTP/1.1\r\n", strings.ToUpper(r.Method), resource)
	if !r.Has("Host") {
		fmt.Fprintf(&b, "Host: %s\r\n", r.HostHeader())
	}
	if userAgent != "" && !r.Has("User-Agent") {
		fmt.Fprintf(&b, "User-Agent: %s\r\n", userAgent)
	}
	for _, h := range r.Headers {
		fmt.Fprintf(&b, "%s: %s\r\n", h.Name, h.Value)
	}
	if len(r.Body) > 0 && !r.Has("Content-Length") && !r.Has("Transfer-Encoding") {
		fmt.Fprintf(&b, "Content-Length: %d\r\n", len(r.Body))
	}
	if !r.Has("Connection") {
		b.WriteString("Connection: close\r\n")
	}
	b.WriteString("\r\n")
	b.Write(r.Body)
	return b.Bytes(), nil
}

// Address returns host:port for dialing.
func (r *Request) Address() string {
	port := r.Port
	if port == 0 {
		port = DefaultPort(r.Scheme)
	}
	return net.JoinHostPort(r.Host, strconv.Itoa(port))
}

// ParseHeaders parses "Name: value" lines into headers.
func ParseHeaders(lines []string) ([]Header, error) {
	out := make([]Header, 0, len(lines))
	for _, l := range lines {
		name, value, ok := strings.Cut(l, ":")
		if !ok {
			return nil, fmt.Errorf("malformed header %q", l)
		}
		out = append(out, Header{Name: strings.TrimSpace(name), Value: strings.TrimSpace(value)})
	}
	return out, nil
}
