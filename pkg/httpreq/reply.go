package httpreq

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Reply is the status line and headers of an HTTP response.
type Reply struct {
	Proto         string
	StatusCode    int
	Status        string
	Header        http.Header
	ContentLength int64 // -1 when unknown
	Chunked       bool
}

// ReadReply reads the status line and headers from r and returns a reader for
// the body. The body reader decodes chunked transfer encoding and stops at
// Content-Length; without either it reads until the peer closes.
func ReadReply(r *bufio.Reader, method string) (*Reply, io.ReadCloser, error) {
	resp, err := http.ReadResponse(r, &http.Request{Method: strings.ToUpper(method)})
	if err != nil {
		return nil, nil, fmt.Errorf("read reply: %w", err)
	}
	rep := &Reply{
		Proto:         resp.Proto,
		StatusCode:    resp.StatusCode,
		Status:        resp.Status,
		Header:        resp.Header,
		ContentLength: resp.ContentLength,
	}
	for _, te := range resp.TransferEncoding {
		if strings.EqualFold(te, "chunked") {
			rep.Chunked = true
		}
	}
	return rep, resp.Body, nil
}

// Clone returns a deep copy of the reply.
func (r *Reply) Clone() *Reply {
	if r == nil {
		return nil
	}
	c := *r
	c.Header = r.Header.Clone()
	return &c
}
