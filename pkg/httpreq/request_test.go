package httpreq

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGET(t *testing.T) {
	r := &Request{
		Method:   "get",
		Scheme:   "https",
		Host:     "api.example.com",
		Port:     443,
		Resource: "/1/test?x=1",
		Headers:  []Header{{Name: "Accept", Value: "application/json"}},
	}
	raw, err := r.Build("sockmgr/1.0")
	require.NoError(t, err)

	want := "GET /1/test?x=1 HTTP/1.1\r\n" +
		"Host: api.example.com\r\n" +
		"User-Agent: sockmgr/1.0\r\n" +
		"Accept: application/json\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	if diff := cmp.Diff(want, string(raw)); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildPOSTWithBodyAndPort(t *testing.T) {
	r := &Request{
		Method:  "POST",
		Scheme:  "http",
		Host:    "127.0.0.1",
		Port:    8080,
		Headers: []Header{{Name: "User-Agent", Value: "custom"}, {Name: "Connection", Value: "keep-alive"}},
		Body:    []byte("a=1&b=2"),
	}
	raw, err := r.Build("ignored")
	require.NoError(t, err)

	want := "POST / HTTP/1.1\r\n" +
		"Host: 127.0.0.1:8080\r\n" +
		"User-Agent: custom\r\n" +
		"Connection: keep-alive\r\n" +
		"Content-Length: 7\r\n" +
		"\r\n" +
		"a=1&b=2"
	assert.Equal(t, want, string(raw))
}

func TestHostHeaderIPv6(t *testing.T) {
	r := &Request{Scheme: "http", Host: "::1", Port: 8080}
	assert.Equal(t, "[::1]:8080", r.HostHeader())
	assert.Equal(t, "[::1]:8080", r.Address())

	r.Port = 80
	assert.Equal(t, "[::1]", r.HostHeader())
}

func TestAddressDefaultsPort(t *testing.T) {
	r := &Request{Scheme: "https", Host: "example.com"}
	assert.Equal(t, "example.com:443", r.Address())
}

func TestValidateRejects(t *testing.T) {
	base := func() *Request {
		return &Request{Method: "GET", Scheme: "http", Host: "example.com", Port: 80, Resource: "/"}
	}
	require.NoError(t, base().Validate())

	tests := map[string]func(r *Request){
		"empty method":     func(r *Request) { r.Method = "" },
		"method with sp":   func(r *Request) { r.Method = "GE T" },
		"bad scheme":       func(r *Request) { r.Scheme = "ftp" },
		"empty host":       func(r *Request) { r.Host = "" },
		"bad port":         func(r *Request) { r.Port = 70000 },
		"relative path":    func(r *Request) { r.Resource = "index.html" },
		"crlf in resource": func(r *Request) { r.Resource = "/a\r\nX: y" },
		"bad header name":  func(r *Request) { r.Headers = []Header{{Name: "Bad Name", Value: "v"}} },
		"crlf in value":    func(r *Request) { r.Headers = []Header{{Name: "X", Value: "a\r\nInjected: 1"}} },
	}
	for name, mutate := range tests {
		r := base()
		mutate(r)
		assert.Error(t, r.Validate(), name)
		_, err := r.Build("")
		assert.Error(t, err, name)
	}
}

func TestSetAndHas(t *testing.T) {
	r := &Request{}
	r.Set("Authorization", "a")
	r.Set("authorization", "b")
	require.Len(t, r.Headers, 1)
	assert.Equal(t, "b", r.Headers[0].Value)
	assert.True(t, r.Has("AUTHORIZATION"))
	assert.False(t, r.Has("Accept"))
}

func TestParseHeaders(t *testing.T) {
	hs, err := ParseHeaders([]string{"Accept: text/plain", "X-Token:abc: def"})
	require.NoError(t, err)
	assert.Equal(t, []Header{{"Accept", "text/plain"}, {"X-Token", "abc: def"}}, hs)

	_, err = ParseHeaders([]string{"no colon"})
	assert.Error(t, err)
}

func TestReadReplyContentLength(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 5\r\nX-A: b\r\n\r\nHELLOtrailing"
	rep, body, err := ReadReply(bufio.NewReader(strings.NewReader(raw)), "GET")
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, 200, rep.StatusCode)
	assert.Equal(t, int64(5), rep.ContentLength)
	assert.Equal(t, "b", rep.Header.Get("X-A"))
	assert.False(t, rep.Chunked)

	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", string(b))
}

func TestReadReplyChunked(t *testing.T) {
	raw := "HTTP/1.1 201 Created\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n5\r\npedia\r\n0\r\n\r\n"
	rep, body, err := ReadReply(bufio.NewReader(strings.NewReader(raw)), "POST")
	require.NoError(t, err)
	defer body.Close()

	assert.Equal(t, 201, rep.StatusCode)
	assert.True(t, rep.Chunked)
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "Wikipedia", string(b))

	c := rep.Clone()
	c.Header.Set("X", "y")
	assert.Empty(t, rep.Header.Get("X"))
}

func TestReadReplyHEADHasNoBody(t *testing.T) {
	raw := "HTTP/1.1 200 OK\r\nContent-Length: 100\r\n\r\n"
	_, body, err := ReadReply(bufio.NewReader(strings.NewReader(raw)), "head")
	require.NoError(t, err)
	b, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Empty(t, b)
}

func TestReadReplyMalformed(t *testing.T) {
	_, _, err := ReadReply(bufio.NewReader(strings.NewReader("garbage\r\n\r\n")), "GET")
	assert.Error(t, err)
}
