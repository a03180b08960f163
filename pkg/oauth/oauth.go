// Package oauth computes OAuth 1.0a (RFC 5849) HMAC-SHA1 signed parameter
// sets. It performs no network I/O; the clock and nonce are injectable so
// signatures can be reproduced.
package oauth

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SignatureMethod is the only method implemented.
const SignatureMethod = "HMAC-SHA1"

// Clock supplies the oauth_timestamp.
type Clock interface {
	Now() time.Time
}

// NonceSource supplies the oauth_nonce.
type NonceSource interface {
	Nonce() string
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// NonceFunc adapts a function to NonceSource.
type NonceFunc func() string

func (f NonceFunc) Nonce() string { return f() }

// FixedClock always returns t.
func FixedClock(t time.Time) Clock { return ClockFunc(func() time.Time { return t }) }

// FixedNonce always returns s.
func FixedNonce(s string) NonceSource { return NonceFunc(func() string { return s }) }

type uuidNonce struct{}

func (uuidNonce) Nonce() string { return strings.ReplaceAll(uuid.NewString(), "-", "") }

// Credentials are the consumer and token key pairs.
type Credentials struct {
	ConsumerKey    string
	ConsumerSecret string
	Token          string
	TokenSecret    string
}

// Signer signs requests with a set of credentials.
type Signer struct {
	Credentials
	Clock Clock
	Nonce NonceSource
}

// NewSigner returns a Signer using the wall clock and random nonces.
func NewSigner(c Credentials) *Signer {
	return &Signer{Credentials: c, Clock: ClockFunc(time.Now), Nonce: uuidNonce{}}
}

// Param is one key/value pair.
type Param struct {
	Key   string
	Value string
}

// Params is a signed parameter set in sorted order.
type Params []Param

// Get returns the first value for key.
func (p Params) Get(key string) string {
	for _, kv := range p {
		if kv.Key == key {
			return kv.Value
		}
	}
	return ""
}

// Map returns the parameters as a map; later duplicates win.
func (p Params) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, kv := range p {
		m[kv.Key] = kv.Value
	}
	return m
}

// Encode renders the parameters as a percent-encoded query string.
func (p Params) Encode() string {
	parts := make([]string, len(p))
	for i, kv := range p {
		parts[i] = Escape(kv.Key) + "=" + Escape(kv.Value)
	}
	return strings.Join(parts, "&")
}

// Header renders the oauth_* parameters as an Authorization header value.
func (p Params) Header() string {
	var parts []string
	for _, kv := range p {
		if strings.HasPrefix(kv.Key, "oauth_") {
			parts = append(parts, Escape(kv.Key)+"=\""+Escape(kv.Value)+"\"")
		}
	}
	return "OAuth " + strings.Join(parts, ", ")
}

// Sign computes the signed parameter set for a request. params and body are
// application/x-www-form-urlencoded strings; body parameters are included only
// when body parses as such. Caller-supplied oauth_* values in params override
// the generated ones, except oauth_signature.
func (s *Signer) Sign(method, scheme, host, port, resource, params, body string) (Params, error) {
	base, query, err := baseURL(scheme, host, port, resource)
	if err != nil {
		return nil, err
	}

	var all []Param
	add := func(vals url.Values) {
		for k, vs := range vals {
			for _, v := range vs {
				all = append(all, Param{k, v})
			}
		}
	}
	add(query)

	extra, err := url.ParseQuery(params)
	if err != nil {
		return nil, fmt.Errorf("oauth: parse params: %w", err)
	}
	extra.Del("oauth_signature")
	add(extra)

	if body != "" && !strings.ContainsAny(body, " \r\n") {
		if bv, err := url.ParseQuery(body); err == nil {
			add(bv)
		}
	}

	clock, nonce := s.Clock, s.Nonce
	if clock == nil {
		clock = ClockFunc(time.Now)
	}
	if nonce == nil {
		nonce = uuidNonce{}
	}
	defaults := []Param{
		{"oauth_consumer_key", s.ConsumerKey},
		{"oauth_nonce", nonce.Nonce()},
		{"oauth_signature_method", SignatureMethod},
		{"oauth_timestamp", strconv.FormatInt(clock.Now().Unix(), 10)},
		{"oauth_version", "1.0"},
	}
	if s.Token != "" {
		defaults = append(defaults, Param{"oauth_token", s.Token})
	}
	for _, d := range defaults {
		if !extra.Has(d.Key) {
			all = append(all, d)
		}
	}

	sortParams(all)
	baseString := strings.ToUpper(method) + "&" + Escape(base) + "&" + Escape(Params(all).Encode())
	key := Escape(s.ConsumerSecret) + "&" + Escape(s.TokenSecret)

	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(baseString))
	sig := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	all = append(all, Param{"oauth_signature", sig})
	sortParams(all)
	return all, nil
}

// BaseString returns the signature base string Sign would use, for debugging.
func BaseString(method, baseURL string, p Params) string {
	var unsigned Params
	for _, kv := range p {
		if kv.Key != "oauth_signature" {
			unsigned = append(unsigned, kv)
		}
	}
	sortParams(unsigned)
	return strings.ToUpper(method) + "&" + Escape(baseURL) + "&" + Escape(unsigned.Encode())
}

// baseURL normalises scheme://host[:port]/path and splits off the query.
func baseURL(scheme, host, port, resource string) (string, url.Values, error) {
	scheme = strings.ToLower(scheme)
	if scheme != "http" && scheme != "https" {
		return "", nil, fmt.Errorf("oauth: unsupported scheme %q", scheme)
	}
	if host == "" {
		return "", nil, fmt.Errorf("oauth: empty host")
	}
	path, rawQuery, _ := strings.Cut(resource, "?")
	if path == "" {
		path = "/"
	}
	query, err := url.ParseQuery(rawQuery)
	if err != nil {
		return "", nil, fmt.Errorf("oauth: parse resource query: %w", err)
	}
	hostPart := strings.ToLower(host)
	if port != "" && !(scheme == "http" && port == "80") && !(scheme == "https" && port == "443") {
		if _, err := strconv.ParseUint(port, 10, 16); err != nil {
			return "", nil, fmt.Errorf("oauth: invalid port %q", port)
		}
		hostPart += ":" + port
	}
	return scheme + "://" + hostPart + path, query, nil
}

func sortParams(p []Param) {
	sort.SliceStable(p, func(i, j int) bool {
		ki, kj := Escape(p[i].Key), Escape(p[j].Key)
		if ki != kj {
			return ki < kj
		}
		return Escape(p[i].Value) < Escape(p[j].Value)
	})
}

// Escape percent-encodes s per RFC 3986 (unreserved characters kept).
func Escape(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if ('A' <= c && c <= 'Z') || ('a' <= c && c <= 'z') || ('0' <= c && c <= '9') ||
			c == '-' || c == '.' || c == '_' || c == '~' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&15])
	}
	return b.String()
}
