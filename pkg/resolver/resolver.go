// Package resolver validates and resolves socket destination addresses.
package resolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"time"

	"golang.org/x/net/idna"
)

// LookupFunc resolves a hostname to its addresses.
type LookupFunc func(ctx context.Context, host string) ([]string, error)

// Resolver checks whether an address is usable and resolves hostnames.
type Resolver struct {
	lookup  LookupFunc
	timeout time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLookup replaces the DNS lookup function.
func WithLookup(fn LookupFunc) Option {
	return func(r *Resolver) { r.lookup = fn }
}

// WithTimeout bounds each lookup. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) { r.timeout = d }
}

// New creates a Resolver backed by net.DefaultResolver.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		lookup:  net.DefaultResolver.LookupHost,
		timeout: 5 * time.Second,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

var profile = idna.New(
	idna.MapForLookup(),
	idna.ValidateLabels(true),
	idna.StrictDomainName(true),
	idna.VerifyDNSLength(true),
)

// ParseIP parses an IPv4 or IPv6 literal (optionally bracketed).
func ParseIP(address string) (netip.Addr, bool) {
	a := address
	if strings.HasPrefix(a, "[") && strings.HasSuffix(a, "]") {
		a = a[1 : len(a)-1]
	}
	ip, err := netip.ParseAddr(a)
	if err != nil {
		return netip.Addr{}, false
	}
	return ip, true
}

// CanonicalHost returns the ASCII form of a hostname, or an error if the name
// is not a syntactically valid DNS name. IP literals are rejected.
func CanonicalHost(host string) (string, error) {
	if host == "" {
		return "", fmt.Errorf("empty hostname")
	}
	if strings.ContainsAny(host, ":/[]@ ") {
		return "", fmt.Errorf("invalid hostname %q", host)
	}
	h := strings.TrimSuffix(host, ".")
	ascii, err := profile.ToASCII(h)
	if err != nil {
		return "", fmt.Errorf("invalid hostname %q: %w", host, err)
	}
	labels := strings.Split(ascii, ".")
	// A name whose last label is numeric is a malformed IP literal, not a
	// hostname (e.g. 999.999.999.999).
	if allDigits(labels[len(labels)-1]) {
		return "", fmt.Errorf("invalid hostname %q: numeric top-level label", host)
	}
	return strings.ToLower(ascii), nil
}

// ValidAddress reports whether address is a well-formed IP literal or a
// hostname that resolves to at least one address. It never panics.
func (r *Resolver) ValidAddress(address string) bool {
	if _, ok := ParseIP(address); ok {
		return true
	}
	host, err := CanonicalHost(address)
	if err != nil {
		return false
	}
	addrs, err := r.lookupHost(context.Background(), host)
	return err == nil && len(addrs) > 0
}

// Resolve returns an IP address string for address, preferring IPv4.
func (r *Resolver) Resolve(ctx context.Context, address string) (string, error) {
	if ip, ok := ParseIP(address); ok {
		return ip.String(), nil
	}
	host, err := CanonicalHost(address)
	if err != nil {
		return "", err
	}
	addrs, err := r.lookupHost(ctx, host)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", host, err)
	}
	var first string
	for _, a := range addrs {
		ip, ok := ParseIP(a)
		if !ok {
			continue
		}
		if ip.Unmap().Is4() {
			return ip.Unmap().String(), nil
		}
		if first == "" {
			first = ip.String()
		}
	}
	if first == "" {
		return "", fmt.Errorf("resolve %s: no addresses", host)
	}
	return first, nil
}

func (r *Resolver) lookupHost(ctx context.Context, host string) ([]string, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.lookup(ctx, host)
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// ValidAddress reports whether address is valid using a default Resolver.
func ValidAddress(address string) bool {
	return New().ValidAddress(address)
}
