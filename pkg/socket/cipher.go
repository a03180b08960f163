package socket

import (
	"crypto/tls"
	"strings"

	"github.com/pkg/errors"
)

// cipherSpec is a parsed cipher string.
//
// A cipher string is a ':' separated list of tokens. Each token is a TLS
// version (TLSv1, TLSv1.1, TLSv1.2, TLSv1.3), DEFAULT (Go's defaults), or a
// suite name in IANA form (TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256) or OpenSSL
// form (ECDHE-RSA-AES128-GCM-SHA256). The empty string means no TLS.
type cipherSpec struct {
	minVersion uint16
	maxVersion uint16
	suites     []uint16
}

var versionTokens = map[string]uint16{
	"TLSV1":   tls.VersionTLS10,
	"TLSV1.0": tls.VersionTLS10,
	"TLSV1.1": tls.VersionTLS11,
	"TLSV1.2": tls.VersionTLS12,
	"TLSV1.3": tls.VersionTLS13,
}

var opensslNames = map[string]string{
	"ECDHE-ECDSA-AES128-GCM-SHA256": "TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256",
	"ECDHE-RSA-AES128-GCM-SHA256":   "TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256",
	"ECDHE-ECDSA-AES256-GCM-SHA384": "TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384",
	"ECDHE-RSA-AES256-GCM-SHA384":   "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384",
	"ECDHE-ECDSA-CHACHA20-POLY1305": "TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256",
	"ECDHE-RSA-CHACHA20-POLY1305":   "TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256",
	"ECDHE-ECDSA-AES128-SHA":        "TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA",
	"ECDHE-RSA-AES128-SHA":          "TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA",
	"ECDHE-ECDSA-AES256-SHA":        "TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA",
	"ECDHE-RSA-AES256-SHA":          "TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA",
	"AES128-GCM-SHA256":             "TLS_RSA_WITH_AES_128_GCM_SHA256",
	"AES256-GCM-SHA384":             "TLS_RSA_WITH_AES_256_GCM_SHA384",
	"AES128-SHA":                    "TLS_RSA_WITH_AES_128_CBC_SHA",
	"AES256-SHA":                    "TLS_RSA_WITH_AES_256_CBC_SHA",
}

// parseCipher validates a non-empty cipher string.
func parseCipher(s string) (*cipherSpec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.Wrap(ErrInvalidCipher, "empty cipher string")
	}

	suiteIDs := make(map[string]uint16)
	for _, cs := range tls.CipherSuites() {
		suiteIDs[cs.Name] = cs.ID
	}
	for _, cs := range tls.InsecureCipherSuites() {
		suiteIDs[cs.Name] = cs.ID
	}

	spec := &cipherSpec{}
	for _, tok := range strings.Split(s, ":") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		up := strings.ToUpper(tok)
		if v, ok := versionTokens[up]; ok {
			if spec.minVersion == 0 || v < spec.minVersion {
				spec.minVersion = v
			}
			if v > spec.maxVersion {
				spec.maxVersion = v
			}
			continue
		}
		if up == "DEFAULT" || up == "TLS" || up == "ALL" {
			continue
		}
		if name, ok := opensslNames[up]; ok {
			up = name
		}
		id, ok := suiteIDs[up]
		if !ok {
			return nil, errors.Wrapf(ErrInvalidCipher, "unknown token %q", tok)
		}
		spec.suites = append(spec.suites, id)
	}
	return spec, nil
}

// tlsConfig builds the client configuration for serverName.
func (c *cipherSpec) tlsConfig(serverName string, insecure bool) *tls.Config {
	cfg := &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: insecure,
		MinVersion:         c.minVersion,
		MaxVersion:         c.maxVersion,
	}
	if len(c.suites) > 0 {
		cfg.CipherSuites = append([]uint16(nil), c.suites...)
	}
	return cfg
}
