package socket

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCipher(t *testing.T) {
	tests := []struct {
		in      string
		min     uint16
		max     uint16
		nSuites int
		wantErr bool
	}{
		{in: "DEFAULT"},
		{in: "TLSv1.2", min: tls.VersionTLS12, max: tls.VersionTLS12},
		{in: "TLSv1.2:TLSv1.3", min: tls.VersionTLS12, max: tls.VersionTLS13},
		{in: "tlsv1.3 : tlsv1.1", min: tls.VersionTLS11, max: tls.VersionTLS13},
		{in: "ECDHE-RSA-AES128-GCM-SHA256", nSuites: 1},
		{in: "TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384:AES128-SHA", nSuites: 2},
		{in: "TLSv1.2:ECDHE-RSA-AES256-GCM-SHA384", min: tls.VersionTLS12, max: tls.VersionTLS12, nSuites: 1},
		{in: "", wantErr: true},
		{in: "   ", wantErr: true},
		{in: "RC4-MD5-NOPE", wantErr: true},
		{in: "TLSv1.2:bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			spec, err := parseCipher(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidCipher)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.min, spec.minVersion)
			assert.Equal(t, tt.max, spec.maxVersion)
			assert.Len(t, spec.suites, tt.nSuites)
		})
	}
}

func TestCipherTLSConfig(t *testing.T) {
	spec, err := parseCipher("TLSv1.2:ECDHE-RSA-AES128-GCM-SHA256")
	require.NoError(t, err)

	cfg := spec.tlsConfig("example.com", true)
	assert.Equal(t, "example.com", cfg.ServerName)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, []uint16{tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256}, cfg.CipherSuites)

	cfg.CipherSuites[0] = 0
	assert.Equal(t, tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256, spec.suites[0])

	def, err := parseCipher("DEFAULT")
	require.NoError(t, err)
	assert.Nil(t, def.tlsConfig("h", false).CipherSuites)
}
