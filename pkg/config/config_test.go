package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/logging"
)

func TestDefaultConfigValid(t *testing.T) {
	c := DefaultConfig()
	require.NoError(t, c.Validate())
	assert.Equal(t, core.FramingRaw, c.Socket.Framing)
	assert.Equal(t, "warn", c.Logging.Level)
}

func TestLoadFromFileFormats(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"c.json": `{"socket":{"delay_ms":7,"framing":"length"},"http":{"user_agent":"ua/2"},"logging":{"level":"debug"}}`,
		"c.yaml": "socket:\n  delayMs: 7\n  framing: length\nhttp:\n  userAgent: ua/2\nlogging:\n  level: debug\n",
		"c.hujson": `{
			// commented config
			"socket": {"delay_ms": 7, "framing": "length",},
			"http": {"user_agent": "ua/2"},
			"logging": {"level": "debug"},
		}`,
	}
	for name, body := range files {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			require.NoError(t, os.WriteFile(path, []byte(body), 0644))

			c := DefaultConfig()
			require.NoError(t, LoadFromFile(path, c))

			want := DefaultConfig()
			want.Socket.DelayMs = 7
			want.Socket.Framing = core.FramingLength
			want.HTTP.UserAgent = "ua/2"
			want.Logging.Level = "debug"
			if diff := cmp.Diff(want, c); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, LoadFromFile(filepath.Join(dir, "missing.json"), DefaultConfig()))

	bad := filepath.Join(dir, "c.toml")
	require.NoError(t, os.WriteFile(bad, []byte("x=1"), 0644))
	assert.Error(t, LoadFromFile(bad, DefaultConfig()))

	broken := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(broken, []byte("{"), 0644))
	assert.Error(t, LoadFromFile(broken, DefaultConfig()))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SOCKET_DELAY_MS", "25")
	t.Setenv("SOCKET_FRAMING", "LENGTH")
	t.Setenv("SOCKET_INSECURE_SKIP_VERIFY", "1")
	t.Setenv("SOCKET_READ_POLL_MS", "notanumber")
	t.Setenv("HTTP_MAX_BODY_BYTES", "4096")
	t.Setenv("HTTP_USER_AGENT", "env/1")
	t.Setenv("LOGGING_LEVEL", "error")

	c := DefaultConfig()
	LoadFromEnv(c)
	assert.Equal(t, 25, c.Socket.DelayMs)
	assert.Equal(t, core.FramingLength, c.Socket.Framing)
	assert.True(t, c.Socket.InsecureSkipVerify)
	assert.Equal(t, core.DefaultSocketConfig().ReadPollMs, c.Socket.ReadPollMs)
	assert.EqualValues(t, 4096, c.HTTP.MaxBodyBytes)
	assert.Equal(t, "env/1", c.HTTP.UserAgent)
	assert.Equal(t, "error", c.Logging.Level)
	assert.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"negative delay", func(c *Config) { c.Socket.DelayMs = -1 }},
		{"negative timeout", func(c *Config) { c.Socket.ConnectTimeoutMs = -5 }},
		{"zero buffer", func(c *Config) { c.Socket.ReadBufferSize = 0 }},
		{"zero max packet", func(c *Config) { c.Socket.MaxPacketSize = 0 }},
		{"bad framing", func(c *Config) { c.Socket.Framing = "lines" }},
		{"bad body cap", func(c *Config) { c.HTTP.MaxBodyBytes = -1 }},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig()
			tt.mutate(c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	dir := t.TempDir()
	c := DefaultConfig()
	c.Socket.DelayMs = 42
	c.HTTP.ReplyTimeoutMs = 1234

	for _, name := range []string{"out.json", "nested/out.yaml"} {
		path := filepath.Join(dir, name)
		require.NoError(t, c.SaveToFile(path))

		got := &Config{}
		require.NoError(t, LoadFromFile(path, got))
		if diff := cmp.Diff(c, got); diff != "" {
			t.Errorf("%s round trip (-want +got):\n%s", name, diff)
		}
	}
	assert.Error(t, c.SaveToFile(filepath.Join(dir, "out.ini")))
}

func TestApplyLoggingFile(t *testing.T) {
	t.Cleanup(func() {
		logging.SetOutput(os.Stdout)
		logging.SetLevel(logging.WarnLevel)
	})
	c := DefaultConfig()
	c.Logging.Level = "info"
	c.Logging.File = filepath.Join(t.TempDir(), "logs", "sock.log")
	require.NoError(t, c.ApplyLogging())
	_, err := os.Stat(filepath.Dir(c.Logging.File))
	assert.NoError(t, err)
}
