package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureOutput(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	originalOutput := logger.Out
	originalLevel := GetLevel()
	logger.SetOutput(&buf)
	t.Cleanup(func() {
		logger.SetOutput(originalOutput)
		SetLevel(originalLevel)
	})
	return &buf
}

func TestSetLevel(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(InfoLevel)

	Debugf("Debug message")
	assert.Empty(t, buf.String())

	Infof("Info message")
	assert.Contains(t, buf.String(), "Info message")
	assert.Equal(t, InfoLevel, GetLevel())
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]Level{
		"debug":   DebugLevel,
		" INFO ":  InfoLevel,
		"warn":    WarnLevel,
		"warning": WarnLevel,
		"error":   ErrorLevel,
	} {
		got, err := ParseLevel(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestWithSocket(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(DebugLevel)

	WithSocket(42, "127.0.0.1:80").Infof("state changed")

	out := buf.String()
	assert.Contains(t, out, "state changed")
	assert.Contains(t, out, "socket=42")
	assert.Contains(t, out, "ident=\"127.0.0.1:80\"")
}

func TestWithFields(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(DebugLevel)

	WarnWithFields(logrus.Fields{"component": "registry", "live": 3}, "flushing")

	out := buf.String()
	assert.Contains(t, out, "flushing")
	assert.Contains(t, out, "component=registry")
	assert.Contains(t, out, "live=3")
}

func TestFileLogging(t *testing.T) {
	buf := captureOutput(t)
	_ = buf
	SetLevel(InfoLevel)

	tempDir := t.TempDir()
	require.NoError(t, EnableFileLogging(tempDir, "sock.log", 10, 3, 7))

	Infof("File log test message")

	content, err := os.ReadFile(filepath.Join(tempDir, "sock.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "File log test message")
}

func TestSetFormatter(t *testing.T) {
	buf := captureOutput(t)
	SetLevel(InfoLevel)

	SetFormatter(&logrus.JSONFormatter{})
	defer SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	Infof("JSON formatted message")

	assert.Contains(t, buf.String(), "\"level\":\"info\"")
	assert.Contains(t, buf.String(), "\"msg\":\"JSON formatted message\"")
}
