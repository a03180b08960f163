// Package config provides configuration handling for the socket manager.
package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/irctrakz/sockmgr/pkg/core"
	"github.com/irctrakz/sockmgr/pkg/logging"
)

// Config represents the complete socket manager configuration.
type Config struct {
	// Socket contains defaults applied to every socket.
	Socket core.SocketConfig `json:"socket" yaml:"socket"`

	// HTTP contains HTTP mode defaults.
	HTTP core.HTTPConfig `json:"http" yaml:"http"`

	// Logging contains the logging configuration.
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LoggingConfig contains configuration for logging.
type LoggingConfig struct {
	// Level is the logging level (debug, info, warn, error).
	Level string `json:"level" yaml:"level"`

	// File is the log file path.
	File string `json:"file" yaml:"file"`

	// MaxSize is the maximum size of the log file in megabytes.
	MaxSize int `json:"maxSize" yaml:"maxSize"`

	// MaxBackups is the maximum number of old log files to retain.
	MaxBackups int `json:"maxBackups" yaml:"maxBackups"`

	// MaxAge is the maximum number of days to retain old log files.
	MaxAge int `json:"maxAge" yaml:"maxAge"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Socket: core.DefaultSocketConfig(),
		HTTP:   core.DefaultHTTPConfig(),
		Logging: LoggingConfig{
			Level:      "warn",
			File:       "",
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// LoadFromFile loads configuration from a .json, .hujson/.jwcc or
// .yaml/.yml file. Fields absent from the file keep their current values.
func LoadFromFile(path string, config *Config) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".hujson", ".jwcc":
		std, err := hujson.Standardize(data)
		if err != nil {
			return fmt.Errorf("failed to parse HuJSON config: %w", err)
		}
		if err := json.Unmarshal(std, config); err != nil {
			return fmt.Errorf("failed to parse HuJSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, config); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	return nil
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			*dst = n
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		*dst = val == "true" || val == "1"
	}
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv(config *Config) {
	// Socket config
	envInt("SOCKET_DELAY_MS", &config.Socket.DelayMs)
	envInt("SOCKET_READ_POLL_MS", &config.Socket.ReadPollMs)
	envInt("SOCKET_CONNECT_TIMEOUT_MS", &config.Socket.ConnectTimeoutMs)
	envInt("SOCKET_HANDSHAKE_TIMEOUT_MS", &config.Socket.HandshakeTimeoutMs)
	envInt("SOCKET_WRITE_TIMEOUT_MS", &config.Socket.WriteTimeoutMs)
	envInt("SOCKET_RESOLVE_TIMEOUT_MS", &config.Socket.ResolveTimeoutMs)
	envInt("SOCKET_READ_BUFFER_SIZE", &config.Socket.ReadBufferSize)
	envInt("SOCKET_MAX_PACKET_SIZE", &config.Socket.MaxPacketSize)
	if val := os.Getenv("SOCKET_FRAMING"); val != "" {
		config.Socket.Framing = strings.ToLower(val)
	}
	envBool("SOCKET_FLUSH_ON_DISCONNECT", &config.Socket.FlushOnDisconnect)
	envBool("SOCKET_INSECURE_SKIP_VERIFY", &config.Socket.InsecureSkipVerify)

	// HTTP config
	if val := os.Getenv("HTTP_USER_AGENT"); val != "" {
		config.HTTP.UserAgent = val
	}
	envInt("HTTP_REPLY_TIMEOUT_MS", &config.HTTP.ReplyTimeoutMs)
	if val := os.Getenv("HTTP_MAX_BODY_BYTES"); val != "" {
		if n, err := strconv.ParseInt(val, 10, 64); err == nil {
			config.HTTP.MaxBodyBytes = n
		}
	}

	// Logging config
	if val := os.Getenv("LOGGING_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("LOGGING_FILE"); val != "" {
		config.Logging.File = val
	}
	envInt("LOGGING_MAX_SIZE", &config.Logging.MaxSize)
	envInt("LOGGING_MAX_BACKUPS", &config.Logging.MaxBackups)
	envInt("LOGGING_MAX_AGE", &config.Logging.MaxAge)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	s := c.Socket
	if s.DelayMs < 0 {
		return fmt.Errorf("invalid socket delay: %d", s.DelayMs)
	}
	if s.ReadPollMs < 0 || s.ConnectTimeoutMs < 0 || s.HandshakeTimeoutMs < 0 ||
		s.WriteTimeoutMs < 0 || s.ResolveTimeoutMs < 0 {
		return fmt.Errorf("socket timeouts cannot be negative")
	}
	if s.ReadBufferSize <= 0 {
		return fmt.Errorf("invalid read buffer size: %d", s.ReadBufferSize)
	}
	if s.MaxPacketSize <= 0 {
		return fmt.Errorf("invalid max packet size: %d", s.MaxPacketSize)
	}
	switch s.Framing {
	case core.FramingRaw, core.FramingLength:
	default:
		return fmt.Errorf("invalid framing: %q (want %s or %s)", s.Framing, core.FramingRaw, core.FramingLength)
	}
	if s.EventQueueCap < 0 {
		return fmt.Errorf("invalid event queue capacity: %d", s.EventQueueCap)
	}

	if c.HTTP.ReplyTimeoutMs < 0 {
		return fmt.Errorf("invalid HTTP reply timeout: %d", c.HTTP.ReplyTimeoutMs)
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("invalid HTTP max body bytes: %d", c.HTTP.MaxBodyBytes)
	}

	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return err
	}

	return nil
}

// ApplyLogging applies the logging configuration.
func (c *Config) ApplyLogging() error {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.InfoLevel
	}
	logging.SetLevel(level)

	if c.Logging.File != "" {
		dir, filename := filepath.Split(c.Logging.File)
		if dir == "" {
			dir = "."
		}
		err := logging.EnableFileLogging(
			dir,
			filename,
			c.Logging.MaxSize,
			c.Logging.MaxBackups,
			c.Logging.MaxAge,
		)
		if err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}

	return nil
}

// SaveToFile saves the configuration to a file.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".hujson", ".jwcc":
		data, err = json.MarshalIndent(c, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", path)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
