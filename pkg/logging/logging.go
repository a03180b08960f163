package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is the logging level
type Level logrus.Level

// Logging levels
const (
	DebugLevel Level = Level(logrus.DebugLevel)
	InfoLevel  Level = Level(logrus.InfoLevel)
	WarnLevel  Level = Level(logrus.WarnLevel)
	ErrorLevel Level = Level(logrus.ErrorLevel)
	FatalLevel Level = Level(logrus.FatalLevel)
	PanicLevel Level = Level(logrus.PanicLevel)
)

var logger = logrus.New()

func init() {
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})
	logger.SetOutput(os.Stdout)
	logger.SetLevel(logrus.WarnLevel)
}

// SetLevel sets the logging level
func SetLevel(level Level) {
	logger.SetLevel(logrus.Level(level))
}

// GetLevel returns the current logging level
func GetLevel() Level {
	return Level(logger.GetLevel())
}

// ParseLevel maps debug, info, warn, error to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel, nil
	case "info":
		return InfoLevel, nil
	case "warn", "warning":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	}
	return InfoLevel, fmt.Errorf("invalid logging level: %q", s)
}

// SetFormatter sets the log formatter
func SetFormatter(formatter logrus.Formatter) {
	logger.SetFormatter(formatter)
}

// SetOutput sets the log output
func SetOutput(output io.Writer) {
	logger.SetOutput(output)
}

// EnableFileLogging tees log output to a rotated file under logDir.
func EnableFileLogging(logDir, logFile string, maxSize, maxBackups, maxAge int) error {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return err
	}

	rotateLogger := &lumberjack.Logger{
		Filename:   filepath.Join(logDir, logFile),
		MaxSize:    maxSize,    // megabytes
		MaxBackups: maxBackups, // number of backups
		MaxAge:     maxAge,     // days
		Compress:   true,
	}

	logger.SetOutput(io.MultiWriter(os.Stdout, rotateLogger))
	return nil
}

// WithFields creates a new log entry with fields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return logger.WithFields(fields)
}

// WithSocket returns an entry tagged with a socket's id and identifier.
func WithSocket(id uint64, ident string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"socket": id,
		"ident":  ident,
	})
}

// Debugf logs a debug message
func Debugf(format string, args ...interface{}) {
	logger.Debugf(format, args...)
}

// Infof logs an info message
func Infof(format string, args ...interface{}) {
	logger.Infof(format, args...)
}

// Warnf logs a warning message
func Warnf(format string, args ...interface{}) {
	logger.Warnf(format, args...)
}

// Errorf logs an error message
func Errorf(format string, args ...interface{}) {
	logger.Errorf(format, args...)
}

// Fatalf logs a fatal message and exits
func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}

// DebugWithFields logs a debug message with fields
func DebugWithFields(fields logrus.Fields, format string, args ...interface{}) {
	logger.WithFields(fields).Debugf(format, args...)
}

// InfoWithFields logs an info message with fields
func InfoWithFields(fields logrus.Fields, format string, args ...interface{}) {
	logger.WithFields(fields).Infof(format, args...)
}

// WarnWithFields logs a warning message with fields
func WarnWithFields(fields logrus.Fields, format string, args ...interface{}) {
	logger.WithFields(fields).Warnf(format, args...)
}

// ErrorWithFields logs an error message with fields
func ErrorWithFields(fields logrus.Fields, format string, args ...interface{}) {
	logger.WithFields(fields).Errorf(format, args...)
}
