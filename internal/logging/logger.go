package logging

import (
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// logger always holds a usable logger so codec calls can log from any
// goroutine without initialisation.
var logger atomic.Pointer[zap.Logger]

func init() {
	logger.Store(zap.NewNop())
}

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "EMSLINK_LOG_LEVEL"

// maxDumpBytes caps hex and ascii dumps in log fields.
const maxDumpBytes = 256

// Initialize creates a new logger with the specified level.
// If level is empty, it checks EMSLINK_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger.Store(zap.NewNop())
		return nil
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(ParseLevel(level)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	l, err := config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger.Store(l)

	return nil
}

// InitializeFromEnv initializes the logger from the EMSLINK_LOG_LEVEL
// environment variable. CLI commands use this to stay silent by default.
func InitializeFromEnv() error {
	return Initialize("")
}

// ParseLevel maps a level name to a zap level.
// Unknown names fall back to info.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// SetLogger replaces the global logger. Tests use it with zaptest/observer.
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	return logger.Load()
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// Fatal logs a fatal message and exits
func Fatal(msg string, fields ...zap.Field) {
	GetLogger().Fatal(msg, fields...)
}

// LogConnection logs a bridge connection event
func LogConnection(remoteAddr string, event string) {
	Info("Connection event",
		zap.String("remote_addr", remoteAddr),
		zap.String("event", event),
	)
}

// LogTLSHandshake logs a completed TLS handshake on the bridge listener
func LogTLSHandshake(remoteAddr string, version uint16, cipherSuite uint16, serverName string) {
	Info("TLS handshake completed",
		zap.String("remote_addr", remoteAddr),
		zap.String("tls_version", tls.VersionName(version)),
		zap.String("cipher_suite", tls.CipherSuiteName(cipherSuite)),
		zap.String("server_name", serverName),
	)
}

// LogHTTPRequest logs an incoming HTTP request
func LogHTTPRequest(remoteAddr string, method string, path string, headers map[string]string) {
	Info("HTTP request received",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Any("headers", headers),
	)
}

// LogFrame logs an encoded or decoded protocol frame at debug level.
// The encoded form is the base64 text that crosses the transport.
func LogFrame(label string, raw []byte, encoded string) {
	if !GetLogger().Core().Enabled(zapcore.DebugLevel) {
		return
	}
	Debug(label,
		zap.Int("length", len(raw)),
		zap.String("hex", hexDump(raw)),
		zap.String("base64", encoded),
	)
}

// LogBridgeMessage logs a message crossing the WebSocket bridge
func LogBridgeMessage(remoteAddr string, direction string, op string, characteristic string, value string) {
	Debug("Bridge message",
		zap.String("remote_addr", remoteAddr),
		zap.String("direction", direction),
		zap.String("op", op),
		zap.String("characteristic", characteristic),
		zap.String("value", value),
	)
}

// LogRawBytes logs raw bytes (useful for debugging protocol issues)
func LogRawBytes(label string, data []byte) {
	Debug(label,
		zap.Int("length", len(data)),
		zap.String("hex", hexDump(data)),
		zap.String("ascii", asciiDump(data)),
	)
}

func hexDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > maxDumpBytes {
		return hex.EncodeToString(data[:maxDumpBytes]) + "..."
	}
	return hex.EncodeToString(data)
}

func asciiDump(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	if len(data) > maxDumpBytes {
		data = data[:maxDumpBytes]
	}

	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}

// Sync flushes any buffered log entries
func Sync() {
	if l := logger.Load(); l != nil {
		_ = l.Sync()
	}
}
