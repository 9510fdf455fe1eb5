// Package logger is the zap logger shared by every tourguide component.
package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps zap.Logger with component and guide-session scoping
type Logger struct {
	*zap.Logger
	level zap.AtomicLevel
}

// LogLevel represents the logging level
type LogLevel string

const (
	DebugLevel LogLevel = "debug"
	InfoLevel  LogLevel = "info"
	WarnLevel  LogLevel = "warn"
	ErrorLevel LogLevel = "error"
)

var zapLevels = map[LogLevel]zapcore.Level{
	DebugLevel: zapcore.DebugLevel,
	InfoLevel:  zapcore.InfoLevel,
	WarnLevel:  zapcore.WarnLevel,
	ErrorLevel: zapcore.ErrorLevel,
}

// Config holds logger configuration
type Config struct {
	Level       LogLevel `mapstructure:"level"`
	Environment string   `mapstructure:"environment"`
	// Encoding is json or console; empty picks json in production
	Encoding string `mapstructure:"encoding"`
	// Output defaults to stdout
	Output io.Writer `mapstructure:"-"`
}

func (c Config) production() bool {
	return strings.EqualFold(c.Environment, "production")
}

// New creates a logger. Development output is colored console lines with
// ISO8601 timestamps; production output is JSON.
func New(cfg Config) (*Logger, error) {
	zl, ok := zapLevels[cfg.Level]
	if !ok {
		zl = zapcore.InfoLevel
	}
	level := zap.NewAtomicLevelAt(zl)

	encoderConfig := zap.NewDevelopmentEncoderConfig()
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if cfg.production() {
		encoderConfig = zap.NewProductionEncoderConfig()
	}
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	encoding := cfg.Encoding
	if encoding == "" && cfg.production() {
		encoding = "json"
	}
	var encoder zapcore.Encoder
	if encoding == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	core := zapcore.NewCore(encoder, zapcore.AddSync(out), level)
	return &Logger{Logger: zap.New(core, zap.AddCaller()), level: level}, nil
}

// NewDefault creates a debug-level development logger
func NewDefault() *Logger {
	l, _ := New(Config{Level: DebugLevel, Environment: "development"})
	return l
}

func (l *Logger) with(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), level: l.level}
}

// SetLevel changes the level of l and every logger derived from it
func (l *Logger) SetLevel(level LogLevel) {
	if zl, ok := zapLevels[level]; ok {
		l.level.SetLevel(zl)
	}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(zap.Any(key, value))
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	zapFields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zapFields = append(zapFields, zap.Any(k, v))
	}
	return l.with(zapFields...)
}

// WithComponent names the subsystem a line comes from
func (l *Logger) WithComponent(component string) *Logger {
	return l.with(zap.String("component", component))
}

func (l *Logger) WithUserID(userID string) *Logger {
	return l.with(zap.String("user_id", userID))
}

func (l *Logger) WithSessionID(sessionID string) *Logger {
	return l.with(zap.String("session_id", sessionID))
}

func (l *Logger) WithRouteID(routeID string) *Logger {
	return l.with(zap.String("route_id", routeID))
}

// ParseLevel maps a config string onto a LogLevel, defaulting to info
func ParseLevel(level string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// SetGlobalLogger sets the logger returned by GetGlobalLogger
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// GetGlobalLogger returns the global logger, creating a default one on first use
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	l := globalLogger
	globalMu.RUnlock()
	if l != nil {
		return l
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = NewDefault()
	}
	return globalLogger
}
