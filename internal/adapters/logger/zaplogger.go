package logger

import (
	"context"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"cryptoPositionWatch/internal/ports"
)

// Compile-time check
var _ ports.Logger = (*ZapLogger)(nil)

// LogLevel defines the logging level.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the string representation of the LogLevel.
func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string level to LogLevel.
func ParseLevel(levelStr string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "DEBUG":
		return LevelDebug
	case "INFO":
		return LevelInfo
	case "WARN", "WARNING":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo // Default to Info
	}
}

func (l LogLevel) zapLevel() zapcore.Level {
	switch l {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// ZapLogger implements the ports.Logger interface on top of zap.
type ZapLogger struct {
	logger *zap.Logger
}

// NewZapLogger creates a JSON logger writing to os.Stderr.
func NewZapLogger(level LogLevel, service string) *ZapLogger {
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(encCfg),
		zapcore.Lock(os.Stderr),
		zap.NewAtomicLevelAt(level.zapLevel()),
	)
	l := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(2))
	if service != "" {
		l = l.With(zap.String("service", service))
	}
	return &ZapLogger{logger: l}
}

// NewFromZap wraps an existing zap logger, e.g. one built on an observer core in tests.
func NewFromZap(l *zap.Logger) *ZapLogger {
	return &ZapLogger{logger: l}
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.logger.Sync()
}

func (l *ZapLogger) log(ctx context.Context, level zapcore.Level, msg string, err error, fields ...map[string]interface{}) {
	ce := l.logger.Check(level, msg)
	if ce == nil {
		return // Skip building fields if the level is below the configured threshold
	}

	zfields := make([]zap.Field, 0, 4)
	if id, ok := ports.PassIDFromContext(ctx); ok {
		zfields = append(zfields, zap.String("passID", id))
	}
	if err != nil {
		zfields = append(zfields, zap.Error(err))
		if kind := ports.ErrorKind(err); kind != "" {
			zfields = append(zfields, zap.String("errorKind", kind))
		}
	}
	for _, m := range fields {
		// Sorted so entries are stable across runs.
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			zfields = append(zfields, zap.Any(k, m[k]))
		}
	}
	ce.Write(zfields...)
}

// Debug logs a message at Debug level.
func (l *ZapLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.DebugLevel, msg, nil, fields...)
}

// Info logs a message at Info level.
func (l *ZapLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.InfoLevel, msg, nil, fields...)
}

// Warn logs a message at Warning level.
func (l *ZapLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.WarnLevel, msg, nil, fields...)
}

// Error logs an error message at Error level.
func (l *ZapLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	l.log(ctx, zapcore.ErrorLevel, msg, err, fields...)
}
