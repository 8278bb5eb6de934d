package logging

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log levels accepted by Config.Level.
const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Output encodings accepted by Config.Format.
const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Config selects level, encoding and the service name stamped on every entry.
type Config struct {
	Level       string
	Format      string
	ServiceName string
}

// ZapLogger adapts a zap.SugaredLogger to dbapi.Logger.
// Verbose maps to debug level.
type ZapLogger struct {
	zap   *zap.Logger
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a logger writing to stderr.
//
// JSON output carries an ISO8601 timestamp, capitalised level, caller, pid
// and service fields. Console output drops pid/service and colours levels.
func NewZapLogger(cfg Config) (*ZapLogger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "timestamp"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeDuration = zapcore.MillisDurationEncoder

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Encoding:         FormatJSON,
		EncoderConfig:    encoderCfg,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}

	switch strings.ToLower(cfg.Format) {
	case "", FormatJSON:
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		zcfg.EncoderConfig = encoderCfg
		zcfg.InitialFields = map[string]any{
			"pid":     os.Getpid(),
			"service": cfg.ServiceName,
		}
	case FormatConsole:
		encoderCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoderCfg.EncodeCaller = zapcore.ShortCallerEncoder
		zcfg.EncoderConfig = encoderCfg
		zcfg.Encoding = FormatConsole
		zcfg.DisableStacktrace = true
	default:
		return nil, fmt.Errorf("unknown log format %q (expected json or console)", cfg.Format)
	}

	// Skip the adapter frame so callers see their own file:line.
	z, err := zcfg.Build(zap.AddCaller(), zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("build zap logger: %w", err)
	}
	return NewFromZap(z), nil
}

// NewConsoleLogger creates a human-readable stderr logger for CLI use.
// If verbose is false, Verbose() calls are dropped.
func NewConsoleLogger(verbose bool) *ZapLogger {
	level := LevelInfo
	if verbose {
		level = LevelDebug
	}
	l, err := NewZapLogger(Config{Level: level, Format: FormatConsole})
	if err != nil {
		// Only reachable with an invalid static config.
		panic(err)
	}
	return l
}

// NewFromZap wraps an existing zap logger, e.g. an observer core in tests.
func NewFromZap(z *zap.Logger) *ZapLogger {
	return &ZapLogger{zap: z, sugar: z.Sugar()}
}

// ParseLevel converts a level name to a zap level. Empty means info.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case LevelDebug, "verbose":
		return zapcore.DebugLevel, nil
	case "", LevelInfo:
		return zapcore.InfoLevel, nil
	case LevelWarn, "warning":
		return zapcore.WarnLevel, nil
	case LevelError:
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
	}
}

// Zap exposes the underlying logger for zap-aware integrations such as fx.
func (l *ZapLogger) Zap() *zap.Logger {
	return l.zap
}

// With returns a child logger that adds keysAndValues to every entry.
func (l *ZapLogger) With(keysAndValues ...any) *ZapLogger {
	child := l.sugar.With(keysAndValues...)
	return &ZapLogger{zap: child.Desugar(), sugar: child}
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.zap.Sync()
}

// Verbose logs detailed diagnostic information at debug level.
func (l *ZapLogger) Verbose(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

// Info logs informational messages about normal operations.
func (l *ZapLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Infow(msg, keysAndValues...)
}

// Warn logs recoverable problems.
func (l *ZapLogger) Warn(msg string, keysAndValues ...any) {
	l.sugar.Warnw(msg, keysAndValues...)
}

// Error logs error messages.
func (l *ZapLogger) Error(msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, keysAndValues...)
}
