// Package logger builds the zap loggers used by the command-line tools.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects level, encoding and destination.
type Config struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// DefaultConfig logs warnings and above to stderr so command output on
// stdout stays machine-readable.
func DefaultConfig() Config {
	return Config{
		Level:  "warn",
		Format: "console",
		Output: "stderr",
	}
}

// New returns a logger and a close func that flushes it and releases the
// output file, if any.
func New(cfg Config) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	ws, closeOut, err := openOutput(cfg.Output)
	if err != nil {
		return nil, nil, err
	}

	core := zapcore.NewCore(newEncoder(cfg.Format), ws, level)
	log := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))

	return log, func() error {
		_ = log.Sync()
		return closeOut()
	}, nil
}

// NewWriter logs to w; used by tests and by tools that capture output.
func NewWriter(w io.Writer, cfg Config) (*zap.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	core := zapcore.NewCore(newEncoder(cfg.Format), zapcore.AddSync(w), level)
	return zap.New(core), nil
}

// ParseLevel maps a level name onto zapcore. Empty means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func newEncoder(format string) zapcore.Encoder {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	if strings.EqualFold(format, "console") {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func openOutput(output string) (zapcore.WriteSyncer, func() error, error) {
	noop := func() error { return nil }
	switch strings.ToLower(output) {
	case "", "stderr":
		return zapcore.Lock(os.Stderr), noop, nil
	case "stdout":
		return zapcore.Lock(os.Stdout), noop, nil
	}
	file, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log output: %w", err)
	}
	return zapcore.AddSync(file), file.Close, nil
}
