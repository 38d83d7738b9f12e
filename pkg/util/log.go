package util

import (
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogOptions mirrors the LOG_* / SAVE_LOGS / LOGGING environment knobs.
type LogOptions struct {
	Level    string // debug, info, warn, error
	FilePath string // empty disables the file sink
	Disabled bool
}

func NewLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(parseLevel(level))
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg.Build()
}

// NewLoggerFromOptions creates a logger that writes to the console and,
// when FilePath is set, to a file as well.
func NewLoggerFromOptions(opts LogOptions) (*zap.Logger, error) {
	if opts.Disabled {
		return zap.NewNop(), nil
	}
	if opts.FilePath == "" {
		return NewLogger(opts.Level)
	}
	return NewLoggerWithFile(opts.FilePath, opts.Level)
}

// NewLoggerWithFile creates a logger that writes to both console and a file
func NewLoggerWithFile(logPath, level string) (*zap.Logger, error) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	file, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	lvl := parseLevel(level)
	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(os.Stdout), lvl),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderCfg), zapcore.AddSync(file), lvl),
	)

	return zap.New(core), nil
}

func parseLevel(level string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return zap.InfoLevel
	}
	return lvl
}
