// Package logging configures the process-wide zap logger, adapted from
// the production config the teacher module builds at init time.
package logging

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the process-wide structured logger. It is built at package
// init (honoring LOG_LEVEL) and replaced by SetLevel once the configured
// log level is known, so it is never nil after init. The stats and
// userworker packages take their own logger and tolerate a nil one.
var Logger *zap.SugaredLogger

func init() {
	logLevel := zapcore.InfoLevel
	if levelStr, ok := os.LookupEnv("LOG_LEVEL"); ok && levelStr != "" {
		if level, err := zapcore.ParseLevel(levelStr); err == nil {
			logLevel = level
		}
	}
	l, err := New(logLevel)
	if err != nil {
		panic(fmt.Errorf("logging: build default logger: %w", err))
	}
	Logger = l
}

// New builds a production-style zap logger: JSON output, RFC3339Nano
// timestamps, string-formatted durations, no sampling (every worker
// instance is low-enough volume that sampling would hide real problems),
// no stacktraces on Error (the control loops log expected conditions at
// Error/Warn routinely; stacktraces would be noise).
func New(level zapcore.Level) (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Sampling = nil
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		zapcore.RFC3339NanoTimeEncoder(t.UTC(), enc)
	}
	cfg.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder

	logger, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

// SetLevel rebuilds the global Logger at a new level and installs it as
// zap's global logger too, matching the teacher's SetLogLevel.
func SetLevel(level zapcore.Level) error {
	l, err := New(level)
	if err != nil {
		return err
	}
	Logger = l
	zap.ReplaceGlobals(l.Desugar())
	return nil
}
