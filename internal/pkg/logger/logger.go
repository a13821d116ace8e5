// Package logger exposes a process-wide Sugared Zap logger used by every
// safewatch component. Logs are JSON on stdout; when the telemetry package has
// a LoggerProvider registered, an OpenTelemetry bridge core ships the same
// records to the collector. The minimum level is set once through functional
// options at Init time.
package logger

import (
	"context"
	"os"
	"sync"

	"github.com/gabapcia/safewatch/internal/pkg/telemetry"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// logger is the global SugaredLogger instance, configured exactly once by Init.
	logger *zap.SugaredLogger

	// initOnce guards the one-time setup performed by Init.
	initOnce sync.Once
)

// config holds the adjustable knobs applied during Init.
type config struct {
	level string // minimum level accepted by the stdout core
}

// Option customizes the global logger before it is built.
type Option func(*config)

// WithLevel sets the minimum log level ("debug", "info", "warn", "error",
// "dpanic", "panic", "fatal"). The default is "info".
func WithLevel(l string) Option {
	return func(c *config) {
		c.level = l
	}
}

// Init builds the global logger. The first call wins; later calls only
// re-validate their options. An OTEL bridge core is attached when
// telemetry.LoggerProvider() reports a configured provider, so indexing
// services get collector-side logs without any per-call wiring.
//
// Returns an error if the configured level cannot be parsed.
func Init(opts ...Option) error {
	cfg := config{level: "info"}
	for _, opt := range opts {
		opt(&cfg)
	}

	level, err := zapcore.ParseLevel(cfg.level)
	if err != nil {
		return err
	}

	initOnce.Do(func() {
		cores := []zapcore.Core{
			zapcore.NewCore(
				zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
				zapcore.AddSync(os.Stdout),
				level,
			),
		}

		if lp := telemetry.LoggerProvider(); lp != nil {
			cores = append(cores, otelzap.NewCore("github.com/gabapcia/safewatch", otelzap.WithLoggerProvider(lp)))
		}

		logger = zap.New(zapcore.NewTee(cores...)).Sugar()
	})

	return nil
}

// Sync flushes buffered entries. Call it on shutdown.
func Sync() error {
	return logger.Sync()
}

// Debug logs a debug-level message with optional key/value context.
func Debug(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Debugw(msg, keysAndValues...)
}

// Info logs an info-level message with optional key/value context.
func Info(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Infow(msg, keysAndValues...)
}

// Warn logs a warn-level message with optional key/value context.
func Warn(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Warnw(msg, keysAndValues...)
}

// Error logs an error-level message with optional key/value context.
func Error(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Errorw(msg, keysAndValues...)
}

// Critical logs at the highest non-terminating severity. Reserved for
// data-consistency failures that require operator intervention, such as the
// trace source missing data the replay engine depends on.
func Critical(ctx context.Context, msg string, keysAndValues ...any) {
	logger.DPanicw(msg, keysAndValues...)
}

// Panic logs a panic-level message and then panics.
func Panic(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Panicw(msg, keysAndValues...)
}

// Fatal logs a fatal-level message and then exits.
func Fatal(ctx context.Context, msg string, keysAndValues ...any) {
	logger.Fatalw(msg, keysAndValues...)
}
