// Package logging builds the process logger: a human console sink on stderr
// teed with an append-only JSON execution log, exposed through logr.
package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	// Verbosity enables logr V-levels up to this value on the console.
	Verbosity int
	// Console receives human-readable output. Defaults to os.Stderr.
	Console io.Writer
	// File is the execution log path. Empty disables the file sink.
	File string
}

// New returns a logger and a function that flushes and closes its sinks.
func New(opts Options) (logr.Logger, func() error, error) {
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.Lock(zapcore.AddSync(console)),
			zapcore.Level(-opts.Verbosity),
		),
	}

	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0o755); err != nil {
			return logr.Discard(), nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return logr.Discard(), nil, fmt.Errorf("open execution log: %w", err)
		}
		file = f

		jsonCfg := zap.NewProductionEncoderConfig()
		jsonCfg.EncodeTime = zapcore.RFC3339NanoTimeEncoder
		// The execution log always keeps one level more detail than the console.
		fileLevel := zapcore.Level(-max(opts.Verbosity, 1))
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(jsonCfg),
			zapcore.Lock(zapcore.AddSync(f)),
			fileLevel,
		))
	}

	zl := zap.New(zapcore.NewTee(cores...))
	closer := func() error {
		_ = zl.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}
	return zapr.NewLogger(zl), closer, nil
}

// IntoContext attaches log to ctx.
func IntoContext(ctx context.Context, log logr.Logger) context.Context {
	return logr.NewContext(ctx, log)
}

// FromContext returns the logger in ctx, or a discarding logger.
func FromContext(ctx context.Context) logr.Logger {
	return logr.FromContextOrDiscard(ctx)
}
