// Package logger builds the zap loggers used by the portal client and its CLI.
// Diagnostics never go to stdout unless asked to, since stdout carries the
// JSON or YAML a command prints.
package logger

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/campus/portal/internal/infrastructure/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const timeLayout = "2006-01-02T15:04:05.000Z07:00"

// Options selects level, encoding and destination.
type Options struct {
	Level  string // debug, info, warn, error; empty is info
	Format string // console or json
	Output string // stderr, stdout, discard or a file path
	Name   string

	// Sampled keeps the first 10 identical messages per second and every
	// 100th after that.
	Sampled bool
}

// FromConfig maps the [log] section. Production runs log sampled JSON.
func FromConfig(cfg config.LogConfig, env string) Options {
	opts := Options{
		Level:  cfg.Level,
		Format: cfg.Format,
		Output: cfg.Output,
		Name:   "portalctl",
	}
	if env == "production" {
		opts.Format = "json"
		opts.Sampled = true
	}
	return opts
}

// Build returns a logger and a release func that flushes it and closes the
// log file, if one was opened.
func Build(opts Options) (*zap.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	sink, err := openSink(opts.Output)
	if err != nil {
		return nil, nil, err
	}
	enc, err := newEncoder(opts.Format, sink.terminal)
	if err != nil {
		_ = sink.close()
		return nil, nil, err
	}

	core := zapcore.NewCore(enc, sink.ws, level)
	if opts.Sampled {
		core = zapcore.NewSamplerWithOptions(core, time.Second, 10, 100)
	}
	log := zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if opts.Name != "" {
		log = log.Named(opts.Name)
	}

	release := func() error {
		err := log.Sync()
		if ignorableSyncError(err) {
			err = nil
		}
		if cerr := sink.close(); err == nil {
			err = cerr
		}
		return err
	}
	return log, release, nil
}

// ParseLevel accepts zap's level names, any case, plus "warning".
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	}
	lvl, err := zapcore.ParseLevel(strings.TrimSpace(s))
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("invalid log level %q", s)
	}
	return lvl, nil
}

type sink struct {
	ws       zapcore.WriteSyncer
	terminal bool
	close    func() error
}

func openSink(output string) (sink, error) {
	noop := func() error { return nil }
	switch strings.ToLower(output) {
	case "", "stderr":
		return sink{ws: zapcore.Lock(os.Stderr), terminal: isTerminal(os.Stderr), close: noop}, nil
	case "stdout":
		return sink{ws: zapcore.Lock(os.Stdout), terminal: isTerminal(os.Stdout), close: noop}, nil
	case "discard":
		return sink{ws: zapcore.AddSync(io.Discard), close: noop}, nil
	}
	f, err := os.OpenFile(output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return sink{}, fmt.Errorf("failed to open log file: %w", err)
	}
	return sink{ws: zapcore.Lock(f), close: f.Close}, nil
}

func newEncoder(format string, color bool) (zapcore.Encoder, error) {
	switch strings.ToLower(format) {
	case "", "console":
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		if color {
			ec.EncodeLevel = zapcore.CapitalColorLevelEncoder
		}
		return zapcore.NewConsoleEncoder(ec), nil
	case "json":
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "time"
		ec.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)
		ec.EncodeDuration = zapcore.MillisDurationEncoder
		return zapcore.NewJSONEncoder(ec), nil
	}
	return nil, fmt.Errorf("unsupported log format %q", format)
}

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	return err == nil && fi.Mode()&os.ModeCharDevice != 0
}

// Syncing a terminal or pipe fails with EINVAL or ENOTTY on most platforms.
func ignorableSyncError(err error) bool {
	return err == nil || errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
