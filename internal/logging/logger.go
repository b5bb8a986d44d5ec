// Package logging builds the file-backed loggers for sellflow runs.
// Two append-only, human-readable logs are kept under the configured log
// directory: system.log (info and above) and error.log (errors only).
package logging

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	Dir     string // log directory, created if absent
	Verbose bool   // also log debug to system.log
	Console bool   // mirror to stderr
}

// New builds the run logger. The caller owns Sync on shutdown.
func New(opts Options) (*zap.Logger, error) {
	if opts.Dir == "" {
		opts.Dir = "logs"
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	systemFile, err := openAppend(filepath.Join(opts.Dir, "system.log"))
	if err != nil {
		return nil, err
	}
	errorFile, err := openAppend(filepath.Join(opts.Dir, "error.log"))
	if err != nil {
		return nil, err
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	enc := zapcore.NewConsoleEncoder(encCfg)

	systemLevel := zapcore.InfoLevel
	if opts.Verbose {
		systemLevel = zapcore.DebugLevel
	}

	cores := []zapcore.Core{
		zapcore.NewCore(enc, zapcore.AddSync(systemFile), systemLevel),
		zapcore.NewCore(enc, zapcore.AddSync(errorFile), zapcore.ErrorLevel),
	}
	if opts.Console {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stderr), systemLevel))
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", path, err)
	}
	return f, nil
}
