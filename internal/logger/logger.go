// Package logger builds the structured logger shared by every component.
//
// Components take a logr.Logger and log with key/value pairs; the sink is zap
// with a console encoder writing to stderr, and optionally a JSON log file.
// stdout is never used because it may carry the DAP stream.
package logger

import (
	"fmt"
	"os"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const verbosityFlagName = "verbosity"

// Logger wraps logr.Logger with level control and flushing
type Logger struct {
	logr.Logger
	atomicLevel zap.AtomicLevel
	flush       func()
}

// New creates a logger named name. When logFile is non-empty, JSON records
// are additionally appended to that file at debug level.
func New(name string, logFile string) (*Logger, error) {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	consoleLevel := zap.NewAtomicLevelAt(zapcore.InfoLevel)
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.Lock(os.Stderr), consoleLevel),
	}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.AddSync(f), zap.NewAtomicLevelAt(zapcore.DebugLevel)))
	}

	zapLogger := zap.New(zapcore.NewTee(cores...))

	return &Logger{
		Logger:      zapr.NewLogger(zapLogger).WithName(name),
		atomicLevel: consoleLevel,
		flush: func() {
			_ = zapLogger.Sync()
		},
	}, nil
}

// SetLevel changes the console verbosity
func (l *Logger) SetLevel(level zapcore.Level) {
	l.atomicLevel.SetLevel(level)
}

// SetVerbosity maps a verbosity name (debug, info, error) to a console level
func (l *Logger) SetVerbosity(name string) error {
	level, err := ParseLevel(name)
	if err != nil {
		return err
	}
	l.SetLevel(level)
	return nil
}

// Flush writes any buffered records
func (l *Logger) Flush() {
	if l.flush != nil {
		l.flush()
	}
}

// AddVerbosityFlag registers the --verbosity flag
func AddVerbosityFlag(fs *pflag.FlagSet, target *string) {
	fs.StringVarP(target, verbosityFlagName, "v", "info", "Logging verbosity: debug, info or error")
}

// ParseLevel converts a verbosity name to a zap level
func ParseLevel(name string) (zapcore.Level, error) {
	switch name {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown verbosity %q (expected debug, info or error)", name)
	}
}
