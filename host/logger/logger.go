// Package logger builds the zap logger used by the host tools: a console
// core teed with a size-rotated log file.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/natefinch/lumberjack"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	Level string // debug, info, warn or error
	Color bool

	// File is the log file path; empty disables the file core.
	File       string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days

	// Console defaults to stdout.
	Console io.Writer
}

// DefaultOptions logs info and above to the console only.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		Color:      true,
		MaxSize:    10,
		MaxBackups: 3,
		MaxAge:     7,
	}
}

// ParseLevel accepts the level names used in settings files.
func ParseLevel(s string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", s)
}

func newEncoder(color bool) zapcore.Encoder {
	encodeLevel := zapcore.CapitalLevelEncoder
	if color {
		encodeLevel = zapcore.CapitalColorLevelEncoder
	}
	return zapcore.NewConsoleEncoder(zapcore.EncoderConfig{
		MessageKey:       "message",
		LevelKey:         "level",
		TimeKey:          "time",
		CallerKey:        "caller",
		EncodeLevel:      encodeLevel,
		EncodeTime:       zapcore.ISO8601TimeEncoder,
		EncodeCaller:     zapcore.ShortCallerEncoder,
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	})
}

func newFileCore(level zapcore.Level, o Options) zapcore.Core {
	logFile := &lumberjack.Logger{
		Filename:   o.File,
		MaxSize:    o.MaxSize,
		MaxBackups: o.MaxBackups,
		MaxAge:     o.MaxAge,
		Compress:   false,
		LocalTime:  true,
	}
	// No color escapes in the file.
	return zapcore.NewCore(newEncoder(false), zapcore.AddSync(logFile), level)
}

// New builds a logger from o.
func New(o Options) (*zap.Logger, error) {
	level, err := ParseLevel(o.Level)
	if err != nil {
		return nil, err
	}
	console := o.Console
	if console == nil {
		console = os.Stdout
	}
	cores := []zapcore.Core{
		zapcore.NewCore(newEncoder(o.Color), zapcore.Lock(zapcore.AddSync(console)), level),
	}
	if o.File != "" {
		cores = append(cores, newFileCore(level, o))
	}
	return zap.New(zapcore.NewTee(cores...), zap.AddCaller()), nil
}
