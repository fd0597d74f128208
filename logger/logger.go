package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

var (
	globalLogger *slog.Logger
	once         sync.Once
)

type Config struct {
	Level   string   `json:"level" yaml:"level"`     // debug/info/warn/error
	Format  string   `json:"format" yaml:"format"`   // text/json
	Outputs []string `json:"outputs" yaml:"outputs"` // stdout/stderr/file path
}

// Init builds the process-wide logger. Only the first call has effect.
func Init(cfg Config) error {
	var err error
	once.Do(func() {
		var l *slog.Logger
		l, err = New(cfg)
		if err != nil {
			return
		}
		globalLogger = l
	})
	return err
}

// New creates a logger without touching the global one.
func New(cfg Config) (*slog.Logger, error) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	var writers []io.Writer
	for _, output := range cfg.Outputs {
		switch output {
		case "", "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
				return nil, fmt.Errorf("create log dir: %w", err)
			}
			file, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, fmt.Errorf("open log file: %w", err)
			}
			writers = append(writers, file)
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}
	w := io.MultiWriter(writers...)

	opts := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

func Debug(msg string, args ...interface{}) {
	Logger().Debug(msg, args...)
}

func Info(msg string, args ...interface{}) {
	Logger().Info(msg, args...)
}

func Warn(msg string, args ...interface{}) {
	Logger().Warn(msg, args...)
}

func Error(msg string, args ...interface{}) {
	Logger().Error(msg, args...)
}

// Logger falls back to slog.Default before Init has run.
func Logger() *slog.Logger {
	if globalLogger == nil {
		return slog.Default()
	}
	return globalLogger
}
