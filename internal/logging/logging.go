package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogFileName is the file written under the configured logs directory.
const LogFileName = "application.log"

// DefaultRotationMB is the size at which the log file is rotated when
// Options.RotationMB is unset.
const DefaultRotationMB = 200

// Options selects the logger's level, format and optional file sink.
type Options struct {
	Level      string
	Format     string
	Dir        string
	RotationMB int
}

// New builds the process logger. With Dir set, records are also written to
// a size-rotated file. The returned closer releases that file and must be
// called at shutdown.
func New(stdout io.Writer, opts Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	var closer io.Closer = nopCloser{}
	w := stdout
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create logs dir: %w", err)
		}
		size := opts.RotationMB
		if size <= 0 {
			size = DefaultRotationMB
		}
		f := &lumberjack.Logger{
			Filename: filepath.Join(opts.Dir, LogFileName),
			MaxSize:  size,
		}
		w = io.MultiWriter(stdout, f)
		closer = f
	}

	handlerOpts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, handlerOpts)
	case "", "text":
		handler = slog.NewTextHandler(w, handlerOpts)
	default:
		closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", opts.Format)
	}

	return slog.New(handler), closer, nil
}

// ParseLevel accepts DEBUG, INFO, WARNING/WARN and ERROR in any case.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug, nil
	case "", "INFO":
		return slog.LevelInfo, nil
	case "WARNING", "WARN":
		return slog.LevelWarn, nil
	case "ERROR", "CRITICAL":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// Task returns a child logger tagged with the task it serves.
func Task(logger *slog.Logger, task string) *slog.Logger {
	return logger.With("task", task)
}

// Lifespan logs the startup or shutdown banner.
func Lifespan(logger *slog.Logger, name string, shutdown bool) {
	spacer := strings.Repeat("-", 50)
	l := Task(logger, "lifespan")
	if !shutdown {
		l.Info(spacer)
		l.Info(fmt.Sprintf(">>> Initializing %s <<<", name))
		return
	}
	l.Info(fmt.Sprintf(">>> Shutting down %s <<<", name))
	l.Info(spacer)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
