package logger

import (
	"io"
	"log/slog"
	"os"
)

// New returns the process logger tagged with service. Local runs get a text
// handler at debug level; every other env gets JSON on stdout.
func New(appEnv, service string) *slog.Logger {
	return NewWithWriter(os.Stdout, appEnv, service)
}

func NewWithWriter(w io.Writer, appEnv, service string) *slog.Logger {
	level := slog.LevelInfo
	if appEnv == "local" || appEnv == "dev" {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler = slog.NewJSONHandler(w, opts)
	if appEnv == "local" {
		h = slog.NewTextHandler(w, opts)
	}
	return slog.New(h).With("service", service)
}
