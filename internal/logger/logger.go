package logger

import (
	"io"
	"log/slog"
	"os"

	"cinemind/internal/config"
)

// Logger is the process-wide JSON logger. It stays nil until InitLogger or
// InitLoggerTo runs, and the helpers below drop records until then.
var Logger *slog.Logger

var discard = slog.New(slog.NewJSONHandler(io.Discard, nil))

// InitLogger logs to stdout, at debug level with source positions when
// GIN_MODE=debug.
func InitLogger(cfg *config.Config) {
	InitLoggerTo(os.Stdout, cfg.GinMode)
}

// InitLoggerTo logs to w. The CLI passes stderr so stdout carries results.
func InitLoggerTo(w io.Writer, mode string) {
	debug := mode == "debug"
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	Logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})).With("service", "cinemind")
	Logger.Debug("logger ready", "level", level.String())
}

func get() *slog.Logger {
	if Logger == nil {
		return discard
	}
	return Logger
}

// With returns a child logger for a component.
func With(args ...any) *slog.Logger { return get().With(args...) }

func Info(msg string, args ...any)  { get().Info(msg, args...) }
func Warn(msg string, args ...any)  { get().Warn(msg, args...) }
func Error(msg string, args ...any) { get().Error(msg, args...) }
func Debug(msg string, args ...any) { get().Debug(msg, args...) }
