package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Category tags records with the subsystem that produced them.
type Category string

const (
	Application   Category = "application"
	DiscordEvents Category = "discord"
	Database      Category = "database"
)

// LogFileName is the rotating log file created inside Options.Dir.
const LogFileName = "bruhbot.log"

// Options configures SetupLogger.
type Options struct {
	// Dir is where the rotating JSON log lives. Empty disables file output.
	Dir string
	// Level is the minimum level for both console and file output.
	Level slog.Level
	// Console defaults to os.Stdout.
	Console io.Writer
	// NoColor disables ANSI colors on the console handler.
	NoColor bool
}

var (
	mu      sync.RWMutex
	global  = slog.Default()
	rotator *lumberjack.Logger
)

// SetupLogger builds the process logger: tint on the console and, when
// Options.Dir is set, JSON lines through a lumberjack rotator. The result is
// also installed as slog's default logger.
func SetupLogger(opts Options) (*slog.Logger, error) {
	console := opts.Console
	if console == nil {
		console = os.Stdout
	}

	handlers := []slog.Handler{
		tint.NewHandler(console, &tint.Options{
			Level:      opts.Level,
			AddSource:  opts.Level <= slog.LevelDebug,
			TimeFormat: time.DateTime,
			NoColor:    opts.NoColor,
		}),
	}

	var rot *lumberjack.Logger
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		rot = &lumberjack.Logger{
			Filename:   filepath.Join(opts.Dir, LogFileName),
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     28,
			Compress:   true,
		}
		handlers = append(handlers, slog.NewJSONHandler(rot, &slog.HandlerOptions{Level: opts.Level}))
	}

	logger := slog.New(newFanout(handlers...))

	mu.Lock()
	old := rotator
	global = logger
	rotator = rot
	mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	slog.SetDefault(logger)
	return logger, nil
}

// Sync closes the rotating file, flushing pending writes. Safe to call when
// file output was never configured.
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	if rotator == nil {
		return nil
	}
	err := rotator.Close()
	rotator = nil
	return err
}

// GlobalLogger returns the logger installed by SetupLogger, or slog's default.
func GlobalLogger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// For returns the global logger tagged with category.
func For(c Category) *slog.Logger {
	return GlobalLogger().With("category", string(c))
}

func ApplicationLogger() *slog.Logger { return For(Application) }
func DiscordLogger() *slog.Logger     { return For(DiscordEvents) }
func DatabaseLogger() *slog.Logger    { return For(Database) }

// ParseLevel accepts debug, info, warn/warning and error. Empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// fanout delivers each record to every handler that accepts its level.
type fanout struct {
	handlers []slog.Handler
}

func newFanout(handlers ...slog.Handler) *fanout {
	return &fanout{handlers: handlers}
}

func (f *fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f.handlers {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f *fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f.handlers {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (f *fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithAttrs(attrs)
	}
	return newFanout(next...)
}

func (f *fanout) WithGroup(name string) slog.Handler {
	next := make([]slog.Handler, len(f.handlers))
	for i, h := range f.handlers {
		next[i] = h.WithGroup(name)
	}
	return newFanout(next...)
}
