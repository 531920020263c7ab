// Package logger provides the process-wide structured logger: flat JSON or
// key=value lines with a stable key order, per-component loggers and update
// metadata carried in context.Context.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/intakebot/core/buildinfo"
	coreconfig "github.com/m3rciful/intakebot/core/config"
)

var (
	initOnce     sync.Once
	shutdownOnce sync.Once
	shutdownErr  error

	out      *asyncWriter
	logFile  io.Closer
	levelVar slog.LevelVar

	debugSampler  = newRatioSampler(defaultSampleNum, defaultSampleDen)
	traceOverride bool

	// L is the base logger; prefer the component loggers and event helpers.
	L *slog.Logger

	// DB logs journal database connectivity.
	DB *slog.Logger
	// TG logs Telegram transport events.
	TG *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// TWire logs Telegram wiring steps.
	TWire *slog.Logger
	// Intake logs dialogue engine transitions.
	Intake *slog.Logger
	// Delivery logs hand-off calls to the operator chat.
	Delivery *slog.Logger
	// Journal logs delivery journal writes.
	Journal *slog.Logger
)

// Until InitLogger runs (tests, early startup) everything goes to stderr at WARN and above.
func init() {
	L = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	wireComponents()
}

// InitLogger installs the structured logger described by cfg.Logging as L and
// as the slog default. Only the first call has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	initOnce.Do(func() {
		opts := resolveOptions(cfg)
		levelVar.Set(opts.level)
		debugSampler.Set(opts.sampleNum, opts.sampleDen)
		traceOverride = opts.trace

		sinks := []io.Writer{os.Stdout}
		var fileErr error
		if opts.filePath != "" {
			f, err := openLogFile(opts.filePath)
			if err != nil {
				fileErr = err
			} else {
				sinks = append(sinks, f)
				logFile = f
			}
		}
		out = newAsyncWriter(sinks, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   out,
			format:   opts.format,
			keyOrder: opts.keyOrder,
		}))
		slog.SetDefault(L)
		wireComponents()

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", opts.profile),
			slog.String("format", string(opts.format)),
		)
		if fileErr != nil {
			// stdout keeps working; the file sink is optional.
			L.LogAttrs(context.Background(), slog.LevelWarn, "",
				slog.String("component", "app"),
				slog.String("event", "logger.file_unavailable"),
				slog.String("path", opts.filePath),
				slog.String("err", fileErr.Error()),
			)
		}
	})
	return nil
}

func wireComponents() {
	DB = L.With("component", "db")
	TG = L.With("component", "tg")
	MIG = L.With("component", "db.migrate")
	TWire = L.With("component", "tg.wire")
	Intake = L.With("component", "intake")
	Delivery = L.With("component", "intake.delivery")
	Journal = L.With("component", "journal")
}

// Shutdown flushes pending lines and closes the log file. Later calls return
// the first call's result.
func Shutdown() error {
	shutdownOnce.Do(func() {
		var errs []error
		if out != nil {
			errs = append(errs, out.Close())
		}
		if logFile != nil {
			errs = append(errs, logFile.Close())
		}
		shutdownErr = errors.Join(errs...)
	})
	return shutdownErr
}

// Background returns context.Background(); handy in tests and wiring code.
func Background() context.Context {
	return context.Background()
}

// LogEvent writes one line with the event attribute first. A nil logg falls
// back to the logger stored in ctx.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(orBackground(ctx), level, "", attrs...)
}

// Component returns a logger tagged with the component name, or L for "".
func Component(name string) *slog.Logger {
	if name = strings.TrimSpace(name); name != "" {
		return L.With("component", name)
	}
	return L
}

// Event logs event for component at level.
func Event(ctx context.Context, component string, level slog.Level, event string, attrs ...slog.Attr) {
	LogEvent(ctx, Component(component), level, event, attrs...)
}

// Debug logs a debug-level event for the given component.
func Debug(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelDebug, event, attrs...)
}

// Info logs an info-level event for the given component.
func Info(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelInfo, event, attrs...)
}

// Warn logs a warn-level event for the given component.
func Warn(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelWarn, event, attrs...)
}

// Error logs an error-level event for the given component.
func Error(ctx context.Context, component, event string, attrs ...slog.Attr) {
	Event(ctx, component, slog.LevelError, event, attrs...)
}

// ShouldSampleDebug reports whether a high-volume debug line should be
// written. TRACE=1 or LOG_TRACE=1 turns sampling off.
func ShouldSampleDebug() bool {
	return traceOverride || debugSampler.Allow()
}
