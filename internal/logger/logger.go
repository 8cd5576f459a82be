package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	slogmulti "github.com/samber/slog-multi"
	slogsentry "github.com/samber/slog-sentry/v2"
)

// Log is the global logger instance
var Log *slog.Logger

// Options configures the process logger.
type Options struct {
	Development bool
	SentryDSN   string
	Environment string
	Release     string
}

// Init builds the logger, installs it as slog's default and returns a flush
// function that drains buffered Sentry events. Call it before exiting.
func Init(opts Options) (flush func()) {
	handlers := []slog.Handler{stdoutHandler(os.Stdout, opts.Development)}

	flush = func() {}
	if opts.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:         opts.SentryDSN,
			Environment: opts.Environment,
			Release:     opts.Release,
		})
		if err != nil {
			slog.Warn("sentry disabled", "error", err)
		} else {
			handlers = append(handlers, slogsentry.Option{Level: slog.LevelError}.NewSentryHandler())
			flush = func() { sentry.Flush(2 * time.Second) }
		}
	}

	Log = slog.New(fanout(handlers))
	slog.SetDefault(Log)
	return flush
}

// New returns a logger writing to w in the format Init uses for stdout.
func New(w io.Writer, development bool) *slog.Logger {
	return slog.New(stdoutHandler(w, development))
}

// Development: text at debug level. Otherwise JSON at info level.
func stdoutHandler(w io.Writer, development bool) slog.Handler {
	if development {
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
}

func fanout(handlers []slog.Handler) slog.Handler {
	if len(handlers) == 1 {
		return handlers[0]
	}
	return slogmulti.Fanout(handlers...)
}
