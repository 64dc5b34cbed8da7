// Package xlog carries a structured logger through a context.Context, the
// way the registry server threads a per-request logger through its
// handlers, adapted here to thread a per-bundle/per-record logger through
// the worker pool instead of a per-HTTP-request one.
package xlog

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

var (
	defaultLogger   = logrus.NewEntry(logrus.StandardLogger())
	defaultLoggerMu sync.RWMutex
)

// Logger is the leveled-logging interface carried through a context.
type Logger interface {
	Debug(args ...any)
	Debugf(format string, args ...any)
	Info(args ...any)
	Infof(format string, args ...any)
	Warn(args ...any)
	Warnf(format string, args ...any)
	Error(args ...any)
	Errorf(format string, args ...any)
	WithError(err error) *logrus.Entry
	WithField(key string, value any) *logrus.Entry
}

type loggerKey struct{}

// WithLogger attaches logger to ctx.
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// WithFields returns a context whose logger has the given fields merged in,
// layered on whatever logger ctx already carries (or the package default).
func WithFields(ctx context.Context, fields map[string]any) context.Context {
	return WithLogger(ctx, fromContext(ctx).WithFields(fields))
}

// From returns the logger carried by ctx, or the package default if none
// was attached.
func From(ctx context.Context) Logger {
	return fromContext(ctx)
}

func fromContext(ctx context.Context) *logrus.Entry {
	if v := ctx.Value(loggerKey{}); v != nil {
		if e, ok := v.(*logrus.Entry); ok {
			return e
		}
	}
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefault replaces the package default logger, used once at startup
// after the configured level/formatter/fields are applied.
func SetDefault(logger *logrus.Entry) {
	defaultLoggerMu.Lock()
	defer defaultLoggerMu.Unlock()
	defaultLogger = logger
}
