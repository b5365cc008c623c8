// Package zerologadapter provides a logger that writes to a github.com/rs/zerolog.
package zerologadapter

import (
	"context"

	"github.com/foundationdb/fdbsql"
	"github.com/rs/zerolog"
)

type Logger struct {
	logger     zerolog.Logger
	withFunc   func(context.Context, zerolog.Context) zerolog.Context
	skipModule bool
}

// option options for configuring the logger when creating a new logger.
type option func(logger *Logger)

// WithContextFunc adds possibility to get request scoped values from the
// ctx.Context before logging lines.
func WithContextFunc(withFunc func(context.Context, zerolog.Context) zerolog.Context) option {
	return func(logger *Logger) {
		logger.withFunc = withFunc
	}
}

// WithoutFDBSQLModule disables adding module:fdbsql to the default logger context.
func WithoutFDBSQLModule() option {
	return func(logger *Logger) {
		logger.skipModule = true
	}
}

// NewLogger accepts a zerolog.Logger as input and returns a new custom fdbsql
// logging facade as output.
func NewLogger(logger zerolog.Logger, options ...option) *Logger {
	l := Logger{
		logger: logger,
	}
	for _, opt := range options {
		opt(&l)
	}
	if !l.skipModule {
		l.logger = l.logger.With().Str("module", "fdbsql").Logger()
	}
	return &l
}

func (pl *Logger) Log(ctx context.Context, level fdbsql.LogLevel, msg string, data map[string]interface{}) {
	var zlevel zerolog.Level
	switch level {
	case fdbsql.LogLevelNone:
		zlevel = zerolog.NoLevel
	case fdbsql.LogLevelError:
		zlevel = zerolog.ErrorLevel
	case fdbsql.LogLevelWarn:
		zlevel = zerolog.WarnLevel
	case fdbsql.LogLevelInfo:
		zlevel = zerolog.InfoLevel
	case fdbsql.LogLevelDebug:
		zlevel = zerolog.DebugLevel
	default:
		zlevel = zerolog.DebugLevel
	}

	zctx := pl.logger.With()
	if pl.withFunc != nil {
		zctx = pl.withFunc(ctx, zctx)
	}

	fdbsqlLog := zctx.Fields(data).Logger()
	fdbsqlLog.WithLevel(zlevel).Msg(msg)
}
