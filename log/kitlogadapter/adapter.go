// Package kitlogadapter provides a logger that writes to a github.com/go-kit/log.Logger.
package kitlogadapter

import (
	"context"

	"github.com/foundationdb/fdbsql"
	"github.com/go-kit/log"
	kitlevel "github.com/go-kit/log/level"
)

type Logger struct {
	l log.Logger
}

func NewLogger(l log.Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level fdbsql.LogLevel, msg string, data map[string]interface{}) {
	logger := l.l
	for k, v := range data {
		logger = log.With(logger, k, v)
	}

	switch level {
	case fdbsql.LogLevelTrace:
		logger.Log("FDBSQL_LOG_LEVEL", level, "msg", msg)
	case fdbsql.LogLevelDebug:
		kitlevel.Debug(logger).Log("msg", msg)
	case fdbsql.LogLevelInfo:
		kitlevel.Info(logger).Log("msg", msg)
	case fdbsql.LogLevelWarn:
		kitlevel.Warn(logger).Log("msg", msg)
	case fdbsql.LogLevelError:
		kitlevel.Error(logger).Log("msg", msg)
	default:
		logger.Log("INVALID_FDBSQL_LOG_LEVEL", level, "error", msg)
	}
}
