// Package log15adapter provides a logger that writes to a gopkg.in/inconshreveable/log15.v2.Logger
// log.
package log15adapter

import (
	"context"

	"github.com/foundationdb/fdbsql"
	log "gopkg.in/inconshreveable/log15.v2"
)

type Logger struct {
	l log.Logger
}

func NewLogger(l log.Logger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level fdbsql.LogLevel, msg string, data map[string]interface{}) {
	logArgs := make([]interface{}, 0, len(data))
	for k, v := range data {
		logArgs = append(logArgs, k, v)
	}

	switch level {
	case fdbsql.LogLevelTrace:
		l.l.Debug(msg, append(logArgs, "FDBSQL_LOG_LEVEL", level)...)
	case fdbsql.LogLevelDebug:
		l.l.Debug(msg, logArgs...)
	case fdbsql.LogLevelInfo:
		l.l.Info(msg, logArgs...)
	case fdbsql.LogLevelWarn:
		l.l.Warn(msg, logArgs...)
	case fdbsql.LogLevelError:
		l.l.Error(msg, logArgs...)
	default:
		l.l.Error(msg, append(logArgs, "INVALID_FDBSQL_LOG_LEVEL", level)...)
	}
}
