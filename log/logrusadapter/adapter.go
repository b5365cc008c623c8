// Package logrusadapter provides a logger that writes to a github.com/sirupsen/logrus.Logger
// log.
package logrusadapter

import (
	"context"

	"github.com/foundationdb/fdbsql"
	"github.com/sirupsen/logrus"
)

type Logger struct {
	l logrus.FieldLogger
}

func NewLogger(l logrus.FieldLogger) *Logger {
	return &Logger{l: l}
}

func (l *Logger) Log(ctx context.Context, level fdbsql.LogLevel, msg string, data map[string]interface{}) {
	var logger logrus.FieldLogger
	if data != nil {
		logger = l.l.WithFields(data)
	} else {
		logger = l.l
	}

	switch level {
	case fdbsql.LogLevelTrace:
		logger.WithField("FDBSQL_LOG_LEVEL", level).Debug(msg)
	case fdbsql.LogLevelDebug:
		logger.Debug(msg)
	case fdbsql.LogLevelInfo:
		logger.Info(msg)
	case fdbsql.LogLevelWarn:
		logger.Warn(msg)
	case fdbsql.LogLevelError:
		logger.Error(msg)
	default:
		logger.WithField("INVALID_FDBSQL_LOG_LEVEL", level).Error(msg)
	}
}
