package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// ZapLogger writes the same events as structured entries
type ZapLogger struct {
	log *zap.Logger
	sql bool
}

var _ Logger = (*ZapLogger)(nil)

func NewZapLogger(log *zap.Logger, sql bool) *ZapLogger {
	return &ZapLogger{log: log.With(zap.String("component", "migrant")), sql: sql}
}

func (zl *ZapLogger) Successf(format string, args ...interface{}) {
	zl.log.Info(fmt.Sprintf(format, args...))
}

func (zl *ZapLogger) Debugf(format string, args ...interface{}) {
	zl.log.Debug(fmt.Sprintf(format, args...))
}

func (zl *ZapLogger) Warnf(format string, args ...interface{}) {
	zl.log.Warn(fmt.Sprintf(format, args...))
}

func (zl *ZapLogger) Error(err error) {
	zl.log.Error("migration failure", zap.Error(err))
}

func (zl *ZapLogger) SQL(query string, args ...interface{}) {
	if zl.sql {
		zl.log.Debug("running sql", zap.String("query", query), zap.Any("args", args))
	}
}
