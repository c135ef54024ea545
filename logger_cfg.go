package migrant

import (
	"github.com/forumops/migrant/internal/logger"
	"go.uber.org/zap"
)

func UseColorLogger(p logger.Printer, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewColorLogger(p, printSql, printDebug)
		return nil
	}
}

func UseLogger(p logger.Printer, printSql, printDebug bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewBWLogger(p, printSql, printDebug)
		return nil
	}
}

// UseZapLogger logs structured, debug output follows the level of l
func UseZapLogger(l *zap.Logger, printSql bool) OptionFunc {
	return func(m *Migrator) error {
		m.lg = logger.NewZapLogger(l, printSql)
		return nil
	}
}
