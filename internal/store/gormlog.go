package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const DefaultSlowQuery = 200 * time.Millisecond

// gormLogger sends gorm's query log to zap: failed statements at error,
// slow ones at warn, the rest at debug when the level is Info.
type gormLogger struct {
	logger *zap.Logger
	level  gormlogger.LogLevel
	slow   time.Duration
}

// NewGormLogger bridges gorm's logger to logger at the Warn level.
func NewGormLogger(logger *zap.Logger, slow time.Duration) gormlogger.Interface {
	if logger == nil {
		logger = zap.NewNop()
	}
	if slow <= 0 {
		slow = DefaultSlowQuery
	}
	return &gormLogger{logger: logger.WithOptions(zap.AddCallerSkip(3)), level: gormlogger.Warn, slow: slow}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Info(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Error(fmt.Sprintf(msg, args...))
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.logger.Error("query failed", zap.Error(err), zap.String("sql", sql),
			zap.Int64("rows", rows), zap.Duration("took", elapsed))
	case elapsed > l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.logger.Warn("slow query", zap.String("sql", sql),
			zap.Int64("rows", rows), zap.Duration("took", elapsed), zap.Duration("threshold", l.slow))
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.logger.Debug("query", zap.String("sql", sql), zap.Int64("rows", rows), zap.Duration("took", elapsed))
	}
}
