package logging

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
)

// RateLimited writes at most one entry per interval and drops the rest.
// It is meant for warnings on hot paths that would otherwise flood the log.
type RateLimited struct {
	log   *zap.Logger
	level zapcore.Level
	s     rate.Sometimes
}

func NewRateLimited(log *zap.Logger, level zapcore.Level, interval time.Duration) *RateLimited {
	return &RateLimited{
		log:   log,
		level: level,
		s:     rate.Sometimes{First: 1, Interval: interval},
	}
}

func (l *RateLimited) Log(msg string, fields ...zap.Field) {
	if !l.log.Core().Enabled(l.level) {
		return
	}
	l.s.Do(func() {
		l.log.Log(l.level, msg, fields...)
	})
}
