package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

// queryLogger reports slow statements and driver errors through the service
// logger, so they carry the request's tenant and line fields. Record-not-found
// is routine for alias and sku lookups and is never logged.
type queryLogger struct {
	logg          *logger.Logger
	slowThreshold time.Duration
}

var _ gormlogger.Interface = (*queryLogger)(nil)

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slowThreshold: slow}
}

func (q *queryLogger) LogMode(gormlogger.LogLevel) gormlogger.Interface { return q }

func (q *queryLogger) Info(context.Context, string, ...any) {}

func (q *queryLogger) Warn(ctx context.Context, msg string, _ ...any) {
	q.logg.Warn(ctx, "gorm: "+msg)
}

func (q *queryLogger) Error(ctx context.Context, msg string, _ ...any) {
	q.logg.Error(ctx, "gorm error", errors.New(msg))
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && !errors.Is(err, context.Canceled):
		sql, rows := fc()
		q.logg.Error(q.logg.WithFields(ctx, map[string]any{
			"sql":         sql,
			"rows":        rows,
			"duration_ms": elapsed.Milliseconds(),
		}), "query failed", err)
	case q.slowThreshold > 0 && elapsed > q.slowThreshold:
		sql, rows := fc()
		q.logg.Warn(q.logg.WithFields(ctx, map[string]any{
			"sql":         sql,
			"rows":        rows,
			"duration_ms": elapsed.Milliseconds(),
			"threshold":   q.slowThreshold.String(),
		}), "slow query")
	}
}
