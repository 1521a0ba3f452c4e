package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/backoffice-backend/internal/reconcile"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
)

const (
	defaultSweepLimit  = 500
	defaultSweepMinAge = time.Hour
)

type sweeper interface {
	SweepPending(ctx context.Context, req reconcile.SweepRequest) (*reconcile.Summary, error)
}

// UnmappedSweepJobParams configure the unmapped-line sweep.
type UnmappedSweepJobParams struct {
	Logger     *logger.Logger
	Reconciler sweeper
	Limit      int
	MinAge     time.Duration
	BatchDelay time.Duration
}

// NewUnmappedSweepJob builds the job that re-resolves unmapped lines which
// have not been attempted for MinAge. New aliases and catalog items learned
// since the last attempt map them without a human.
func NewUnmappedSweepJob(params UnmappedSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = defaultSweepLimit
	}
	minAge := params.MinAge
	if minAge <= 0 {
		minAge = defaultSweepMinAge
	}
	return &unmappedSweepJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
		limit:      limit,
		minAge:     minAge,
		batchDelay: params.BatchDelay,
		now:        time.Now,
	}, nil
}

type unmappedSweepJob struct {
	logg       *logger.Logger
	reconciler sweeper
	limit      int
	minAge     time.Duration
	batchDelay time.Duration
	now        func() time.Time
}

func (j *unmappedSweepJob) Name() string { return "unmapped-line-sweep" }

func (j *unmappedSweepJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.minAge)
	delay := j.batchDelay
	summary, err := j.reconciler.SweepPending(ctx, reconcile.SweepRequest{
		ResolvedBefore: cutoff,
		Limit:          j.limit,
		Options:        reconcile.BulkOptions{BatchDelay: &delay},
	})
	if summary != nil {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"cutoff":         cutoff,
			"limit":          j.limit,
			"total":          summary.Total,
			"auto_mapped":    summary.AutoMapped,
			"alias_hits":     summary.AliasHits,
			"suggested":      summary.Suggested,
			"unmatched":      summary.Unmatched,
			"needs_review":   summary.NeedsReview,
			"failed_batches": summary.FailedBatches,
			"cancelled":      summary.Cancelled,
		})
		j.logg.Info(logCtx, "unmapped line sweep complete")
	}
	if err != nil {
		return fmt.Errorf("unmapped line sweep: %w", err)
	}
	return nil
}
