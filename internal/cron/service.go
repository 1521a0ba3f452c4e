// Package cron schedules background reconciliation jobs behind a shared lock.
package cron

import (
	"context"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/backoffice-backend/pkg/errors"
	"github.com/angelmondragon/backoffice-backend/pkg/logger"
	"github.com/angelmondragon/backoffice-backend/pkg/metrics"
)

const (
	defaultInterval   = 15 * time.Minute
	defaultRetryDelay = 30 * time.Second
)

// ServiceParams configure the worker loop.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.JobMetrics
	Interval time.Duration
	// Retries is how many extra attempts a job gets after a retryable
	// (dependency) failure within one cycle. Zero disables retries.
	Retries    int
	RetryDelay time.Duration
}

// Service runs the registered jobs on a fixed cadence, one instance at a time
// across replicas.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.JobMetrics
	interval time.Duration

	retries    int
	retryDelay time.Duration
}

// NewService builds a worker loop.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	retryDelay := params.RetryDelay
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &Service{
		logg:       params.Logger,
		registry:   registry,
		lock:       params.Lock,
		metrics:    params.Metrics,
		interval:   interval,
		retries:    max(params.Retries, 0),
		retryDelay: retryDelay,
	}, nil
}

// Run starts the loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "worker context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

// RunOnce runs a single cycle, for one-shot invocations.
func (s *Service) RunOnce(ctx context.Context) error {
	return s.runCycle(ctx)
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another worker holds the lock; skipping this cycle")
		return nil
	}
	defer func() {
		// release even when shutdown canceled ctx, or replicas wait out the TTL
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release worker lock", relErr)
		}
	}()

	s.logg.Info(ctx, "scheduled run starting")
	failed := 0
	for _, job := range s.registry.Jobs() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !s.runJob(ctx, job) {
			failed++
		}
	}
	s.logg.Info(s.logg.WithField(ctx, "failed_jobs", failed), "scheduled run complete")
	return nil
}

func (s *Service) runJob(ctx context.Context, job Job) bool {
	jobCtx := s.logg.WithFields(ctx, map[string]any{"job": job.Name(), "event": "worker.job"})
	for attempt := 0; ; attempt++ {
		attemptCtx := s.logg.WithField(jobCtx, "attempt", attempt+1)
		s.logg.Info(attemptCtx, "job start")
		start := time.Now()
		err := job.Run(attemptCtx)
		duration := time.Since(start)
		s.observeDuration(job.Name(), duration)
		attemptCtx = s.logg.WithField(attemptCtx, "duration_ms", duration.Milliseconds())
		if err == nil {
			s.logg.Info(attemptCtx, "job completed")
			s.recordSuccess(job.Name())
			return true
		}

		s.logg.Error(attemptCtx, "job failed", err)
		s.recordFailure(job.Name())
		if attempt >= s.retries || !pkgerrors.IsRetryable(err) {
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.retryDelay):
		}
	}
}

func (s *Service) observeDuration(job string, duration time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveDuration(job, duration)
}

func (s *Service) recordSuccess(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncSuccess(job)
}

func (s *Service) recordFailure(job string) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncFailure(job)
}
