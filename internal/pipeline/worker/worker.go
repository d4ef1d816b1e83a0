// Package worker drives persisted jobs through the pipeline, one step at a
// time. Workers never talk to each other; the job store is the only
// coordination point.
package worker

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/truetrack/truetrack/internal/pipeline"
	"github.com/truetrack/truetrack/internal/pipeline/model"
	"github.com/truetrack/truetrack/internal/store"
)

// DefaultPollInterval is how long a worker sleeps when no job is runnable.
const DefaultPollInterval = 500 * time.Millisecond

const maxRetries = 3

// retryBackoff maps retry count to the delay before the next attempt.
var retryBackoff = []time.Duration{time.Second, 5 * time.Second, 30 * time.Second}

// Worker claims one runnable job at a time, executes a single pipeline step
// on it, and persists the outcome.
type Worker struct {
	id           string
	store        store.JobStore
	pipe         *pipeline.Pipeline
	pollInterval time.Duration
	lockTTL      time.Duration
	log          zerolog.Logger
}

// New builds a worker. pollInterval <= 0 falls back to DefaultPollInterval,
// lockTTL <= 0 to store.DefaultLockTTL.
func New(id string, st store.JobStore, pipe *pipeline.Pipeline, pollInterval, lockTTL time.Duration, log zerolog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if lockTTL <= 0 {
		lockTTL = store.DefaultLockTTL
	}
	return &Worker{
		id:           id,
		store:        st,
		pipe:         pipe,
		pollInterval: pollInterval,
		lockTTL:      lockTTL,
		log:          log.With().Str("worker", id).Logger(),
	}
}

// Run polls for runnable jobs until ctx is cancelled. Errors are logged and
// absorbed; a broken store must not kill the worker loop.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Msg("worker started")
	for {
		worked, err := w.RunOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.log.Error().Err(err).Msg("worker iteration failed")
		}

		if worked {
			// Drain eagerly while jobs are available.
			select {
			case <-ctx.Done():
				w.log.Info().Msg("worker stopped")
				return ctx.Err()
			default:
				continue
			}
		}

		select {
		case <-ctx.Done():
			w.log.Info().Msg("worker stopped")
			return ctx.Err()
		case <-time.After(w.pollInterval):
		}
	}
}

// RunOnce claims and steps at most one job. It reports whether any work was
// done, which callers use to decide between draining and sleeping.
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	jobID, err := w.store.NextRunnable(ctx)
	if err != nil {
		return false, err
	}
	if jobID == "" {
		return false, nil
	}

	job, err := w.store.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	now := time.Now().UTC()
	if !store.IsRunnable(job, now, w.lockTTL) {
		// Lost the race with another worker or a control-plane mutation.
		return false, nil
	}

	job.AcquireLock(w.id, now)
	if err := w.store.Update(ctx, job); err != nil {
		return false, err
	}

	return true, w.step(ctx, jobID)
}

// step executes one pipeline step against the locked job.
//
// The committed record is re-read on both sides of the handler: a cancel
// that lands before the step suppresses it, and one that lands during the
// step wins over the step's result.
func (w *Worker) step(ctx context.Context, jobID string) error {
	job, err := w.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}

	if job.CurrentState.IsTerminal() || job.CurrentState.IsPause() {
		job.ReleaseLock()
		return w.store.Update(ctx, job)
	}

	stateBefore := job.CurrentState
	start := time.Now()
	stepErr := w.pipe.Step(ctx, job)
	stepDuration.WithLabelValues(string(stateBefore)).Observe(time.Since(start).Seconds())

	committed, err := w.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if committed != nil && committed.CurrentState == model.StateCancelled {
		// Cancelled mid-step; the step's mutation is discarded.
		w.log.Info().Str("job_id", jobID).Str("state", string(stateBefore)).
			Msg("step result discarded after cancellation")
		w.cleanupWorkspace(committed)
		return nil
	}

	switch {
	case stepErr == nil:
		stepsTotal.WithLabelValues(string(stateBefore), "success").Inc()
		// The retry budget spans the whole job; success does not refund it.
		job.NextRunAt = nil

	case isDomainError(stepErr):
		var pe *model.PipelineError
		errors.As(stepErr, &pe)
		stepsTotal.WithLabelValues(string(stateBefore), "domain_error").Inc()
		w.log.Warn().Str("job_id", jobID).Str("state", string(stateBefore)).
			Str("code", pe.Code).Msg(pe.Message)
		job.Fail(pe.Code, pe.Message)

	default:
		stepsTotal.WithLabelValues(string(stateBefore), "retryable_error").Inc()
		if job.RetryCount >= maxRetries {
			w.log.Error().Str("job_id", jobID).Str("state", string(stateBefore)).
				Err(stepErr).Msg("retry budget exhausted")
			job.Fail(model.CodeMaxRetriesExceeded, stepErr.Error())
		} else {
			delay := retryBackoff[min(job.RetryCount, len(retryBackoff)-1)]
			w.log.Warn().Str("job_id", jobID).Str("state", string(stateBefore)).
				Dur("retry_in", delay).Err(stepErr).Msg("step failed, retrying")
			job.ScheduleRetry(delay)
			retriesTotal.WithLabelValues(string(stateBefore)).Inc()
		}
	}

	if job.CurrentState.IsTerminal() {
		jobsCompletedTotal.WithLabelValues(string(job.CurrentState)).Inc()
		w.cleanupWorkspace(job)
	}

	job.ReleaseLock()
	return w.store.Update(ctx, job)
}

// cleanupWorkspace removes the per-job temp directory and its extraction
// stash once the job can no longer use them.
func (w *Worker) cleanupWorkspace(job *model.Job) {
	if job.TempDir == "" {
		return
	}
	for _, dir := range []string{job.TempDir, job.TempDir + ".in"} {
		if err := os.RemoveAll(dir); err != nil {
			w.log.Warn().Str("job_id", job.JobID).Str("dir", dir).Err(err).
				Msg("workspace cleanup failed")
		}
	}
}

func isDomainError(err error) bool {
	var pe *model.PipelineError
	return errors.As(err, &pe)
}
