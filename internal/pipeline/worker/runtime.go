package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/truetrack/truetrack/internal/pipeline"
	"github.com/truetrack/truetrack/internal/store"
)

const flushScanLimit = 1000

// Runtime owns the worker pool lifecycle.
type Runtime struct {
	Store        store.JobStore
	Pipe         *pipeline.Pipeline
	Workers      int
	PollInterval time.Duration
	LockTTL      time.Duration
	Log          zerolog.Logger
}

// Run flushes stale locks and then blocks running the worker pool until ctx
// is cancelled.
func (r *Runtime) Run(ctx context.Context) error {
	workers := r.Workers
	if workers <= 0 {
		workers = 1
	}

	if err := r.flushStaleLocks(ctx); err != nil {
		return fmt.Errorf("flush stale locks: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		w := New(fmt.Sprintf("worker-%d", i+1), r.Store, r.Pipe, r.PollInterval, r.LockTTL, r.Log)
		g.Go(func() error { return w.Run(ctx) })
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// flushStaleLocks releases every held job lock. Locks do not survive the
// process, so anything still locked at startup belongs to a dead worker.
func (r *Runtime) flushStaleLocks(ctx context.Context) error {
	jobs, err := r.Store.List(ctx, flushScanLimit)
	if err != nil {
		return err
	}

	for _, job := range jobs {
		if job.LockedAt == nil {
			continue
		}
		r.Log.Warn().Str("job_id", job.JobID).Str("locked_by", job.LockedBy).
			Msg("releasing stale lock")
		job.ReleaseLock()
		if err := r.Store.Update(ctx, job); err != nil {
			return err
		}
		staleLocksReleasedTotal.Inc()
	}
	return nil
}
