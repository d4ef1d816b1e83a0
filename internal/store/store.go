// Package store is the system-of-record for jobs.
//
// Design intent:
//   - HTTP ingress creates and mutates jobs only through the store.
//   - The worker owns a job while it holds the lock; everything else observes
//     committed state.
//   - Jobs are serialized as JSON documents; states travel by name.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/truetrack/truetrack/internal/pipeline/model"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrAlreadyExists = errors.New("job already exists")
)

// DefaultLockTTL bounds how long a crashed worker can stall a job. A lock
// older than this is treated as released.
const DefaultLockTTL = 60 * time.Second

// JobStore is durable job persistence plus the idempotency-key and
// app-settings tables.
type JobStore interface {
	// Create inserts a new job; ErrAlreadyExists if the ID is taken.
	Create(ctx context.Context, job *model.Job) error
	// Get returns the job, or (nil, nil) when absent.
	Get(ctx context.Context, jobID string) (*model.Job, error)
	// Update persists a mutated job; ErrNotFound if absent.
	Update(ctx context.Context, job *model.Job) error
	// List returns up to limit jobs, newest created first.
	List(ctx context.Context, limit int) ([]*model.Job, error)
	// NextRunnable returns the job ID with the oldest update eligible for a
	// worker, or "" when nothing is runnable.
	NextRunnable(ctx context.Context) (string, error)

	// GetJobByIdempotencyKey returns the job bound to key, or (nil, nil).
	GetJobByIdempotencyKey(ctx context.Context, key string) (*model.Job, error)
	// BindIdempotencyKey binds key to a job; insert-if-absent, the first
	// binding wins.
	BindIdempotencyKey(ctx context.Context, key, jobID string) error

	// GetSetting returns the persisted value for key, or "" when absent.
	GetSetting(ctx context.Context, key string) (string, error)
	// SetSetting upserts a settings value.
	SetSetting(ctx context.Context, key, value string) error

	Close() error
}

// IsRunnable reports whether a worker may pick up the job at now.
// lockTTL <= 0 falls back to DefaultLockTTL.
func IsRunnable(j *model.Job, now time.Time, lockTTL time.Duration) bool {
	if lockTTL <= 0 {
		lockTTL = DefaultLockTTL
	}
	if j.CurrentState.IsTerminal() || j.CurrentState.IsPause() {
		return false
	}
	if j.NextRunAt != nil && j.NextRunAt.After(now) {
		return false
	}
	if j.IsLocked(now, lockTTL) {
		return false
	}
	return true
}
