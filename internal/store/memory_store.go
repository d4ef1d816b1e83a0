package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/truetrack/truetrack/internal/pipeline/model"
)

// MemoryStore is an in-memory JobStore intended for tests and local
// iteration. Not durable; jobs are deep-copied on the way in and out so no
// caller ever aliases stored state.
type MemoryStore struct {
	// LockTTL overrides DefaultLockTTL for runnability checks when > 0.
	LockTTL time.Duration

	mu sync.RWMutex

	jobs map[string]memJob
	idem map[string]string // key -> job_id
	kv   map[string]string
}

type memJob struct {
	data      []byte
	updatedAt time.Time
	createdAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		jobs: make(map[string]memJob),
		idem: make(map[string]string),
		kv:   make(map[string]string),
	}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Create(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.jobs[job.JobID]; exists {
		return ErrAlreadyExists
	}
	m.jobs[job.JobID] = memJob{data: data, updatedAt: time.Now().UTC(), createdAt: job.CreatedAt}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	m.mu.RLock()
	entry, ok := m.jobs[jobID]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return decodeJob(entry.data)
}

func (m *MemoryStore) Update(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	entry, ok := m.jobs[job.JobID]
	if !ok {
		return ErrNotFound
	}
	entry.data = data
	entry.updatedAt = time.Now().UTC()
	m.jobs[job.JobID] = entry
	return nil
}

func (m *MemoryStore) List(ctx context.Context, limit int) ([]*model.Job, error) {
	m.mu.RLock()
	entries := make([]memJob, 0, len(m.jobs))
	for _, e := range m.jobs {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, k int) bool {
		return entries[i].createdAt.After(entries[k].createdAt)
	})

	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	jobs := make([]*model.Job, 0, len(entries))
	for _, e := range entries {
		job, err := decodeJob(e.data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (m *MemoryStore) NextRunnable(ctx context.Context) (string, error) {
	m.mu.RLock()
	type pair struct {
		id        string
		data      []byte
		updatedAt time.Time
	}
	entries := make([]pair, 0, len(m.jobs))
	for id, e := range m.jobs {
		entries = append(entries, pair{id: id, data: e.data, updatedAt: e.updatedAt})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, k int) bool {
		return entries[i].updatedAt.Before(entries[k].updatedAt)
	})

	now := time.Now().UTC()
	for _, e := range entries {
		job, err := decodeJob(e.data)
		if err != nil {
			return "", err
		}
		if IsRunnable(job, now, m.LockTTL) {
			return e.id, nil
		}
	}
	return "", nil
}

func (m *MemoryStore) GetJobByIdempotencyKey(ctx context.Context, key string) (*model.Job, error) {
	m.mu.RLock()
	jobID, ok := m.idem[key]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	return m.Get(ctx, jobID)
}

func (m *MemoryStore) BindIdempotencyKey(ctx context.Context, key, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.idem[key]; !exists {
		m.idem[key] = jobID
	}
	return nil
}

func (m *MemoryStore) GetSetting(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.kv[key], nil
}

func (m *MemoryStore) SetSetting(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

func decodeJob(data []byte) (*model.Job, error) {
	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}
