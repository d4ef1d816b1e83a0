package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/truetrack/truetrack/internal/persistence/sqlite"
	"github.com/truetrack/truetrack/internal/pipeline/model"
)

const schemaVersion = 1

// orderKeyLayout formats the created_at/updated_at ordering columns. The
// fractional second is fixed width: RFC3339Nano trims trailing zeros, which
// makes lexical order disagree with temporal order.
const orderKeyLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SqliteStore implements JobStore on SQLite. Safe for concurrent use from
// the HTTP server and the worker; WAL mode makes it cross-process capable.
type SqliteStore struct {
	DB *sql.DB

	// LockTTL overrides DefaultLockTTL for runnability checks when > 0.
	LockTTL time.Duration
}

// NewSqliteStore opens (and migrates) the job database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("job store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SqliteStore) migrate() error {
	var currentVersion int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&currentVersion); err != nil {
		return err
	}
	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_jobs_created ON jobs(created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_updated ON jobs(updated_at);

	CREATE TABLE IF NOT EXISTS idempotency_keys (
		key TEXT PRIMARY KEY,
		job_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS app_settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SqliteStore) Create(ctx context.Context, job *model.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("job store: marshal: %w", err)
	}

	_, err = s.DB.ExecContext(ctx,
		`INSERT INTO jobs (job_id, data, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		job.JobID, string(payload),
		job.CreatedAt.UTC().Format(orderKeyLayout),
		time.Now().UTC().Format(orderKeyLayout),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (s *SqliteStore) Get(ctx context.Context, jobID string) (*model.Job, error) {
	var raw string
	err := s.DB.QueryRowContext(ctx,
		`SELECT data FROM jobs WHERE job_id = ?`, jobID,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return unmarshalJob(raw)
}

func (s *SqliteStore) Update(ctx context.Context, job *model.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("job store: marshal: %w", err)
	}

	res, err := s.DB.ExecContext(ctx,
		`UPDATE jobs SET data = ?, updated_at = ? WHERE job_id = ?`,
		string(payload), time.Now().UTC().Format(orderKeyLayout), job.JobID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SqliteStore) List(ctx context.Context, limit int) ([]*model.Job, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT data FROM jobs ORDER BY created_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var jobs []*model.Job
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		job, err := unmarshalJob(raw)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// NextRunnable scans jobs oldest-updated first and returns the first one a
// worker may pick up. Runnability needs the deserialized document (lock TTL,
// pause states), so the filter runs in Go rather than SQL.
func (s *SqliteStore) NextRunnable(ctx context.Context) (string, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT job_id, data FROM jobs ORDER BY updated_at ASC`,
	)
	if err != nil {
		return "", err
	}
	defer func() { _ = rows.Close() }()

	now := time.Now().UTC()
	for rows.Next() {
		var jobID, raw string
		if err := rows.Scan(&jobID, &raw); err != nil {
			return "", err
		}
		job, err := unmarshalJob(raw)
		if err != nil {
			return "", err
		}
		if IsRunnable(job, now, s.LockTTL) {
			return jobID, nil
		}
	}
	return "", rows.Err()
}

func (s *SqliteStore) GetJobByIdempotencyKey(ctx context.Context, key string) (*model.Job, error) {
	var jobID string
	err := s.DB.QueryRowContext(ctx,
		`SELECT job_id FROM idempotency_keys WHERE key = ?`, key,
	).Scan(&jobID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, jobID)
}

func (s *SqliteStore) BindIdempotencyKey(ctx context.Context, key, jobID string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT OR IGNORE INTO idempotency_keys (key, job_id, created_at) VALUES (?, ?, ?)`,
		key, jobID, time.Now().UTC().Format(orderKeyLayout),
	)
	return err
}

func (s *SqliteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.DB.QueryRowContext(ctx,
		`SELECT value FROM app_settings WHERE key = ?`, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SqliteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO app_settings (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	return err
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func unmarshalJob(raw string) (*model.Job, error) {
	var job model.Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("job store: unmarshal: %w", err)
	}
	if _, err := model.ParseState(string(job.CurrentState)); err != nil {
		return nil, fmt.Errorf("job store: %w", err)
	}
	return &job, nil
}
