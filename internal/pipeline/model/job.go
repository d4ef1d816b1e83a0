package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxStateHistory bounds the per-job transition log; oldest records are
// evicted first.
const MaxStateHistory = 50

// StateRecord is one entry in a job's transition log.
type StateRecord struct {
	State     PipelineState `json:"state"`
	EnteredAt time.Time     `json:"entered_at"`
	ExitedAt  *time.Time    `json:"exited_at,omitempty"`
	Status    string        `json:"status,omitempty"` // "success" | "failed"
}

// Options are the user-supplied job flags.
type Options struct {
	Ask          bool `json:"ask"`
	ForceArchive bool `json:"force_archive"`
	DryRun       bool `json:"dry_run"`
	Verbose      bool `json:"verbose"`
}

// IdentityHint is the resolved intent: what song the user meant.
type IdentityHint struct {
	Title      string   `json:"title"`
	Artists    []string `json:"artists"`
	Album      string   `json:"album,omitempty"`
	DurationMS int64    `json:"duration_ms,omitempty"`
	VideoID    string   `json:"video_id"`
	Uploader   string   `json:"uploader,omitempty"`
	Confidence int      `json:"confidence"`
}

// SourceCandidate is one ranked result from the identity provider.
type SourceCandidate struct {
	Title        string   `json:"title"`
	Artists      []string `json:"artists"`
	Album        string   `json:"album,omitempty"`
	VideoID      string   `json:"video_id"`
	Duration     int64    `json:"duration"` // seconds
	Uploader     string   `json:"uploader,omitempty"`
	Score        int      `json:"score,omitempty"`
	ScoreReasons []string `json:"score_reasons,omitempty"`
}

// SelectedSource is the concrete download target built from the identity hint.
type SelectedSource struct {
	URL      string `json:"url"`
	Title    string `json:"title"`
	Duration int64  `json:"duration"` // seconds
	Uploader string `json:"uploader,omitempty"`
}

// Metadata is an opaque canonical-metadata record (iTunes result shape).
// Scoring annotations live under underscore keys.
type Metadata map[string]any

// Result is the terminal outcome of a job.
type Result struct {
	Success  bool   `json:"success"`
	Archived bool   `json:"archived"`
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Source   string `json:"source,omitempty"`
	Path     string `json:"path,omitempty"`
	Reason   string `json:"reason,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Job is the unit of work and its full persisted state. It is the only
// shared object in the system and must round-trip through the store between
// steps; nothing may cache a Job reference across steps.
type Job struct {
	JobID           string  `json:"job_id"`
	RawQuery        string  `json:"raw_query"`
	NormalizedQuery string  `json:"normalized_query"`
	Options         Options `json:"options"`

	CurrentState PipelineState `json:"current_state"`
	StateHistory []StateRecord `json:"state_history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	FailedState  PipelineState `json:"failed_state,omitempty"`
	ErrorCode    string        `json:"error_code,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	RetryCount   int           `json:"retry_count"`
	NextRunAt    *time.Time    `json:"next_run_at,omitempty"`

	ResumeFrom PipelineState `json:"resume_from,omitempty"`

	LockedAt *time.Time `json:"locked_at,omitempty"`
	LockedBy string     `json:"locked_by,omitempty"`

	IdentityHint     *IdentityHint     `json:"identity_hint,omitempty"`
	SourceCandidates []SourceCandidate `json:"source_candidates,omitempty"`

	SelectedSource *SelectedSource `json:"selected_source,omitempty"`
	TempDir        string          `json:"temp_dir,omitempty"`
	DownloadedFile string          `json:"downloaded_file,omitempty"`
	ExtractedFile  string          `json:"extracted_file,omitempty"`

	MetadataCandidates []Metadata `json:"metadata_candidates,omitempty"`
	FinalMetadata      Metadata   `json:"final_metadata,omitempty"`
	MetadataConfidence int        `json:"metadata_confidence,omitempty"`

	Result Result `json:"result"`

	LastMessage string `json:"last_message,omitempty"`
}

// NewJob creates a job in INIT for the given raw query.
func NewJob(rawQuery string, opts Options) *Job {
	now := time.Now().UTC()
	return &Job{
		JobID:           uuid.New().String(),
		RawQuery:        rawQuery,
		NormalizedQuery: strings.ToLower(rawQuery),
		Options:         opts,
		CurrentState:    StateInit,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// Emit records a single-slot diagnostic message.
func (j *Job) Emit(message string) {
	j.LastMessage = message
}

// TransitionTo closes the current history record as success and enters the
// new state.
func (j *Job) TransitionTo(next PipelineState) {
	now := time.Now().UTC()

	if n := len(j.StateHistory); n > 0 {
		j.StateHistory[n-1].ExitedAt = &now
		j.StateHistory[n-1].Status = "success"
	}

	j.CurrentState = next
	j.StateHistory = append(j.StateHistory, StateRecord{State: next, EnteredAt: now})

	if len(j.StateHistory) > MaxStateHistory {
		j.StateHistory = j.StateHistory[1:]
	}

	j.UpdatedAt = now
}

// Fail marks the job terminally FAILED, recording the state it failed in.
func (j *Job) Fail(code, message string) {
	now := time.Now().UTC()

	j.FailedState = j.CurrentState
	j.ErrorCode = code
	j.ErrorMessage = message
	j.CurrentState = StateFailed

	if n := len(j.StateHistory); n > 0 {
		j.StateHistory[n-1].ExitedAt = &now
		j.StateHistory[n-1].Status = "failed"
	}

	j.Result.Error = message
	j.UpdatedAt = now
}

// Cancel moves the job to CANCELLED, remembering the interrupted state so it
// can be resumed later. Calling it on a terminal job records no resume point.
func (j *Job) Cancel(reason string) {
	if !j.CurrentState.IsTerminal() {
		j.ResumeFrom = j.CurrentState
	}

	j.ReleaseLock()
	j.TransitionTo(StateCancelled)
	j.ErrorCode = CodeCancelled
	j.ErrorMessage = reason
	j.Result.Error = reason
}

// CanResume reports whether the job is cancelled with a recorded resume point.
func (j *Job) CanResume() bool {
	return j.CurrentState == StateCancelled && j.ResumeFrom != ""
}

// Resume restores the pre-cancel state and clears the cancellation markers.
func (j *Job) Resume() {
	j.ErrorCode = ""
	j.ErrorMessage = ""
	j.Result.Error = ""
	j.CurrentState = j.ResumeFrom
	j.ResumeFrom = ""
	j.UpdatedAt = time.Now().UTC()
}

// IsLocked reports whether a lock acquired within ttl is still held.
// A lock exactly ttl old counts as expired.
func (j *Job) IsLocked(now time.Time, ttl time.Duration) bool {
	return j.LockedAt != nil && now.Sub(*j.LockedAt) < ttl
}

// AcquireLock records lock ownership for a worker.
func (j *Job) AcquireLock(workerID string, now time.Time) {
	j.LockedAt = &now
	j.LockedBy = workerID
	j.UpdatedAt = now
}

// ReleaseLock clears lock ownership.
func (j *Job) ReleaseLock() {
	j.LockedAt = nil
	j.LockedBy = ""
}

// ScheduleRetry bumps the retry counter and makes the job runnable again
// after delay.
func (j *Job) ScheduleRetry(delay time.Duration) {
	j.RetryCount++
	at := time.Now().UTC().Add(delay)
	j.NextRunAt = &at
}
