package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/truetrack/truetrack/internal/pipeline"
	"github.com/truetrack/truetrack/internal/pipeline/model"
)

const listLimit = 50

// CreateJobRequest is the POST /jobs body.
type CreateJobRequest struct {
	Query   string         `json:"query" validate:"required"`
	Options OptionsPayload `json:"options"`
}

// OptionsPayload mirrors model.Options on the wire.
type OptionsPayload struct {
	Ask          bool `json:"ask"`
	Verbose      bool `json:"verbose"`
	DryRun       bool `json:"dry_run"`
	ForceArchive bool `json:"force_archive"`
}

// JobInputRequest is the POST /jobs/{id}/input body.
type JobInputRequest struct {
	Choice int `json:"choice" validate:"gte=0"`
}

// SetLibraryPathRequest is the PUT /settings/music-library-path body.
type SetLibraryPathRequest struct {
	Path string `json:"path" validate:"required"`
}

// SettingsResponse is the GET /settings body.
type SettingsResponse struct {
	MusicLibraryRoot string `json:"music_library_root"`
	Source           string `json:"source"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeBadRequest(w, "query is required")
		return
	}

	ctx := r.Context()

	// The first creation with a key wins; replays get its job back.
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey != "" {
		existing, err := s.store.GetJobByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			writeInternalError(w)
			return
		}
		if existing != nil {
			writeJSON(w, http.StatusOK, buildStatus(existing))
			return
		}
	}

	job := model.NewJob(req.Query, model.Options{
		Ask:          req.Options.Ask,
		Verbose:      req.Options.Verbose,
		DryRun:       req.Options.DryRun,
		ForceArchive: req.Options.ForceArchive,
	})
	job.TransitionTo(model.StateResolvingIdentity)

	if err := s.store.Create(ctx, job); err != nil {
		writeInternalError(w)
		return
	}
	if idempotencyKey != "" {
		if err := s.store.BindIdempotencyKey(ctx, idempotencyKey, job.JobID); err != nil {
			writeInternalError(w)
			return
		}
	}

	s.log.Info().Str("job_id", job.JobID).Str("query", req.Query).Msg("job created")
	writeJSON(w, http.StatusCreated, buildStatus(job))
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, buildStatus(job))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.store.List(r.Context(), listLimit)
	if err != nil {
		writeInternalError(w)
		return
	}

	summaries := make([]JobSummary, 0, len(jobs))
	for _, job := range jobs {
		summaries = append(summaries, buildSummary(job))
	}
	writeJSON(w, http.StatusOK, summaries)
}

func (s *Server) handleProvideInput(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	var req JobInputRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeBadRequest(w, "choice must be >= 0")
		return
	}

	if !job.CurrentState.IsPause() {
		writeBadRequest(w, "job is not waiting for user input")
		return
	}

	var err error
	switch job.CurrentState {
	case model.StateUserIntentSelection:
		err = pipeline.SelectIntent(job, req.Choice)
	case model.StateUserMetadataSelection:
		err = pipeline.SelectMetadata(job, req.Choice)
	}
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	// The worker picks the job up from here; input never runs a step.
	if err := s.store.Update(r.Context(), job); err != nil {
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, buildStatus(job))
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	if job.CurrentState.IsTerminal() {
		writeJSON(w, http.StatusOK, buildStatus(job))
		return
	}

	job.Cancel("cancelled by user")
	if err := s.store.Update(r.Context(), job); err != nil {
		writeInternalError(w)
		return
	}

	s.log.Info().Str("job_id", job.JobID).Str("resume_from", string(job.ResumeFrom)).
		Msg("job cancelled")
	writeJSON(w, http.StatusOK, buildStatus(job))
}

func (s *Server) handleResumeJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.loadJob(w, r)
	if !ok {
		return
	}

	if job.CurrentState != model.StateCancelled && !job.CurrentState.IsPause() {
		writeBadRequest(w, "job cannot be resumed from this state")
		return
	}
	if job.ResumeFrom == "" {
		writeBadRequest(w, "no resume point recorded")
		return
	}

	job.Resume()
	if err := s.store.Update(r.Context(), job); err != nil {
		writeInternalError(w)
		return
	}

	s.log.Info().Str("job_id", job.JobID).Str("state", string(job.CurrentState)).
		Msg("job resumed")
	writeJSON(w, http.StatusOK, buildStatus(job))
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	root, source, err := s.settings.MusicLibraryRoot(r.Context())
	if err != nil {
		writeInternalError(w)
		return
	}
	writeJSON(w, http.StatusOK, SettingsResponse{
		MusicLibraryRoot: root,
		Source:           string(source),
	})
}

func (s *Server) handleSetMusicLibraryPath(w http.ResponseWriter, r *http.Request) {
	var req SetLibraryPathRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		writeBadRequest(w, "path is required")
		return
	}

	if err := s.settings.SetMusicLibraryRoot(r.Context(), req.Path); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	s.log.Info().Str("path", req.Path).Msg("music library root updated")
	writeJSON(w, http.StatusOK, SettingsResponse{
		MusicLibraryRoot: req.Path,
		Source:           "db",
	})
}

// loadJob fetches the {jobID} route param's job, writing the 404 itself.
func (s *Server) loadJob(w http.ResponseWriter, r *http.Request) (*model.Job, bool) {
	jobID := chi.URLParam(r, "jobID")
	job, err := s.store.Get(r.Context(), jobID)
	if err != nil {
		writeInternalError(w)
		return nil, false
	}
	if job == nil {
		writeNotFound(w)
		return nil, false
	}
	return job, true
}
