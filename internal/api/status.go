package api

import (
	"strings"
	"time"

	"github.com/truetrack/truetrack/internal/pipeline/model"
)

// StatusResponse is the client-facing projection of a job. It collapses the
// fourteen pipeline states into five coarse statuses and only exposes the
// payload relevant to the current phase.
type StatusResponse struct {
	JobID  string `json:"job_id"`
	State  string `json:"state"`
	Status string `json:"status"`

	CanResume bool `json:"can_resume"`

	InputRequired *InputRequired `json:"input_required,omitempty"`
	Result        *model.Result  `json:"result,omitempty"`
	Error         *ErrorBody     `json:"error,omitempty"`
	FinalMetadata model.Metadata `json:"final_metadata,omitempty"`
}

// InputRequired describes what a waiting job needs from the user.
type InputRequired struct {
	Type    string `json:"type"`
	Choices any    `json:"choices"`
}

// ErrorBody is the terminal-failure detail.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JobSummary is the list-endpoint row.
type JobSummary struct {
	JobID     string    `json:"job_id"`
	Status    string    `json:"status"`
	State     string    `json:"state"`
	Title     string    `json:"title,omitempty"`
	Artist    string    `json:"artist,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	CanResume bool      `json:"can_resume"`
}

func buildStatus(job *model.Job) StatusResponse {
	status := "running"
	switch {
	case job.CurrentState.IsPause():
		status = "waiting"
	case job.CurrentState == model.StateFinalized:
		status = "success"
	case job.CurrentState == model.StateFailed:
		status = "error"
	case job.CurrentState == model.StateCancelled:
		status = "cancelled"
	}

	resp := StatusResponse{
		JobID:     job.JobID,
		State:     string(job.CurrentState),
		Status:    status,
		CanResume: job.CanResume(),
	}

	switch status {
	case "waiting":
		var choices any
		if len(job.MetadataCandidates) > 0 {
			choices = job.MetadataCandidates
		} else {
			choices = job.SourceCandidates
		}
		resp.InputRequired = &InputRequired{
			Type:    strings.ToLower(string(job.CurrentState)),
			Choices: choices,
		}
	case "success":
		result := job.Result
		resp.Result = &result
	case "error":
		resp.Error = &ErrorBody{Code: job.ErrorCode, Message: job.ErrorMessage}
	}

	if job.FinalMetadata != nil {
		resp.FinalMetadata = job.FinalMetadata
	}
	return resp
}

func buildSummary(job *model.Job) JobSummary {
	title := ""
	artist := ""
	if job.FinalMetadata != nil {
		title = job.FinalMetadata.String("trackName")
		artist = job.FinalMetadata.String("artistName")
	} else if job.Result.Title != "" || job.Result.Artist != "" {
		title = job.Result.Title
		artist = job.Result.Artist
	}

	status := strings.ToLower(string(job.CurrentState))
	if job.CurrentState == model.StateFinalized {
		status = "success"
	}

	return JobSummary{
		JobID:     job.JobID,
		Status:    status,
		State:     string(job.CurrentState),
		Title:     title,
		Artist:    artist,
		CreatedAt: job.CreatedAt,
		CanResume: job.CanResume(),
	}
}
