package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/truetrack/truetrack/internal/pipeline/model"
	"github.com/truetrack/truetrack/internal/settings"
	"github.com/truetrack/truetrack/internal/store"
)

func testServer(t *testing.T) (http.Handler, store.JobStore) {
	t.Helper()
	st := store.NewMemoryStore()
	resolver := &settings.Resolver{KV: st, Env: t.TempDir()}
	return New(st, resolver, nil).Router(), st
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) StatusResponse {
	t.Helper()
	var resp StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestCreateJob(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/jobs", map[string]any{
		"query":   "radiohead - creep",
		"options": map[string]any{"dry_run": true},
	}, nil)

	require.Equal(t, http.StatusCreated, rec.Code)
	resp := decodeStatus(t, rec)
	assert.NotEmpty(t, resp.JobID)
	assert.Equal(t, "RESOLVING_IDENTITY", resp.State)
	assert.Equal(t, "running", resp.Status)
	assert.False(t, resp.CanResume)
}

func TestCreateJob_MissingQuery(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodPost, "/jobs", map[string]any{"options": map[string]any{}}, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateJob_IdempotencyKeyReturnsOriginal(t *testing.T) {
	h, _ := testServer(t)
	header := map[string]string{"Idempotency-Key": "abc"}

	first := doJSON(t, h, http.MethodPost, "/jobs", map[string]any{"query": "first query"}, header)
	require.Equal(t, http.StatusCreated, first.Code)
	firstResp := decodeStatus(t, first)

	second := doJSON(t, h, http.MethodPost, "/jobs", map[string]any{"query": "different query"}, header)
	require.Equal(t, http.StatusOK, second.Code)
	secondResp := decodeStatus(t, second)

	assert.Equal(t, firstResp.JobID, secondResp.JobID)
}

func TestGetJob_NotFound(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodGet, "/jobs/nope", nil, nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetJob_WaitingExposesChoices(t *testing.T) {
	h, st := testServer(t)
	job := model.NewJob("radiohead - creep", model.Options{})
	job.CurrentState = model.StateUserIntentSelection
	job.SourceCandidates = []model.SourceCandidate{
		{Title: "Creep (Official Audio)", VideoID: "vid-1", Artists: []string{"Radiohead"}},
		{Title: "Creep (Live)", VideoID: "vid-2", Artists: []string{"Radiohead"}},
	}
	require.NoError(t, st.Create(context.Background(), job))

	rec := doJSON(t, h, http.MethodGet, "/jobs/"+job.JobID, nil, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeStatus(t, rec)
	assert.Equal(t, "waiting", resp.Status)
	require.NotNil(t, resp.InputRequired)
	assert.Equal(t, "user_intent_selection", resp.InputRequired.Type)
}

func TestGetJob_FailedExposesError(t *testing.T) {
	h, st := testServer(t)
	job := model.NewJob("unknown song xyz", model.Options{})
	job.TransitionTo(model.StateResolvingIdentity)
	job.Fail(model.CodeNoResults, "no identity results for query")
	require.NoError(t, st.Create(context.Background(), job))

	rec := doJSON(t, h, http.MethodGet, "/jobs/"+job.JobID, nil, nil)

	resp := decodeStatus(t, rec)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, model.CodeNoResults, resp.Error.Code)
}

func TestProvideInput_IntentSelection(t *testing.T) {
	h, st := testServer(t)
	job := model.NewJob("radiohead - creep", model.Options{Ask: true})
	job.CurrentState = model.StateUserIntentSelection
	job.SourceCandidates = []model.SourceCandidate{
		{Title: "Creep (Official Audio)", VideoID: "vid-1", Artists: []string{"Radiohead"}, Duration: 238},
		{Title: "Creep (Live)", VideoID: "vid-2", Artists: []string{"Radiohead"}, Duration: 260},
	}
	require.NoError(t, st.Create(context.Background(), job))

	rec := doJSON(t, h, http.MethodPost, "/jobs/"+job.JobID+"/input", map[string]any{"choice": 1}, nil)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeStatus(t, rec)
	assert.Equal(t, "SEARCHING", resp.State)
	assert.Equal(t, "running", resp.Status)

	got, err := st.Get(context.Background(), job.JobID)
	require.NoError(t, err)
	require.NotNil(t, got.IdentityHint)
	assert.Equal(t, "Creep (Live)", got.IdentityHint.Title)
	assert.Equal(t, 100, got.IdentityHint.Confidence)
}

func TestProvideInput_Rejections(t *testing.T) {
	h, st := testServer(t)

	running := model.NewJob("q", model.Options{})
	running.CurrentState = model.StateDownloading
	require.NoError(t, st.Create(context.Background(), running))

	rec := doJSON(t, h, http.MethodPost, "/jobs/"+running.JobID+"/input", map[string]any{"choice": 0}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	waiting := model.NewJob("q", model.Options{})
	waiting.CurrentState = model.StateUserIntentSelection
	waiting.SourceCandidates = []model.SourceCandidate{{Title: "only one"}}
	require.NoError(t, st.Create(context.Background(), waiting))

	rec = doJSON(t, h, http.MethodPost, "/jobs/"+waiting.JobID+"/input", map[string]any{"choice": 5}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/jobs/"+waiting.JobID+"/input", map[string]any{"choice": -1}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCancelAndResume(t *testing.T) {
	h, st := testServer(t)
	job := model.NewJob("q", model.Options{})
	job.CurrentState = model.StateExtracting
	require.NoError(t, st.Create(context.Background(), job))

	rec := doJSON(t, h, http.MethodPost, "/jobs/"+job.JobID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeStatus(t, rec)
	assert.Equal(t, "cancelled", resp.Status)
	assert.True(t, resp.CanResume)

	// Cancel is idempotent on terminal jobs.
	rec = doJSON(t, h, http.MethodPost, "/jobs/"+job.JobID+"/cancel", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decodeStatus(t, rec).Status)

	rec = doJSON(t, h, http.MethodPost, "/jobs/"+job.JobID+"/resume", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decodeStatus(t, rec)
	assert.Equal(t, "EXTRACTING", resp.State)
	assert.Equal(t, "running", resp.Status)
	assert.False(t, resp.CanResume)
}

func TestResume_Rejections(t *testing.T) {
	h, st := testServer(t)

	running := model.NewJob("q", model.Options{})
	running.CurrentState = model.StateDownloading
	require.NoError(t, st.Create(context.Background(), running))

	rec := doJSON(t, h, http.MethodPost, "/jobs/"+running.JobID+"/resume", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	finalized := model.NewJob("q", model.Options{})
	finalized.CurrentState = model.StateFinalized
	finalized.Cancel("late")
	require.NoError(t, st.Create(context.Background(), finalized))

	rec = doJSON(t, h, http.MethodPost, "/jobs/"+finalized.JobID+"/resume", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListJobs(t *testing.T) {
	h, st := testServer(t)

	done := model.NewJob("q1", model.Options{})
	done.CurrentState = model.StateFinalized
	done.Result = model.Result{Success: true, Title: "Creep", Artist: "Radiohead"}
	require.NoError(t, st.Create(context.Background(), done))

	active := model.NewJob("q2", model.Options{})
	active.CurrentState = model.StateDownloading
	require.NoError(t, st.Create(context.Background(), active))

	rec := doJSON(t, h, http.MethodGet, "/jobs", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var summaries []JobSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summaries))
	require.Len(t, summaries, 2)

	byID := map[string]JobSummary{}
	for _, s := range summaries {
		byID[s.JobID] = s
	}
	assert.Equal(t, "success", byID[done.JobID].Status)
	assert.Equal(t, "Creep", byID[done.JobID].Title)
	assert.Equal(t, "downloading", byID[active.JobID].Status)
}

func TestSettingsEndpoints(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodGet, "/settings", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got SettingsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "env", got.Source)

	newRoot := filepath.Join(t.TempDir(), "library")
	rec = doJSON(t, h, http.MethodPut, "/settings/music-library-path", map[string]any{"path": newRoot}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/settings", nil, nil)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, newRoot, got.MusicLibraryRoot)
	assert.Equal(t, "db", got.Source)

	rec = doJSON(t, h, http.MethodPut, "/settings/music-library-path", map[string]any{"path": "relative/path"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	h, _ := testServer(t)

	rec := doJSON(t, h, http.MethodGet, "/healthz", nil, nil)

	assert.Equal(t, http.StatusOK, rec.Code)
}
