package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/truetrack/truetrack/internal/library"
	"github.com/truetrack/truetrack/internal/media"
	"github.com/truetrack/truetrack/internal/pipeline/model"
)

const (
	identityLimit = 5
	// Metadata scores below this pause for user confirmation.
	metadataConfidenceThreshold = 60
	// Confidence assigned when the top candidate is adopted automatically.
	autoSelectConfidence = 80
)

// NewDefault wires the full handler registry against deps.
func NewDefault(deps Deps) *Pipeline {
	h := &handlers{deps: deps}

	p := New()
	p.Register(model.StateInit, h.handleInit)
	p.Register(model.StateResolvingIdentity, h.handleResolvingIdentity)
	p.Register(model.StateSearching, h.handleSearching)
	p.Register(model.StateDownloading, h.handleDownloading)
	p.Register(model.StateExtracting, h.handleExtracting)
	p.Register(model.StateMatchingMetadata, h.handleMatchingMetadata)
	p.Register(model.StateTagging, h.handleTagging)
	p.Register(model.StateStoring, h.handleStoring)
	p.Register(model.StateArchiving, h.handleArchiving)
	return p
}

type handlers struct {
	deps Deps
}

func (h *handlers) handleInit(ctx context.Context, job *model.Job) error {
	job.TransitionTo(model.StateResolvingIdentity)
	return nil
}

// handleResolvingIdentity asks the identity provider what the user meant.
// Ambiguous results (or an explicit ask) pause for user intent selection;
// otherwise the top candidate is adopted.
func (h *handlers) handleResolvingIdentity(ctx context.Context, job *model.Job) error {
	results, err := h.deps.Identity.Search(ctx, job.RawQuery, identityLimit)
	if err != nil {
		return &model.PipelineError{
			Code:     model.CodeYTMusicError,
			Message:  err.Error(),
			Category: model.CategoryTransient,
		}
	}
	if len(results) == 0 {
		return &model.PipelineError{
			Code:     model.CodeNoResults,
			Message:  "no identity results for query",
			Category: model.CategoryContent,
		}
	}

	if len(results) > identityLimit {
		results = results[:identityLimit]
	}

	artistGuess := ""
	if parts := strings.Split(job.RawQuery, "-"); len(parts) > 1 {
		artistGuess = strings.TrimSpace(parts[len(parts)-1])
	}
	for i := range results {
		results[i].Score, results[i].ScoreReasons = ScoreSourceCandidate(results[i], artistGuess)
	}
	job.SourceCandidates = results

	if job.Options.Ask || isAmbiguous(job.NormalizedQuery, results) {
		job.Emit("waiting for intent selection")
		job.TransitionTo(model.StateUserIntentSelection)
		return nil
	}

	job.IdentityHint = hintFromCandidate(results[0], autoSelectConfidence)
	job.Emit(fmt.Sprintf("resolved identity: %s", results[0].Title))
	job.TransitionTo(model.StateSearching)
	return nil
}

// isAmbiguous: more than one candidate, and the query mentions none of the
// top candidate's artists.
func isAmbiguous(normalizedQuery string, candidates []model.SourceCandidate) bool {
	if len(candidates) <= 1 {
		return false
	}
	for _, artist := range candidates[0].Artists {
		if artist != "" && strings.Contains(normalizedQuery, strings.ToLower(artist)) {
			return false
		}
	}
	return true
}

func hintFromCandidate(c model.SourceCandidate, confidence int) *model.IdentityHint {
	uploader := c.Uploader
	if uploader == "" && len(c.Artists) > 0 {
		uploader = c.Artists[0]
	}
	return &model.IdentityHint{
		Title:      c.Title,
		Artists:    c.Artists,
		Album:      c.Album,
		DurationMS: c.Duration * 1000,
		VideoID:    c.VideoID,
		Uploader:   uploader,
		Confidence: confidence,
	}
}

// SelectIntent is the controller-side completion of USER_INTENT_SELECTION:
// it synthesizes the identity hint from the chosen candidate and advances
// the job.
func SelectIntent(job *model.Job, choice int) error {
	if job.CurrentState != model.StateUserIntentSelection {
		return errors.New("job is not waiting for intent selection")
	}
	if choice < 0 || choice >= len(job.SourceCandidates) {
		return errors.New("choice out of range")
	}

	job.IdentityHint = hintFromCandidate(job.SourceCandidates[choice], 100)
	job.TransitionTo(model.StateSearching)
	return nil
}

// SelectMetadata is the controller-side completion of
// USER_METADATA_SELECTION.
func SelectMetadata(job *model.Job, choice int) error {
	if job.CurrentState != model.StateUserMetadataSelection {
		return errors.New("job is not waiting for metadata selection")
	}
	if choice < 0 || choice >= len(job.MetadataCandidates) {
		return errors.New("choice out of range")
	}

	job.FinalMetadata = job.MetadataCandidates[choice]
	job.MetadataConfidence = 100
	job.TransitionTo(model.StateTagging)
	return nil
}

// handleSearching deterministically builds the download target from the
// identity hint.
func (h *handlers) handleSearching(ctx context.Context, job *model.Job) error {
	hint := job.IdentityHint
	if hint == nil {
		return &model.PipelineError{
			Code:     model.CodeNoIdentity,
			Message:  "no identity hint to search with",
			Category: model.CategoryContent,
		}
	}

	job.SelectedSource = &model.SelectedSource{
		URL:      "https://www.youtube.com/watch?v=" + hint.VideoID,
		Title:    hint.Title,
		Duration: hint.DurationMS / 1000,
		Uploader: hint.Uploader,
	}
	job.TransitionTo(model.StateDownloading)
	return nil
}

func (h *handlers) handleDownloading(ctx context.Context, job *model.Job) error {
	if job.Options.DryRun {
		job.Result = model.Result{
			Success: true,
			Source:  "dry-run",
			Path:    "(not written)",
		}
		if hint := job.IdentityHint; hint != nil {
			job.Result.Title = hint.Title
			job.Result.Artist = strings.Join(hint.Artists, ", ")
		}
		job.TransitionTo(model.StateFinalized)
		return nil
	}

	if job.SelectedSource == nil {
		return &model.PipelineError{
			Code:     model.CodeNoIdentity,
			Message:  "no source selected for download",
			Category: model.CategoryContent,
		}
	}

	// Each download starts from an empty workspace.
	tempDir := filepath.Join(h.deps.TempRoot, job.JobID)
	if err := os.RemoveAll(tempDir); err != nil {
		return err
	}
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return err
	}
	job.TempDir = tempDir

	if err := h.deps.Downloader.Download(ctx, job.SelectedSource.URL, tempDir, job.Options.Verbose); err != nil {
		if errors.Is(err, media.ErrToolNotFound) {
			return &model.PipelineError{
				Code:     model.CodeExternalToolNotFound,
				Message:  err.Error(),
				Category: model.CategoryDependency,
				Tool:     "yt-dlp",
			}
		}
		return &model.PipelineError{
			Code:     model.CodeExternalToolError,
			Message:  err.Error(),
			Category: model.CategoryContent,
			Tool:     "yt-dlp",
		}
	}

	file, extra, err := singleFileIn(tempDir)
	if err != nil {
		return err
	}
	job.DownloadedFile = file
	if extra > 0 {
		job.Emit(fmt.Sprintf("download produced %d files, keeping %s", extra+1, filepath.Base(file)))
	} else {
		job.Emit(fmt.Sprintf("downloaded %s", filepath.Base(file)))
	}
	job.TransitionTo(model.StateExtracting)
	return nil
}

// singleFileIn returns the lexicographically first regular file the download
// tool produced, plus how many further files sit beside it. Those extras are
// ignored; the download step only ever carries one file forward.
func singleFileIn(dir string) (string, int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", 0, err
	}

	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return "", 0, &model.PipelineError{
			Code:     model.CodeNoFile,
			Message:  "download produced no output file",
			Category: model.CategoryContent,
		}
	}
	sort.Strings(files)
	return files[0], len(files) - 1, nil
}

// handleExtracting transcodes the download to MP3. The input is stashed
// outside the workspace while it is wiped so the step starts clean without
// losing its input.
func (h *handlers) handleExtracting(ctx context.Context, job *model.Job) error {
	if job.DownloadedFile == "" {
		return &model.PipelineError{
			Code:     model.CodeNoFile,
			Message:  "no downloaded file to extract",
			Category: model.CategoryContent,
		}
	}

	if err := resetWorkspaceKeeping(job.TempDir, job.DownloadedFile); err != nil {
		return err
	}

	output, err := h.deps.Transcoder.ToMP3(ctx, job.DownloadedFile)
	if err != nil {
		if errors.Is(err, media.ErrToolNotFound) {
			return &model.PipelineError{
				Code:     model.CodeExternalToolNotFound,
				Message:  err.Error(),
				Category: model.CategoryDependency,
				Tool:     "ffmpeg",
			}
		}
		return &model.PipelineError{
			Code:     model.CodeExternalToolError,
			Message:  err.Error(),
			Category: model.CategoryDependency,
			Tool:     "ffmpeg",
		}
	}

	job.ExtractedFile = output
	job.TransitionTo(model.StateMatchingMetadata)
	return nil
}

// resetWorkspaceKeeping wipes dir but preserves keep (which must live inside
// dir) across the wipe.
func resetWorkspaceKeeping(dir, keep string) error {
	if dir == "" {
		return errors.New("job has no temp dir")
	}

	stash := dir + ".in"
	if err := os.RemoveAll(stash); err != nil {
		return err
	}
	if err := os.MkdirAll(stash, 0o755); err != nil {
		return err
	}
	stashed := filepath.Join(stash, filepath.Base(keep))
	if err := os.Rename(keep, stashed); err != nil {
		return err
	}

	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.Rename(stashed, keep); err != nil {
		return err
	}
	return os.RemoveAll(stash)
}

// handleMatchingMetadata queries the metadata service and scores the
// results. Network failure or an empty result recovers locally by archiving;
// a weak top score pauses for user confirmation.
func (h *handlers) handleMatchingMetadata(ctx context.Context, job *model.Job) error {
	if job.Options.ForceArchive {
		job.TransitionTo(model.StateArchiving)
		return nil
	}

	hint := job.IdentityHint
	if hint == nil {
		return &model.PipelineError{
			Code:     model.CodeNoIdentity,
			Message:  "no identity hint for metadata matching",
			Category: model.CategoryContent,
		}
	}

	expectedArtist := strings.Join(hint.Artists, " ")
	results, err := h.deps.Metadata.Search(ctx, hint.Title, expectedArtist)
	if err != nil || len(results) == 0 {
		if err != nil {
			job.Emit(fmt.Sprintf("metadata search failed, archiving: %v", err))
		} else {
			job.Emit("no metadata candidates, archiving")
		}
		job.TransitionTo(model.StateArchiving)
		return nil
	}

	expectedDuration := hint.DurationMS / 1000
	for _, r := range results {
		score, reasons := ScoreMetadata(r, hint.Title, expectedArtist, expectedDuration)
		r["_score"] = score
		r["_reasons"] = reasons
	}
	sort.SliceStable(results, func(i, k int) bool {
		return results[i].Int64("_score") > results[k].Int64("_score")
	})

	job.MetadataCandidates = results
	job.FinalMetadata = results[0]
	job.MetadataConfidence = int(results[0].Int64("_score"))

	if job.MetadataConfidence < metadataConfidenceThreshold {
		job.Emit("metadata confidence low, waiting for selection")
		job.TransitionTo(model.StateUserMetadataSelection)
		return nil
	}

	job.TransitionTo(model.StateTagging)
	return nil
}

func (h *handlers) handleTagging(ctx context.Context, job *model.Job) error {
	if job.ExtractedFile == "" {
		return &model.PipelineError{
			Code:     model.CodeNoFile,
			Message:  "no extracted MP3 to tag",
			Category: model.CategoryContent,
		}
	}
	if job.FinalMetadata == nil {
		return &model.PipelineError{
			Code:     model.CodeNoIdentity,
			Message:  "no metadata available for tagging",
			Category: model.CategoryContent,
		}
	}

	if err := h.deps.Tagger.Tag(ctx, job.ExtractedFile, job.FinalMetadata); err != nil {
		return err
	}

	job.TransitionTo(model.StateStoring)
	return nil
}

func (h *handlers) handleStoring(ctx context.Context, job *model.Job) error {
	if job.ExtractedFile == "" {
		return &model.PipelineError{
			Code:     model.CodeNoFile,
			Message:  "no audio file to store",
			Category: model.CategoryContent,
		}
	}
	if job.FinalMetadata == nil {
		return &model.PipelineError{
			Code:     model.CodeNoIdentity,
			Message:  "no metadata for storage",
			Category: model.CategoryContent,
		}
	}

	root, _, err := h.deps.Library.MusicLibraryRoot(ctx)
	if err != nil {
		return err
	}

	title := job.FinalMetadata.String("trackName")
	artist := job.FinalMetadata.String("artistName")

	path, existed, err := library.Place(job.ExtractedFile, root, library.TrackFileName(title, artist))
	if err != nil {
		return err
	}

	job.Result = model.Result{
		Success: true,
		Title:   title,
		Artist:  artist,
		Album:   job.FinalMetadata.String("collectionName"),
		Source:  "iTunes (verified)",
		Path:    path,
	}
	if existed {
		job.Result.Reason = "already_exists"
	}
	job.TransitionTo(model.StateFinalized)
	return nil
}

// handleArchiving places the track under _Unidentified using the relaxed
// identity-hint metadata.
func (h *handlers) handleArchiving(ctx context.Context, job *model.Job) error {
	if job.ExtractedFile == "" {
		return &model.PipelineError{
			Code:     model.CodeNoFile,
			Message:  "no audio file to archive",
			Category: model.CategoryContent,
		}
	}

	root, _, err := h.deps.Library.MusicLibraryRoot(ctx)
	if err != nil {
		return err
	}

	title := job.RawQuery
	artist := ""
	if hint := job.IdentityHint; hint != nil {
		title = hint.Title
		artist = strings.Join(hint.Artists, ", ")
	}

	dir := filepath.Join(root, library.ArchiveDir)
	path, existed, err := library.Place(job.ExtractedFile, dir, library.TrackFileName(title, artist))
	if err != nil {
		return err
	}

	job.Result = model.Result{
		Success:  true,
		Archived: true,
		Title:    title,
		Artist:   artist,
		Source:   "YouTube (unverified)",
		Path:     path,
		Reason:   "Unverified metadata",
	}
	if existed {
		job.Result.Reason = "already_exists"
	}
	job.TransitionTo(model.StateFinalized)
	return nil
}
