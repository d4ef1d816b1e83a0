package pipeline

import (
	"context"

	"github.com/truetrack/truetrack/internal/pipeline/model"
	"github.com/truetrack/truetrack/internal/settings"
)

// IdentityProvider returns ranked candidates for a raw music query.
type IdentityProvider interface {
	Search(ctx context.Context, query string, limit int) ([]model.SourceCandidate, error)
}

// Downloader fetches best audio for a source URL into destDir.
type Downloader interface {
	Download(ctx context.Context, url, destDir string, verbose bool) error
}

// Transcoder converts a downloaded file to MP3 and returns the output path.
type Transcoder interface {
	ToMP3(ctx context.Context, inputPath string) (string, error)
}

// MetadataSearcher queries the canonical-metadata service.
type MetadataSearcher interface {
	Search(ctx context.Context, title, artist string) ([]model.Metadata, error)
}

// Tagger writes final metadata (and best-effort cover art) into an MP3.
type Tagger interface {
	Tag(ctx context.Context, path string, meta model.Metadata) error
}

// LibraryPathResolver resolves the managed library root.
type LibraryPathResolver interface {
	MusicLibraryRoot(ctx context.Context) (string, settings.Source, error)
}

// Deps are the external collaborators the handlers call. All of them are
// black boxes from the pipeline's point of view.
type Deps struct {
	Identity   IdentityProvider
	Downloader Downloader
	Transcoder Transcoder
	Metadata   MetadataSearcher
	Tagger     Tagger
	Library    LibraryPathResolver

	// TempRoot is the base directory for per-job workspaces.
	TempRoot string
}
