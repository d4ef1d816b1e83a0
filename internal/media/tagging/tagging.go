// Package tagging writes ID3v2 tags into MP3 files.
package tagging

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bogem/id3v2/v2"

	"github.com/truetrack/truetrack/internal/log"
	"github.com/truetrack/truetrack/internal/pipeline/model"
)

// ArtworkFetcher fetches cover art bytes for a metadata record.
type ArtworkFetcher interface {
	FetchArtwork(ctx context.Context, meta model.Metadata) ([]byte, error)
}

// Tagger writes canonical metadata into an MP3. Cover art is best-effort:
// fetch or embed failures are logged and swallowed.
type Tagger struct {
	Art ArtworkFetcher
}

// Tag writes title, artist, album, track number and year into the file at
// path, then embeds cover art when available.
func (t *Tagger) Tag(ctx context.Context, path string, meta model.Metadata) error {
	tag, err := id3v2.Open(path, id3v2.Options{Parse: true})
	if err != nil {
		return fmt.Errorf("tagging: open %s: %w", path, err)
	}
	defer func() { _ = tag.Close() }()

	enc := tag.DefaultEncoding()

	tag.SetTitle(meta.String("trackName"))
	tag.SetArtist(meta.String("artistName"))
	tag.SetAlbum(meta.String("collectionName"))
	// Album artist
	tag.AddTextFrame("TPE2", enc, meta.String("artistName"))

	if track := meta.Int64("trackNumber"); track > 0 {
		tag.AddTextFrame("TRCK", enc, strconv.FormatInt(track, 10))
	}

	if release := meta.String("releaseDate"); len(release) >= 4 {
		tag.AddTextFrame("TDRC", enc, release[:4])
	}

	t.embedArtwork(ctx, tag, meta)

	if err := tag.Save(); err != nil {
		return fmt.Errorf("tagging: save %s: %w", path, err)
	}
	return nil
}

func (t *Tagger) embedArtwork(ctx context.Context, tag *id3v2.Tag, meta model.Metadata) {
	if t.Art == nil {
		return
	}
	art, err := t.Art.FetchArtwork(ctx, meta)
	if err != nil {
		l := log.WithComponent("tagging")
		l.Warn().Err(err).Msg("cover art fetch failed, skipping")
		return
	}
	tag.AddAttachedPicture(id3v2.PictureFrame{
		Encoding:    tag.DefaultEncoding(),
		MimeType:    "image/jpeg",
		PictureType: id3v2.PTFrontCover,
		Description: "Cover",
		Picture:     art,
	})
}
