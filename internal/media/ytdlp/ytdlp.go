// Package ytdlp wraps the yt-dlp binary as the identity provider and audio
// downloader. The tool is treated as a black box; only its JSON dump and
// exit status are interpreted.
package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/truetrack/truetrack/internal/media"
	"github.com/truetrack/truetrack/internal/pipeline/model"
)

const binName = "yt-dlp"

// Client invokes yt-dlp subprocesses.
type Client struct {
	// ToolsDir is searched before PATH when resolving the binary.
	ToolsDir string
}

// searchResult is the subset of the yt-dlp JSON dump we consume.
type searchResult struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Artists  []string `json:"artists"`
	Artist   string   `json:"artist"`
	Album    string   `json:"album"`
	Duration float64  `json:"duration"`
	Uploader string   `json:"uploader"`
}

// Search runs a ranked music search and maps the first limit results to
// source candidates.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]model.SourceCandidate, error) {
	bin, err := media.ResolveTool(c.ToolsDir, binName)
	if err != nil {
		return nil, err
	}

	term := fmt.Sprintf("ytsearch%d:%s", limit, query)
	cmd := exec.CommandContext(ctx, bin, term, "--dump-json", "--no-playlist", "--quiet")

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("yt-dlp search failed: %s: %w", strings.TrimSpace(stderr.String()), err)
	}

	// Each line is one JSON document.
	var candidates []model.SourceCandidate
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		var r searchResult
		if err := json.Unmarshal([]byte(line), &r); err != nil {
			continue
		}
		candidates = append(candidates, model.SourceCandidate{
			Title:    r.Title,
			Artists:  r.artistNames(),
			Album:    r.Album,
			VideoID:  r.ID,
			Duration: int64(r.Duration),
			Uploader: r.Uploader,
		})
	}
	return candidates, nil
}

func (r *searchResult) artistNames() []string {
	if len(r.Artists) > 0 {
		return r.Artists
	}
	if r.Artist != "" {
		return strings.Split(r.Artist, ", ")
	}
	if r.Uploader != "" {
		return []string{r.Uploader}
	}
	return nil
}

// Download fetches best audio for url into destDir using the
// "%(title)s.%(ext)s" output template. Tool stdio is suppressed unless
// verbose is set.
func (c *Client) Download(ctx context.Context, url, destDir string, verbose bool) error {
	bin, err := media.ResolveTool(c.ToolsDir, binName)
	if err != nil {
		return err
	}

	template := destDir + string(os.PathSeparator) + "%(title)s.%(ext)s"
	args := []string{url, "-f", "bestaudio", "--no-playlist", "--output", template}
	if !verbose {
		args = append(args, "--quiet")
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	if verbose {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("yt-dlp download failed: %w", err)
	}
	return nil
}
