// Package ffmpeg wraps the ffmpeg binary for audio transcoding.
package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/truetrack/truetrack/internal/media"
)

const binName = "ffmpeg"

// Transcoder produces MP3 output next to its input file.
type Transcoder struct {
	// ToolsDir is searched before PATH when resolving the binary.
	ToolsDir string
	// Bitrate defaults to 320k.
	Bitrate string
}

// ToMP3 transcodes inputPath to an MP3 in the same directory and returns the
// output path.
func (t *Transcoder) ToMP3(ctx context.Context, inputPath string) (string, error) {
	bin, err := media.ResolveTool(t.ToolsDir, binName)
	if err != nil {
		return "", err
	}

	bitrate := t.Bitrate
	if bitrate == "" {
		bitrate = "320k"
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	outputPath := filepath.Join(filepath.Dir(inputPath), base+".mp3")

	cmd := exec.CommandContext(ctx, bin,
		"-y",
		"-i", inputPath,
		"-vn",
		"-ab", bitrate,
		outputPath,
	)
	// ffmpeg writes progress to stderr; we only care about the exit status.
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("ffmpeg transcode failed: %w", err)
	}

	if _, err := os.Stat(outputPath); err != nil {
		return "", fmt.Errorf("ffmpeg produced no output: %w", err)
	}
	return outputPath, nil
}
