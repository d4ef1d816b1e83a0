package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveTool_BundledDirWins(t *testing.T) {
	toolsDir := t.TempDir()
	bundled := filepath.Join(toolsDir, "yt-dlp")
	require.NoError(t, os.WriteFile(bundled, []byte("#!/bin/sh\n"), 0o755))

	path, err := ResolveTool(toolsDir, "yt-dlp")

	require.NoError(t, err)
	assert.Equal(t, bundled, path)
}

func TestResolveTool_FallsBackToPath(t *testing.T) {
	// "sh" exists on any test host.
	path, err := ResolveTool(t.TempDir(), "sh")

	require.NoError(t, err)
	assert.NotEmpty(t, path)
}

func TestResolveTool_Missing(t *testing.T) {
	_, err := ResolveTool(t.TempDir(), "definitely-not-a-tool")

	assert.ErrorIs(t, err, ErrToolNotFound)
}
