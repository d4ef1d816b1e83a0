// Package media resolves the external tools the pipeline shells out to.
package media

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

// ErrToolNotFound marks a missing external binary. Callers map it to the
// EXTERNAL_TOOL_NOT_FOUND pipeline error.
var ErrToolNotFound = errors.New("external tool not found")

// ResolveTool locates an external binary. Resolution precedence: the bundled
// tools directory first, then PATH.
func ResolveTool(toolsDir, name string) (string, error) {
	if toolsDir != "" {
		candidate := filepath.Join(toolsDir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return path, nil
}
