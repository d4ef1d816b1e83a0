// Package library places finished tracks under the managed library root.
package library

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ArchiveDir is the subdirectory for tracks stored without verified metadata.
const ArchiveDir = "_Unidentified"

// SafeFileName strips characters that are invalid in filenames on common
// filesystems and trims surrounding whitespace.
func SafeFileName(name string) string {
	replacer := strings.NewReplacer(
		"<", "", ">", "", ":", "", `"`, "", "/", "",
		`\`, "", "|", "", "?", "", "*", "",
	)
	return strings.TrimSpace(replacer.Replace(name))
}

// TrackFileName builds the canonical "<title> - <artist>.mp3" name.
func TrackFileName(title, artist string) string {
	return fmt.Sprintf("%s - %s.mp3", SafeFileName(title), SafeFileName(artist))
}

// Place moves src into dir under fileName. If the target already exists the
// move is skipped and existed is true. The destination directory is created
// if missing.
func Place(src, dir, fileName string) (path string, existed bool, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", false, fmt.Errorf("library: create %s: %w", dir, err)
	}

	target := filepath.Join(dir, fileName)
	if _, err := os.Stat(target); err == nil {
		return target, true, nil
	}

	if err := moveFile(src, target); err != nil {
		return "", false, fmt.Errorf("library: move %s: %w", target, err)
	}
	return target, false, nil
}

// moveFile renames src to dst, falling back to copy+remove when the paths
// are on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}
