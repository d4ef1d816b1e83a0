// Package settings resolves persisted application settings, primarily the
// music library root.
package settings

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// KeyMusicLibraryRoot is the app_settings key for the library root.
const KeyMusicLibraryRoot = "music_library_root"

// KV is the slice of the job store the resolver needs.
type KV interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// Resolver owns settings resolution with the precedence DB > env > default.
type Resolver struct {
	KV  KV
	Env string // MUSIC_LIBRARY_ROOT override, may be empty
}

// Source names where a resolved value came from.
type Source string

const (
	SourceDB      Source = "db"
	SourceEnv     Source = "env"
	SourceDefault Source = "default"
)

// MusicLibraryRoot resolves the library root. When the OS default is used it
// is written back to the DB so later reads are stable.
func (r *Resolver) MusicLibraryRoot(ctx context.Context) (string, Source, error) {
	if v, err := r.KV.GetSetting(ctx, KeyMusicLibraryRoot); err != nil {
		return "", "", err
	} else if v != "" {
		return v, SourceDB, nil
	}

	if r.Env != "" {
		return r.Env, SourceEnv, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", "", fmt.Errorf("settings: resolve home: %w", err)
	}
	def := filepath.Join(home, "Music", "TrueTrack")
	if err := r.KV.SetSetting(ctx, KeyMusicLibraryRoot, def); err != nil {
		return "", "", err
	}
	return def, SourceDefault, nil
}

// SetMusicLibraryRoot validates and persists a new library root. The path
// must be absolute; the directory is created if missing and must be writable.
func (r *Resolver) SetMusicLibraryRoot(ctx context.Context, path string) error {
	if !filepath.IsAbs(path) {
		return errors.New("settings: path must be absolute")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("settings: cannot create directory: %w", err)
	}

	probe, err := os.CreateTemp(path, ".truetrack-*")
	if err != nil {
		return errors.New("settings: directory is not writable")
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return r.KV.SetSetting(ctx, KeyMusicLibraryRoot, path)
}
