package settings

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	values map[string]string
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: map[string]string{}}
}

func (f *fakeKV) GetSetting(ctx context.Context, key string) (string, error) {
	return f.values[key], nil
}

func (f *fakeKV) SetSetting(ctx context.Context, key, value string) error {
	f.values[key] = value
	return nil
}

func TestMusicLibraryRoot_DBWins(t *testing.T) {
	kv := newFakeKV()
	kv.values[KeyMusicLibraryRoot] = "/persisted/music"
	r := &Resolver{KV: kv, Env: "/env/music"}

	root, source, err := r.MusicLibraryRoot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "/persisted/music", root)
	assert.Equal(t, SourceDB, source)
}

func TestMusicLibraryRoot_EnvFallback(t *testing.T) {
	r := &Resolver{KV: newFakeKV(), Env: "/env/music"}

	root, source, err := r.MusicLibraryRoot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "/env/music", root)
	assert.Equal(t, SourceEnv, source)
}

func TestMusicLibraryRoot_DefaultIsWrittenBack(t *testing.T) {
	kv := newFakeKV()
	r := &Resolver{KV: kv}

	root, source, err := r.MusicLibraryRoot(context.Background())

	require.NoError(t, err)
	assert.Equal(t, SourceDefault, source)
	assert.Contains(t, root, filepath.Join("Music", "TrueTrack"))
	assert.Equal(t, root, kv.values[KeyMusicLibraryRoot])

	// Later reads resolve from the DB.
	_, source, err = r.MusicLibraryRoot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SourceDB, source)
}

func TestSetMusicLibraryRoot(t *testing.T) {
	kv := newFakeKV()
	r := &Resolver{KV: kv}
	path := filepath.Join(t.TempDir(), "library")

	require.NoError(t, r.SetMusicLibraryRoot(context.Background(), path))

	assert.Equal(t, path, kv.values[KeyMusicLibraryRoot])
	assert.DirExists(t, path)
}

func TestSetMusicLibraryRoot_RejectsRelative(t *testing.T) {
	r := &Resolver{KV: newFakeKV()}

	err := r.SetMusicLibraryRoot(context.Background(), "relative/music")

	assert.Error(t, err)
}
