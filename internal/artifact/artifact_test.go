package artifact

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "runs/bench-1/report.json", Key("runs", "bench-1", "report.json"))
	assert.Equal(t, "bench-1/report.json", Key("", "bench-1", "report.json"))
	assert.Equal(t, "report.json", Key("", "", "report.json"))
}

func TestLocalStore_Upload(t *testing.T) {
	src := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"status":"success"}`), 0o644))

	store, err := NewLocalStore(filepath.Join(t.TempDir(), "artifacts"))
	require.NoError(t, err)

	key := Key("runs", "bench-1", "report.json")
	require.NoError(t, store.Upload(context.Background(), src, key))

	data, err := os.ReadFile(store.Path(key))
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"success"}`, string(data))
}

func TestLocalStore_KeyCannotEscape(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))

	base := t.TempDir()
	store, err := NewLocalStore(base)
	require.NoError(t, err)

	require.NoError(t, store.Upload(context.Background(), src, "../../escape.txt"))
	_, err = os.Stat(filepath.Join(base, "escape.txt"))
	assert.NoError(t, err)

	err = store.Upload(context.Background(), src, "/")
	assert.ErrorIs(t, err, ErrUploadFailed)
}

func TestLocalStore_Errors(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	err = store.Upload(context.Background(), filepath.Join(t.TempDir(), "missing"), "x")
	assert.ErrorIs(t, err, ErrUploadFailed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = store.Upload(ctx, "whatever", "x")
	assert.ErrorIs(t, err, context.Canceled)
}

type failingStore struct{ calls int }

func (f *failingStore) Upload(context.Context, string, string) error {
	f.calls++
	return errors.New("boom")
}

func TestUploadAll(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{}
	for _, name := range []string{"a.txt", "b.txt"} {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(name), 0o644))
		files[Key("", "run", name)] = p
	}

	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, UploadAll(context.Background(), store, files))
	for key := range files {
		assert.FileExists(t, store.Path(key))
	}

	f := &failingStore{}
	assert.Error(t, UploadAll(context.Background(), f, files))
	assert.Equal(t, 1, f.calls)
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Config{}, nopLogger())
	assert.Error(t, err)
}

func nopLogger() zerolog.Logger { return zerolog.Nop() }
