package safe

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bench.log")
	dst := filepath.Join(dir, "copy.log")
	require.NoError(t, os.WriteFile(src, []byte("WARMUP,done\n"), 0o644))

	require.NoError(t, CopyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "WARMUP,done\n", string(got))
}

func TestValidation(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "source.txt")
	link := filepath.Join(dir, "link.txt")
	require.NoError(t, os.WriteFile(src, []byte("0123456789"), 0o644))
	require.NoError(t, os.Symlink(src, link))

	tests := []struct {
		name    string
		path    string
		opts    []Options
		wantErr bool
	}{
		{name: "regular file", path: src},
		{name: "symlink rejected", path: link, wantErr: true},
		{name: "symlink allowed", path: link, opts: []Options{{AllowSymlinks: true}}},
		{name: "directory rejected", path: dir, wantErr: true},
		{name: "too large", path: src, opts: []Options{{MaxSize: 4}}, wantErr: true},
		{name: "missing", path: filepath.Join(dir, "nope"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := ReadFile(tt.path, tt.opts...)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "0123456789", string(data))

			f, err := Open(tt.path, tt.opts...)
			require.NoError(t, err)
			defer func() { _ = f.Close() }()
			head := make([]byte, 3)
			_, err = io.ReadFull(f, head)
			require.NoError(t, err)
			assert.Equal(t, "012", string(head))
		})
	}
}

func TestOpen_MissingIsNotExist(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "collapsed.txt"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

type failingCloser struct{ closed bool }

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("boom")
}

func TestClose(t *testing.T) {
	c := &failingCloser{}
	Close(c, zerolog.Nop(), "close failed")
	assert.True(t, c.closed)
}
