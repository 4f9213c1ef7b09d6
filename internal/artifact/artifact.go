// Package artifact uploads run outputs (report, flame graph, collector logs)
// to durable storage.
package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/benchrun/benchrun/internal/safe"
)

// ErrUploadFailed wraps every upload failure.
var ErrUploadFailed = errors.New("upload failed")

// Store receives run artifacts. Keys are slash-separated object names.
type Store interface {
	Upload(ctx context.Context, localPath, key string) error
}

// Key joins a run id and file name into an object key under prefix.
func Key(prefix, jobID, name string) string {
	return strings.TrimPrefix(path.Join(prefix, jobID, name), "/")
}

// UploadAll uploads every file under the given keys. It stops at the first
// failure.
func UploadAll(ctx context.Context, s Store, files map[string]string) error {
	for key, local := range files {
		if err := s.Upload(ctx, local, key); err != nil {
			return err
		}
	}
	return nil
}

// LocalStore copies artifacts into a directory tree.
type LocalStore struct {
	basePath string
}

// NewLocalStore creates basePath if needed.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}
	return &LocalStore{basePath: basePath}, nil
}

// Upload copies localPath to basePath/key.
func (l *LocalStore) Upload(ctx context.Context, localPath, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dest, err := l.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	if err := safe.CopyFile(localPath, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrUploadFailed, key, err)
	}
	return nil
}

// Path returns where key is stored.
func (l *LocalStore) Path(key string) string {
	return filepath.Join(l.basePath, filepath.FromSlash(key))
}

func (l *LocalStore) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" {
		return "", fmt.Errorf("%w: empty key", ErrUploadFailed)
	}
	return l.Path(strings.TrimPrefix(clean, "/")), nil
}
