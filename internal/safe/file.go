// Package safe wraps file access for paths that come from configuration or
// from external tools: symlinks and non-regular files are rejected and
// sizes are bounded before anything is read.
package safe

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// DefaultMaxFileSize bounds reads when Options.MaxSize is zero (256MB).
// Benchmark logs and collapsed stacks from long runs reach tens of MB.
const DefaultMaxFileSize = 256 << 20

// Options configures the checks performed before a file is opened.
type Options struct {
	// MaxSize is the maximum allowed file size in bytes. Zero means DefaultMaxFileSize.
	MaxSize int64
	// DestPerm is the permission mode for files written by CopyFile. Zero means 0644.
	DestPerm os.FileMode
	// AllowSymlinks allows symlink sources.
	AllowSymlinks bool
}

func (o *Options) maxSize() int64 {
	if o == nil || o.MaxSize == 0 {
		return DefaultMaxFileSize
	}
	return o.MaxSize
}

// validate checks path and returns its cleaned form.
func validate(path string, opts *Options) (string, os.FileInfo, error) {
	clean := filepath.Clean(path)

	info, err := os.Lstat(clean)
	if err != nil {
		return "", nil, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		if opts == nil || !opts.AllowSymlinks {
			return "", nil, fmt.Errorf("%q is a symlink", path)
		}
		if info, err = os.Stat(clean); err != nil {
			return "", nil, err
		}
	}
	if !info.Mode().IsRegular() {
		return "", nil, fmt.Errorf("%q is not a regular file", path)
	}
	if limit := opts.maxSize(); info.Size() > limit {
		return "", nil, fmt.Errorf("%q exceeds maximum allowed size of %d bytes", path, limit)
	}
	return clean, info, nil
}

// Open opens a regular file for reading after validation.
func Open(path string, opts ...Options) (*os.File, error) {
	var o *Options
	if len(opts) > 0 {
		o = &opts[0]
	}
	clean, _, err := validate(path, o)
	if err != nil {
		return nil, err
	}
	return os.Open(clean) // #nosec G304 -- validated above.
}

// ReadFile reads a whole file after validation.
func ReadFile(path string, opts ...Options) ([]byte, error) {
	var o *Options
	if len(opts) > 0 {
		o = &opts[0]
	}
	clean, _, err := validate(path, o)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(clean) // #nosec G304 -- validated above.
}

// CopyFile copies src to dst, creating or truncating dst.
func CopyFile(src, dst string, opts ...Options) error {
	var o *Options
	if len(opts) > 0 {
		o = &opts[0]
	}
	perm := os.FileMode(0o644)
	if o != nil && o.DestPerm != 0 {
		perm = o.DestPerm
	}

	in, err := Open(src, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm) // #nosec G304 -- destination chosen by the caller.
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// Close closes c and logs a failure.
func Close(c io.Closer, logger zerolog.Logger, msg string) {
	if err := c.Close(); err != nil {
		logger.Error().Err(err).Msg(msg)
	}
}
