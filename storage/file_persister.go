// Package storage persists run artifacts such as the results summary.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FilePersister will persist files. It abstracts away the where and how of
// writing files to the source destination.
type FilePersister interface {
	Persist(ctx context.Context, path string, data io.Reader) error
}

// LocalFilePersister will persist files to a local file system. A nil Fs is
// the OS file system.
type LocalFilePersister struct {
	Fs afero.Fs
}

// Persist will write the contents of data to the file system on the specified path.
func (l *LocalFilePersister) Persist(_ context.Context, path string, data io.Reader) (err error) {
	fs := l.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	cp := filepath.Clean(path)

	dir := filepath.Dir(cp)
	if err = fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating a local directory %q: %w", dir, err)
	}

	f, err := fs.OpenFile(cp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating a local file %q: %w", cp, err)
	}
	defer func() {
		tempErr := f.Close()
		// Only return the close error if there isn't already an existing error.
		if tempErr != nil && err == nil {
			err = fmt.Errorf("closing the local file %q: %w", cp, tempErr)
		}
	}()

	if _, err = io.Copy(f, data); err != nil {
		return fmt.Errorf("writing the local file %q: %w", cp, err)
	}

	return nil
}
