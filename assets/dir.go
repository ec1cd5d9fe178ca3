package assets

import (
	"context"
	"io/fs"
	"net/http"
	"os"

	"github.com/cockroachdb/errors"
)

// Dir serves assets from a file system.
type Dir struct{ fsys fs.FS }

// NewDir serves assets from the directory at root.
func NewDir(root string) *Dir { return &Dir{fsys: os.DirFS(root)} }

// NewFS serves assets from fsys.
func NewFS(fsys fs.FS) *Dir { return &Dir{fsys: fsys} }

// ServeAsset implements [Source].
func (d *Dir) ServeAsset(_ context.Context, w http.ResponseWriter, r *http.Request, name string) error {
	fi, err := fs.Stat(d.fsys, name)
	switch {
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrInvalid):
		return ErrNotFound
	case err != nil:
		return errors.Wrapf(err, "failed to stat %q", name)
	case fi.IsDir():
		return ErrNotFound
	}

	http.ServeFileFS(w, r, d.fsys, name)

	return nil
}

var _ Source = (*Dir)(nil)
