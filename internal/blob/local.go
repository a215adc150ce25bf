package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"go-image-organizer/internal/fileops"
	"go-image-organizer/internal/helpers"
)

// Local mirrors objects into a directory tree.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if root == "" {
		return nil, errors.New("local blob store needs Blob.Root")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving blob root %s: %w", root, err)
	}
	if !helpers.CheckAndMakeDir(abs) {
		return nil, fmt.Errorf("%w: cannot create blob root %s", fileops.ErrFileSystem, abs)
	}
	return &Local{root: abs}, nil
}

func (l *Local) full(path string) string {
	return filepath.Join(l.root, filepath.FromSlash(helpers.SanitizePath(path)))
}

func (l *Local) Exists(_ context.Context, path string) (bool, error) {
	_, err := os.Stat(l.full(path))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *Local) Put(_ context.Context, path string, data []byte, _ string) error {
	return fileops.WriteFileAtomic(l.full(path), data)
}

func (l *Local) Copy(_ context.Context, srcPath, dstPath string) error {
	data, err := os.ReadFile(l.full(srcPath))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, srcPath)
	} else if err != nil {
		return fmt.Errorf("%w: reading %s: %v", fileops.ErrFileSystem, srcPath, err)
	}
	return fileops.WriteFileAtomic(l.full(dstPath), data)
}

func (l *Local) Delete(_ context.Context, path string) error {
	err := os.Remove(l.full(path))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: deleting %s: %v", fileops.ErrFileSystem, path, err)
	}
	return nil
}

func (l *Local) URL(path string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(l.full(path))}
	return u.String()
}
