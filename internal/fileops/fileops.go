// Package fileops holds the filesystem primitives the pipelines share:
// listing a folder's images, atomic writes and no-clobber renames.
package fileops

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go-image-organizer/internal/helpers"

	log "github.com/sirupsen/logrus"
)

// Custom filesystem errors
var (
	ErrFileSystem   = errors.New("filesystem error") // Covers create, remove, rename
	ErrTargetExists = errors.New("target file already exists")
	ErrNotDirectory = errors.New("not a directory")
)

// ListImages returns the names of regular files directly inside dir whose
// extension is in exts (case-insensitive), sorted by name. Subdirectories
// are not descended into.
func ListImages(dir string, exts []string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: stat %s: %w", ErrFileSystem, dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, dir)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading directory %s: %w", ErrFileSystem, dir, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		if helpers.StringSliceContains(exts, filepath.Ext(name)) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	log.Debugf("Found %d image(s) in %s", len(names), dir)
	return names, nil
}

// ReadFile reads a whole file, wrapping failures in ErrFileSystem.
func ReadFile(path string) ([]byte, error) {
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %w", ErrFileSystem, path, err)
	}
	return data, nil
}

// WriteFileAtomic writes data to a temp file next to target and renames it
// into place, so readers never observe a partial file.
func WriteFileAtomic(target string, data []byte) error {
	dir := filepath.Dir(target)
	if !helpers.CheckAndMakeDir(dir) {
		return fmt.Errorf("%w: failed to create directory %s", ErrFileSystem, dir)
	}

	tempFile, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: creating temporary file for %s: %w", ErrFileSystem, target, err)
	}

	shouldCleanupTemp := true
	defer func() {
		if shouldCleanupTemp {
			if removeErr := os.Remove(tempFile.Name()); removeErr != nil && !errors.Is(removeErr, fs.ErrNotExist) {
				log.WithError(removeErr).Warnf("Failed to remove temporary file %s", tempFile.Name())
			}
		}
	}()

	counter := &helpers.CounterWriter{Writer: tempFile}
	if _, err := io.Copy(counter, bytes.NewReader(data)); err != nil {
		_ = tempFile.Close()
		return fmt.Errorf("%w: writing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("%w: closing temporary file %s: %w", ErrFileSystem, tempFile.Name(), err)
	}
	if err := os.Rename(tempFile.Name(), target); err != nil {
		return fmt.Errorf("%w: renaming temporary file %s to %s: %w", ErrFileSystem, tempFile.Name(), target, err)
	}
	shouldCleanupTemp = false

	log.Debugf("Wrote %s (%s)", target, helpers.BytesToSize(counter.Total))
	return nil
}

// RenameNoClobber renames oldPath to newPath, refusing to overwrite an
// existing file. Renaming a path to itself is a no-op.
func RenameNoClobber(oldPath, newPath string) error {
	if filepath.Clean(oldPath) == filepath.Clean(newPath) {
		return nil
	}
	if _, err := os.Lstat(newPath); err == nil {
		return fmt.Errorf("%w: %s", ErrTargetExists, newPath)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: checking %s: %w", ErrFileSystem, newPath, err)
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		return fmt.Errorf("%w: renaming %s to %s: %w", ErrFileSystem, oldPath, newPath, err)
	}
	return nil
}

// Remove deletes path. A file that is already gone is not an error.
func Remove(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: removing %s: %w", ErrFileSystem, path, err)
	}
	return nil
}

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil
}

// DetectMimeType sniffs data and falls back to the file extension when the
// sniffed type is not an image.
func DetectMimeType(name string, data []byte) string {
	n := len(data)
	if n > 512 {
		n = 512
	}
	mimeType := http.DetectContentType(data[:n])
	if strings.HasPrefix(mimeType, "image/") {
		return mimeType
	}
	return helpers.GetMimeTypeFromExtension(filepath.Ext(name))
}
