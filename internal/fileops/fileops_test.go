package fileops

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var exts = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp"}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.PNG", "x")
	writeFile(t, dir, "a.jpg", "x")
	writeFile(t, dir, "notes.txt", "x")
	writeFile(t, dir, "clip.mp4", "x")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.jpg"), 0o755))

	names, err := ListImages(dir, exts)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.jpg", "b.PNG"}, names)
}

func TestListImagesErrors(t *testing.T) {
	_, err := ListImages(filepath.Join(t.TempDir(), "missing"), exts)
	assert.ErrorIs(t, err, ErrFileSystem)

	file := writeFile(t, t.TempDir(), "a.jpg", "x")
	_, err = ListImages(file, exts)
	assert.ErrorIs(t, err, ErrNotDirectory)
}

func TestReadFile(t *testing.T) {
	p := writeFile(t, t.TempDir(), "a.jpg", "content")
	data, err := ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	_, err = ReadFile(p + ".missing")
	assert.ErrorIs(t, err, ErrFileSystem)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "sub", "dir", "out.png")

	require.NoError(t, WriteFileAtomic(target, []byte("one")))
	require.NoError(t, WriteFileAtomic(target, []byte("two")))

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestRenameNoClobber(t *testing.T) {
	dir := t.TempDir()
	a := writeFile(t, dir, "a.jpg", "a")
	b := writeFile(t, dir, "b.jpg", "b")

	err := RenameNoClobber(a, b)
	assert.ErrorIs(t, err, ErrTargetExists)
	data, _ := os.ReadFile(b)
	assert.Equal(t, "b", string(data), "existing target must be untouched")

	require.NoError(t, RenameNoClobber(a, a))

	c := filepath.Join(dir, "c.jpg")
	require.NoError(t, RenameNoClobber(a, c))
	assert.False(t, Exists(a))
	assert.True(t, Exists(c))

	err = RenameNoClobber(filepath.Join(dir, "missing.jpg"), filepath.Join(dir, "d.jpg"))
	assert.ErrorIs(t, err, ErrFileSystem)
}

func TestRemove(t *testing.T) {
	p := writeFile(t, t.TempDir(), "a.jpg", "a")
	require.NoError(t, Remove(p))
	assert.False(t, Exists(p))
	assert.NoError(t, Remove(p), "removing a missing file is not an error")
}

func TestDetectMimeType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name string
		file string
		data []byte
		want string
	}{
		{"sniffed png", "x.jpg", png, "image/png"},
		{"fallback to extension", "x.webp", []byte("garbage"), "image/webp"},
		{"unknown", "x.bin", []byte("garbage"), "application/octet-stream"},
		{"empty data", "x.gif", nil, "image/gif"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectMimeType(tt.file, tt.data))
		})
	}
}
