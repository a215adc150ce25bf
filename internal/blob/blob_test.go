package blob

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"go-image-organizer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runStoreContract(t *testing.T, s Store) {
	ctx := context.Background()
	src := "projects/trip/images/a.jpg"
	dst := "projects/trip/images/b.jpg"

	ok, err := s.Exists(ctx, src)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Put(ctx, src, []byte("data"), "image/jpeg"))
	ok, err = s.Exists(ctx, src)
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Copy(ctx, src, dst))
	ok, _ = s.Exists(ctx, dst)
	assert.True(t, ok)
	ok, _ = s.Exists(ctx, src)
	assert.True(t, ok, "copy keeps the source")

	require.NoError(t, s.Delete(ctx, src))
	ok, _ = s.Exists(ctx, src)
	assert.False(t, ok)
	assert.NoError(t, s.Delete(ctx, src), "deleting a missing object is not an error")

	err = s.Copy(ctx, "projects/trip/images/missing.jpg", dst)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.True(t, strings.HasSuffix(s.URL(dst), dst))
}

func TestMemoryStore(t *testing.T) {
	m := NewMemory()
	runStoreContract(t, m)

	data, ok := m.Get("projects/trip/images/b.jpg")
	require.True(t, ok)
	assert.Equal(t, "data", string(data))
	assert.Equal(t, []string{"projects/trip/images/b.jpg"}, m.Paths())
}

func TestLocalStore(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(root)
	require.NoError(t, err)
	runStoreContract(t, l)

	assert.FileExists(t, filepath.Join(root, "projects", "trip", "images", "b.jpg"))
	assert.True(t, strings.HasPrefix(l.URL("x.jpg"), "file://"))
}

func TestLocalStoreStaysInsideRoot(t *testing.T) {
	root := t.TempDir()
	l, err := NewLocal(root)
	require.NoError(t, err)

	require.NoError(t, l.Put(context.Background(), "../../escape.jpg", []byte("x"), ""))
	assert.FileExists(t, filepath.Join(root, "escape.jpg"))
}

func TestNewLocalRequiresRoot(t *testing.T) {
	_, err := NewLocal("")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	s, err := New(models.BlobConfig{}, nil)
	require.NoError(t, err)
	assert.Nil(t, s)

	s, err = New(models.BlobConfig{Provider: "memory"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = New(models.BlobConfig{Provider: "local", Root: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Local{}, s)

	_, err = New(models.BlobConfig{Provider: "supabase"}, nil)
	assert.Error(t, err, "supabase without credentials")

	_, err = New(models.BlobConfig{Provider: "s3"}, nil)
	assert.Error(t, err)
}
