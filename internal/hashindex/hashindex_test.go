package hashindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	// md5("hello")
	assert.Equal(t, "5d41402abc4b2a76b9719d911017c592", Hash([]byte("hello")))
	assert.Len(t, Hash(nil), 32)
	assert.NotEqual(t, Hash([]byte("a")), Hash([]byte("b")))
}

func TestNewHasher(t *testing.T) {
	tests := []struct {
		algo    string
		want    string
		wantErr bool
	}{
		{algo: "", want: AlgoMD5},
		{algo: "md5", want: AlgoMD5},
		{algo: "BLAKE3", want: AlgoBLAKE3},
		{algo: "sha1", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.algo, func(t *testing.T) {
			h, err := NewHasher(tt.algo)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, h.Algorithm())
		})
	}
}

func TestHasherDigestsAre128Bit(t *testing.T) {
	for _, algo := range []string{AlgoMD5, AlgoBLAKE3} {
		t.Run(algo, func(t *testing.T) {
			h, err := NewHasher(algo)
			require.NoError(t, err)
			sum := h.Sum([]byte("image bytes"))
			assert.Len(t, sum, 32)
			assert.Equal(t, sum, h.Sum([]byte("image bytes")))
		})
	}

	md5h, _ := NewHasher(AlgoMD5)
	b3h, _ := NewHasher(AlgoBLAKE3)
	assert.NotEqual(t, md5h.Sum([]byte("x")), b3h.Sum([]byte("x")))
	assert.Equal(t, Hash([]byte("x")), md5h.Sum([]byte("x")))
}

func TestHasherFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.jpg")
	content := []byte("some image content")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	h, _ := NewHasher(AlgoBLAKE3)
	digest, size, err := h.File(path)
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), size)
	assert.Equal(t, h.Sum(content), digest)

	md5Hasher, _ := NewHasher(AlgoMD5)
	md5Digest, _, err := md5Hasher.File(path)
	require.NoError(t, err)
	assert.Equal(t, Hash(content), md5Digest)

	_, _, err = h.File(filepath.Join(dir, "missing.jpg"))
	assert.Error(t, err)
}

func TestGroupDuplicates(t *testing.T) {
	entries := []Entry{
		{Name: "d.jpg", Hash: "h1"},
		{Name: "c.jpg", Hash: "h2"},
		{Name: "b.jpg", Hash: "h1"},
		{Name: "e.jpg", Hash: "h3"},
		{Name: "a.jpg", Hash: "h3"},
		{Name: "f.jpg", Hash: "h3"},
	}
	groups := GroupDuplicates(entries)
	assert.Equal(t, map[string][]string{
		"h1": {"b.jpg", "d.jpg"},
		"h3": {"a.jpg", "e.jpg", "f.jpg"},
	}, groups)

	assert.Empty(t, GroupDuplicates(nil))
	assert.Empty(t, GroupDuplicates([]Entry{{Name: "x", Hash: "h"}}))
}

func TestPrimaryAndSiblings(t *testing.T) {
	assert.Equal(t, "a.jpg", Primary([]string{"c.jpg", "a.jpg", "b.jpg"}))
	assert.Equal(t, "", Primary(nil))

	group := []string{"a.jpg", "b.jpg", "c.jpg"}
	assert.Equal(t, []string{"a.jpg", "c.jpg"}, Siblings(group, "b.jpg"))
	assert.Equal(t, group, Siblings(group, "z.jpg"))
	assert.Equal(t, []string{"a.jpg", "b.jpg", "c.jpg"}, group, "input must not be modified")
}

func TestImageID(t *testing.T) {
	digest := "5d41402abc4b2a76b9719d911017c592"
	id := ImageID(digest, "IMG 2045.JPG")
	assert.Equal(t, "5d41402abc4b_img_2045_jpg", id)
	assert.Equal(t, id, ImageID(digest, "IMG 2045.JPG"), "ids are stable")
	assert.NotEqual(t, id, ImageID(digest, "copy.jpg"))
	assert.Equal(t, "ab_x", ImageID("ab", "x"))
}
