package index

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-image-organizer/internal/models"
)

func sampleRecords() []models.ImageRecord {
	return []models.ImageRecord{
		{
			ID: "a1", ProjectID: "trip", OriginalName: "IMG_1.jpg", CurrentName: "golden_gate_bridge.jpg",
			SuggestedName: "golden_gate_bridge",
			Metadata:      models.Metadata{Description: "Suspension bridge at sunset", Tags: []string{"bridge", "sunset"}, Category: "landscape"},
		},
		{
			ID: "b2", ProjectID: "trip", OriginalName: "IMG_2.jpg", CurrentName: "IMG_2.jpg",
			SuggestedName: "sleeping_cat",
			Metadata:      models.Metadata{Description: "A cat asleep on a sofa", Tags: []string{"cat"}, Colors: []string{"orange"}},
		},
		{
			ID: "c3", ProjectID: "home", OriginalName: "DSC_3.jpg", CurrentName: "orange_cat.jpg",
			SuggestedName: "orange_cat",
			Metadata:      models.Metadata{Tags: []string{"cat"}},
		},
	}
}

func ids(hits []Hit) []string {
	var out []string
	for _, h := range hits {
		out = append(out, h.ProjectID+"/"+h.ImageID)
	}
	return out
}

func TestIndexAndSearch(t *testing.T) {
	idx, err := NewMemIndex()
	require.NoError(t, err)
	defer idx.Close()

	for _, rec := range sampleRecords() {
		require.NoError(t, idx.IndexRecord(rec))
	}

	hits, err := idx.Search("bridge", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"trip/a1"}, ids(hits))
	assert.Equal(t, "golden_gate_bridge.jpg", hits[0].CurrentName)

	hits, err = idx.Search("cat", "", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"trip/b2", "home/c3"}, ids(hits))

	hits, err = idx.Search("cat", "home", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"home/c3"}, ids(hits))

	hits, err = idx.Search("", "trip", 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"trip/a1", "trip/b2"}, ids(hits))

	hits, err = idx.Search("", "", 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestDeleteRecord(t *testing.T) {
	idx, err := NewMemIndex()
	require.NoError(t, err)
	defer idx.Close()

	for _, rec := range sampleRecords() {
		require.NoError(t, idx.IndexRecord(rec))
	}
	require.NoError(t, idx.DeleteRecord("trip", "b2"))
	require.NoError(t, idx.DeleteRecord("trip", "missing"))

	hits, err := idx.Search("cat", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"home/c3"}, ids(hits))
}

func TestReindexReplaces(t *testing.T) {
	idx, err := NewMemIndex()
	require.NoError(t, err)
	defer idx.Close()

	rec := sampleRecords()[1]
	require.NoError(t, idx.IndexRecord(rec))
	rec.CurrentName = "sleeping_cat.jpg"
	require.NoError(t, idx.IndexRecord(rec))

	hits, err := idx.Search("sofa", "", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "sleeping_cat.jpg", hits[0].CurrentName)
}

func TestOpenOrCreateIndexPersists(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping on-disk index test in short mode")
	}
	path := filepath.Join(t.TempDir(), "search.bleve")

	idx, err := OpenOrCreateIndex(path)
	require.NoError(t, err)
	require.NoError(t, idx.IndexRecord(sampleRecords()[0]))
	require.NoError(t, idx.Close())

	idx, err = OpenOrCreateIndex(path)
	require.NoError(t, err)
	defer idx.Close()
	hits, err := idx.Search("sunset", "trip", 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"trip/a1"}, ids(hits))
}

func TestDocumentFor(t *testing.T) {
	rec := sampleRecords()[0]
	rec.Metadata.Description = ""
	rec.AIDescription = "fallback description"
	doc := DocumentFor(rec)
	assert.Equal(t, "image", doc.Type)
	assert.Equal(t, "golden gate bridge", doc.SuggestedName)
	assert.Equal(t, "fallback description", doc.Description)
}
