// Package index maintains a bleve full-text index over analyzed image
// records so they can be searched by name, description and labels.
package index

import (
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	log "github.com/sirupsen/logrus"

	"go-image-organizer/internal/models"
)

// DefaultLimit is the result count used when a search names none.
const DefaultLimit = 20

// Document is what gets indexed for one image record.
type Document struct {
	Type          string   `json:"type"`
	ProjectID     string   `json:"projectId"`
	ImageID       string   `json:"imageId"`
	OriginalName  string   `json:"originalName"`
	CurrentName   string   `json:"currentName"`
	SuggestedName string   `json:"suggestedName"`
	Title         string   `json:"title"`
	Description   string   `json:"description"`
	Category      string   `json:"category"`
	Style         string   `json:"style"`
	Mood          string   `json:"mood"`
	Tags          []string `json:"tags"`
	Colors        []string `json:"colors"`
	Objects       []string `json:"objects"`
}

// Hit is one search result.
type Hit struct {
	ProjectID   string
	ImageID     string
	CurrentName string
	Score       float64
}

// Index wraps a bleve index.
type Index struct {
	bleve.Index
}

func buildMapping() mapping.IndexMapping {
	keywordField := bleve.NewTextFieldMapping()
	keywordField.Analyzer = keyword.Name

	storedText := bleve.NewTextFieldMapping()

	doc := bleve.NewDocumentMapping()
	doc.AddFieldMappingsAt("projectId", keywordField)
	doc.AddFieldMappingsAt("imageId", keywordField)
	doc.AddFieldMappingsAt("type", keywordField)
	doc.AddFieldMappingsAt("currentName", storedText)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = doc
	return m
}

// OpenOrCreateIndex opens the index at path, creating it when missing.
func OpenOrCreateIndex(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		log.Infof("Creating new search index at %s", path)
		idx, err = bleve.New(path, buildMapping())
	}
	if err != nil {
		return nil, fmt.Errorf("opening search index %s: %w", path, err)
	}
	return &Index{Index: idx}, nil
}

// NewMemIndex returns an index that lives only in memory.
func NewMemIndex() (*Index, error) {
	idx, err := bleve.NewMemOnly(buildMapping())
	if err != nil {
		return nil, err
	}
	return &Index{Index: idx}, nil
}

func docID(projectID, imageID string) string {
	return projectID + "/" + imageID
}

// DocumentFor flattens a record into its indexed form.
func DocumentFor(rec models.ImageRecord) Document {
	md := rec.Metadata
	return Document{
		Type:          "image",
		ProjectID:     rec.ProjectID,
		ImageID:       rec.ID,
		OriginalName:  rec.OriginalName,
		CurrentName:   rec.CurrentName,
		SuggestedName: strings.ReplaceAll(rec.SuggestedName, "_", " "),
		Title:         md.Title,
		Description:   firstNonEmpty(md.Description, rec.AIDescription),
		Category:      md.Category,
		Style:         md.Style,
		Mood:          md.Mood,
		Tags:          md.Tags,
		Colors:        md.Colors,
		Objects:       md.Objects,
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// IndexRecord adds or replaces rec in the index.
func (i *Index) IndexRecord(rec models.ImageRecord) error {
	if err := i.Index.Index(docID(rec.ProjectID, rec.ID), DocumentFor(rec)); err != nil {
		return fmt.Errorf("indexing %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteRecord removes a record. Missing records are not an error.
func (i *Index) DeleteRecord(projectID, imageID string) error {
	if err := i.Index.Delete(docID(projectID, imageID)); err != nil {
		return fmt.Errorf("removing %s from index: %w", imageID, err)
	}
	return nil
}

// Search runs a query-string query, optionally restricted to one project.
// An empty query matches everything.
func (i *Index) Search(q, projectID string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	var main query.Query
	if strings.TrimSpace(q) == "" {
		main = bleve.NewMatchAllQuery()
	} else {
		main = bleve.NewQueryStringQuery(q)
	}
	if projectID != "" {
		projectQuery := bleve.NewTermQuery(projectID)
		projectQuery.SetField("projectId")
		main = bleve.NewConjunctionQuery(main, projectQuery)
	}

	req := bleve.NewSearchRequestOptions(main, limit, 0, false)
	req.Fields = []string{"projectId", "imageId", "currentName"}
	res, err := i.Index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("searching %q: %w", q, err)
	}

	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := Hit{Score: h.Score}
		hit.ProjectID, hit.ImageID, _ = strings.Cut(h.ID, "/")
		if name, ok := h.Fields["currentName"].(string); ok {
			hit.CurrentName = name
		}
		hits = append(hits, hit)
	}
	return hits, nil
}
