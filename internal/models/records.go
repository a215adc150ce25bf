package models

import (
	"time"
)

// Image record statuses
const (
	StatusScanned  = "scanned"
	StatusAnalyzed = "analyzed"
	StatusRenamed  = "renamed"
	StatusError    = "error"
)

var statusRank = map[string]int{
	StatusScanned:  1,
	StatusAnalyzed: 2,
	StatusRenamed:  3,
}

// ImageRecord is the tracked state of one physical file in a project.
type ImageRecord struct {
	ID               string     `json:"id"`
	ProjectID        string     `json:"projectId"`
	OriginalName     string     `json:"originalName"`
	CurrentName      string     `json:"currentName"`
	LocalPath        string     `json:"localPath"`
	ContentHash      string     `json:"contentHash"`
	Extension        string     `json:"extension"`
	Status           string     `json:"status"`
	SuggestedName    string     `json:"suggestedName,omitempty"`
	PatternCleanName string     `json:"patternCleanName,omitempty"`
	AIDescription    string     `json:"aiDescription,omitempty"`
	BlobURL          string     `json:"blobUrl,omitempty"`
	BlobPath         string     `json:"blobPath,omitempty"`
	DuplicateOf      []string   `json:"duplicateOf"`
	Metadata         Metadata   `json:"metadata"`
	SizeBytes        int64      `json:"sizeBytes"`
	CreatedAt        time.Time  `json:"createdAt"`
	ModifiedAt       time.Time  `json:"modifiedAt"`
	ScannedAt        time.Time  `json:"scannedAt"`
	AnalyzedAt       *time.Time `json:"analyzedAt,omitempty"`
	RenamedAt        *time.Time `json:"renamedAt,omitempty"`
	IsDuplicate      bool       `json:"isDuplicate"`
	Renamed          bool       `json:"renamed"`
}

// Advance moves the record to status. Transitions only go forward
// (scanned -> analyzed -> renamed); error is reachable from anywhere and
// any forward status is reachable from error.
func (r *ImageRecord) Advance(status string) {
	if status == StatusError || r.Status == StatusError || r.Status == "" {
		r.Status = status
		return
	}
	if statusRank[status] > statusRank[r.Status] {
		r.Status = status
	}
}

// Metadata is the free-form part of a record. Known fields are typed;
// anything else an analyzer returns lands in Extra.
type Metadata struct {
	Format        string         `json:"format,omitempty"`
	Title         string         `json:"title,omitempty"`
	Description   string         `json:"description,omitempty"`
	Category      string         `json:"category,omitempty"`
	Subcategory   string         `json:"subcategory,omitempty"`
	Style         string         `json:"style,omitempty"`
	Mood          string         `json:"mood,omitempty"`
	Model         string         `json:"model,omitempty"`
	AnalysisError string         `json:"analysisError,omitempty"`
	CategoryID    string         `json:"categoryId,omitempty"`
	StyleID       string         `json:"styleId,omitempty"`
	MoodID        string         `json:"moodId,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Colors        []string       `json:"colors,omitempty"`
	Objects       []string       `json:"objects,omitempty"`
	TagIDs        []string       `json:"tagIds,omitempty"`
	ColorIDs      []string       `json:"colorIds,omitempty"`
	Extra         map[string]any `json:"extra,omitempty"`
	Confidence    *float64       `json:"confidence,omitempty"`
	Width         int            `json:"width,omitempty"`
	Height        int            `json:"height,omitempty"`
}

// MergeMetadata returns base with every non-empty field of overlay applied on top.
// Extra is merged key by key.
func MergeMetadata(base, overlay Metadata) Metadata {
	out := base
	mergeString := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	mergeSlice := func(dst *[]string, v []string) {
		if len(v) > 0 {
			*dst = append([]string(nil), v...)
		}
	}

	mergeString(&out.Format, overlay.Format)
	mergeString(&out.Title, overlay.Title)
	mergeString(&out.Description, overlay.Description)
	mergeString(&out.Category, overlay.Category)
	mergeString(&out.Subcategory, overlay.Subcategory)
	mergeString(&out.Style, overlay.Style)
	mergeString(&out.Mood, overlay.Mood)
	mergeString(&out.Model, overlay.Model)
	mergeString(&out.AnalysisError, overlay.AnalysisError)
	mergeString(&out.CategoryID, overlay.CategoryID)
	mergeString(&out.StyleID, overlay.StyleID)
	mergeString(&out.MoodID, overlay.MoodID)
	mergeSlice(&out.Tags, overlay.Tags)
	mergeSlice(&out.Colors, overlay.Colors)
	mergeSlice(&out.Objects, overlay.Objects)
	mergeSlice(&out.TagIDs, overlay.TagIDs)
	mergeSlice(&out.ColorIDs, overlay.ColorIDs)

	if overlay.Confidence != nil {
		c := *overlay.Confidence
		out.Confidence = &c
	}
	if overlay.Width > 0 {
		out.Width = overlay.Width
	}
	if overlay.Height > 0 {
		out.Height = overlay.Height
	}

	if len(base.Extra) > 0 || len(overlay.Extra) > 0 {
		out.Extra = make(map[string]any, len(base.Extra)+len(overlay.Extra))
		for k, v := range base.Extra {
			out.Extra[k] = v
		}
		for k, v := range overlay.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Project is a named folder of images tracked together.
type Project struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	FolderPath     string    `json:"folderPath"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	ImageCount     int       `json:"imageCount"`
	AnalyzedCount  int       `json:"analyzedCount"`
	RenamedCount   int       `json:"renamedCount"`
	DuplicateCount int       `json:"duplicateCount"`
}

// Taxonomy types
const (
	TaxonomyTag      = "tag"
	TaxonomyColor    = "color"
	TaxonomyCategory = "category"
	TaxonomyStyle    = "style"
	TaxonomyMood     = "mood"
)

// TaxonomyEntry is a canonical label shared across images.
type TaxonomyEntry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
