package pipeline

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"go-image-organizer/internal/analyzer"
	"go-image-organizer/internal/database"
	"go-image-organizer/internal/fileops"
	"go-image-organizer/internal/models"
	"go-image-organizer/internal/naming"
)

// AnalyzeRequest describes one analyze run.
type AnalyzeRequest struct {
	ProjectID string
	// ImageIDs defaults to every record not analyzed yet.
	ImageIDs []string
	// Model is tried before the configured models.
	Model string
}

// Analyze sends each image to the analyzer and stores the suggested name
// and labels. A failed item is recorded on the record and the job, and
// the run moves on.
func (s *Service) Analyze(ctx context.Context, req AnalyzeRequest) (*models.Job, error) {
	if s.Analyzer == nil {
		return nil, ErrAnalyzerNotConfigured
	}
	p, err := s.project(req.ProjectID)
	if err != nil {
		return nil, err
	}

	ids := req.ImageIDs
	if len(ids) == 0 {
		records, err := s.Records.List(p.ID)
		if err != nil {
			return nil, fmt.Errorf("listing records of %s: %w", p.ID, err)
		}
		for _, r := range records {
			if r.Status == models.StatusScanned || r.SuggestedName == "" {
				ids = append(ids, r.ID)
			}
		}
	}

	job := s.createJob(p, models.JobTypeAnalyze, len(ids), map[string]any{
		"imageIds": ids,
		"model":    req.Model,
	})
	prog := newProgress(s.Tracker, job.ID)

	for _, id := range ids {
		if s.stopRequested(ctx, job.ID) {
			break
		}
		prog.begin(id)

		rec, err := s.analyzeOne(ctx, p.ID, id, req.Model)
		if err != nil {
			log.WithError(err).WithField("image", id).Warn("Analysis failed")
			prog.fail(id, err)
			continue
		}
		prog.ok(id, map[string]any{
			"suggestedName": rec.SuggestedName,
			"model":         rec.Metadata.Model,
		})
	}

	s.bumpProjectCount(p.ID, prog.success, func(p *models.Project) *int { return &p.AnalyzedCount })
	return s.finish(prog, fmt.Sprintf("Analyzed %d images, %d failed", prog.success, prog.failed)), nil
}

func (s *Service) analyzeOne(ctx context.Context, projectID, id, model string) (*models.ImageRecord, error) {
	unlock := s.locks.Lock(imageKey(projectID, id))
	defer unlock()

	rec, err := s.Records.Get(projectID, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, id)
	} else if err != nil {
		return nil, err
	}

	result, err := s.callAnalyzer(ctx, rec, model)
	if err != nil {
		s.recordAnalysisError(projectID, id, err)
		return nil, err
	}

	md := s.labelMetadata(result)
	now := s.now()
	updated, err := s.Records.Update(projectID, id, func(r *models.ImageRecord) error {
		r.SuggestedName = naming.NormalizeSuggestion(result.SuggestedName)
		if result.Description != "" {
			r.AIDescription = result.Description
		}
		r.Metadata = models.MergeMetadata(r.Metadata, md)
		r.Metadata.AnalysisError = ""
		r.AnalyzedAt = &now
		r.Advance(models.StatusAnalyzed)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing analysis: %w", err)
	}
	s.indexRecord(*updated)
	return updated, nil
}

func (s *Service) callAnalyzer(ctx context.Context, rec *models.ImageRecord, model string) (*analyzer.Result, error) {
	data, err := fileops.ReadFile(rec.LocalPath)
	if err != nil {
		return nil, err
	}

	callCtx := ctx
	if s.opts.AnalyzeTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, s.opts.AnalyzeTimeout)
		defer cancel()
	}
	result, err := s.Analyzer.Analyze(callCtx, analyzer.Request{
		Data:     data,
		MimeType: fileops.DetectMimeType(rec.CurrentName, data),
		Model:    model,
	})
	if err != nil {
		return nil, err
	}
	if naming.NormalizeSuggestion(result.SuggestedName) == "" {
		return nil, errors.New("analyzer returned no usable name")
	}
	if result.Degraded {
		log.WithField("image", rec.ID).Warn("Analyzer response was not valid JSON, used degraded parse")
	}
	return result, nil
}

func (s *Service) recordAnalysisError(projectID, id string, cause error) {
	_, err := s.Records.Update(projectID, id, func(r *models.ImageRecord) error {
		r.Metadata.AnalysisError = errorText(cause)
		r.Advance(models.StatusError)
		return nil
	})
	if err != nil {
		log.WithError(err).WithField("image", id).Warn("Failed to store analysis error")
	}
}

// labelMetadata maps a result onto metadata, resolving every label against
// the shared taxonomy. Registry failures only lose the id, never the label.
func (s *Service) labelMetadata(r *analyzer.Result) models.Metadata {
	confidence := r.Confidence
	md := models.Metadata{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Subcategory: r.Subcategory,
		Style:       r.Style,
		Mood:        r.Mood,
		Model:       r.Model,
		Tags:        r.Tags,
		Colors:      r.Colors,
		Objects:     r.Objects,
		Extra:       r.Extra,
		Confidence:  &confidence,
	}
	md.TagIDs = s.taxonomyIDs(models.TaxonomyTag, r.Tags)
	md.ColorIDs = s.taxonomyIDs(models.TaxonomyColor, r.Colors)
	md.CategoryID = s.taxonomyID(models.TaxonomyCategory, r.Category)
	md.StyleID = s.taxonomyID(models.TaxonomyStyle, r.Style)
	md.MoodID = s.taxonomyID(models.TaxonomyMood, r.Mood)
	return md
}

func (s *Service) taxonomyID(typ, name string) string {
	if name == "" {
		return ""
	}
	entry, err := s.Taxonomy.GetOrCreate(typ, name)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{"type": typ, "name": name}).Warn("Taxonomy lookup failed")
		return ""
	}
	return entry.ID
}

func (s *Service) taxonomyIDs(typ string, names []string) []string {
	var ids []string
	for _, n := range names {
		if id := s.taxonomyID(typ, n); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}
