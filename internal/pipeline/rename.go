package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"go-image-organizer/internal/blob"
	"go-image-organizer/internal/database"
	"go-image-organizer/internal/fileops"
	"go-image-organizer/internal/models"
	"go-image-organizer/internal/naming"
)

// RenameRequest describes one rename run.
type RenameRequest struct {
	ProjectID string
	ImageIDs  []string
	// All renames every record a candidate name resolves for. It is
	// implied when ImageIDs is empty.
	All bool
	// Strategy is "ai" (suggested names) or "pattern" (prefix cleaning).
	Strategy string
}

// Rename renames each image on disk, and its blob mirror when it has one,
// to the name the strategy resolves.
func (s *Service) Rename(ctx context.Context, req RenameRequest) (*models.Job, error) {
	strategy, err := s.strategy(req.Strategy)
	if err != nil {
		return nil, err
	}
	p, err := s.project(req.ProjectID)
	if err != nil {
		return nil, err
	}

	ids := req.ImageIDs
	if req.All || len(ids) == 0 {
		records, err := s.Records.List(p.ID)
		if err != nil {
			return nil, fmt.Errorf("listing records of %s: %w", p.ID, err)
		}
		ids = nil
		for _, r := range records {
			if candidateBase(&r, strategy) != "" {
				ids = append(ids, r.ID)
			}
		}
	}

	job := s.createJob(p, models.JobTypeRename, len(ids), map[string]any{
		"imageIds": ids,
		"strategy": strategy,
	})
	prog := newProgress(s.Tracker, job.ID)

	for _, id := range ids {
		if s.stopRequested(ctx, job.ID) {
			break
		}
		prog.begin(id)

		rec, err := s.renameOne(ctx, p.ID, id, func(r *models.ImageRecord) string {
			return candidateBase(r, strategy)
		})
		if err != nil {
			log.WithError(err).WithField("image", id).Warn("Rename failed")
			prog.fail(id, err)
			continue
		}
		prog.ok(id, map[string]any{"newName": rec.CurrentName})
	}

	s.bumpProjectCount(p.ID, prog.success, func(p *models.Project) *int { return &p.RenamedCount })
	return s.finish(prog, fmt.Sprintf("Renamed %d images, %d failed", prog.success, prog.failed)), nil
}

// RenameOne renames a single image to newBase (extension kept) and
// reports the outcome directly.
func (s *Service) RenameOne(ctx context.Context, projectID, imageID, newBase string) (*models.ImageRecord, error) {
	if _, err := s.project(projectID); err != nil {
		return nil, err
	}
	base := naming.Sanitize(strings.TrimSuffix(newBase, filepath.Ext(newBase)))
	var wasRenamed bool
	rec, err := s.renameOne(ctx, projectID, imageID, func(r *models.ImageRecord) string {
		wasRenamed = r.Renamed
		return base
	})
	if err != nil {
		return nil, err
	}
	if !wasRenamed {
		s.bumpProjectCount(projectID, 1, func(p *models.Project) *int { return &p.RenamedCount })
	}
	return rec, nil
}

func (s *Service) strategy(requested string) (string, error) {
	strategy := strings.ToLower(requested)
	if strategy == "" {
		strategy = s.opts.RenameStrategy
	}
	switch strategy {
	case models.StrategyAI, models.StrategyPattern:
		return strategy, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidStrategy, requested)
	}
}

// candidateBase is the sanitized base name the strategy resolves for r, or
// "" when there is none.
func candidateBase(r *models.ImageRecord, strategy string) string {
	switch strategy {
	case models.StrategyPattern:
		if r.PatternCleanName != "" {
			return naming.Sanitize(r.PatternCleanName)
		}
		if cleaned, ok := naming.PatternClean(r.OriginalName); ok {
			return naming.Sanitize(cleaned)
		}
		return ""
	default:
		if r.SuggestedName == "" {
			return ""
		}
		return naming.Sanitize(r.SuggestedName)
	}
}

// renameOne performs the local rename, mirrors it to blob storage and
// persists the record. Nothing is written to the store unless every step
// succeeded.
func (s *Service) renameOne(ctx context.Context, projectID, id string, baseFor func(*models.ImageRecord) string) (*models.ImageRecord, error) {
	unlock := s.locks.Lock(imageKey(projectID, id))
	defer unlock()

	// Re-read inside the lock so a concurrent rename of the same image is
	// seen.
	rec, err := s.Records.Get(projectID, id)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrImageNotFound, id)
	} else if err != nil {
		return nil, err
	}

	base := baseFor(rec)
	if base == "" {
		return nil, ErrNoCandidateName
	}
	if rec.BlobPath != "" && s.Blob == nil {
		return nil, fmt.Errorf("%w: %s has a blob mirror", ErrBlobNotConfigured, rec.CurrentName)
	}

	ext := rec.Extension
	if ext == "" {
		ext = strings.ToLower(filepath.Ext(rec.CurrentName))
	}
	dir := filepath.Dir(rec.LocalPath)
	namespaces := []naming.Namespace{naming.DirNamespace{Dir: dir}}
	if rec.BlobPath != "" {
		oldBlob := rec.BlobPath
		namespaces = append(namespaces, naming.BlobNamespace{
			Store:   s.Blob,
			PathFor: func(name string) string { return siblingBlobPath(oldBlob, name) },
		})
	}
	finalName, err := naming.ResolveCollision(ctx, base, ext, naming.ResolveOptions{
		Self:        rec.CurrentName,
		MaxAttempts: s.opts.MaxCollisionAttempts,
	}, namespaces...)
	if err != nil {
		return nil, err
	}

	oldPath := rec.LocalPath
	newPath := filepath.Join(dir, finalName)
	if err := fileops.RenameNoClobber(oldPath, newPath); err != nil {
		return nil, err
	}

	newBlob := rec.BlobPath
	if rec.BlobPath != "" && finalName != rec.CurrentName {
		newBlob = siblingBlobPath(rec.BlobPath, finalName)
		if err := moveBlob(ctx, s.Blob, rec.BlobPath, newBlob); err != nil {
			if rbErr := fileops.RenameNoClobber(newPath, oldPath); rbErr != nil {
				log.WithError(rbErr).WithField("file", newPath).Error("Failed to roll back local rename")
			}
			return nil, err
		}
	}

	now := s.now()
	updated, err := s.Records.Update(projectID, id, func(r *models.ImageRecord) error {
		r.CurrentName = finalName
		r.LocalPath = newPath
		if newBlob != "" {
			r.BlobPath = newBlob
			r.BlobURL = s.Blob.URL(newBlob)
		}
		r.Renamed = true
		r.RenamedAt = &now
		r.Advance(models.StatusRenamed)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("file renamed to %s but the record was not updated: %w", finalName, err)
	}

	log.WithFields(log.Fields{"image": id, "from": rec.CurrentName, "to": finalName}).Info("Renamed image")
	s.indexRecord(*updated)
	return updated, nil
}

// moveBlob copies src to dst, confirms dst exists and only then deletes
// src. A failed delete leaves both objects in place.
func moveBlob(ctx context.Context, store blob.Store, src, dst string) error {
	if err := store.Copy(ctx, src, dst); err != nil {
		return fmt.Errorf("copying blob %s: %w", src, err)
	}
	ok, err := store.Exists(ctx, dst)
	if err != nil {
		return fmt.Errorf("verifying blob %s: %w", dst, err)
	}
	if !ok {
		return fmt.Errorf("%w: copy of %s did not produce %s", blob.ErrNotFound, src, dst)
	}
	if err := store.Delete(ctx, src); err != nil {
		log.WithError(err).WithField("path", src).Warn("Failed to delete old blob after copy, both objects remain")
	}
	return nil
}
