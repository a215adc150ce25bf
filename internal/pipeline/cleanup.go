package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sort"

	log "github.com/sirupsen/logrus"

	"go-image-organizer/internal/blob"
	"go-image-organizer/internal/database"
	"go-image-organizer/internal/fileops"
	"go-image-organizer/internal/hashindex"
	"go-image-organizer/internal/models"
)

// CleanupRequest describes one duplicate cleanup run.
type CleanupRequest struct {
	ProjectID string
}

// Cleanup keeps one record per content hash, the one with the smallest
// original name, and deletes the rest: local file, blob object and record.
func (s *Service) Cleanup(ctx context.Context, req CleanupRequest) (*models.Job, error) {
	p, err := s.project(req.ProjectID)
	if err != nil {
		return nil, err
	}
	records, err := s.Records.List(p.ID)
	if err != nil {
		return nil, fmt.Errorf("listing records of %s: %w", p.ID, err)
	}

	victims := duplicatesToRemove(records)
	names := make([]string, len(victims))
	for i, v := range victims {
		names[i] = v.OriginalName
	}

	job := s.createJob(p, models.JobTypeCleanup, len(victims), map[string]any{
		"remove": names,
	})
	prog := newProgress(s.Tracker, job.ID)

	for _, v := range victims {
		if s.stopRequested(ctx, job.ID) {
			break
		}
		prog.begin(v.CurrentName)
		if err := s.removeImage(ctx, p.ID, v.ID, false); err != nil {
			log.WithError(err).WithField("image", v.ID).Warn("Duplicate removal failed")
			prog.fail(v.CurrentName, err)
			continue
		}
		prog.ok(v.CurrentName, map[string]any{"contentHash": v.ContentHash})
	}

	s.refreshDuplicateFlags(p.ID)
	s.refreshProjectCounts(p.ID)
	return s.finish(prog, fmt.Sprintf("Removed %d duplicates, %d failed", prog.success, prog.failed)), nil
}

// duplicatesToRemove returns every record that is not its group's primary,
// ordered by original name.
func duplicatesToRemove(records []models.ImageRecord) []models.ImageRecord {
	entries := make([]hashindex.Entry, len(records))
	for i, r := range records {
		entries[i] = hashindex.Entry{Name: r.OriginalName, Hash: r.ContentHash}
	}
	groups := hashindex.GroupDuplicates(entries)

	var victims []models.ImageRecord
	kept := make(map[string]bool, len(groups))
	for _, r := range records {
		group, dup := groups[r.ContentHash]
		if !dup {
			continue
		}
		// Two records can share an original name and hash; only the
		// first of those is the primary.
		if r.OriginalName == hashindex.Primary(group) && !kept[r.ContentHash] {
			kept[r.ContentHash] = true
			continue
		}
		victims = append(victims, r)
	}
	sort.SliceStable(victims, func(i, j int) bool {
		return victims[i].OriginalName < victims[j].OriginalName
	})
	return victims
}

// DeleteImage removes one image. With keepFiles the local file and blob
// object stay in place and only the record goes.
func (s *Service) DeleteImage(ctx context.Context, projectID, imageID string, keepFiles bool) error {
	if _, err := s.project(projectID); err != nil {
		return err
	}
	if err := s.removeImage(ctx, projectID, imageID, keepFiles); err != nil {
		return err
	}
	s.refreshDuplicateFlags(projectID)
	s.refreshProjectCounts(projectID)
	return nil
}

// removeImage deletes the local file and blob object first, then the
// record, so a failure never leaves a record pointing at nothing while
// the file lives on.
func (s *Service) removeImage(ctx context.Context, projectID, id string, keepFiles bool) error {
	unlock := s.locks.Lock(imageKey(projectID, id))
	defer unlock()

	rec, err := s.Records.Get(projectID, id)
	if errors.Is(err, database.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrImageNotFound, id)
	} else if err != nil {
		return err
	}

	if !keepFiles {
		if err := fileops.Remove(rec.LocalPath); err != nil {
			return err
		}
		if rec.BlobPath != "" {
			if s.Blob == nil {
				log.WithField("path", rec.BlobPath).Warn("Blob storage not configured, leaving object in place")
			} else if err := s.Blob.Delete(ctx, rec.BlobPath); err != nil && !errors.Is(err, blob.ErrNotFound) {
				return fmt.Errorf("deleting blob %s: %w", rec.BlobPath, err)
			}
		}
	}

	if err := s.Records.Delete(projectID, id); err != nil {
		return fmt.Errorf("deleting record %s: %w", id, err)
	}
	s.unindexRecord(projectID, id)
	log.WithFields(log.Fields{"image": id, "file": rec.CurrentName, "keepFiles": keepFiles}).Info("Deleted image")
	return nil
}
