// Package pipeline runs the scan, analyze, rename and cleanup batches over a
// project's images and reports their progress through the job tracker.
//
// Every run is sequential over its items. Cancellation is cooperative: the
// loop checks the job's status before each item and stops once it reads
// cancelled, leaving processed items as they are.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"go-image-organizer/internal/analyzer"
	"go-image-organizer/internal/blob"
	"go-image-organizer/internal/database"
	"go-image-organizer/internal/hashindex"
	"go-image-organizer/internal/jobs"
	"go-image-organizer/internal/models"
	"go-image-organizer/internal/paths"
	"go-image-organizer/internal/store"
)

// Configuration errors. These are returned before a job is created.
var (
	ErrAnalyzerNotConfigured = errors.New("analyzer not configured")
	ErrFolderNotFound        = errors.New("folder not found")
	ErrBlobNotConfigured     = errors.New("blob storage not configured")
	ErrProjectNotFound       = errors.New("project not found")
	ErrInvalidStrategy       = errors.New("invalid rename strategy")
	ErrImageNotFound         = errors.New("image not found")
	ErrNoCandidateName       = errors.New("no suggested name available")
)

// Indexer keeps a search index in step with the record store.
type Indexer interface {
	IndexRecord(rec models.ImageRecord) error
	DeleteRecord(projectID, imageID string) error
}

// Deps are the collaborators a Service works with. Blob, Analyzer and
// Index are optional.
type Deps struct {
	Records  *store.RecordStore
	Projects *store.ProjectStore
	Taxonomy *store.Taxonomy
	Tracker  *jobs.Tracker
	Blob     blob.Store
	Analyzer analyzer.Analyzer
	Index    Indexer
}

// Options tune a Service.
type Options struct {
	Extensions           []string
	HashAlgorithm        string
	BlobPathPattern      string
	RenameStrategy       string
	MaxCollisionAttempts int
	// AnalyzeTimeout bounds each analyzer call. Zero means no deadline.
	AnalyzeTimeout time.Duration
	// JobCreated, when set, is called with each job right after creation,
	// before any item is processed.
	JobCreated func(job *models.Job)
	Now        func() time.Time
}

// Service runs pipelines.
type Service struct {
	Deps
	opts   Options
	hasher *hashindex.Hasher
	locks  *keyedMutex
}

// NewService validates opts and fills in defaults.
func NewService(deps Deps, opts Options) (*Service, error) {
	if deps.Records == nil || deps.Projects == nil || deps.Taxonomy == nil || deps.Tracker == nil {
		return nil, errors.New("pipeline needs record, project, taxonomy stores and a job tracker")
	}
	hasher, err := hashindex.NewHasher(opts.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	if len(opts.Extensions) == 0 {
		opts.Extensions = models.DefaultExtensions
	}
	if opts.BlobPathPattern == "" {
		opts.BlobPathPattern = paths.DefaultBlobPattern
	}
	if err := paths.ValidatePattern(opts.BlobPathPattern); err != nil {
		return nil, err
	}
	if opts.RenameStrategy == "" {
		opts.RenameStrategy = models.StrategyAI
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Service{
		Deps:   deps,
		opts:   opts,
		hasher: hasher,
		locks:  newKeyedMutex(),
	}, nil
}

func (s *Service) now() time.Time {
	return s.opts.Now()
}

func (s *Service) project(projectID string) (*models.Project, error) {
	p, err := s.Projects.Get(projectID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrProjectNotFound, projectID)
	}
	return p, err
}

func (s *Service) createJob(p *models.Project, jobType string, total int, config map[string]any) *models.Job {
	job := s.Tracker.CreateJob(p.ID, p.Name, jobType, total, config)
	if s.opts.JobCreated != nil {
		s.opts.JobCreated(job)
	}
	s.Tracker.StartJob(job.ID)
	return job
}

// stopRequested is checked before every item. A cancelled context is
// turned into a job cancellation so both paths end the same way.
func (s *Service) stopRequested(ctx context.Context, jobID string) bool {
	if s.Tracker.IsCancelled(jobID) {
		return true
	}
	if ctx.Err() != nil {
		s.Tracker.CancelOrRemove(jobID, false)
		return true
	}
	return false
}

// finish completes the job. It fails only when every processed item failed.
func (s *Service) finish(p *progress, message string) *models.Job {
	status := models.JobCompleted
	if p.processed > 0 && p.success == 0 {
		status = models.JobFailed
	}
	job, ok := s.Tracker.CompleteJob(p.jobID, jobs.CompleteOptions{Status: status, StatusMessage: message})
	if !ok {
		// removed while running
		return &models.Job{ID: p.jobID, Status: models.JobCancelled, Targets: []models.Target{}, Errors: []string{}}
	}
	return job
}

func (s *Service) indexRecord(rec models.ImageRecord) {
	if s.Index == nil {
		return
	}
	if err := s.Index.IndexRecord(rec); err != nil {
		log.WithError(err).WithField("image", rec.ID).Warn("Failed to index record")
	}
}

func (s *Service) unindexRecord(projectID, id string) {
	if s.Index == nil {
		return
	}
	if err := s.Index.DeleteRecord(projectID, id); err != nil {
		log.WithError(err).WithField("image", id).Warn("Failed to remove record from index")
	}
}

// blobPathFor renders the object path for a file of project p.
func (s *Service) blobPathFor(p *models.Project, filename string) (string, error) {
	return paths.BlobPath(s.opts.BlobPathPattern, p.Name, filename)
}

// siblingBlobPath is the object path a renamed file gets: same folder as
// the old object, new file name.
func siblingBlobPath(oldPath, filename string) string {
	dir := path.Dir(oldPath)
	if dir == "." {
		return filename
	}
	return dir + "/" + filename
}

// refreshProjectCounts recomputes every aggregate from the stored records.
func (s *Service) refreshProjectCounts(projectID string) {
	records, err := s.Records.List(projectID)
	if err != nil {
		log.WithError(err).WithField("project", projectID).Warn("Failed to list records for project counts")
		return
	}
	_, err = s.Projects.Update(projectID, func(p *models.Project) {
		p.ImageCount = len(records)
		p.AnalyzedCount, p.RenamedCount, p.DuplicateCount = 0, 0, 0
		for _, r := range records {
			if r.SuggestedName != "" {
				p.AnalyzedCount++
			}
			if r.Renamed {
				p.RenamedCount++
			}
			if r.IsDuplicate {
				p.DuplicateCount++
			}
		}
	})
	if err != nil {
		log.WithError(err).WithField("project", projectID).Warn("Failed to update project counts")
	}
}

// bumpProjectCount adds delta to one aggregate, capped at ImageCount.
func (s *Service) bumpProjectCount(projectID string, delta int, field func(*models.Project) *int) {
	if delta == 0 {
		return
	}
	_, err := s.Projects.Update(projectID, func(p *models.Project) {
		v := field(p)
		*v += delta
		if *v > p.ImageCount {
			*v = p.ImageCount
		}
	})
	if err != nil {
		log.WithError(err).WithField("project", projectID).Warn("Failed to update project counts")
	}
}

// refreshDuplicateFlags recomputes isDuplicate/duplicateOf over the
// project's remaining records and writes back the ones that changed.
func (s *Service) refreshDuplicateFlags(projectID string) {
	records, err := s.Records.List(projectID)
	if err != nil {
		log.WithError(err).WithField("project", projectID).Warn("Failed to list records for duplicate flags")
		return
	}
	before := make(map[string]string, len(records))
	for _, r := range records {
		before[r.ID] = fmt.Sprint(r.IsDuplicate, r.DuplicateOf)
	}
	markDuplicates(records)
	for _, rec := range records {
		if before[rec.ID] == fmt.Sprint(rec.IsDuplicate, rec.DuplicateOf) {
			continue
		}
		_, err := s.Records.Update(projectID, rec.ID, func(stored *models.ImageRecord) error {
			stored.IsDuplicate = rec.IsDuplicate
			stored.DuplicateOf = rec.DuplicateOf
			return nil
		})
		if err != nil && !errors.Is(err, database.ErrNotFound) {
			log.WithError(err).WithField("image", rec.ID).Warn("Failed to update duplicate flags")
		}
	}
}

// markDuplicates sets the duplicate flags on records in place. Groups are
// keyed by content hash and named by original name.
func markDuplicates(records []models.ImageRecord) {
	entries := make([]hashindex.Entry, len(records))
	for i, r := range records {
		entries[i] = hashindex.Entry{Name: r.OriginalName, Hash: r.ContentHash}
	}
	groups := hashindex.GroupDuplicates(entries)
	for i := range records {
		group, dup := groups[records[i].ContentHash]
		records[i].IsDuplicate = dup
		if dup {
			records[i].DuplicateOf = hashindex.Siblings(group, records[i].OriginalName)
		} else {
			records[i].DuplicateOf = []string{}
		}
	}
}

func errorText(err error) string {
	return strings.TrimSpace(err.Error())
}
