// Package jobs tracks pipeline runs and their per-item progress.
package jobs

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go-image-organizer/internal/database"
	"go-image-organizer/internal/models"
)

// Persister is where the tracker writes jobs through to. store.JobStore
// satisfies it.
type Persister interface {
	Put(job *models.Job) error
	Get(id string) (*models.Job, error)
	Delete(id string) error
	List() ([]*models.Job, error)
}

// Tracker owns every Job's state machine:
//
//	pending -> running -> completed | failed
//	pending | running -> cancelled
//
// Terminal jobs are never mutated again. Unknown ids are reported with a
// false second return value, never an error.
type Tracker struct {
	mu      sync.RWMutex
	jobs    map[string]*models.Job
	persist Persister
	now     func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithPersister enables write-through persistence.
func WithPersister(p Persister) Option {
	return func(t *Tracker) { t.persist = p }
}

func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		jobs: make(map[string]*models.Job),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Load pulls persisted jobs into memory. Jobs already known are kept as is.
func (t *Tracker) Load() (int, error) {
	if t.persist == nil {
		return 0, nil
	}
	stored, err := t.persist.List()
	if err != nil {
		return 0, fmt.Errorf("loading jobs: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	loaded := 0
	for _, job := range stored {
		if _, ok := t.jobs[job.ID]; ok {
			continue
		}
		normalize(job)
		t.jobs[job.ID] = job
		loaded++
	}
	log.Debugf("Loaded %d persisted jobs", loaded)
	return loaded, nil
}

// CreateJob registers a new pending job.
func (t *Tracker) CreateJob(projectID, projectName, jobType string, totalItems int, config map[string]any) *models.Job {
	now := t.now()
	job := &models.Job{
		ID:          fmt.Sprintf("job_%d_%s", now.UnixMilli(), uuid.NewString()[:8]),
		ProjectID:   projectID,
		ProjectName: projectName,
		Type:        jobType,
		Status:      models.JobPending,
		TotalItems:  totalItems,
		CreatedAt:   now,
		Targets:     []models.Target{},
		Errors:      []string{},
		Config:      config,
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.jobs[job.ID] = job
	t.save(job)

	log.WithFields(log.Fields{
		"job":     job.ID,
		"type":    jobType,
		"project": projectID,
		"total":   totalItems,
	}).Info("Job created")
	return job.Clone()
}

// StartJob moves a pending job to running.
func (t *Tracker) StartJob(id string) (*models.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.lookup(id)
	if !ok {
		return nil, false
	}
	if job.Status == models.JobPending {
		now := t.now()
		job.Status = models.JobRunning
		job.StartedAt = &now
		t.save(job)
	}
	return job.Clone(), true
}

// TargetUpdate is the per-item part of a ProgressUpdate.
type TargetUpdate struct {
	Name   string
	Status string
	Error  string
	Data   map[string]any
}

// ProgressUpdate carries optional changes; nil fields are left alone.
type ProgressUpdate struct {
	ProcessedItems *int
	SuccessCount   *int
	ErrorCount     *int
	StatusMessage  *string
	CurrentTarget  *TargetUpdate
}

// UpdateProgress applies u to a non-terminal job.
func (t *Tracker) UpdateProgress(id string, u ProgressUpdate) (*models.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.lookup(id)
	if !ok {
		return nil, false
	}
	if models.IsTerminalJobStatus(job.Status) {
		return job.Clone(), true
	}

	now := t.now()
	if u.ProcessedItems != nil {
		job.ProcessedItems = *u.ProcessedItems
	}
	if u.SuccessCount != nil {
		job.SuccessCount = *u.SuccessCount
	}
	if u.ErrorCount != nil {
		job.ErrorCount = *u.ErrorCount
	}
	if u.StatusMessage != nil {
		job.StatusMessage = *u.StatusMessage
	}
	job.Progress = computeProgress(job.ProcessedItems, job.TotalItems)

	if u.CurrentTarget != nil && u.CurrentTarget.Name != "" {
		upsertTarget(job, *u.CurrentTarget, now)
	}

	t.save(job)
	return job.Clone(), true
}

func upsertTarget(job *models.Job, u TargetUpdate, now time.Time) {
	idx := -1
	for i := range job.Targets {
		if job.Targets[i].Name == u.Name {
			idx = i
			break
		}
	}
	if idx < 0 {
		started := now
		job.Targets = append(job.Targets, models.Target{
			Name:      u.Name,
			Status:    models.JobRunning,
			StartedAt: &started,
		})
		idx = len(job.Targets) - 1
	}

	target := &job.Targets[idx]
	if u.Status != "" {
		target.Status = u.Status
	}
	if u.Error != "" {
		target.Error = u.Error
		job.Errors = append(job.Errors, fmt.Sprintf("%s: %s", u.Name, u.Error))
	}
	if len(u.Data) > 0 {
		if target.Data == nil {
			target.Data = make(map[string]any, len(u.Data))
		}
		for k, v := range u.Data {
			target.Data[k] = v
		}
	}
	if (target.Status == models.JobCompleted || target.Status == models.JobFailed) && target.CompletedAt == nil {
		done := now
		target.CompletedAt = &done
	}
}

// CompleteOptions finalizes a job. Status must be completed or failed;
// anything else is treated as completed.
type CompleteOptions struct {
	Status        string
	StatusMessage string
}

// CompleteJob moves a job to a terminal state.
func (t *Tracker) CompleteJob(id string, opts CompleteOptions) (*models.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.lookup(id)
	if !ok {
		return nil, false
	}
	if models.IsTerminalJobStatus(job.Status) {
		return job.Clone(), true
	}

	status := opts.Status
	if status != models.JobFailed {
		status = models.JobCompleted
	}
	now := t.now()
	job.Status = status
	job.CompletedAt = &now
	job.Progress = 100
	if job.StartedAt != nil {
		d := now.Sub(*job.StartedAt).Milliseconds()
		job.DurationMs = &d
	}
	if opts.StatusMessage != "" {
		job.StatusMessage = opts.StatusMessage
	} else {
		job.StatusMessage = fmt.Sprintf("Completed: %d succeeded, %d failed", job.SuccessCount, job.ErrorCount)
	}
	t.save(job)

	log.WithFields(log.Fields{
		"job":       job.ID,
		"status":    job.Status,
		"succeeded": job.SuccessCount,
		"failed":    job.ErrorCount,
	}).Info("Job finished")
	return job.Clone(), true
}

// GetJob returns a copy of the job.
func (t *Tracker) GetJob(id string) (*models.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.lookup(id)
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// Filter narrows ListJobs. Zero values match everything.
type Filter struct {
	ProjectID string
	Status    string
	Type      string
	Limit     int
}

// ListJobs returns matching jobs newest first.
func (t *Tracker) ListJobs(f Filter) []*models.Job {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*models.Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		if f.ProjectID != "" && job.ProjectID != f.ProjectID {
			continue
		}
		if f.Status != "" && job.Status != f.Status {
			continue
		}
		if f.Type != "" && job.Type != f.Type {
			continue
		}
		out = append(out, job.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

func (t *Tracker) ListJobsByProject(projectID string) []*models.Job {
	return t.ListJobs(Filter{ProjectID: projectID})
}

func (t *Tracker) ListAllJobs() []*models.Job {
	return t.ListJobs(Filter{})
}

// CancelOrRemove cancels a pending or running job. With remove set the job
// is deleted afterwards whatever its status; the returned copy is its
// final state.
func (t *Tracker) CancelOrRemove(id string, remove bool) (*models.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.lookup(id)
	if !ok {
		return nil, false
	}
	if !models.IsTerminalJobStatus(job.Status) {
		now := t.now()
		job.Status = models.JobCancelled
		job.CompletedAt = &now
		if job.StartedAt != nil {
			d := now.Sub(*job.StartedAt).Milliseconds()
			job.DurationMs = &d
		}
		job.StatusMessage = fmt.Sprintf("Cancelled after %d of %d items", job.ProcessedItems, job.TotalItems)
		t.save(job)
		log.WithField("job", id).Info("Job cancelled")
	}

	final := job.Clone()
	if remove {
		delete(t.jobs, id)
		if t.persist != nil {
			if err := t.persist.Delete(id); err != nil && !errors.Is(err, database.ErrNotFound) {
				log.WithError(err).WithField("job", id).Warn("Failed to delete persisted job")
			}
		}
		log.WithField("job", id).Info("Job removed")
	}
	return final, true
}

// IsCancelled reports whether the job has been cancelled, here or by
// another process sharing the same job store.
func (t *Tracker) IsCancelled(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	job, ok := t.jobs[id]
	if !ok {
		return false
	}
	if !models.IsTerminalJobStatus(job.Status) {
		t.syncCancellation(job)
	}
	return job.Status == models.JobCancelled
}

// lookup falls back to the persister for jobs created by another process.
// Must be called with t.mu held.
func (t *Tracker) lookup(id string) (*models.Job, bool) {
	if job, ok := t.jobs[id]; ok {
		return job, true
	}
	if t.persist == nil {
		return nil, false
	}
	job, err := t.persist.Get(id)
	if err != nil {
		if !errors.Is(err, database.ErrNotFound) {
			log.WithError(err).WithField("job", id).Warn("Failed to read persisted job")
		}
		return nil, false
	}
	normalize(job)
	t.jobs[id] = job
	return job, true
}

// syncCancellation adopts a cancellation written by another process.
// Must be called with t.mu held.
func (t *Tracker) syncCancellation(job *models.Job) bool {
	if t.persist == nil {
		return false
	}
	stored, err := t.persist.Get(job.ID)
	if err != nil || stored.Status != models.JobCancelled {
		return false
	}
	job.Status = models.JobCancelled
	job.CompletedAt = stored.CompletedAt
	if job.CompletedAt == nil {
		now := t.now()
		job.CompletedAt = &now
	}
	if job.StartedAt != nil {
		d := job.CompletedAt.Sub(*job.StartedAt).Milliseconds()
		job.DurationMs = &d
	}
	job.StatusMessage = stored.StatusMessage
	log.WithField("job", job.ID).Info("Job was cancelled externally")
	return true
}

// save writes job through to the persister. Failures are logged and
// swallowed so a flaky store never stalls a pipeline. Must be called with
// t.mu held.
func (t *Tracker) save(job *models.Job) {
	if t.persist == nil {
		return
	}
	if !models.IsTerminalJobStatus(job.Status) {
		// don't overwrite a cancel issued elsewhere
		t.syncCancellation(job)
	}
	if err := t.persist.Put(job); err != nil {
		log.WithError(err).WithField("job", job.ID).Warn("Failed to persist job")
	}
}

func normalize(job *models.Job) {
	if job.Targets == nil {
		job.Targets = []models.Target{}
	}
	if job.Errors == nil {
		job.Errors = []string{}
	}
}

// computeProgress is round(100*processed/total) clamped to [0,100]. With no
// items there is nothing to measure, so progress stays 0 until completion.
func computeProgress(processed, total int) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(100 * float64(processed) / float64(total)))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
