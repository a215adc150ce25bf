package pipeline

import (
	"sync"

	"go-image-organizer/internal/jobs"
	"go-image-organizer/internal/models"
)

// progress tracks one run's counters and reports every change to the
// tracker.
type progress struct {
	tracker   *jobs.Tracker
	jobID     string
	processed int
	success   int
	failed    int
}

func newProgress(tracker *jobs.Tracker, jobID string) *progress {
	return &progress{tracker: tracker, jobID: jobID}
}

func (p *progress) begin(name string) {
	p.tracker.UpdateProgress(p.jobID, jobs.ProgressUpdate{
		CurrentTarget: &jobs.TargetUpdate{Name: name, Status: models.JobRunning},
	})
}

func (p *progress) ok(name string, data map[string]any) {
	p.processed++
	p.success++
	p.report(&jobs.TargetUpdate{Name: name, Status: models.JobCompleted, Data: data})
}

func (p *progress) fail(name string, err error) {
	p.processed++
	p.failed++
	p.report(&jobs.TargetUpdate{Name: name, Status: models.JobFailed, Error: errorText(err)})
}

func (p *progress) report(target *jobs.TargetUpdate) {
	processed, success, failed := p.processed, p.success, p.failed
	p.tracker.UpdateProgress(p.jobID, jobs.ProgressUpdate{
		ProcessedItems: &processed,
		SuccessCount:   &success,
		ErrorCount:     &failed,
		CurrentTarget:  target,
	})
}

// keyedMutex serializes work on the same key, here (projectID, imageID),
// across concurrent runs.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

// Lock blocks until key is free and returns the unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func imageKey(projectID, imageID string) string {
	return projectID + "/" + imageID
}
