package models

import (
	"time"
)

// Job types
const (
	JobTypeScan    = "scan"
	JobTypeAnalyze = "analyze"
	JobTypeRename  = "rename"
	JobTypeCleanup = "cleanup"
)

// Job and target statuses
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// IsTerminalJobStatus reports whether status can no longer change.
func IsTerminalJobStatus(status string) bool {
	switch status {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	}
	return false
}

// Job is one tracked pipeline run.
type Job struct {
	ID             string         `json:"id"`
	ProjectID      string         `json:"projectId"`
	ProjectName    string         `json:"projectName"`
	Type           string         `json:"type"`
	Status         string         `json:"status"`
	StatusMessage  string         `json:"statusMessage"`
	Targets        []Target       `json:"targets"`
	Errors         []string       `json:"errors"`
	Config         map[string]any `json:"config,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
	StartedAt      *time.Time     `json:"startedAt,omitempty"`
	CompletedAt    *time.Time     `json:"completedAt,omitempty"`
	DurationMs     *int64         `json:"durationMs,omitempty"`
	Progress       int            `json:"progress"`
	TotalItems     int            `json:"totalItems"`
	ProcessedItems int            `json:"processedItems"`
	SuccessCount   int            `json:"successCount"`
	ErrorCount     int            `json:"errorCount"`
}

// Target is the per-item progress entry inside a Job.
type Target struct {
	Name        string         `json:"name"`
	Status      string         `json:"status"`
	Error       string         `json:"error,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`
}

// Clone returns a deep copy of the job. Targets and Errors are never nil
// on the copy.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	out := *j
	out.StartedAt = cloneTime(j.StartedAt)
	out.CompletedAt = cloneTime(j.CompletedAt)
	if j.DurationMs != nil {
		d := *j.DurationMs
		out.DurationMs = &d
	}

	out.Targets = make([]Target, len(j.Targets))
	for i, t := range j.Targets {
		t.StartedAt = cloneTime(t.StartedAt)
		t.CompletedAt = cloneTime(t.CompletedAt)
		t.Data = cloneMap(t.Data)
		out.Targets[i] = t
	}
	out.Errors = append(make([]string, 0, len(j.Errors)), j.Errors...)
	out.Config = cloneMap(j.Config)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
