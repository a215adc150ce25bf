// Package store maps the domain documents (records, projects, jobs and
// taxonomy entries) onto a database.KV.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"go-image-organizer/internal/database"
	"go-image-organizer/internal/models"
)

// ErrNotFound aliases the database sentinel so callers need only one import.
var ErrNotFound = database.ErrNotFound

// projectSegment escapes a project id for use as one key segment, so
// project "a" never shares a prefix with project "a/b".
func projectSegment(projectID string) string {
	return url.PathEscape(projectID)
}

func recordPrefix(projectID string) []byte {
	return []byte("record/" + projectSegment(projectID) + "/")
}

func recordKey(projectID, id string) []byte {
	return []byte("record/" + projectSegment(projectID) + "/" + id)
}

func projectKey(id string) []byte {
	return []byte("project/" + id)
}

func jobKey(id string) []byte {
	return []byte("job/" + id)
}

func taxonomyPrefix(typ string) []byte {
	return []byte("taxonomy/" + typ + "/")
}

func taxonomyKey(typ, name string) []byte {
	return []byte("taxonomy/" + typ + "/" + name)
}

func getJSON(db database.KV, key []byte, v any) error {
	data, err := db.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding %s: %w", key, err)
	}
	return nil
}

func putJSON(db database.KV, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return db.Put(key, data)
}

// RecordStore persists ImageRecords keyed by (projectID, id).
type RecordStore struct {
	db database.KV
	mu sync.Mutex
}

func NewRecordStore(db database.KV) *RecordStore {
	return &RecordStore{db: db}
}

// List returns every record of a project sorted by original name.
func (s *RecordStore) List(projectID string) ([]models.ImageRecord, error) {
	var records []models.ImageRecord
	err := s.db.Scan(recordPrefix(projectID), func(key, value []byte) error {
		var rec models.ImageRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			log.WithError(err).Warnf("Skipping undecodable record %s", key)
			return nil
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].OriginalName < records[j].OriginalName
	})
	return records, nil
}

// Get returns ErrNotFound when the record does not exist.
func (s *RecordStore) Get(projectID, id string) (*models.ImageRecord, error) {
	var rec models.ImageRecord
	if err := getJSON(s.db, recordKey(projectID, id), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Put upserts the full record.
func (s *RecordStore) Put(projectID string, rec models.ImageRecord) error {
	rec.ProjectID = projectID
	return putJSON(s.db, recordKey(projectID, rec.ID), rec)
}

// PutMany upserts every record, stopping at the first failure.
func (s *RecordStore) PutMany(projectID string, records []models.ImageRecord) error {
	for _, rec := range records {
		if err := s.Put(projectID, rec); err != nil {
			return fmt.Errorf("storing record %s: %w", rec.ID, err)
		}
	}
	return nil
}

// Update applies fn to the stored record and writes the result back. If fn
// returns an error nothing is written.
func (s *RecordStore) Update(projectID, id string, fn func(*models.ImageRecord) error) (*models.ImageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.Get(projectID, id)
	if err != nil {
		return nil, err
	}
	if err := fn(rec); err != nil {
		return nil, err
	}
	if err := s.Put(projectID, *rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *RecordStore) Delete(projectID, id string) error {
	return s.db.Delete(recordKey(projectID, id))
}

// Clear deletes every record of a project and returns how many were removed.
func (s *RecordStore) Clear(projectID string) (int, error) {
	var keys [][]byte
	err := s.db.Scan(recordPrefix(projectID), func(key, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return 0, err
	}
	count := 0
	for _, key := range keys {
		if err := s.db.Delete(key); err != nil && !errors.Is(err, database.ErrNotFound) {
			return count, fmt.Errorf("deleting %s: %w", key, err)
		}
		count++
	}
	return count, nil
}

// ProjectStore persists Project aggregates.
type ProjectStore struct {
	db database.KV
	mu sync.Mutex
}

func NewProjectStore(db database.KV) *ProjectStore {
	return &ProjectStore{db: db}
}

func (s *ProjectStore) Get(id string) (*models.Project, error) {
	var p models.Project
	if err := getJSON(s.db, projectKey(id), &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *ProjectStore) Put(p models.Project) error {
	return putJSON(s.db, projectKey(p.ID), p)
}

// List returns all projects sorted by name.
func (s *ProjectStore) List() ([]models.Project, error) {
	var projects []models.Project
	err := s.db.Scan([]byte("project/"), func(key, value []byte) error {
		var p models.Project
		if err := json.Unmarshal(value, &p); err != nil {
			log.WithError(err).Warnf("Skipping undecodable project %s", key)
			return nil
		}
		projects = append(projects, p)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool { return projects[i].Name < projects[j].Name })
	return projects, nil
}

// Update applies fn to the stored project under a lock.
func (s *ProjectStore) Update(id string, fn func(*models.Project)) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	fn(p)
	p.UpdatedAt = time.Now()
	if err := s.Put(*p); err != nil {
		return nil, err
	}
	return p, nil
}

// Taxonomy is the shared registry of tag, color, category, style and mood
// labels.
type Taxonomy struct {
	db  database.KV
	mu  sync.Mutex
	now func() time.Time
}

func NewTaxonomy(db database.KV) *Taxonomy {
	return &Taxonomy{db: db, now: time.Now}
}

// GetOrCreate returns the entry with exactly this name and type, creating
// it on first use. Matching is case-sensitive.
func (t *Taxonomy) GetOrCreate(typ, name string) (*models.TaxonomyEntry, error) {
	if name == "" {
		return nil, errors.New("taxonomy name is empty")
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	key := taxonomyKey(typ, name)
	var entry models.TaxonomyEntry
	err := getJSON(t.db, key, &entry)
	if err == nil {
		return &entry, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	entry = models.TaxonomyEntry{
		ID:        uuid.NewString(),
		Type:      typ,
		Name:      name,
		CreatedAt: t.now(),
	}
	if err := putJSON(t.db, key, entry); err != nil {
		return nil, err
	}
	log.WithFields(log.Fields{"type": typ, "name": name}).Debug("Created taxonomy entry")
	return &entry, nil
}

// List returns every entry of one type sorted by name.
func (t *Taxonomy) List(typ string) ([]models.TaxonomyEntry, error) {
	var entries []models.TaxonomyEntry
	err := t.db.Scan(taxonomyPrefix(typ), func(key, value []byte) error {
		var e models.TaxonomyEntry
		if err := json.Unmarshal(value, &e); err != nil {
			return fmt.Errorf("decoding %s: %w", key, err)
		}
		entries = append(entries, e)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// JobStore persists jobs for the tracker.
type JobStore struct {
	db database.KV
}

func NewJobStore(db database.KV) *JobStore {
	return &JobStore{db: db}
}

func (s *JobStore) Put(job *models.Job) error {
	return putJSON(s.db, jobKey(job.ID), job)
}

func (s *JobStore) Get(id string) (*models.Job, error) {
	var job models.Job
	if err := getJSON(s.db, jobKey(id), &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobStore) Delete(id string) error {
	return s.db.Delete(jobKey(id))
}

// List returns every persisted job in no particular order.
func (s *JobStore) List() ([]*models.Job, error) {
	var jobs []*models.Job
	err := s.db.Scan([]byte("job/"), func(key, value []byte) error {
		var job models.Job
		if err := json.Unmarshal(value, &job); err != nil {
			log.WithError(err).Warnf("Skipping undecodable job %s", key)
			return nil
		}
		jobs = append(jobs, &job)
		return nil
	})
	return jobs, err
}
