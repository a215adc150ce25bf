package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"go-image-organizer/internal/database"
	"go-image-organizer/internal/fileops"
	"go-image-organizer/internal/hashindex"
	"go-image-organizer/internal/helpers"
	"go-image-organizer/internal/imagemeta"
	"go-image-organizer/internal/models"
	"go-image-organizer/internal/naming"
)

// ScanRequest describes one scan run.
type ScanRequest struct {
	// ProjectID defaults to a slug of ProjectName.
	ProjectID   string
	ProjectName string
	Folder      string
	// Upload mirrors every file into blob storage.
	Upload bool
}

type scanStats struct {
	uploaded int
	skipped  int
}

// Scan indexes every supported image in req.Folder into the project's
// records. Prior analysis and rename state is carried forward for files
// whose content is unchanged.
func (s *Service) Scan(ctx context.Context, req ScanRequest) (*models.Job, error) {
	folder, err := filepath.Abs(req.Folder)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFolderNotFound, req.Folder, err)
	}
	if info, err := os.Stat(folder); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrFolderNotFound, folder)
	}
	if req.Upload && s.Blob == nil {
		return nil, ErrBlobNotConfigured
	}
	files, err := fileops.ListImages(folder, s.opts.Extensions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFolderNotFound, err)
	}

	name := req.ProjectName
	if name == "" {
		name = filepath.Base(folder)
	}
	projectID := req.ProjectID
	if projectID == "" {
		projectID = helpers.ConvertToSlug(name)
	}
	if projectID == "" {
		return nil, errors.New("project name produces an empty project id")
	}

	p, err := s.ensureProject(projectID, name, folder)
	if err != nil {
		return nil, err
	}

	existing, err := s.Records.List(projectID)
	if err != nil {
		log.WithError(err).WithField("project", projectID).Warn("Could not load existing records, rescan will not merge prior analysis")
		existing = nil
	}
	priors := newPriorIndex(existing)

	job := s.createJob(p, models.JobTypeScan, len(files), map[string]any{
		"folder": folder,
		"upload": req.Upload,
	})
	prog := newProgress(s.Tracker, job.ID)
	stats := &scanStats{}
	records := make([]models.ImageRecord, 0, len(files))
	ids := make(idSet, len(files))
	cancelled := false

	for _, file := range files {
		if s.stopRequested(ctx, job.ID) {
			cancelled = true
			break
		}
		prog.begin(file)

		rec, data, err := s.scanFile(ctx, p, folder, file, req.Upload, stats)
		if err != nil {
			log.WithError(err).WithField("file", file).Warn("Scan failed for file")
			prog.fail(file, err)
			continue
		}
		if prior, ok := priors.take(rec.ContentHash, file); ok {
			mergeForward(rec, prior)
		}
		rec.ID = ids.claim(rec.ID)
		records = append(records, *rec)
		prog.ok(file, data)
	}

	markDuplicates(records)
	s.persistScan(projectID, existing, records, cancelled)
	s.refreshProjectCounts(projectID)

	duplicates := 0
	for _, r := range records {
		if r.IsDuplicate {
			duplicates++
		}
	}
	msg := fmt.Sprintf("Scanned %d images (uploaded %d, skipped %d, duplicates %d)", prog.success, stats.uploaded, stats.skipped, duplicates)
	return s.finish(prog, msg), nil
}

func (s *Service) ensureProject(id, name, folder string) (*models.Project, error) {
	p, err := s.Projects.Get(id)
	if err == nil {
		if p.Name != name || p.FolderPath != folder {
			return s.Projects.Update(id, func(p *models.Project) {
				p.Name = name
				p.FolderPath = folder
			})
		}
		return p, nil
	}
	if !errors.Is(err, database.ErrNotFound) {
		return nil, fmt.Errorf("loading project %s: %w", id, err)
	}

	now := s.now()
	p = &models.Project{ID: id, Name: name, FolderPath: folder, CreatedAt: now, UpdatedAt: now}
	if err := s.Projects.Put(*p); err != nil {
		return nil, fmt.Errorf("creating project %s: %w", id, err)
	}
	log.WithFields(log.Fields{"project": id, "folder": folder}).Info("Created project")
	return p, nil
}

// scanFile builds the fresh record for one file. Upload problems are
// logged and do not fail the file.
func (s *Service) scanFile(ctx context.Context, p *models.Project, folder, file string, upload bool, stats *scanStats) (*models.ImageRecord, map[string]any, error) {
	localPath := filepath.Join(folder, file)
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: stat %s: %v", fileops.ErrFileSystem, file, err)
	}
	data, err := fileops.ReadFile(localPath)
	if err != nil {
		return nil, nil, err
	}

	contentHash := s.hasher.Sum(data)
	ext := strings.ToLower(filepath.Ext(file))
	rec := &models.ImageRecord{
		ID:           hashindex.ImageID(contentHash, file),
		ProjectID:    p.ID,
		OriginalName: file,
		CurrentName:  file,
		LocalPath:    localPath,
		SizeBytes:    info.Size(),
		ContentHash:  contentHash,
		Extension:    ext,
		Status:       models.StatusScanned,
		DuplicateOf:  []string{},
		CreatedAt:    info.ModTime(),
		ModifiedAt:   info.ModTime(),
		ScannedAt:    s.now(),
	}
	if dims, ok := imagemeta.Dimensions(data); ok {
		rec.Metadata.Width = dims.Width
		rec.Metadata.Height = dims.Height
		rec.Metadata.Format = dims.Format
	} else if sniffed, ok := helpers.GetExtensionFromMimeType(fileops.DetectMimeType(file, data)); ok {
		rec.Metadata.Format = strings.TrimPrefix(sniffed, ".")
	}
	if cleaned, ok := naming.PatternClean(file); ok {
		rec.PatternCleanName = naming.Sanitize(cleaned)
	}

	result := map[string]any{"hash": contentHash, "size": info.Size()}
	if upload {
		s.uploadFile(ctx, p, rec, data, stats, result)
	}
	return rec, result, nil
}

func (s *Service) uploadFile(ctx context.Context, p *models.Project, rec *models.ImageRecord, data []byte, stats *scanStats, result map[string]any) {
	blobPath, err := s.blobPathFor(p, rec.CurrentName)
	if err != nil {
		log.WithError(err).WithField("file", rec.CurrentName).Warn("Cannot build blob path")
		result["uploadError"] = errorText(err)
		return
	}

	exists, err := s.Blob.Exists(ctx, blobPath)
	if err != nil {
		log.WithError(err).WithField("path", blobPath).Warn("Blob existence check failed")
		result["uploadError"] = errorText(err)
		return
	}
	if exists {
		stats.skipped++
		result["upload"] = "skipped"
	} else {
		contentType := fileops.DetectMimeType(rec.CurrentName, data)
		if err := s.Blob.Put(ctx, blobPath, data, contentType); err != nil {
			log.WithError(err).WithField("path", blobPath).Warn("Upload failed")
			result["uploadError"] = errorText(err)
			return
		}
		stats.uploaded++
		result["upload"] = "uploaded"
	}
	rec.BlobPath = blobPath
	rec.BlobURL = s.Blob.URL(blobPath)
}

// persistScan replaces the project's records with the scanned set. A
// cancelled scan only upserts what it processed and keeps the rest.
func (s *Service) persistScan(projectID string, previous, records []models.ImageRecord, cancelled bool) {
	if !cancelled {
		if _, err := s.Records.Clear(projectID); err != nil {
			log.WithError(err).WithField("project", projectID).Error("Failed to clear previous records")
		}
		kept := make(map[string]bool, len(records))
		for _, r := range records {
			kept[r.ID] = true
		}
		for _, r := range previous {
			if !kept[r.ID] {
				s.unindexRecord(projectID, r.ID)
			}
		}
	}
	if err := s.Records.PutMany(projectID, records); err != nil {
		log.WithError(err).WithField("project", projectID).Error("Failed to store scanned records")
	}
	for _, r := range records {
		if r.SuggestedName != "" || r.Renamed {
			s.indexRecord(r)
		}
	}
}

// idSet hands out unique record ids within one scan. Names that only
// differ in case or punctuation sanitize to the same id, so later files
// (in sorted order) get a numeric suffix.
type idSet map[string]bool

func (s idSet) claim(id string) string {
	unique := id
	for n := 2; s[unique]; n++ {
		unique = fmt.Sprintf("%s_%d", id, n)
	}
	s[unique] = true
	return unique
}

// priorIndex hands out previous records by content hash. Each prior is
// used at most once so byte-identical files keep their own history.
type priorIndex struct {
	byHash map[string][]models.ImageRecord
}

func newPriorIndex(records []models.ImageRecord) *priorIndex {
	idx := &priorIndex{byHash: make(map[string][]models.ImageRecord)}
	for _, r := range records {
		idx.byHash[r.ContentHash] = append(idx.byHash[r.ContentHash], r)
	}
	return idx
}

// take prefers a prior with the same original name, then one whose
// current name is file (renamed earlier), then any left over.
func (p *priorIndex) take(contentHash, file string) (models.ImageRecord, bool) {
	candidates := p.byHash[contentHash]
	if len(candidates) == 0 {
		return models.ImageRecord{}, false
	}
	pick := -1
	for i, c := range candidates {
		if c.OriginalName == file {
			pick = i
			break
		}
	}
	if pick < 0 {
		for i, c := range candidates {
			if c.CurrentName == file {
				pick = i
				break
			}
		}
	}
	if pick < 0 {
		pick = 0
	}
	prior := candidates[pick]
	p.byHash[contentHash] = append(candidates[:pick:pick], candidates[pick+1:]...)
	return prior, true
}

// mergeForward carries analysis and rename state from prior onto the
// freshly scanned rec.
func mergeForward(rec *models.ImageRecord, prior models.ImageRecord) {
	if prior.Renamed && prior.CurrentName == rec.CurrentName && prior.OriginalName != rec.OriginalName {
		// Same file, renamed by us earlier: keep its identity.
		rec.ID = prior.ID
		rec.OriginalName = prior.OriginalName
	}
	if prior.SuggestedName != "" {
		rec.SuggestedName = prior.SuggestedName
	}
	if prior.PatternCleanName != "" {
		rec.PatternCleanName = prior.PatternCleanName
	}
	if prior.AIDescription != "" {
		rec.AIDescription = prior.AIDescription
	}
	if prior.Status != "" {
		rec.Status = prior.Status
	}
	rec.AnalyzedAt = prior.AnalyzedAt
	rec.Renamed = prior.Renamed
	rec.RenamedAt = prior.RenamedAt
	rec.IsDuplicate = prior.IsDuplicate
	rec.DuplicateOf = append([]string{}, prior.DuplicateOf...)
	if rec.BlobPath == "" {
		rec.BlobPath = prior.BlobPath
		rec.BlobURL = prior.BlobURL
	}
	rec.Metadata = models.MergeMetadata(prior.Metadata, rec.Metadata)
}
