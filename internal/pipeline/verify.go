package pipeline

import (
	"context"
	"sort"

	log "github.com/sirupsen/logrus"

	"go-image-organizer/internal/fileops"
)

// Verify outcomes
const (
	VerifyOK         = "ok"
	VerifyMissing    = "missing"
	VerifyChanged    = "changed"
	VerifyUnreadable = "unreadable"
)

// VerifyResult is the on-disk state of one record.
type VerifyResult struct {
	ImageID     string `json:"imageId"`
	CurrentName string `json:"currentName"`
	LocalPath   string `json:"localPath"`
	Status      string `json:"status"`
	// Hash is the digest of the file as it is now; empty when it could
	// not be read.
	Hash  string `json:"hash,omitempty"`
	Error string `json:"error,omitempty"`
}

// Verify re-hashes every file of the project with the configured
// algorithm and compares it against its record. Nothing is modified.
func (s *Service) Verify(ctx context.Context, projectID string) ([]VerifyResult, error) {
	p, err := s.project(projectID)
	if err != nil {
		return nil, err
	}
	records, err := s.Records.List(p.ID)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CurrentName < records[j].CurrentName })

	results := make([]VerifyResult, 0, len(records))
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res := VerifyResult{ImageID: r.ID, CurrentName: r.CurrentName, LocalPath: r.LocalPath}
		if !fileops.Exists(r.LocalPath) {
			res.Status = VerifyMissing
			results = append(results, res)
			continue
		}

		digest, size, err := s.hasher.File(r.LocalPath)
		switch {
		case err != nil:
			res.Status = VerifyUnreadable
			res.Error = errorText(err)
		case digest != r.ContentHash || size != r.SizeBytes:
			res.Status = VerifyChanged
			res.Hash = digest
		default:
			res.Status = VerifyOK
			res.Hash = digest
		}
		results = append(results, res)
	}

	log.WithFields(log.Fields{"project": p.ID, "files": len(results)}).Debug("Verified project files")
	return results, nil
}
