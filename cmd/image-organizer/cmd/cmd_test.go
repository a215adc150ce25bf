package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-image-organizer/internal/jobs"
	"go-image-organizer/internal/models"
	"go-image-organizer/internal/pipeline"
)

// resetFlags puts every flag of c and its children back to its default.
// Cobra keeps flag state between executions of the same command tree.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, child := range c.Commands() {
		resetFlags(child)
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestProgressLine(t *testing.T) {
	job := &models.Job{
		Type:           models.JobTypeScan,
		TotalItems:     4,
		ProcessedItems: 2,
		Progress:       50,
		SuccessCount:   1,
		ErrorCount:     1,
		Targets: []models.Target{
			{Name: "a.jpg", Status: models.JobCompleted},
			{Name: "b.jpg", Status: models.JobRunning},
		},
	}
	assert.Equal(t, "[scan] 2/4 (50%)  ok 1  failed 1  b.jpg", progressLine(job))

	job.Targets[1].Status = models.JobFailed
	assert.Equal(t, "[scan] 2/4 (50%)  ok 1  failed 1", progressLine(job))
}

func TestPrintJobSummary(t *testing.T) {
	d := int64(1500)
	job := &models.Job{
		ID:             "job-1",
		Type:           models.JobTypeRename,
		Status:         models.JobCompleted,
		StatusMessage:  "Renamed 1 images, 1 failed",
		ProjectID:      "trip",
		ProjectName:    "Trip",
		TotalItems:     2,
		ProcessedItems: 2,
		SuccessCount:   1,
		ErrorCount:     1,
		DurationMs:     &d,
		Targets: []models.Target{
			{Name: "ok-id", Status: models.JobCompleted},
			{Name: "bad-id", Status: models.JobFailed, Error: "no suggested name available"},
		},
	}

	var out bytes.Buffer
	printJobSummary(&out, job)
	s := out.String()
	assert.Contains(t, s, "Job job-1 (rename) completed: Renamed 1 images, 1 failed")
	assert.Contains(t, s, "Trip (trip)")
	assert.Contains(t, s, "1.5s")
	assert.Contains(t, s, "bad-id")
	assert.Contains(t, s, "no suggested name available")
	assert.NotContains(t, s, "ok-id")
}

func TestWatchProgressStopsWithoutJob(t *testing.T) {
	done := make(chan struct{})
	close(done)
	finished := make(chan struct{})
	go func() {
		watchProgress(io.Discard, jobs.NewTracker(), make(chan string), done)
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("watchProgress did not return")
	}
}

func TestFilterImages(t *testing.T) {
	records := []models.ImageRecord{
		{ID: "3", CurrentName: "c.jpg", Status: models.StatusRenamed},
		{ID: "1", CurrentName: "a.jpg", Status: models.StatusScanned, IsDuplicate: true},
		{ID: "2", CurrentName: "b.jpg", Status: models.StatusScanned},
	}

	tests := []struct {
		name       string
		status     string
		duplicates bool
		want       []string
	}{
		{"all sorted by name", "", false, []string{"1", "2", "3"}},
		{"by status", "SCANNED", false, []string{"1", "2"}},
		{"duplicates only", "", true, []string{"1"}},
		{"no match", models.StatusError, false, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, r := range filterImages(records, tt.status, tt.duplicates) {
				got = append(got, r.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuildCliFlagsOnlyChanged(t *testing.T) {
	resetFlags(rootCmd)
	t.Cleanup(func() { resetFlags(rootCmd) })

	flags := buildCliFlags(scanCmd)
	assert.Nil(t, flags.DataDir)
	assert.Nil(t, flags.Scan)
	assert.Nil(t, flags.Analyzer)

	require.NoError(t, scanCmd.Flags().Set("hash", "blake3"))
	require.NoError(t, scanCmd.Flags().Set("ext", "png,webp"))
	require.NoError(t, rootCmd.PersistentFlags().Set("data-dir", "/tmp/organizer"))

	// Root persistent flags are merged into the subcommand's flag set on parse.
	scanCmd.Flags().AddFlagSet(rootCmd.PersistentFlags())
	flags = buildCliFlags(scanCmd)
	require.NotNil(t, flags.Scan)
	assert.Equal(t, "blake3", *flags.Scan.HashAlgorithm)
	assert.Equal(t, []string{"png", "webp"}, *flags.Scan.Extensions)
	require.NotNil(t, flags.DataDir)
	assert.Equal(t, "/tmp/organizer", *flags.DataDir)
	assert.Nil(t, flags.Rename)
}

func writeImage(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestScanRenameWorkflow(t *testing.T) {
	photos := t.TempDir()
	dataDir := t.TempDir()
	writeImage(t, photos, "IMG_0001_harbor.jpg", "same bytes")
	writeImage(t, photos, "IMG_0002_harbor.jpg", "same bytes")
	writeImage(t, photos, "sunset.png", "other bytes")
	writeImage(t, photos, "notes.txt", "not an image")

	out, err := execute(t, "scan", photos, "--project", "trip", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "(scan) completed")

	out, err = execute(t, "projects", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "trip")

	out, err = execute(t, "images", "list", "--project", "trip", "--json", "--data-dir", dataDir)
	require.NoError(t, err)
	var records []models.ImageRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 3)
	dups := 0
	for _, r := range records {
		if r.IsDuplicate {
			dups++
		}
	}
	assert.Equal(t, 2, dups)

	out, err = execute(t, "rename", "--project", "trip", "--strategy", "pattern", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "(rename) completed")
	assert.FileExists(t, filepath.Join(photos, "harbor.jpg"))
	assert.FileExists(t, filepath.Join(photos, "harbor_1.jpg"))
	assert.FileExists(t, filepath.Join(photos, "sunset.png"))
	assert.NoFileExists(t, filepath.Join(photos, "IMG_0001_harbor.jpg"))

	out, err = execute(t, "search", "--project", "trip", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "harbor_1.jpg")

	out, err = execute(t, "jobs", "list", "--json", "--data-dir", dataDir)
	require.NoError(t, err)
	var list []*models.Job
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 2)
	types := []string{list[0].Type, list[1].Type}
	assert.ElementsMatch(t, []string{models.JobTypeScan, models.JobTypeRename}, types)

	out, err = execute(t, "cleanup", "--project", "trip", "--data-dir", dataDir)
	require.NoError(t, err)
	assert.Contains(t, out, "Removed 1 duplicates")
	assert.FileExists(t, filepath.Join(photos, "sunset.png"))
}

func TestJobsShowAndCancelUnknown(t *testing.T) {
	dataDir := t.TempDir()
	_, err := execute(t, "jobs", "show", "missing", "--data-dir", dataDir)
	assert.ErrorContains(t, err, "not found")

	_, err = execute(t, "jobs", "cancel", "missing", "--data-dir", dataDir)
	assert.ErrorContains(t, err, "not found")
}

func TestAnalyzeWithoutAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "")
	t.Setenv("ORGANIZER_ANALYZER_APIKEY", "")

	_, err := execute(t, "analyze", "--project", "trip", "--data-dir", t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, pipeline.ErrAnalyzerNotConfigured), "got %v", err)
}

func TestConfigShowAndInit(t *testing.T) {
	dataDir := t.TempDir()
	out, err := execute(t, "config", "show", "--json", "--data-dir", dataDir, "--api-key", "top-secret")
	require.NoError(t, err)
	var cfg models.Config
	require.NoError(t, json.Unmarshal([]byte(out), &cfg))
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "********", cfg.Analyzer.APIKey)

	out, err = execute(t, "config", "show", "--show-secrets", "--api-key", "top-secret")
	require.NoError(t, err)
	assert.Contains(t, out, "top-secret")

	path := filepath.Join(t.TempDir(), "config.toml")
	_, err = execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.FileExists(t, path)
	_, err = execute(t, "config", "init", path)
	assert.Error(t, err)
	_, err = execute(t, "config", "init", path, "--force")
	assert.NoError(t, err)
}
