package main_test

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-image-organizer/internal/models"
)

func TestScanAndCleanup(t *testing.T) {
	photos := writeImages(t, map[string]string{
		"a.jpg":     "identical",
		"b.jpg":     "identical",
		"c.png":     "unique",
		"readme.md": "skip me",
	})
	dataDir := t.TempDir()
	workDir := t.TempDir()

	stdout, _, err := runCommand(t, workDir, "--data-dir", dataDir, "scan", photos, "--project", "album")
	require.NoError(t, err)
	assert.Contains(t, stdout, "(scan) completed")

	stdout, _, err = runCommand(t, workDir, "--data-dir", dataDir, "projects", "--json")
	require.NoError(t, err)
	var projects []models.Project
	require.NoError(t, json.Unmarshal([]byte(stdout), &projects))
	require.Len(t, projects, 1)
	assert.Equal(t, 3, projects[0].ImageCount)
	assert.Equal(t, 2, projects[0].DuplicateCount)

	stdout, _, err = runCommand(t, workDir, "--data-dir", dataDir, "cleanup", "--project", "album")
	require.NoError(t, err)
	assert.Contains(t, stdout, "Removed 1 duplicates")
	assert.FileExists(t, filepath.Join(photos, "a.jpg"))
	assert.NoFileExists(t, filepath.Join(photos, "b.jpg"))

	stdout, _, err = runCommand(t, workDir, "--data-dir", dataDir, "jobs", "list", "--project", "album", "--json")
	require.NoError(t, err)
	var list []*models.Job
	require.NoError(t, json.Unmarshal([]byte(stdout), &list))
	require.Len(t, list, 2)
	assert.Equal(t, models.JobTypeCleanup, list[0].Type)
	assert.Equal(t, models.JobCompleted, list[0].Status)

	// Cancelling a finished job leaves it as it was.
	stdout, _, err = runCommand(t, workDir, "--data-dir", dataDir, "jobs", "cancel", list[1].ID)
	require.NoError(t, err)
	assert.Contains(t, stdout, models.JobCompleted)

	_, _, err = runCommand(t, workDir, "--data-dir", dataDir, "jobs", "cancel", list[1].ID, "--remove")
	require.NoError(t, err)
	_, _, err = runCommand(t, workDir, "--data-dir", dataDir, "jobs", "show", list[1].ID)
	assert.Error(t, err)
}

func TestAnalyzeRequiresKey(t *testing.T) {
	_, stderr, err := runCommand(t, t.TempDir(), "--data-dir", t.TempDir(), "analyze", "--project", "album")
	require.Error(t, err)
	assert.Contains(t, stderr, "analyzer not configured")
}

func TestScanMissingFolder(t *testing.T) {
	_, stderr, err := runCommand(t, t.TempDir(), "--data-dir", t.TempDir(), "scan", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, stderr, "folder not found")
}
