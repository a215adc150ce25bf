package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"go-image-organizer/internal/models"
	"go-image-organizer/internal/pipeline"
)

var cleanupProjectFlag string

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete duplicate images, keeping one copy per content hash",
	Long: `Removes every duplicate in the project. For each group of files with
identical content the copy whose original name sorts first is kept; the
others are deleted from disk, blob storage and the project.

Examples:
  image-organizer cleanup --project holiday`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
	cleanupCmd.Flags().StringVarP(&cleanupProjectFlag, "project", "p", "", "Project id (required)")
	_ = cleanupCmd.MarkFlagRequired("project")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	return runTrackedJob(cmd, appOptions{}, func(ctx context.Context, a *app) (*models.Job, error) {
		return a.service.Cleanup(ctx, pipeline.CleanupRequest{ProjectID: cleanupProjectFlag})
	})
}
