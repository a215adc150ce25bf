package cmd

import (
	"context"
	"path/filepath"

	"github.com/spf13/cobra"

	"go-image-organizer/internal/models"
	"go-image-organizer/internal/pipeline"
)

// Package-level variables for scan flags
var (
	scanProjectFlag string
	scanNameFlag    string
	scanUploadFlag  bool
	scanHashFlag    string
	scanExtFlag     []string
)

var scanCmd = &cobra.Command{
	Use:   "scan <folder>",
	Short: "Index a folder of images into a project",
	Long: `Walks the folder (non-recursively), hashes every supported image and
stores one record per file in the project. Files with identical content
are flagged as duplicates. Rescanning keeps analysis and rename results
for files whose content has not changed.

Examples:
  image-organizer scan ./holiday --project holiday
  image-organizer scan ./holiday --name "Summer Holiday" --upload
  image-organizer scan ./raw --ext jpg,png --hash blake3`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVarP(&scanProjectFlag, "project", "p", "", "Project id (default: slug of the project name)")
	scanCmd.Flags().StringVar(&scanNameFlag, "name", "", "Project display name (default: folder name)")
	scanCmd.Flags().BoolVar(&scanUploadFlag, "upload", false, "Mirror every file to blob storage (overrides Blob.UploadOnScan)")
	scanCmd.Flags().StringVar(&scanHashFlag, "hash", "", "Content hash algorithm: md5, blake3 (overrides config)")
	scanCmd.Flags().StringSliceVar(&scanExtFlag, "ext", nil, "Image extensions to include (overrides config)")
}

func runScan(cmd *cobra.Command, args []string) error {
	folder, err := filepath.Abs(args[0])
	if err != nil {
		return err
	}
	name := scanNameFlag
	if name == "" {
		name = filepath.Base(folder)
	}
	upload := globalConfig.Blob.UploadOnScan
	if cmd.Flags().Changed("upload") {
		upload = scanUploadFlag
	}

	return runTrackedJob(cmd, appOptions{}, func(ctx context.Context, a *app) (*models.Job, error) {
		return a.service.Scan(ctx, pipeline.ScanRequest{
			ProjectID:   scanProjectFlag,
			ProjectName: name,
			Folder:      folder,
			Upload:      upload,
		})
	})
}
