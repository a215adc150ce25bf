package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"go-image-organizer/internal/models"
	"go-image-organizer/internal/pipeline"
)

// Package-level variables for rename flags
var (
	renameProjectFlag string
	renameIDsFlag     []string
	renameAllFlag     bool
	renameStrategy    string
	renameMaxAttempts int
)

var renameCmd = &cobra.Command{
	Use:   "rename",
	Short: "Rename images to their suggested names",
	Long: `Renames each image on disk (and in blob storage when it was uploaded)
to a name chosen by the strategy:

  ai       the analyzer's suggested name (run analyze first)
  pattern  the original name with camera and generator prefixes stripped

Name collisions are resolved by appending _1, _2, ... to the base name.
Without --ids every image that has a candidate name is renamed.

Examples:
  image-organizer rename --project holiday
  image-organizer rename --project holiday --strategy pattern
  image-organizer rename one --project holiday 3f2a... "harbor at dusk"`,
	Args: cobra.NoArgs,
	RunE: runRename,
}

var renameOneCmd = &cobra.Command{
	Use:   "one <image-id> <new-name>",
	Short: "Rename a single image to an explicit name",
	Long: `Renames one image to the given name. The name is sanitized and keeps
the image's extension; collisions get a numeric suffix like a batch rename.`,
	Args: cobra.ExactArgs(2),
	RunE: runRenameOne,
}

func init() {
	rootCmd.AddCommand(renameCmd)
	renameCmd.AddCommand(renameOneCmd)

	renameCmd.PersistentFlags().StringVarP(&renameProjectFlag, "project", "p", "", "Project id (required)")
	renameCmd.PersistentFlags().IntVar(&renameMaxAttempts, "max-attempts", 0, "Maximum collision suffixes to try (overrides config)")
	renameCmd.Flags().StringSliceVar(&renameIDsFlag, "ids", nil, "Only rename these image ids")
	renameCmd.Flags().BoolVar(&renameAllFlag, "all", false, "Rename every image with a candidate name (default when --ids is empty)")
	renameCmd.Flags().StringVar(&renameStrategy, "strategy", "", "Naming strategy: ai, pattern (overrides config)")
	_ = renameCmd.MarkPersistentFlagRequired("project")
}

func runRename(cmd *cobra.Command, args []string) error {
	return runTrackedJob(cmd, appOptions{}, func(ctx context.Context, a *app) (*models.Job, error) {
		return a.service.Rename(ctx, pipeline.RenameRequest{
			ProjectID: renameProjectFlag,
			ImageIDs:  renameIDsFlag,
			All:       renameAllFlag,
			Strategy:  globalConfig.Rename.Strategy,
		})
	})
}

func runRenameOne(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.service.RenameOne(cmd.Context(), renameProjectFlag, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s -> %s\n", rec.OriginalName, rec.CurrentName)
	if rec.BlobURL != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "  Blob: %s\n", rec.BlobURL)
	}
	return nil
}
