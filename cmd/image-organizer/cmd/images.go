package cmd

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go-image-organizer/internal/helpers"
	"go-image-organizer/internal/models"
	"go-image-organizer/internal/pipeline"
	"go-image-organizer/internal/store"
)

// Package-level variables for images flags
var (
	imagesProjectFlag    string
	imagesStatusFlag     string
	imagesDuplicatesFlag bool
	imagesJSONFlag       bool
	imagesKeepFilesFlag  bool
)

var imagesCmd = &cobra.Command{
	Use:   "images",
	Short: "List, inspect and delete the images of a project",
}

var imagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the project's images",
	Long: `Lists the project's image records sorted by current name.

Examples:
  image-organizer images list --project holiday
  image-organizer images list --project holiday --status analyzed
  image-organizer images list --project holiday --duplicates --json`,
	Args: cobra.NoArgs,
	RunE: runImagesList,
}

var imagesShowCmd = &cobra.Command{
	Use:   "show <image-id>",
	Short: "Show one image record with its analysis",
	Args:  cobra.ExactArgs(1),
	RunE:  runImagesShow,
}

var imagesVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the project's files against their recorded hashes",
	Long: `Re-hashes every file of the project and reports files that are missing
or whose content changed since the last scan. Nothing is modified; run
scan again to pick up the changes.`,
	Args: cobra.NoArgs,
	RunE: runImagesVerify,
}

var imagesDeleteCmd = &cobra.Command{
	Use:   "delete <image-id>",
	Short: "Delete an image from disk, blob storage and the project",
	Long: `Deletes the image file, its blob object and its record. With
--keep-files only the record is removed and the file stays where it is
(a later scan will pick it up again).`,
	Args: cobra.ExactArgs(1),
	RunE: runImagesDelete,
}

func init() {
	rootCmd.AddCommand(imagesCmd)
	imagesCmd.AddCommand(imagesListCmd)
	imagesCmd.AddCommand(imagesShowCmd)
	imagesCmd.AddCommand(imagesVerifyCmd)
	imagesCmd.AddCommand(imagesDeleteCmd)

	imagesCmd.PersistentFlags().StringVarP(&imagesProjectFlag, "project", "p", "", "Project id (required)")
	_ = imagesCmd.MarkPersistentFlagRequired("project")
	imagesListCmd.Flags().StringVar(&imagesStatusFlag, "status", "", "Only images with this status (scanned, analyzed, renamed, error)")
	imagesListCmd.Flags().BoolVar(&imagesDuplicatesFlag, "duplicates", false, "Only images flagged as duplicates")
	imagesListCmd.Flags().BoolVar(&imagesJSONFlag, "json", false, "Print JSON instead of a table")
	imagesShowCmd.Flags().BoolVar(&imagesJSONFlag, "json", false, "Print JSON")
	imagesVerifyCmd.Flags().BoolVar(&imagesJSONFlag, "json", false, "Print JSON instead of a table")
	imagesDeleteCmd.Flags().BoolVar(&imagesKeepFilesFlag, "keep-files", false, "Only remove the record; keep the file and blob object")
}

// filterImages applies the list flags and sorts by current name.
func filterImages(records []models.ImageRecord, status string, duplicatesOnly bool) []models.ImageRecord {
	out := make([]models.ImageRecord, 0, len(records))
	for _, r := range records {
		if status != "" && !strings.EqualFold(r.Status, status) {
			continue
		}
		if duplicatesOnly && !r.IsDuplicate {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CurrentName == out[j].CurrentName {
			return out[i].ID < out[j].ID
		}
		return out[i].CurrentName < out[j].CurrentName
	})
	return out
}

func runImagesList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig, appOptions{noIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.projects.Get(imagesProjectFlag); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("project %s not found", imagesProjectFlag)
		}
		return err
	}
	records, err := a.records.List(imagesProjectFlag)
	if err != nil {
		return err
	}
	records = filterImages(records, imagesStatusFlag, imagesDuplicatesFlag)
	if imagesJSONFlag {
		return writeJSON(cmd.OutOrStdout(), records)
	}
	if len(records) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No images found.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tName\tStatus\tSize\tSuggested\tDuplicate")
	fmt.Fprintln(tw, "--\t----\t------\t----\t---------\t---------")
	for _, r := range records {
		dup := ""
		if r.IsDuplicate {
			dup = strings.Join(r.DuplicateOf, ",")
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.CurrentName, r.Status, helpers.BytesToSize(uint64(r.SizeBytes)), r.SuggestedName, dup)
	}
	return tw.Flush()
}

func runImagesShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig, appOptions{noIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	rec, err := a.records.Get(imagesProjectFlag, args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("image %s not found in project %s", args[0], imagesProjectFlag)
		}
		return err
	}
	if imagesJSONFlag {
		return writeJSON(cmd.OutOrStdout(), rec)
	}
	printImage(cmd.OutOrStdout(), rec)
	return nil
}

func printImage(out io.Writer, r *models.ImageRecord) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	row := func(label, value string) {
		if value != "" {
			fmt.Fprintf(tw, "%s:\t%s\n", label, value)
		}
	}
	row("ID", r.ID)
	row("Name", r.CurrentName)
	row("Original", r.OriginalName)
	row("Path", r.LocalPath)
	row("Status", r.Status)
	row("Size", helpers.BytesToSize(uint64(r.SizeBytes)))
	if r.Metadata.Width > 0 {
		row("Dimensions", fmt.Sprintf("%dx%d", r.Metadata.Width, r.Metadata.Height))
	}
	row("Hash", r.ContentHash)
	row("Suggested", r.SuggestedName)
	row("Pattern", r.PatternCleanName)
	row("Description", r.AIDescription)
	row("Category", r.Metadata.Category)
	row("Tags", strings.Join(r.Metadata.Tags, ", "))
	row("Colors", strings.Join(r.Metadata.Colors, ", "))
	row("Blob", r.BlobURL)
	row("Duplicate of", strings.Join(r.DuplicateOf, ", "))
	row("Error", r.Metadata.AnalysisError)
	tw.Flush()
}

func runImagesVerify(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig, appOptions{noIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	results, err := a.service.Verify(cmd.Context(), imagesProjectFlag)
	if err != nil {
		return err
	}
	if imagesJSONFlag {
		return writeJSON(cmd.OutOrStdout(), results)
	}

	problems := 0
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Name\tStatus\tPath")
	fmt.Fprintln(tw, "----\t------\t----")
	for _, r := range results {
		if r.Status == pipeline.VerifyOK {
			continue
		}
		problems++
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.CurrentName, r.Status, r.LocalPath)
	}
	if problems > 0 {
		tw.Flush()
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Verified %d images: %d ok, %d with problems\n", len(results), len(results)-problems, problems)
	return nil
}

func runImagesDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.service.DeleteImage(cmd.Context(), imagesProjectFlag, args[0], imagesKeepFilesFlag); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Image %s deleted\n", args[0])
	return nil
}
