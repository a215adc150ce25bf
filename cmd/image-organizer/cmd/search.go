package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"go-image-organizer/internal/index"
)

// Package-level variables for search flags
var (
	searchProjectFlag string
	searchLimitFlag   int
	searchReindexFlag bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query...]",
	Short: "Full-text search over names, descriptions and labels",
	Long: `Searches the bleve index kept up to date by scan, analyze and rename.
The query uses bleve's query-string syntax.

Examples:
  image-organizer search sunset beach
  image-organizer search "+tags:harbor -category:portrait" --project holiday
  image-organizer search --reindex --project holiday`,
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVarP(&searchProjectFlag, "project", "p", "", "Only search this project")
	searchCmd.Flags().IntVar(&searchLimitFlag, "limit", index.DefaultLimit, "Maximum number of hits")
	searchCmd.Flags().BoolVar(&searchReindexFlag, "reindex", false, "Rebuild the index from the project's records before searching")
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig, appOptions{withIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	if searchReindexFlag {
		if searchProjectFlag == "" {
			return fmt.Errorf("--reindex needs --project")
		}
		records, err := a.records.List(searchProjectFlag)
		if err != nil {
			return err
		}
		for _, r := range records {
			if err := a.index.IndexRecord(r); err != nil {
				return err
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d images\n", len(records))
		if len(args) == 0 {
			return nil
		}
	}

	hits, err := a.index.Search(strings.Join(args, " "), searchProjectFlag, searchLimitFlag)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No matches.")
		return nil
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Score\tProject\tImage ID\tName")
	fmt.Fprintln(tw, "-----\t-------\t--------\t----")
	for _, h := range hits {
		fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\n", h.Score, h.ProjectID, h.ImageID, h.CurrentName)
	}
	return tw.Flush()
}
