package cmd

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var projectsJSONFlag bool

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "List projects and their image counts",
	Args:  cobra.NoArgs,
	RunE:  runProjects,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.Flags().BoolVar(&projectsJSONFlag, "json", false, "Print JSON instead of a table")
}

func runProjects(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig, appOptions{noIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	list, err := a.projects.List()
	if err != nil {
		return err
	}
	if projectsJSONFlag {
		return writeJSON(cmd.OutOrStdout(), list)
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No projects yet. Run scan to create one.")
		return nil
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tName\tImages\tAnalyzed\tRenamed\tDuplicates\tFolder\tUpdated")
	fmt.Fprintln(tw, "--\t----\t------\t--------\t-------\t----------\t------\t-------")
	for _, p := range list {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\t%s\t%s\n",
			p.ID, p.Name, p.ImageCount, p.AnalyzedCount, p.RenamedCount, p.DuplicateCount,
			p.FolderPath, p.UpdatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}
