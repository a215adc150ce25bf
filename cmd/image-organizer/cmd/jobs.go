package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"go-image-organizer/internal/jobs"
	"go-image-organizer/internal/models"
)

// Package-level variables for jobs flags
var (
	jobsProjectFlag string
	jobsStatusFlag  string
	jobsTypeFlag    string
	jobsLimitFlag   int
	jobsJSONFlag    bool
	jobsRemoveFlag  bool
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "List, inspect and cancel pipeline jobs",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	Long: `Lists persisted jobs, newest first.

Examples:
  image-organizer jobs list
  image-organizer jobs list --project holiday --status failed
  image-organizer jobs list --type rename --limit 5 --json`,
	Args: cobra.NoArgs,
	RunE: runJobsList,
}

var jobsShowCmd = &cobra.Command{
	Use:   "show <job-id>",
	Short: "Show one job with its per-item targets",
	Args:  cobra.ExactArgs(1),
	RunE:  runJobsShow,
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a pending or running job",
	Long: `Marks the job cancelled. A run in progress (in this or another process
sharing the same database) stops before its next item. With --remove the
job is deleted afterwards, whatever its status.`,
	Args: cobra.ExactArgs(1),
	RunE: runJobsCancel,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
	jobsCmd.AddCommand(jobsListCmd)
	jobsCmd.AddCommand(jobsShowCmd)
	jobsCmd.AddCommand(jobsCancelCmd)

	jobsCmd.PersistentFlags().BoolVar(&jobsJSONFlag, "json", false, "Print JSON instead of a table")
	jobsListCmd.Flags().StringVarP(&jobsProjectFlag, "project", "p", "", "Only jobs of this project")
	jobsListCmd.Flags().StringVar(&jobsStatusFlag, "status", "", "Only jobs with this status (pending, running, completed, failed, cancelled)")
	jobsListCmd.Flags().StringVar(&jobsTypeFlag, "type", "", "Only jobs of this type (scan, analyze, rename, cleanup)")
	jobsListCmd.Flags().IntVar(&jobsLimitFlag, "limit", 20, "Maximum number of jobs to list (0 for all)")
	jobsCancelCmd.Flags().BoolVar(&jobsRemoveFlag, "remove", false, "Delete the job after cancelling it")
}

func runJobsList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig, appOptions{noIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	list := a.tracker.ListJobs(jobs.Filter{
		ProjectID: jobsProjectFlag,
		Status:    jobsStatusFlag,
		Type:      jobsTypeFlag,
		Limit:     jobsLimitFlag,
	})
	if jobsJSONFlag {
		return writeJSON(cmd.OutOrStdout(), list)
	}
	if len(list) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
		return nil
	}
	printJobTable(cmd.OutOrStdout(), list)
	return nil
}

func printJobTable(out io.Writer, list []*models.Job) {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tType\tProject\tStatus\tProgress\tOK\tFailed\tCreated")
	fmt.Fprintln(tw, "--\t----\t-------\t------\t--------\t--\t------\t-------")
	for _, job := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%d\t%d\t%s\n",
			job.ID, job.Type, job.ProjectID, job.Status,
			job.ProcessedItems, job.TotalItems, job.SuccessCount, job.ErrorCount,
			job.CreatedAt.Local().Format(time.DateTime))
	}
	tw.Flush()
}

func runJobsShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig, appOptions{noIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	job, ok := a.tracker.GetJob(args[0])
	if !ok {
		return fmt.Errorf("job %s not found", args[0])
	}
	if jobsJSONFlag {
		return writeJSON(cmd.OutOrStdout(), job)
	}

	out := cmd.OutOrStdout()
	printJobSummary(out, job)
	if len(job.Targets) == 0 {
		return nil
	}
	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "Target\tStatus\tError")
	fmt.Fprintln(tw, "------\t------\t-----")
	for _, t := range job.Targets {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", t.Name, t.Status, t.Error)
	}
	tw.Flush()
	return nil
}

func runJobsCancel(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), globalConfig, appOptions{noIndex: true})
	if err != nil {
		return err
	}
	defer a.Close()

	job, ok := a.tracker.CancelOrRemove(args[0], jobsRemoveFlag)
	if !ok {
		return fmt.Errorf("job %s not found", args[0])
	}
	if jobsRemoveFlag {
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s removed (%s)\n", job.ID, job.Status)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Job %s %s: %s\n", job.ID, job.Status, job.StatusMessage)
	return nil
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
