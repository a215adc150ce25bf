package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/gosuri/uilive"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"go-image-organizer/internal/jobs"
	"go-image-organizer/internal/models"
)

const progressInterval = 200 * time.Millisecond

// jobRunner starts one pipeline run against an opened app.
type jobRunner func(ctx context.Context, a *app) (*models.Job, error)

// runTrackedJob opens the app, runs the pipeline while rendering live
// progress, and prints the job summary. SIGINT and SIGTERM cancel the
// job between items.
func runTrackedJob(cmd *cobra.Command, opts appOptions, run jobRunner) error {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	created := make(chan string, 1)
	opts.jobCreated = func(job *models.Job) {
		select {
		case created <- job.ID:
		default:
		}
	}

	a, err := openApp(ctx, globalConfig, opts)
	if err != nil {
		return err
	}
	defer a.Close()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		watchProgress(cmd.ErrOrStderr(), a.tracker, created, done)
	}()

	job, err := run(ctx, a)
	close(done)
	wg.Wait()
	if err != nil {
		return err
	}

	printJobSummary(cmd.OutOrStdout(), job)
	if job.Status == models.JobFailed {
		return fmt.Errorf("%s job %s failed: %s", job.Type, job.ID, job.StatusMessage)
	}
	return nil
}

// watchProgress renders the job announced on created until done closes.
func watchProgress(out io.Writer, tracker *jobs.Tracker, created <-chan string, done <-chan struct{}) {
	var jobID string
	select {
	case jobID = <-created:
	case <-done:
		return
	}

	writer := uilive.New()
	writer.Out = out
	writer.Start()
	defer writer.Stop()

	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()
	for {
		if job, ok := tracker.GetJob(jobID); ok {
			fmt.Fprintln(writer, progressLine(job))
		}
		select {
		case <-done:
			if job, ok := tracker.GetJob(jobID); ok {
				fmt.Fprintln(writer, progressLine(job))
			}
			return
		case <-ticker.C:
		}
	}
}

// progressLine is the one-line live view of a job.
func progressLine(job *models.Job) string {
	line := fmt.Sprintf("[%s] %d/%d (%d%%)  ok %d  failed %d",
		job.Type, job.ProcessedItems, job.TotalItems, job.Progress, job.SuccessCount, job.ErrorCount)
	if current := currentTarget(job); current != "" {
		line += "  " + current
	}
	return line
}

// currentTarget is the name of the most recent running target.
func currentTarget(job *models.Job) string {
	for i := len(job.Targets) - 1; i >= 0; i-- {
		if job.Targets[i].Status == models.JobRunning {
			return job.Targets[i].Name
		}
	}
	return ""
}

func printJobSummary(out io.Writer, job *models.Job) {
	fmt.Fprintf(out, "Job %s (%s) %s: %s\n", job.ID, job.Type, job.Status, job.StatusMessage)
	fmt.Fprintf(out, "  Project:   %s (%s)\n", job.ProjectName, job.ProjectID)
	fmt.Fprintf(out, "  Processed: %d/%d, %d succeeded, %d failed\n",
		job.ProcessedItems, job.TotalItems, job.SuccessCount, job.ErrorCount)
	if job.DurationMs != nil {
		fmt.Fprintf(out, "  Duration:  %s\n", (time.Duration(*job.DurationMs) * time.Millisecond).String())
	}

	var failed []models.Target
	for _, t := range job.Targets {
		if t.Status == models.JobFailed {
			failed = append(failed, t)
		}
	}
	if len(failed) == 0 {
		return
	}
	fmt.Fprintln(out, "  Failures:")
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, t := range failed {
		fmt.Fprintf(tw, "    %s\t%s\n", t.Name, t.Error)
	}
	tw.Flush()
	if len(job.Errors) > len(failed) {
		log.Debugf("Job errors: %s", strings.Join(job.Errors, "; "))
	}
}
