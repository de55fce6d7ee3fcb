package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/spf13/cobra"
)

type jobAdmin interface {
	GetJob(ctx context.Context, jobID string) (*models.Job, error)
	ListFailed(ctx context.Context, limit int) ([]*models.Job, error)
	CancelJob(ctx context.Context, jobID string) (*models.Job, error)
	RescheduleJob(ctx context.Context, jobID string, runAt time.Time) (*models.Job, error)
	Requeue(ctx context.Context, jobID string, runAt time.Time) (*models.Job, error)
}

type postJobs interface {
	SetJobID(ctx context.Context, tx *sql.Tx, postID, jobID string) error
	UpdatePostStatus(ctx context.Context, status, postID string) error
}

type jobsCLI struct {
	jobs  jobAdmin
	posts postJobs
	now   func() time.Time
}

func (j *jobsCLI) command() *cobra.Command {
	if j.now == nil {
		j.now = time.Now
	}

	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Manage publish jobs",
	}

	var limit int
	failedCmd := &cobra.Command{
		Use:   "failed",
		Short: "List jobs that ran out of attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := j.jobs.ListFailed(cmd.Context(), limit)
			if err != nil {
				return err
			}
			j.printJobs(cmd.OutOrStdout(), jobs)
			return nil
		},
	}
	failedCmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of jobs to list")

	getCmd := &cobra.Command{
		Use:   "get <job-id>",
		Short: "Show one job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := j.jobs.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			j.printJob(cmd.OutOrStdout(), job)
			return nil
		},
	}

	cancelCmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Cancel a pending job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := j.jobs.CancelJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if postID := postOf(job); postID != "" {
				if err := j.posts.UpdatePostStatus(cmd.Context(), models.PostStatusCancelled, postID); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "cancelled %s\n", job.ID)
			return nil
		},
	}

	var at string
	rescheduleCmd := &cobra.Command{
		Use:   "reschedule <job-id>",
		Short: "Move a pending job to a new run time",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runAt, err := parseRunAt(at, j.now())
			if err != nil {
				return err
			}
			job, err := j.jobs.RescheduleJob(cmd.Context(), args[0], runAt)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s now runs %s (version %d)\n", job.ID, humanize.RelTime(job.RunAt, j.now(), "ago", "from now"), job.Version)
			return nil
		},
	}
	rescheduleCmd.Flags().StringVar(&at, "at", "", "new run time, RFC 3339 or a delay such as 30m")
	rescheduleCmd.MarkFlagRequired("at")

	var requeueAt string
	requeueCmd := &cobra.Command{
		Use:   "requeue <job-id>",
		Short: "Start a new job from a failed or cancelled one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runAt, err := parseRunAt(requeueAt, j.now())
			if err != nil {
				return err
			}
			job, err := j.jobs.Requeue(cmd.Context(), args[0], runAt)
			if err != nil {
				return err
			}
			if postID := postOf(job); postID != "" {
				if err := j.posts.SetJobID(cmd.Context(), nil, postID, job.ID); err != nil {
					return err
				}
				if err := j.posts.UpdatePostStatus(cmd.Context(), models.PostStatusScheduled, postID); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %s as %s\n", args[0], job.ID)
			return nil
		},
	}
	requeueCmd.Flags().StringVar(&requeueAt, "at", "0s", "run time, RFC 3339 or a delay such as 30m")

	jobsCmd.AddCommand(getCmd, failedCmd, cancelCmd, rescheduleCmd, requeueCmd)
	return jobsCmd
}

func (j *jobsCLI) printJobs(out io.Writer, jobs []*models.Job) {
	if len(jobs) == 0 {
		fmt.Fprintln(out, "no jobs")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTYPE\tATTEMPTS\tUPDATED\tLAST ERROR")
	for _, job := range jobs {
		fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n", job.ID, job.Type, job.Attempts, job.MaxAttempts,
			humanize.RelTime(job.UpdatedAt, j.now(), "ago", "from now"), truncate(job.LastError, 60))
	}
	w.Flush()
}

func (j *jobsCLI) printJob(out io.Writer, job *models.Job) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "id\t%s\n", job.ID)
	fmt.Fprintf(w, "type\t%s\n", job.Type)
	fmt.Fprintf(w, "status\t%s\n", job.Status)
	fmt.Fprintf(w, "post\t%s\n", postOf(job))
	fmt.Fprintf(w, "run at\t%s (%s)\n", job.RunAt.Format(time.RFC3339), humanize.RelTime(job.RunAt, j.now(), "ago", "from now"))
	fmt.Fprintf(w, "attempts\t%d/%d\n", job.Attempts, job.MaxAttempts)
	fmt.Fprintf(w, "version\t%d\n", job.Version)
	if job.LockedBy != "" {
		fmt.Fprintf(w, "locked by\t%s\n", job.LockedBy)
	}
	if job.LastError != "" {
		fmt.Fprintf(w, "last error\t%s\n", job.LastError)
	}
	w.Flush()
}

// parseRunAt accepts an RFC 3339 time or a delay from now.
func parseRunAt(value string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid run time %q: use RFC 3339 or a duration like 30m", value)
	}
	return now.Add(d), nil
}

func postOf(job *models.Job) string {
	var payload models.JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return ""
	}
	return payload.PostID
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
