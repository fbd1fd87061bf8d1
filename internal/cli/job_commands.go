package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

func newGenerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <instruction>",
		Short: "Create a job and start plan generation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.CreateJob(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			if a.json {
				return a.printJSON(resp)
			}
			a.printf("%s %s\n%s\n", badge(resp.Status), resp.JobID, resp.Message)
			return nil
		},
	}
}

func newStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show a job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := a.client.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.json {
				return a.printJSON(job)
			}
			a.printJob(job)
			return nil
		},
	}
}

func (a *app) printJob(job *model.Job) {
	a.printf("%s %s\n", badge(job.Status), job.ID)
	a.printf("Instruction: %s\n", job.Instruction)
	if job.Message != "" {
		a.printf("Message:     %s\n", job.Message)
	}
	if job.TaskPlan != nil {
		a.printf("Plan:        %d steps (revision %d)\n", len(job.TaskPlan.Steps), job.PlanRevision)
	}
	if job.Results != nil {
		a.printf("Results:     %s\n", formatResults(job.Results))
	}
	if job.VideoURL != nil {
		a.printf("Video:       %s\n", *job.VideoURL)
	}
	if job.VideoFilename != nil {
		a.printf("Download:    %s\n", a.client.DownloadURL(*job.VideoFilename))
	}
	if job.Error != nil {
		a.printf("%s\n", errStyle.Render("Error: "+*job.Error))
	}
}

func newJobsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List jobs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			jobs, err := a.client.ListJobs(cmd.Context())
			if err != nil {
				return err
			}
			if a.json {
				return a.printJSON(model.JobListResponse{Jobs: jobs})
			}
			if len(jobs) == 0 {
				a.printf("No jobs\n")
				return nil
			}
			for _, job := range jobs {
				a.printf("%s  %s  %s  %s\n",
					job.ID,
					job.CreatedAt.Local().Format(time.DateTime),
					badge(job.Status),
					truncate(job.Instruction, 60),
				)
			}
			return nil
		},
	}
}

func newExecuteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "execute <job-id>",
		Short: "Record the saved plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.Execute(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.json {
				return a.printJSON(resp)
			}
			a.printf("%s %s\n", badge(resp.Status), resp.Message)
			return nil
		},
	}
}

func newRegenerateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "regenerate <job-id>",
		Short: "Record the saved plan again, replacing the previous video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := a.client.Regenerate(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if a.json {
				return a.printJSON(resp)
			}
			a.printf("%s %s\n", badge(resp.Status), resp.Message)
			return nil
		},
	}
}

func newDownloadCmd(a *app) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "download <job-id>",
		Short: "Download a job's finished video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := a.client.GetJob(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if job.VideoFilename == nil {
				return fmt.Errorf("job %s has no video (status: %s)", job.ID, job.Status)
			}
			path := output
			if path == "" {
				path = *job.VideoFilename
			}
			n, err := a.download(cmd.Context(), *job.VideoFilename, path)
			if err != nil {
				return err
			}
			a.printf("Saved %s (%d bytes)\n", path, n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: the video's file name)")
	return cmd
}

func (a *app) download(ctx context.Context, filename, path string) (int64, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, err
	}
	n, err := a.client.Download(ctx, filename, f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, err
	}
	return n, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
