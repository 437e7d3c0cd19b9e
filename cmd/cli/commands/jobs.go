package commands

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vidforge/vidforge/internal/types"
)

// jobOutput represents the filtered output for a job
type jobOutput struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Step     string `json:"step,omitempty"`
	VideoURL string `json:"video_url,omitempty"`
	Error    string `json:"error,omitempty"`
}

// jobListOutput represents the filtered output for a list of jobs
type jobListOutput struct {
	Jobs []jobOutput `json:"jobs"`
}

func toJobOutput(job types.Job) jobOutput {
	return jobOutput{
		ID:       job.ID,
		Status:   string(job.Status),
		Progress: job.Progress,
		Step:     job.CurrentStep,
		VideoURL: job.VideoURL,
		Error:    job.Error,
	}
}

func printJSON(v interface{}) error {
	prettyJSON, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("error formatting response: %w", err)
	}
	fmt.Println(string(prettyJSON))
	return nil
}

// GetJobsCmd returns the jobs command group
func GetJobsCmd() *cobra.Command {
	return jobsCmd
}

func init() {
	jobsCmd.AddCommand(listJobsCmd)
	jobsCmd.AddCommand(getJobCmd)
	jobsCmd.AddCommand(createJobCmd)
	jobsCmd.AddCommand(cancelJobCmd)
	jobsCmd.AddCommand(retryJobCmd)
	jobsCmd.AddCommand(deleteJobCmd)
	jobsCmd.AddCommand(reconcileJobCmd)
	jobsCmd.AddCommand(jobEventsCmd)

	// Add flags
	createJobCmd.Flags().String("country", "", "Target country code")
	createJobCmd.Flags().String("platform", "", "Target platform")
	createJobCmd.Flags().String("genre", "", "Content genre")
	createJobCmd.Flags().String("content-type", "", "Content type")
	createJobCmd.Flags().String("template", "", "Render template (optional)")
	createJobCmd.Flags().Bool("pause-after-generation", false, "Stop before rendering")
	_ = createJobCmd.MarkFlagRequired("country")
	_ = createJobCmd.MarkFlagRequired("platform")
	_ = createJobCmd.MarkFlagRequired("genre")
	_ = createJobCmd.MarkFlagRequired("content-type")
}

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage generation jobs",
}

var listJobsCmd = &cobra.Command{
	Use:   "list",
	Short: "List all jobs",
	RunE: func(_ *cobra.Command, _ []string) error {
		jobs, err := apiClient.ListJobs(context.Background())
		if err != nil {
			return fmt.Errorf("error fetching jobs: %w", err)
		}

		output := jobListOutput{Jobs: make([]jobOutput, len(jobs))}
		for i, job := range jobs {
			output.Jobs[i] = toJobOutput(job)
		}
		return printJSON(output)
	},
}

var getJobCmd = &cobra.Command{
	Use:   "get <job-id>",
	Short: "Get a job by id",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		job, err := apiClient.GetJob(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("error fetching job: %w", err)
		}
		return printJSON(job)
	},
}

var createJobCmd = &cobra.Command{
	Use:   "create",
	Short: "Submit a new generation job",
	RunE: func(cmd *cobra.Command, _ []string) error {
		country, _ := cmd.Flags().GetString("country")
		platform, _ := cmd.Flags().GetString("platform")
		genre, _ := cmd.Flags().GetString("genre")
		contentType, _ := cmd.Flags().GetString("content-type")
		template, _ := cmd.Flags().GetString("template")
		pause, _ := cmd.Flags().GetBool("pause-after-generation")

		job, err := apiClient.CreateJob(context.Background(), types.GenerationParams{
			Country:              country,
			Platform:             platform,
			Genre:                genre,
			ContentType:          contentType,
			Template:             template,
			PauseAfterGeneration: pause,
		})
		if err != nil {
			return fmt.Errorf("error creating job: %w", err)
		}
		return printJSON(toJobOutput(job))
	},
}

var cancelJobCmd = &cobra.Command{
	Use:   "cancel <job-id>",
	Short: "Cancel a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		job, err := apiClient.CancelJob(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("error cancelling job: %w", err)
		}
		return printJSON(toJobOutput(job))
	},
}

var retryJobCmd = &cobra.Command{
	Use:   "retry <job-id>",
	Short: "Requeue a failed job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		job, err := apiClient.RetryJob(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("error retrying job: %w", err)
		}
		return printJSON(toJobOutput(job))
	},
}

var deleteJobCmd = &cobra.Command{
	Use:   "delete <job-id>",
	Short: "Delete a terminal job",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if err := apiClient.DeleteJob(context.Background(), args[0]); err != nil {
			return fmt.Errorf("error deleting job: %w", err)
		}
		fmt.Println("deleted")
		return nil
	},
}

var reconcileJobCmd = &cobra.Command{
	Use:   "reconcile <job-id>",
	Short: "Re-sync a job against the render service",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		job, err := apiClient.ReconcileJob(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("error reconciling job: %w", err)
		}
		return printJSON(toJobOutput(job))
	},
}

var jobEventsCmd = &cobra.Command{
	Use:   "events <job-id>",
	Short: "Show a job's audit trail",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		events, err := apiClient.GetJobEvents(context.Background(), args[0])
		if err != nil {
			return fmt.Errorf("error fetching events: %w", err)
		}
		return printJSON(events)
	},
}
