package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// GetQueueCmd returns the queue command group
func GetQueueCmd() *cobra.Command {
	return queueCmd
}

func init() {
	queueCmd.AddCommand(queueStatsCmd)
	queueCmd.AddCommand(queuePauseCmd)
	queueCmd.AddCommand(queueResumeCmd)
	queueCmd.AddCommand(queueClearFailedCmd)
}

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage the job queue",
}

var queueStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate queue counters",
	RunE: func(_ *cobra.Command, _ []string) error {
		stats, err := apiClient.GetStats(context.Background())
		if err != nil {
			return fmt.Errorf("error fetching stats: %w", err)
		}
		return printJSON(stats)
	},
}

var queuePauseCmd = &cobra.Command{
	Use:   "pause",
	Short: "Pause worker dispatch",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := apiClient.PauseQueue(context.Background()); err != nil {
			return fmt.Errorf("error pausing queue: %w", err)
		}
		fmt.Println("queue paused")
		return nil
	},
}

var queueResumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume worker dispatch",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := apiClient.ResumeQueue(context.Background()); err != nil {
			return fmt.Errorf("error resuming queue: %w", err)
		}
		fmt.Println("queue resumed")
		return nil
	},
}

var queueClearFailedCmd = &cobra.Command{
	Use:   "clear-failed",
	Short: "Delete all failed jobs",
	RunE: func(_ *cobra.Command, _ []string) error {
		cleared, err := apiClient.ClearFailed(context.Background())
		if err != nil {
			return fmt.Errorf("error clearing failed jobs: %w", err)
		}
		fmt.Printf("cleared %d failed jobs\n", cleared)
		return nil
	},
}
