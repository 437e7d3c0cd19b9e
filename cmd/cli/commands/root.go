package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vidforge/vidforge/pkg/api/v1/client"
)

// flag names
const (
	flagServerAddress = "server-address"
)

// environment variable names
const (
	envServerAddress = "VIDFORGE_SERVER_ADDRESS"
)

var (
	// apiClient is the shared API client instance
	apiClient client.Client
	// serverAddress holds the target API server address. Flag parsing sets this.
	serverAddress string
)

// initClient initializes the API client
func initClient() error {
	var err error
	opts := client.DefaultOptions()
	opts.BaseURL = serverAddress

	apiClient, err = client.NewClient(opts)
	return err
}

func init() {
	// Set a basic default for the flag. PersistentPreRunE handles the env var override.
	RootCmd.PersistentFlags().StringVarP(&serverAddress, flagServerAddress, "s", client.DefaultBaseURL, "Address of the vidforge API server (env: VIDFORGE_SERVER_ADDRESS)")

	RootCmd.AddCommand(GetJobsCmd())
	RootCmd.AddCommand(GetQueueCmd())
}

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "vidforge",
	Short: "vidforge CLI - A command line interface for the vidforge API",
	Long:  `vidforge CLI is a command line tool for managing video generation jobs through the vidforge API.`,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		// Precedence: flag > env var > default
		if !cmd.Flags().Changed(flagServerAddress) {
			if envAddr := os.Getenv(envServerAddress); envAddr != "" {
				serverAddress = envAddr
			}
		}

		if serverAddress == "" {
			return fmt.Errorf("server address cannot be empty")
		}
		return initClient()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return RootCmd.Execute()
}
