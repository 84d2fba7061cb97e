package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	bearer    string
)

var rootCmd = &cobra.Command{
	Use:   "trustctl",
	Short: "trustctl is a CLI tool to interact with the trustgate API",
	Long:  `A command-line interface for inspecting and revoking trusted devices and clearing sessions on a trustgate deployment.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the trustgate server")
	rootCmd.PersistentFlags().StringVar(&bearer, "token", "", "Bearer credential used to authenticate API calls")

	rootCmd.AddCommand(deviceCmd)
	rootCmd.AddCommand(sessionCmd)
}
