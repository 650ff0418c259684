package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

var (
	serverURL string
	partyName string
)

var rootCmd = &cobra.Command{
	Use:   "huddle",
	Short: "Real-time presence and broadcast hub",
	Long: `Huddle keeps browser tabs in a chat room told about who is present and
relays message, reaction and reply-count events between them.

Available commands:
  serve      Run the hub server
  send       Broadcast a domain event into a room of a running server
  presence   Show who is present in a room of a running server
  topics     List the message bus topics the hub publishes and consumes
  version    Print the version

Use "huddle [command] --help" for more information about a specific command.`,
	SilenceUsage: true,
}

// Execute executes the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8787", "Base URL of a running huddle server")
	rootCmd.PersistentFlags().StringVar(&partyName, "party", "chat", "Party the rooms belong to")
}
