package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nfrund/huddle/cmd/huddle/internal/topics"
	"github.com/nfrund/huddle/internal/topicmgr"
)

var (
	topicsFormat    string
	topicsDirection string
)

// topicsCmd represents the topics command
var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "Explore the message bus topics of the hub",
	Long: `The topics command lists the message bus topics the hub publishes
(connection and presence lifecycle events) and consumes (collaborator
broadcasts).

Examples:
  huddle topics list
  huddle topics list --direction inbound --format json
  huddle topics get realtime.room.broadcast`,
}

var topicsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered topics",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		manager := topicmgr.Default()

		var list []topicmgr.Topic
		switch topicsDirection {
		case "":
			list = manager.List()
		case string(topicmgr.DirectionInbound), string(topicmgr.DirectionOutbound):
			list = manager.ListByDirection(topicmgr.Direction(topicsDirection))
		default:
			return fmt.Errorf("invalid direction %q: valid directions are inbound, outbound", topicsDirection)
		}

		if topicsFormat == "json" {
			return topics.DisplayTopicsJSON(cmd.OutOrStdout(), list)
		}
		return topics.DisplayTopicsTable(cmd.OutOrStdout(), list)
	},
}

var topicsGetCmd = &cobra.Command{
	Use:   "get <topic-name>",
	Short: "Get detailed information about a specific topic",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic, found := topicmgr.Default().Get(args[0])
		if !found {
			return fmt.Errorf("topic %q not found; use 'huddle topics list' to see all available topics", args[0])
		}
		return topics.DisplayTopicDetails(cmd.OutOrStdout(), topic, topicsFormat)
	},
}

func init() {
	topicsCmd.PersistentFlags().StringVar(&topicsFormat, "format", "table", "Output format (table|json)")
	topicsListCmd.Flags().StringVar(&topicsDirection, "direction", "", "Only show inbound or outbound topics")

	topicsCmd.AddCommand(topicsListCmd, topicsGetCmd)
	rootCmd.AddCommand(topicsCmd)
}
