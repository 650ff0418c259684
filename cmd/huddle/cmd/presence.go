package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nfrund/huddle/internal/handlers"
)

var presenceFormat string

var presenceCmd = &cobra.Command{
	Use:   "presence <room>",
	Short: "Show who is present in a room of a running server",
	Long: `Show the users currently identified on at least one connection of a room.
A room nobody is connected to has nobody present.

Output formats:
  table - Human-readable table format (default)
  json  - The server's JSON response`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, roomURL(args[0], "presence"), nil)
		if err != nil {
			return err
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetching presence: %w", err)
		}

		var snapshot handlers.PresenceResponse
		if err := decodeResponse(resp, http.StatusOK, &snapshot); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if presenceFormat == "json" {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(snapshot)
		}

		fmt.Fprintf(out, "Room %s: %d present\n\n", snapshot.Room, len(snapshot.Users))
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tEMAIL")
		for _, u := range snapshot.Users {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, deref(u.FullName), deref(u.Email))
		}
		return tw.Flush()
	},
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func init() {
	presenceCmd.Flags().StringVar(&presenceFormat, "format", "table", "Output format (table|json)")
	rootCmd.AddCommand(presenceCmd)
}
