package cmd

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/nfrund/huddle/internal/handlers"
	"github.com/nfrund/huddle/internal/protocol"
)

var sendCmd = &cobra.Command{
	Use:   "send <room> [event-json]",
	Short: "Broadcast a domain event into a room of a running server",
	Long: `Send a channel or thread event to every connection of a room.

The event is read from the second argument, or from stdin when it is omitted
or "-". It is checked locally before it is posted.

Examples:
  huddle send channel-42 '{"type":"message:replies:increment","payload":{"messageId":"m1","delta":1}}'
  cat event.json | huddle send channel-42`,
	Args: cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		room := args[0]

		var body []byte
		var err error
		if len(args) == 2 && args[1] != "-" {
			body = []byte(args[1])
		} else {
			body, err = io.ReadAll(cmd.InOrStdin())
			if err != nil {
				return fmt.Errorf("reading event: %w", err)
			}
		}

		frame, err := protocol.DecodeDomainEvent(body)
		if err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, roomURL(room), bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("posting event: %w", err)
		}

		var accepted handlers.BroadcastResponse
		if err := decodeResponse(resp, http.StatusAccepted, &accepted); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Sent %s to %s\n", frame.FrameType(), accepted.Room)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
}
