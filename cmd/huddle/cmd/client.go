package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nfrund/huddle/internal/handlers"
)

var httpClient = &http.Client{Timeout: 10 * time.Second}

// roomURL builds the URL of a room on the configured server.
func roomURL(room string, suffix ...string) string {
	parts := append([]string{
		strings.TrimRight(serverURL, "/"),
		"parties",
		url.PathEscape(partyName),
		url.PathEscape(room),
	}, suffix...)
	return strings.Join(parts, "/")
}

// decodeResponse decodes a successful JSON body into out, or turns an error
// response into a Go error.
func decodeResponse(resp *http.Response, want int, out any) error {
	defer resp.Body.Close()

	if resp.StatusCode != want {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr handlers.ErrorResponse
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s: %s (%s)", resp.Status, apiErr.Message, apiErr.Code)
		}
		return fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
