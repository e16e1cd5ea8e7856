package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// StreamHandler receives each notification pushed by the server.
// Returning an error ends the stream with that error.
type StreamHandler func(Notification) error

// StreamNotifications follows the server's notification stream until ctx is
// cancelled or the server closes it. An empty address streams every wallet.
func (c *Client) StreamNotifications(ctx context.Context, address string, handle StreamHandler) error {
	u := c.baseURL + "/api/v1/stream/notifications"
	if address != "" {
		u += "?address=" + url.QueryEscape(address)
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The regular client's timeout would cut the stream.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to SSE endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	var event, data string

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if event == "notification" && data != "" {
				var n Notification
				if err := json.Unmarshal([]byte(data), &n); err != nil {
					c.logger.Warn("skipping malformed notification", "error", err)
				} else if err := handle(n); err != nil {
					return err
				}
			} else if event == "connected" {
				c.logger.Debug("notification stream connected", "data", data)
			}
			event, data = "", ""
			continue
		}

		if strings.HasPrefix(line, "event:") {
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("error reading SSE stream: %w", err)
	}
	return nil
}
