package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/banshee-data/rover.autopilot/internal/httputil"
	"github.com/banshee-data/rover.autopilot/internal/telemetry"
)

// Client drives a remote autopilot through POST /api/telemetry. It has the
// same Cycle signature as the in-process autopilot.
type Client struct {
	http    httputil.HTTPClient
	baseURL string
}

func NewClient(c httputil.HTTPClient, baseURL string) *Client {
	return &Client{http: c, baseURL: strings.TrimRight(baseURL, "/")}
}

// Cycle posts msg and returns the command. When the server rejected the
// message the returned command is the one the server chose and err carries
// its reason; on transport failure the command is a safe stop.
func (c *Client) Cycle(ctx context.Context, msg []byte) (telemetry.Command, error) {
	var resp commandResponse
	status, err := httputil.PostJSON(ctx, c.http, c.baseURL+"/api/telemetry", msg, &resp)
	if err != nil {
		return telemetry.SafeStop(), err
	}
	if status != http.StatusOK {
		if resp.Command.Type == "" {
			resp.Command = telemetry.SafeStop()
		}
		reason := resp.Error
		if reason == "" {
			reason = http.StatusText(status)
		}
		return resp.Command, fmt.Errorf("autopilot returned %d: %s", status, reason)
	}
	return resp.Command, nil
}
