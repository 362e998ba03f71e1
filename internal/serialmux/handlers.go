package serialmux

import (
	"context"
	"fmt"

	"github.com/banshee-data/rover.autopilot/internal/monitoring"
	"github.com/banshee-data/rover.autopilot/internal/telemetry"
)

var logf = monitoring.Component("serialmux")

// Cycler turns one telemetry message into one command.
type Cycler interface {
	Cycle(ctx context.Context, msg []byte) (telemetry.Command, error)
}

// HandleEvent processes one line from the rover. Telemetry always gets
// exactly one command line in reply, even when the cycle failed.
func HandleEvent(ctx context.Context, mux SerialMuxInterface, c Cycler, payload string) error {
	switch ClassifyPayload(payload) {
	case EventTypeTelemetry:
		cmd, err := c.Cycle(ctx, []byte(payload))
		if err != nil {
			logf("cycle failed, replying %s: %v", cmd, err)
		}
		if err := sendCommand(mux, cmd); err != nil {
			return fmt.Errorf("failed to send command: %w", err)
		}
	case EventTypeManual:
		logf("rover under manual control")
	default:
		logf("unknown line: %.80s", payload)
	}
	return nil
}

// Drive answers every telemetry line from mux until ctx is done or the mux
// closes.
func Drive(ctx context.Context, mux SerialMuxInterface, c Cycler) error {
	id, lines := mux.Subscribe()
	defer mux.Unsubscribe(id)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := HandleEvent(ctx, mux, c, line); err != nil {
				logf("error handling line: %v", err)
			}
		}
	}
}
