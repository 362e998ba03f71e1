package serialmux

import (
	"encoding/json"
	"fmt"
	"strings"
)

// maxLineBytes bounds a single line, which carries a base64 camera frame.
const maxLineBytes = 4 << 20

const (
	EventTypeTelemetry = "telemetry"
	EventTypeManual    = "manual"
	EventTypeUnknown   = "unknown"
)

// ClassifyPayload inspects a line and returns a simple event type token.
// Any JSON object is treated as telemetry so that malformed messages still
// reach the autopilot and get a safe-stop reply; an empty object means the
// rover is under manual control.
func ClassifyPayload(payload string) string {
	p := strings.TrimSpace(payload)
	if !strings.HasPrefix(p, "{") {
		return EventTypeUnknown
	}
	if strings.Join(strings.Fields(p), "") == "{}" {
		return EventTypeManual
	}
	return EventTypeTelemetry
}

// summarize replaces the inline camera frame with its size.
func summarize(payload string) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return payload
	}
	img, ok := m["image"]
	if !ok {
		return payload
	}
	m["image"] = json.RawMessage(fmt.Sprintf(`"<%d bytes>"`, len(img)))
	out, err := json.Marshal(m)
	if err != nil {
		return payload
	}
	return string(out)
}
