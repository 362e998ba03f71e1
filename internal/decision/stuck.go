package decision

import (
	"time"

	"github.com/banshee-data/rover.autopilot/internal/rover"
)

// CheckStuck advances the stuck timer by one observation.
//
// The timer starts on the first observation below stoppedVelocity and
// records the yaw at that moment. It reports exceeded once the rover has
// been below stoppedVelocity for longer than threshold; the timer then
// switches off but keeps the onset heading, so the next slow observation
// starts a fresh interval. Any observation at or above stoppedVelocity
// clears the timer and the onset heading.
func CheckStuck(t rover.StuckTimer, now time.Time, velocity, yaw, stoppedVelocity float64, threshold time.Duration) (bool, rover.StuckTimer) {
	if !(velocity < stoppedVelocity) {
		return false, rover.StuckTimer{}
	}
	if !t.On {
		return false, rover.StuckTimer{On: true, Start: now, Heading: yaw}
	}
	if now.Sub(t.Start) > threshold {
		t.On = false
		return true, t
	}
	return false, t
}
