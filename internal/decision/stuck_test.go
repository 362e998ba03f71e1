package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/rover.autopilot/internal/rover"
)

func TestCheckStuck_StationaryRover(t *testing.T) {
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	const threshold = 2 * time.Second
	var timer rover.StuckTimer

	// Report once per threshold crossing while held at 0.05 m/s.
	var fired []time.Duration
	for ms := 0; ms <= 6000; ms += 40 {
		now := t0.Add(time.Duration(ms) * time.Millisecond)
		var exceeded bool
		exceeded, timer = CheckStuck(timer, now, 0.05, 30, 0.1, threshold)
		if exceeded {
			fired = append(fired, now.Sub(t0))
		}
	}
	assert.Equal(t, []time.Duration{2040 * time.Millisecond, 4120 * time.Millisecond}, fired)
}

func TestCheckStuck_RecordsOnsetHeading(t *testing.T) {
	t0 := time.Unix(100, 0)
	exceeded, timer := CheckStuck(rover.StuckTimer{}, t0, 0, 42, 0.1, time.Second)
	assert.False(t, exceeded)
	assert.Equal(t, rover.StuckTimer{On: true, Start: t0, Heading: 42}, timer)

	// Later yaw does not move the onset heading.
	exceeded, timer = CheckStuck(timer, t0.Add(500*time.Millisecond), 0, 80, 0.1, time.Second)
	assert.False(t, exceeded)
	assert.Equal(t, 42.0, timer.Heading)

	// Crossing switches the timer off but keeps the heading.
	exceeded, timer = CheckStuck(timer, t0.Add(1100*time.Millisecond), 0, 80, 0.1, time.Second)
	assert.True(t, exceeded)
	assert.False(t, timer.On)
	assert.Equal(t, 42.0, timer.Heading)
}

func TestCheckStuck_ResetsOnRecovery(t *testing.T) {
	t0 := time.Unix(100, 0)
	_, timer := CheckStuck(rover.StuckTimer{}, t0, 0.05, 10, 0.1, 2*time.Second)
	_, timer = CheckStuck(timer, t0.Add(1900*time.Millisecond), 0.05, 10, 0.1, 2*time.Second)
	assert.True(t, timer.On)

	// One cycle at 0.1 m/s discards the elapsed time.
	exceeded, timer := CheckStuck(timer, t0.Add(1950*time.Millisecond), 0.1, 10, 0.1, 2*time.Second)
	assert.False(t, exceeded)
	assert.Equal(t, rover.StuckTimer{}, timer)

	// Stopping again measures from zero.
	_, timer = CheckStuck(timer, t0.Add(2*time.Second), 0.05, 11, 0.1, 2*time.Second)
	exceeded, _ = CheckStuck(timer, t0.Add(3*time.Second), 0.05, 11, 0.1, 2*time.Second)
	assert.False(t, exceeded)
}
