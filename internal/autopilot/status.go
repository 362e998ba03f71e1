package autopilot

import (
	"github.com/banshee-data/rover.autopilot/internal/perception"
	"github.com/banshee-data/rover.autopilot/internal/rover"
	"github.com/banshee-data/rover.autopilot/internal/telemetry"
)

// Status is a point-in-time view of the mission.
type Status struct {
	Behavior         rover.Behavior      `json:"behavior"`
	X                float64             `json:"x"`
	Y                float64             `json:"y"`
	Yaw              float64             `json:"yaw"`
	Velocity         float64             `json:"velocity"`
	VelocityValid    bool                `json:"velocity_valid"`
	GoingHome        bool                `json:"going_home"`
	HomeDistance     float64             `json:"home_distance"`
	HomeHeading      float64             `json:"home_heading"`
	ElapsedSeconds   float64             `json:"elapsed_seconds"`
	SamplesToFind    int                 `json:"samples_to_find"`
	SamplesCollected int                 `json:"samples_collected"`
	Map              perception.MapStats `json:"map"`
	Events           map[string]bool     `json:"events"`
	CycleRate        int                 `json:"cycle_rate"`
	Cycles           int64               `json:"cycles"`
	Malformed        int64               `json:"malformed"`
	LastCommand      telemetry.Command   `json:"last_command"`
}

// Status returns a snapshot taken between cycles.
func (a *Autopilot) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()

	s := a.state
	// JSON cannot carry NaN; the flag tells readers the value was dropped.
	vel := s.Velocity
	if !s.VelocityValid() {
		vel = 0
	}
	return Status{
		Behavior:         s.Behavior,
		X:                s.X,
		Y:                s.Y,
		Yaw:              s.Yaw,
		Velocity:         vel,
		VelocityValid:    s.VelocityValid(),
		GoingHome:        s.GoingHome,
		HomeDistance:     s.HomeDist,
		HomeHeading:      s.HomeHeading,
		ElapsedSeconds:   s.Mission.Elapsed.Seconds(),
		SamplesToFind:    s.Mission.SamplesToFind,
		SamplesCollected: s.Mission.SamplesCollected(),
		Map:              a.stats,
		Events:           a.machine.Events().Evaluate(s),
		CycleRate:        a.rate,
		Cycles:           a.cycles,
		Malformed:        a.malformed,
		LastCommand:      a.last,
	}
}

// WorldMap returns a copy of the accumulated world map.
func (a *Autopilot) WorldMap() *perception.WorldMap {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pipeline.World().Clone()
}

// History returns the most recent cycle records, oldest first.
func (a *Autopilot) History() []Record {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Record, len(a.history))
	copy(out, a.history)
	return out
}

// Home returns the configured home position in world cells.
func (a *Autopilot) Home() (x, y float64) {
	return a.cfg.Mission.HomeX, a.cfg.Mission.HomeY
}

// KnownSamples returns the sample positions reported by the first message.
func (a *Autopilot) KnownSamples() []rover.SamplePosition {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]rover.SamplePosition, len(a.state.Mission.Known))
	copy(out, a.state.Mission.Known)
	return out
}
