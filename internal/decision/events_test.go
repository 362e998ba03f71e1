package decision

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/banshee-data/rover.autopilot/internal/config"
	"github.com/banshee-data/rover.autopilot/internal/rover"
)

func repeat(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func newEvents() *Events {
	cfg := config.DefaultRoverConfig()
	return NewEvents(cfg.Events, cfg.Mission)
}

func TestEvents(t *testing.T) {
	e := newEvents()

	tests := []struct {
		name  string
		pred  Predicate
		state func(s *rover.State)
		want  bool
	}{
		{"front clear at threshold", e.FrontPathClear, func(s *rover.State) { s.Perception.NavAngles = repeat(500, 0) }, true},
		{"front not clear", e.FrontPathClear, func(s *rover.State) { s.Perception.NavAngles = repeat(499, 0) }, false},
		{"left clear", e.LeftPathClear, func(s *rover.State) { s.Perception.NavAnglesLeft = repeat(1500, 5) }, true},
		{"front obstacle", e.AtFrontObstacle, func(s *rover.State) { s.Perception.NavAngles = repeat(599, 0) }, true},
		{"no front obstacle", e.AtFrontObstacle, func(s *rover.State) { s.Perception.NavAngles = repeat(600, 0) }, false},
		{"left obstacle", e.AtLeftObstacle, func(s *rover.State) { s.Perception.NavAnglesLeft = repeat(10, 5) }, true},
		{"pointed at nav edge", e.PointedAtNav, func(s *rover.State) { s.Perception.NavAngles = repeat(3, -17) }, true},
		{"not pointed at nav", e.PointedAtNav, func(s *rover.State) { s.Perception.NavAngles = repeat(3, 18) }, false},
		{"pointed at nav empty", e.PointedAtNav, func(s *rover.State) {}, false},
		{"along wall", e.PointedAlongWall, func(s *rover.State) { s.Perception.NavAnglesLeft = repeat(500, 10.5) }, true},
		{"along wall too steep offset", e.PointedAlongWall, func(s *rover.State) { s.Perception.NavAnglesLeft = repeat(500, 10) }, false},
		{"along wall too few", e.PointedAlongWall, func(s *rover.State) { s.Perception.NavAnglesLeft = repeat(499, 30) }, false},
		{"deviated", e.DeviatedFromWall, func(s *rover.State) { s.Perception.NavAnglesLeft = repeat(4, 26) }, true},
		{"deviated empty", e.DeviatedFromWall, func(s *rover.State) {}, false},
		{"sample on left", e.SampleOnLeft, func(s *rover.State) { s.Perception.SampleAngles = []float64{0} }, true},
		{"sample on right", e.SampleOnLeft, func(s *rover.State) { s.Perception.SampleAngles = []float64{-1} }, false},
		{"sample on left empty", e.SampleOnLeft, func(s *rover.State) {}, false},
		{"sample right close", e.SampleRightClose, func(s *rover.State) {
			s.Perception.SampleAngles = []float64{-10}
			s.Perception.SampleDists = []float64{40}
		}, true},
		{"sample right far", e.SampleRightClose, func(s *rover.State) {
			s.Perception.SampleAngles = []float64{-10}
			s.Perception.SampleDists = []float64{75}
		}, false},
		{"sample right close empty", e.SampleRightClose, func(s *rover.State) {}, false},
		{"sample in view", e.SampleInView, func(s *rover.State) { s.Perception.SampleAngles = []float64{50} }, true},
		{"pointed at sample", e.PointedAtSample, func(s *rover.State) { s.Perception.SampleAngles = []float64{16.9} }, true},
		{"pointed at sample exclusive", e.PointedAtSample, func(s *rover.State) { s.Perception.SampleAngles = []float64{17} }, false},
		{"can pickup", e.CanPickupSample, func(s *rover.State) { s.NearSample, s.Velocity = true, 0.1 }, true},
		{"cannot pickup moving", e.CanPickupSample, func(s *rover.State) { s.NearSample, s.Velocity = true, 0.2 }, false},
		{"reached home", e.ReachedHome, func(s *rover.State) { s.GoingHome, s.HomeDist = true, 4.9 }, true},
		{"home but not returning", e.ReachedHome, func(s *rover.State) { s.HomeDist = 1 }, false},
		{"completed by samples and map", e.CompletedMission, func(s *rover.State) {
			s.Mission = rover.Mission{SamplesToFind: 6, SamplesLeft: 0, PercentMapped: 96}
		}, true},
		{"map not complete", e.CompletedMission, func(s *rover.State) {
			s.Mission = rover.Mission{SamplesToFind: 6, SamplesLeft: 0, PercentMapped: 94.9}
		}, false},
		{"completed by time", e.CompletedMission, func(s *rover.State) {
			s.Mission = rover.Mission{SamplesToFind: 6, SamplesLeft: 6, Elapsed: 700 * time.Second}
		}, true},
		{"velocity exceeded", e.VelocityExceeded, func(s *rover.State) { s.Velocity = 2.0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := rover.New()
			tt.state(s)
			assert.Equal(t, tt.want, tt.pred(s))
		})
	}
}

func TestEvents_Evaluate(t *testing.T) {
	e := newEvents()
	s := rover.New()

	got := e.Evaluate(s)
	assert.Len(t, got, len(e.Names()))
	assert.True(t, got[EventAtFrontObstacle])
	assert.True(t, got[EventAtLeftObstacle])
	assert.False(t, got[EventPointedAtNav])
	assert.False(t, got[EventSampleInView])
	assert.Equal(t, EventFrontPathClear, e.Names()[0])
}
