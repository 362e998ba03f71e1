package decision

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/rover.autopilot/internal/config"
	"github.com/banshee-data/rover.autopilot/internal/rover"
	"github.com/banshee-data/rover.autopilot/internal/timeutil"
)

const (
	homeX = 99.7
	homeY = 85.6
)

func newMachine(t *testing.T) (*Machine, *timeutil.MockClock) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	return NewMachine(config.DefaultRoverConfig(), clock), clock
}

// stateIn returns a state in behavior b with the rover far from home and
// enough open ground ahead that no obstacle predicate fires.
func stateIn(b rover.Behavior) *rover.State {
	s := rover.New()
	s.Behavior = b
	s.X, s.Y = 20, 20
	s.Mission.SamplesToFind, s.Mission.SamplesLeft = 6, 6
	s.Perception.NavAngles = repeat(800, 0)
	s.Perception.NavAnglesLeft = repeat(100, 10)
	return s
}

// placeFromHome puts the rover, yawed to 0, so that home lies dist rover
// pixels away at heading degrees.
func placeFromHome(s *rover.State, dist, heading float64) {
	rad := heading * math.Pi / 180
	s.Yaw = 0
	s.X = homeX - dist/10*math.Cos(rad)
	s.Y = homeY - dist/10*math.Sin(rad)
}

func TestStep_FindWall(t *testing.T) {
	m, _ := newMachine(t)

	s := stateIn(rover.FindWall)
	s.Yaw = 50
	step := m.Step(s)
	assert.Equal(t, rover.FindWall, step.Executed)
	assert.Equal(t, rover.FollowWall, step.Next)
	assert.Equal(t, rover.FollowWall, s.Behavior)
	assert.Equal(t, rover.Actuation{Steer: 15}, step.Actuation)

	s = stateIn(rover.FindWall)
	s.Yaw = 65
	assert.Equal(t, rover.FindWall, m.Step(s).Next)
}

func TestStep_FollowWallPriority(t *testing.T) {
	m, _ := newMachine(t)

	s := stateIn(rover.FollowWall)
	s.Perception.NavAnglesLeft = repeat(10, 30)
	// A sample on the left and a completed mission must not pre-empt the
	// left obstacle.
	s.Perception.SampleAngles = []float64{5}
	s.Perception.SampleDists = []float64{20}
	s.Mission.SamplesLeft = 0
	s.Mission.PercentMapped = 99

	step := m.Step(s)
	assert.Equal(t, rover.AvoidWall, step.Next)
	assert.False(t, s.GoingHome)
	assert.Equal(t, rover.Actuation{Throttle: 0.8, Steer: 15}, step.Actuation)
}

func TestStep_FollowWallTransitions(t *testing.T) {
	m, _ := newMachine(t)

	tests := []struct {
		name  string
		setup func(s *rover.State)
		want  rover.Behavior
	}{
		{"deviated with clear left", func(s *rover.State) { s.Perception.NavAnglesLeft = repeat(1500, 30) }, rover.TurnToWall},
		{"deviated but left blocked", func(s *rover.State) { s.Perception.NavAnglesLeft = repeat(1499, 30) }, rover.FollowWall},
		{"sample on left", func(s *rover.State) {
			s.Perception.SampleAngles = []float64{3}
			s.Perception.SampleDists = []float64{90}
		}, rover.GoToSample},
		{"sample right and close", func(s *rover.State) {
			s.Perception.SampleAngles = []float64{-12}
			s.Perception.SampleDists = []float64{30}
		}, rover.GoToSample},
		{"sample right and far", func(s *rover.State) {
			s.Perception.SampleAngles = []float64{-12}
			s.Perception.SampleDists = []float64{90}
		}, rover.FollowWall},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := stateIn(rover.FollowWall)
			s.Velocity = 1
			tt.setup(s)
			assert.Equal(t, tt.want, m.Step(s).Next)
		})
	}
}

func TestStep_CompletedMissionGoesHome(t *testing.T) {
	m, _ := newMachine(t)
	s := stateIn(rover.FollowWall)
	s.Velocity = 1.5
	s.Mission.SamplesLeft = 0
	s.Mission.PercentMapped = 96

	require.True(t, m.Events().CompletedMission(s))
	step := m.Step(s)
	assert.Equal(t, rover.ReturnHome, step.Next)
	assert.True(t, s.GoingHome)
	assert.InDelta(t, 0.8, step.Actuation.Throttle, 1e-12)
	assert.InDelta(t, 0.1, step.Actuation.Steer, 1e-9)

	// The following cycle executes ReturnHome.
	assert.Equal(t, rover.ReturnHome, m.Step(s).Executed)
}

func TestStep_FollowWallStuck(t *testing.T) {
	m, clock := newMachine(t)
	s := stateIn(rover.FollowWall)
	s.Yaw = 70

	assert.Equal(t, rover.FollowWall, m.Step(s).Next)
	assert.True(t, s.Stuck.On)
	clock.Advance(1900 * time.Millisecond)
	assert.Equal(t, rover.FollowWall, m.Step(s).Next)
	clock.Advance(200 * time.Millisecond)
	assert.Equal(t, rover.GetUnstuck, m.Step(s).Next)
	assert.Equal(t, 70.0, s.Stuck.Heading)
}

func TestStep_FollowWallEmptyLeftNeverNaN(t *testing.T) {
	m, _ := newMachine(t)
	s := stateIn(rover.FollowWall)
	s.Perception.NavAnglesLeft = nil

	step := m.Step(s)
	assert.Equal(t, rover.AvoidWall, step.Next)
	assert.False(t, math.IsNaN(step.Actuation.Steer))
	assert.Equal(t, 0.0, step.Actuation.Steer)
}

func TestStep_TurnAndAvoidWall(t *testing.T) {
	m, _ := newMachine(t)

	s := stateIn(rover.TurnToWall)
	s.Velocity = 0.5
	s.Perception.NavAnglesLeft = repeat(100, 30)
	step := m.Step(s)
	assert.Equal(t, rover.Actuation{Brake: 10}, step.Actuation)
	assert.Equal(t, rover.TurnToWall, step.Next)

	s.Velocity = 0.2
	assert.Equal(t, rover.Actuation{Steer: 15}, m.Step(s).Actuation)

	s = stateIn(rover.AvoidWall)
	s.Perception.NavAnglesLeft = repeat(600, 12)
	step = m.Step(s)
	assert.Equal(t, rover.Actuation{Steer: -15}, step.Actuation)
	assert.Equal(t, rover.FollowWall, step.Next)
}

func TestStep_AvoidObstacles(t *testing.T) {
	m, _ := newMachine(t)

	tests := []struct {
		name string
		nav  []float64
		vel  float64
		want rover.Actuation
		next rover.Behavior
	}{
		{"brake while moving", repeat(800, 0), 0.3, rover.Actuation{Brake: 10}, rover.ReturnHome},
		{"open to the right", repeat(100, -30), 0, rover.Actuation{Steer: -15}, rover.AvoidObstacles},
		{"open to the left", repeat(100, 30), 0, rover.Actuation{Steer: 15}, rover.AvoidObstacles},
		{"nothing open", nil, 0, rover.Actuation{Throttle: -1}, rover.AvoidObstacles},
		{"ahead clear", repeat(500, 10), 0, rover.Actuation{Throttle: -1}, rover.ReturnHome},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := stateIn(rover.AvoidObstacles)
			s.Perception.NavAngles = tt.nav
			s.Velocity = tt.vel
			step := m.Step(s)
			assert.Equal(t, tt.want, step.Actuation)
			assert.Equal(t, tt.next, step.Next)
		})
	}
}

func TestStep_GoToSample(t *testing.T) {
	m, clock := newMachine(t)

	t.Run("too fast", func(t *testing.T) {
		s := stateIn(rover.GoToSample)
		s.Velocity = 1.2
		s.Perception.SampleAngles = []float64{0}
		assert.Equal(t, rover.Actuation{Brake: 10}, m.Step(s).Actuation)
	})

	t.Run("sample far left turns in place", func(t *testing.T) {
		s := stateIn(rover.GoToSample)
		s.Velocity = 0.5
		s.Perception.SampleAngles = []float64{26}
		assert.Equal(t, rover.Actuation{Steer: 15}, m.Step(s).Actuation)
	})

	t.Run("approach with bias", func(t *testing.T) {
		s := stateIn(rover.GoToSample)
		s.Velocity = 0.5
		s.Perception.SampleAngles = []float64{10, 12}
		assert.Equal(t, rover.Actuation{Throttle: 0.39, Steer: 8}, m.Step(s).Actuation)
	})

	t.Run("near sample stops", func(t *testing.T) {
		s := stateIn(rover.GoToSample)
		s.Velocity = 0.5
		s.NearSample = true
		s.Stuck = rover.StuckTimer{On: true, Start: clock.Now()}
		s.Perception.SampleAngles = []float64{0}
		assert.Equal(t, rover.Stop, m.Step(s).Next)
		assert.False(t, s.Stuck.On)
	})

	t.Run("lost sample holds", func(t *testing.T) {
		s := stateIn(rover.GoToSample)
		step := m.Step(s)
		assert.Equal(t, rover.GoToSample, step.Next)
		assert.False(t, math.IsNaN(step.Actuation.Steer))
	})

	t.Run("stuck on approach", func(t *testing.T) {
		s := stateIn(rover.GoToSample)
		s.Perception.SampleAngles = []float64{0}
		assert.Equal(t, rover.GoToSample, m.Step(s).Next)
		clock.Advance(2400 * time.Millisecond)
		assert.Equal(t, rover.GoToSample, m.Step(s).Next)
		clock.Advance(200 * time.Millisecond)
		assert.Equal(t, rover.GetUnstuck, m.Step(s).Next)
		assert.False(t, s.Stuck.On)
	})
}

func TestStep_PickupSequence(t *testing.T) {
	m, _ := newMachine(t)
	s := stateIn(rover.Stop)
	s.NearSample = true
	s.Velocity = 0.3

	step := m.Step(s)
	assert.Equal(t, rover.Actuation{Brake: 10}, step.Actuation)
	assert.Equal(t, rover.Stop, step.Next)

	s.Velocity = 0
	assert.Equal(t, rover.InitiatePickup, m.Step(s).Next)

	step = m.Step(s)
	assert.True(t, s.SendPickup)
	assert.Equal(t, rover.Actuation{Brake: 10}, step.Actuation, "pickup keeps the stop actuation")
	assert.Equal(t, rover.WaitForPickupInitiate, step.Next)

	assert.Equal(t, rover.WaitForPickupInitiate, m.Step(s).Next)
	s.PickingUp = true
	assert.Equal(t, rover.WaitForPickupFinish, m.Step(s).Next)
	assert.False(t, s.SendPickup, "a pickup under way answers the request")
	assert.Equal(t, rover.WaitForPickupFinish, m.Step(s).Next)
	s.PickingUp = false
	step = m.Step(s)
	assert.Equal(t, rover.AvoidWall, step.Next)
	assert.Equal(t, rover.Actuation{Brake: 10}, step.Actuation)
}

func TestStep_PickupRequestedWhilePickingUp(t *testing.T) {
	m, _ := newMachine(t)
	s := stateIn(rover.InitiatePickup)
	s.PickingUp = true

	assert.Equal(t, rover.WaitForPickupInitiate, m.Step(s).Next)
	require.True(t, s.SendPickup)
	assert.Equal(t, rover.WaitForPickupFinish, m.Step(s).Next)
	assert.False(t, s.SendPickup)

	s.PickingUp = false
	assert.Equal(t, rover.AvoidWall, m.Step(s).Next)
	assert.False(t, s.SendPickup, "no second pickup once the first one ends")
}

func TestStep_GetUnstuck(t *testing.T) {
	m, clock := newMachine(t)

	t.Run("sweeps right then drives", func(t *testing.T) {
		s := stateIn(rover.GetUnstuck)
		s.Stuck.Heading = 100
		s.Yaw = 80
		s.Velocity = 0.5
		assert.Equal(t, rover.Actuation{Steer: -15}, m.Step(s).Actuation)

		s.Yaw = 64
		assert.Equal(t, rover.Actuation{Throttle: 1}, m.Step(s).Actuation)
	})

	t.Run("sweep across north", func(t *testing.T) {
		s := stateIn(rover.GetUnstuck)
		s.Stuck.Heading = 10
		s.Yaw = 355
		s.Velocity = 0.5
		assert.Equal(t, rover.Actuation{Steer: -15}, m.Step(s).Actuation, "15 degrees swept")

		s.Yaw = 330
		assert.Equal(t, rover.Actuation{Throttle: 1}, m.Step(s).Actuation, "40 degrees swept")

		s.Stuck.Heading = 350
		s.Yaw = 5
		assert.Equal(t, rover.Actuation{Steer: -15}, m.Step(s).Actuation)
	})

	t.Run("going home follows open ground", func(t *testing.T) {
		s := stateIn(rover.GetUnstuck)
		s.GoingHome = true
		s.Velocity = 0.5
		s.Perception.NavAngles = repeat(50, -20)
		assert.Equal(t, rover.Actuation{Steer: -15}, m.Step(s).Actuation)

		s.Perception.NavAngles = nil
		assert.Equal(t, rover.Actuation{Steer: 15}, m.Step(s).Actuation)
	})

	t.Run("exits on speed", func(t *testing.T) {
		s := stateIn(rover.GetUnstuck)
		s.Velocity = 1.0
		assert.Equal(t, rover.FollowWall, m.Step(s).Next)

		s = stateIn(rover.GetUnstuck)
		s.GoingHome = true
		s.Velocity = 1.0
		assert.Equal(t, rover.ReturnHome, m.Step(s).Next)
	})

	t.Run("gives up after stuck again", func(t *testing.T) {
		s := stateIn(rover.GetUnstuck)
		assert.Equal(t, rover.GetUnstuck, m.Step(s).Next)
		clock.Advance(2100 * time.Millisecond)
		assert.Equal(t, rover.FollowWall, m.Step(s).Next)
	})
}

func TestStep_ReturnHomeBands(t *testing.T) {
	m, _ := newMachine(t)

	t.Run("far band uses pure nav heading", func(t *testing.T) {
		for _, nav := range []float64{8, -40} {
			s := stateIn(rover.ReturnHome)
			s.GoingHome = true
			placeFromHome(s, 600, 0)
			s.Perception.NavAngles = repeat(800, nav)

			step := m.Step(s)
			assert.InDelta(t, 600, s.HomeDist, 1e-6)
			assert.InDelta(t, math.Max(-15, math.Min(15, nav)), step.Actuation.Steer, 1e-9)
			assert.Equal(t, 0.8, step.Actuation.Throttle)
			assert.Zero(t, step.Actuation.Brake)
		}
	})

	t.Run("mid band blends headings", func(t *testing.T) {
		s := stateIn(rover.ReturnHome)
		placeFromHome(s, 300, 20)
		s.Perception.NavAngles = repeat(800, 0)
		step := m.Step(s)
		assert.InDelta(t, 6, step.Actuation.Steer, 1e-6)
		assert.Equal(t, 0.8, step.Actuation.Throttle)
	})

	t.Run("slow band", func(t *testing.T) {
		s := stateIn(rover.ReturnHome)
		placeFromHome(s, 150, -10)
		s.Velocity = 0.5
		s.Perception.NavAngles = repeat(800, -10)
		step := m.Step(s)
		assert.InDelta(t, -10, step.Actuation.Steer, 1e-6)
		assert.Equal(t, 0.2, step.Actuation.Throttle)

		s.Velocity = 1.5
		assert.Zero(t, m.Step(s).Actuation.Throttle)
	})

	t.Run("near band turns toward home", func(t *testing.T) {
		s := stateIn(rover.ReturnHome)
		placeFromHome(s, 50, 30)
		step := m.Step(s)
		assert.InDelta(t, 30, s.HomeHeading, 1e-6)
		assert.Equal(t, rover.Actuation{Steer: 15}, step.Actuation)
	})

	t.Run("near band brakes when fast", func(t *testing.T) {
		s := stateIn(rover.ReturnHome)
		placeFromHome(s, 50, 0)
		s.Velocity = 0.6
		assert.Equal(t, rover.Actuation{Brake: 10}, m.Step(s).Actuation)
	})

	t.Run("near band creeps at home heading", func(t *testing.T) {
		s := stateIn(rover.ReturnHome)
		placeFromHome(s, 50, -5)
		step := m.Step(s)
		assert.Equal(t, 0.3, step.Actuation.Throttle)
		assert.InDelta(t, -5, step.Actuation.Steer, 1e-6)
	})

	t.Run("no nav pixels falls back to home heading", func(t *testing.T) {
		s := stateIn(rover.ReturnHome)
		placeFromHome(s, 300, 12)
		s.Perception.NavAngles = nil
		step := m.Step(s)
		assert.InDelta(t, 12, step.Actuation.Steer, 1e-6)
	})
}

func TestStep_ReturnHomeTransitions(t *testing.T) {
	m, clock := newMachine(t)

	t.Run("front obstacle retries", func(t *testing.T) {
		s := stateIn(rover.ReturnHome)
		s.GoingHome = true
		placeFromHome(s, 2, 0)
		s.Perception.NavAngles = repeat(100, 0)
		assert.Equal(t, rover.ReturnHome, m.Step(s).Next)
	})

	t.Run("reached home parks", func(t *testing.T) {
		s := stateIn(rover.ReturnHome)
		s.GoingHome = true
		placeFromHome(s, 2, 0)
		assert.Equal(t, rover.Park, m.Step(s).Next)
	})

	t.Run("stuck", func(t *testing.T) {
		s := stateIn(rover.ReturnHome)
		s.GoingHome = true
		assert.Equal(t, rover.ReturnHome, m.Step(s).Next)
		clock.Advance(2100 * time.Millisecond)
		assert.Equal(t, rover.GetUnstuck, m.Step(s).Next)
	})
}

func TestStep_Park(t *testing.T) {
	m, _ := newMachine(t)

	tests := []struct {
		name    string
		heading float64
		vel     float64
		want    rover.Actuation
	}{
		{"brake while rolling", 0, 0.3, rover.Actuation{Brake: 10}},
		{"home to the left", 45, 0, rover.Actuation{Steer: 15}},
		{"home to the right", -45, 0, rover.Actuation{Steer: -15}},
		{"aligned", 5, 0, rover.Actuation{Brake: 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := stateIn(rover.Park)
			placeFromHome(s, 3, tt.heading)
			s.Velocity = tt.vel
			step := m.Step(s)
			assert.Equal(t, tt.want, step.Actuation)
			assert.Equal(t, rover.Park, step.Next)
		})
	}
}

func TestStep_InvalidBehaviorRestarts(t *testing.T) {
	m, _ := newMachine(t)
	s := stateIn(rover.Behavior(99))
	step := m.Step(s)
	assert.Equal(t, rover.FindWall, step.Executed)
}
