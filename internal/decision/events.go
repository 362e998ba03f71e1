package decision

import (
	"math"

	"github.com/banshee-data/rover.autopilot/internal/config"
	"github.com/banshee-data/rover.autopilot/internal/geometry"
	"github.com/banshee-data/rover.autopilot/internal/rover"
)

// Event names as reported by Events.Evaluate.
const (
	EventFrontPathClear   = "front_path_clear"
	EventLeftPathClear    = "left_path_clear"
	EventAtFrontObstacle  = "at_front_obstacle"
	EventAtLeftObstacle   = "at_left_obstacle"
	EventPointedAtNav     = "pointed_at_nav"
	EventPointedAlongWall = "pointed_along_wall"
	EventDeviatedFromWall = "deviated_from_wall"
	EventSampleOnLeft     = "sample_on_left"
	EventSampleRightClose = "sample_right_close"
	EventSampleInView     = "sample_in_view"
	EventPointedAtSample  = "pointed_at_sample"
	EventCanPickupSample  = "can_pickup_sample"
	EventReachedHome      = "reached_home"
	EventCompletedMission = "completed_mission"
	EventVelocityExceeded = "velocity_exceeded"
)

// Predicate is a named condition over rover state.
type Predicate func(*rover.State) bool

// Events evaluates the decision predicates. Any predicate that depends on
// the mean of an empty array is false.
type Events struct {
	cfg     config.EventConfig
	mission config.MissionConfig
	catalog []namedPredicate
}

type namedPredicate struct {
	name string
	fn   Predicate
}

// NewEvents builds the predicate set for the given thresholds.
func NewEvents(cfg config.EventConfig, mission config.MissionConfig) *Events {
	e := &Events{cfg: cfg, mission: mission}
	e.catalog = []namedPredicate{
		{EventFrontPathClear, e.FrontPathClear},
		{EventLeftPathClear, e.LeftPathClear},
		{EventAtFrontObstacle, e.AtFrontObstacle},
		{EventAtLeftObstacle, e.AtLeftObstacle},
		{EventPointedAtNav, e.PointedAtNav},
		{EventPointedAlongWall, e.PointedAlongWall},
		{EventDeviatedFromWall, e.DeviatedFromWall},
		{EventSampleOnLeft, e.SampleOnLeft},
		{EventSampleRightClose, e.SampleRightClose},
		{EventSampleInView, e.SampleInView},
		{EventPointedAtSample, e.PointedAtSample},
		{EventCanPickupSample, e.CanPickupSample},
		{EventReachedHome, e.ReachedHome},
		{EventCompletedMission, e.CompletedMission},
		{EventVelocityExceeded, e.VelocityExceeded},
	}
	return e
}

// Names lists the catalogue in evaluation order.
func (e *Events) Names() []string {
	out := make([]string, len(e.catalog))
	for i, p := range e.catalog {
		out[i] = p.name
	}
	return out
}

// Evaluate returns every predicate's value for s.
func (e *Events) Evaluate(s *rover.State) map[string]bool {
	out := make(map[string]bool, len(e.catalog))
	for _, p := range e.catalog {
		out[p.name] = p.fn(s)
	}
	return out
}

func (e *Events) FrontPathClear(s *rover.State) bool {
	return len(s.Perception.NavAngles) >= e.cfg.FrontClearPixels
}

func (e *Events) LeftPathClear(s *rover.State) bool {
	return len(s.Perception.NavAnglesLeft) >= e.cfg.LeftClearPixels
}

func (e *Events) AtFrontObstacle(s *rover.State) bool {
	return len(s.Perception.NavAngles) < e.cfg.FrontObstaclePixels
}

func (e *Events) AtLeftObstacle(s *rover.State) bool {
	return len(s.Perception.NavAnglesLeft) < e.cfg.LeftObstaclePixels
}

func (e *Events) PointedAtNav(s *rover.State) bool {
	h, ok := geometry.Mean(s.Perception.NavAngles)
	return ok && math.Abs(h) <= e.cfg.NavHeadingTolerance
}

func (e *Events) PointedAlongWall(s *rover.State) bool {
	h, ok := geometry.Mean(s.Perception.NavAnglesLeft)
	return ok && len(s.Perception.NavAnglesLeft) >= e.cfg.AlongWallPixels &&
		h+e.cfg.AlongWallOffset > 0
}

func (e *Events) DeviatedFromWall(s *rover.State) bool {
	h, ok := geometry.Mean(s.Perception.NavAnglesLeft)
	return ok && h > e.cfg.DeviatedWallAngle
}

func (e *Events) SampleOnLeft(s *rover.State) bool {
	h, ok := geometry.Mean(s.Perception.SampleAngles)
	return ok && h >= 0
}

// SampleRightClose reports a sample slightly right of the heading and near
// enough to approach without losing the wall.
func (e *Events) SampleRightClose(s *rover.State) bool {
	h, ok := geometry.Mean(s.Perception.SampleAngles)
	d, okd := geometry.Mean(s.Perception.SampleDists)
	return ok && okd && h > e.cfg.SampleRightAngle && d < e.cfg.SampleCloseDistance
}

func (e *Events) SampleInView(s *rover.State) bool {
	return len(s.Perception.SampleAngles) >= 1
}

func (e *Events) PointedAtSample(s *rover.State) bool {
	h, ok := geometry.Mean(s.Perception.SampleAngles)
	return ok && math.Abs(h) < e.cfg.SampleHeadingTol
}

func (e *Events) CanPickupSample(s *rover.State) bool {
	return s.NearSample && s.Velocity <= e.cfg.PickupMaxVelocity
}

func (e *Events) ReachedHome(s *rover.State) bool {
	return s.GoingHome && s.HomeDist < e.cfg.HomeReachedDistance
}

// CompletedMission is true once enough samples are collected on a well
// mapped world, or when the mission time limit has passed.
func (e *Events) CompletedMission(s *rover.State) bool {
	m := s.Mission
	done := m.SamplesCollected() >= e.mission.SampleGoal && m.PercentMapped >= e.mission.MappedGoal
	return done || m.Elapsed >= e.mission.GetTimeLimit()
}

func (e *Events) VelocityExceeded(s *rover.State) bool {
	return s.Velocity >= e.cfg.MaxVelocity
}
