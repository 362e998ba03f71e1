package decision

import (
	"time"

	"github.com/banshee-data/rover.autopilot/internal/config"
	"github.com/banshee-data/rover.autopilot/internal/geometry"
	"github.com/banshee-data/rover.autopilot/internal/monitoring"
	"github.com/banshee-data/rover.autopilot/internal/rover"
	"github.com/banshee-data/rover.autopilot/internal/timeutil"
)

var logf = monitoring.Component("decision")

type behavior struct {
	execute    func(*rover.State) rover.Actuation
	transition func(*rover.State) rover.Behavior
}

// Machine is the behavior state machine. It holds only configuration; all
// mutable data lives in the rover.State passed to Step.
type Machine struct {
	b          config.BehaviorConfig
	stuck      config.StuckConfig
	mission    config.MissionConfig
	worldScale float64
	events     *Events
	clock      timeutil.Clock
	table      []behavior
}

// NewMachine builds the dispatch table for cfg.
func NewMachine(cfg *config.RoverConfig, clock timeutil.Clock) *Machine {
	m := &Machine{
		b:          cfg.Behaviors,
		stuck:      cfg.Stuck,
		mission:    cfg.Mission,
		worldScale: cfg.Perception.WorldScale,
		events:     NewEvents(cfg.Events, cfg.Mission),
		clock:      clock,
	}
	m.table = make([]behavior, len(rover.Behaviors()))
	m.table[rover.FindWall] = behavior{m.findWall, m.findingWall}
	m.table[rover.FollowWall] = behavior{m.followWall, m.followingWall}
	m.table[rover.TurnToWall] = behavior{m.turnToWall, m.backToWall}
	m.table[rover.AvoidWall] = behavior{m.avoidWall, m.backToWall}
	m.table[rover.AvoidObstacles] = behavior{m.avoidObstacles, m.avoidingObstacles}
	m.table[rover.GoToSample] = behavior{m.goToSample, m.goingToSample}
	m.table[rover.Stop] = behavior{m.stop, m.stopped}
	m.table[rover.InitiatePickup] = behavior{m.initiatePickup, m.initiatingPickup}
	m.table[rover.WaitForPickupInitiate] = behavior{hold, m.waitingPickupInitiate}
	m.table[rover.WaitForPickupFinish] = behavior{hold, m.waitingPickupFinish}
	m.table[rover.GetUnstuck] = behavior{m.getUnstuck, m.gettingUnstuck}
	m.table[rover.ReturnHome] = behavior{m.returnHome, m.returningHome}
	m.table[rover.Park] = behavior{m.park, m.parking}
	return m
}

// Events returns the predicate set used by the machine.
func (m *Machine) Events() *Events { return m.events }

// Step is the outcome of one decision cycle.
type Step struct {
	Executed  rover.Behavior
	Next      rover.Behavior
	Actuation rover.Actuation
}

// Step executes the current behavior once, then evaluates its transition
// and advances s.Behavior. The actuation always belongs to the behavior
// that was active when the cycle started.
func (m *Machine) Step(s *rover.State) Step {
	cur := s.Behavior
	if !cur.Valid() {
		logf("invalid behavior %d, restarting at %s", int(cur), rover.FindWall)
		cur = rover.FindWall
	}
	m.updateHome(s)

	entry := m.table[cur]
	act := entry.execute(s)
	s.Current = act
	next := entry.transition(s)
	if next != cur {
		logf("%s -> %s", cur, next)
	}
	s.Behavior = next
	return Step{Executed: cur, Next: next, Actuation: act}
}

func (m *Machine) updateHome(s *rover.State) {
	pose := geometry.Pose{X: s.X, Y: s.Y, Yaw: s.Yaw}
	s.HomeDist, s.HomeHeading = geometry.HomeVector(m.mission.HomeX, m.mission.HomeY, pose, m.worldScale)
}

// stuckFor reports whether the rover has been stopped for longer than d.
func (m *Machine) stuckFor(s *rover.State, d time.Duration) bool {
	exceeded, next := CheckStuck(s.Stuck, m.clock.Now(), s.Velocity, s.Yaw, m.stuck.StoppedVelocity, d)
	s.Stuck = next
	return exceeded
}

// Transitions. Each rule is evaluated in priority order; the first match
// wins and anything else holds the current behavior.

func (m *Machine) findingWall(s *rover.State) rover.Behavior {
	if s.Yaw > m.b.FindWallMinYaw && s.Yaw < m.b.FindWallMaxYaw {
		return rover.FollowWall
	}
	return rover.FindWall
}

func (m *Machine) followingWall(s *rover.State) rover.Behavior {
	e := m.events
	switch {
	case e.DeviatedFromWall(s) && e.LeftPathClear(s):
		return rover.TurnToWall
	case e.AtLeftObstacle(s):
		return rover.AvoidWall
	case e.SampleOnLeft(s) || e.SampleRightClose(s):
		return rover.GoToSample
	case e.CompletedMission(s):
		s.GoingHome = true
		return rover.ReturnHome
	case m.stuckFor(s, m.stuck.GetFollowWallStuck()):
		return rover.GetUnstuck
	}
	return rover.FollowWall
}

func (m *Machine) backToWall(s *rover.State) rover.Behavior {
	if m.events.PointedAlongWall(s) {
		return rover.FollowWall
	}
	return s.Behavior
}

func (m *Machine) avoidingObstacles(s *rover.State) rover.Behavior {
	if m.events.FrontPathClear(s) && m.events.PointedAtNav(s) {
		return rover.ReturnHome
	}
	return rover.AvoidObstacles
}

func (m *Machine) goingToSample(s *rover.State) rover.Behavior {
	if !m.events.SampleInView(s) {
		return rover.GoToSample
	}
	switch {
	case s.NearSample:
		s.Stuck.On = false
		return rover.Stop
	case m.stuckFor(s, m.stuck.GetGoToSampleStuck()):
		s.Stuck.On = false
		return rover.GetUnstuck
	}
	return rover.GoToSample
}

func (m *Machine) stopped(s *rover.State) rover.Behavior {
	if m.events.CanPickupSample(s) {
		return rover.InitiatePickup
	}
	return rover.Stop
}

func (m *Machine) initiatingPickup(*rover.State) rover.Behavior {
	return rover.WaitForPickupInitiate
}

// A pickup already under way satisfies the request, so the flag is
// dropped rather than sent once the current pickup ends.
func (m *Machine) waitingPickupInitiate(s *rover.State) rover.Behavior {
	if s.PickingUp {
		s.SendPickup = false
		return rover.WaitForPickupFinish
	}
	return rover.WaitForPickupInitiate
}

func (m *Machine) waitingPickupFinish(s *rover.State) rover.Behavior {
	if !s.PickingUp {
		s.SendPickup = false
		return rover.AvoidWall
	}
	return rover.WaitForPickupFinish
}

func (m *Machine) gettingUnstuck(s *rover.State) rover.Behavior {
	if s.Velocity >= m.b.UnstuckExitVelocity || m.stuckFor(s, m.stuck.GetGetUnstuckStuck()) {
		if s.GoingHome {
			return rover.ReturnHome
		}
		return rover.FollowWall
	}
	return rover.GetUnstuck
}

func (m *Machine) returningHome(s *rover.State) rover.Behavior {
	switch {
	case m.events.AtFrontObstacle(s):
		return rover.ReturnHome
	case m.events.ReachedHome(s):
		return rover.Park
	case m.stuckFor(s, m.stuck.GetReturnHomeStuck()):
		return rover.GetUnstuck
	}
	return rover.ReturnHome
}

func (m *Machine) parking(*rover.State) rover.Behavior {
	return rover.Park
}
