package decision

import (
	"math"

	"github.com/banshee-data/rover.autopilot/internal/geometry"
	"github.com/banshee-data/rover.autopilot/internal/rover"
)

// Actuation policies. Steering is clipped to the yaw limits and an
// unavailable heading never reaches the output as NaN.

func (m *Machine) steer(heading float64) float64 {
	return geometry.Clip(heading, m.b.YawRight, m.b.YawLeft)
}

func (m *Machine) brake() rover.Actuation {
	return rover.Actuation{Brake: m.b.Brake}
}

func (m *Machine) turnLeft() rover.Actuation  { return rover.Actuation{Steer: m.b.YawLeft} }
func (m *Machine) turnRight() rover.Actuation { return rover.Actuation{Steer: m.b.YawRight} }

// hold leaves the previous actuation in place.
func hold(s *rover.State) rover.Actuation { return s.Current }

func (m *Machine) findWall(*rover.State) rover.Actuation {
	return m.turnLeft()
}

func (m *Machine) followWall(s *rover.State) rover.Actuation {
	var a rover.Actuation
	if s.Velocity < m.b.FollowWallMaxVelocity {
		a.Throttle = m.b.FollowWallThrottle
	}
	if left, ok := geometry.Mean(s.Perception.NavAnglesLeft); ok {
		a.Steer = m.steer(left + m.b.WallAngleOffset)
	}
	return a
}

func (m *Machine) turnToWall(s *rover.State) rover.Actuation {
	if s.Velocity > m.b.TurnMinVelocity {
		return m.brake()
	}
	return m.turnLeft()
}

func (m *Machine) avoidWall(s *rover.State) rover.Actuation {
	if s.Velocity > m.b.TurnMinVelocity {
		return m.brake()
	}
	return m.turnRight()
}

func (m *Machine) avoidObstacles(s *rover.State) rover.Actuation {
	if s.Velocity > m.b.TurnMinVelocity {
		return m.brake()
	}
	nav, ok := geometry.Mean(s.Perception.NavAngles)
	tol := m.events.cfg.NavHeadingTolerance
	switch {
	case ok && nav < -tol:
		return m.turnRight()
	case ok && nav > tol:
		return m.turnLeft()
	}
	// No clear side: back up.
	return rover.Actuation{Throttle: m.b.ReverseThrottle}
}

func (m *Machine) goToSample(s *rover.State) rover.Actuation {
	if s.Velocity > m.b.SampleApproachVel {
		return m.brake()
	}
	h, ok := geometry.Mean(s.Perception.SampleAngles)
	if !ok {
		return rover.Actuation{Throttle: m.b.SampleThrottle}
	}
	h += m.b.SampleHeadingBias
	switch {
	case h >= m.b.TurnInPlaceAngle:
		return m.turnLeft()
	case h <= -m.b.TurnInPlaceAngle:
		return m.turnRight()
	}
	return rover.Actuation{Throttle: m.b.SampleThrottle, Steer: m.steer(h)}
}

func (m *Machine) stop(*rover.State) rover.Actuation {
	return m.brake()
}

func (m *Machine) initiatePickup(s *rover.State) rover.Actuation {
	s.SendPickup = true
	return s.Current
}

func (m *Machine) getUnstuck(s *rover.State) rover.Actuation {
	if s.GoingHome {
		nav, ok := geometry.Mean(s.Perception.NavAngles)
		tol := m.events.cfg.NavHeadingTolerance
		if ok && nav < -tol {
			return m.turnRight()
		}
		return m.turnLeft()
	}
	// Turn away from the left wall until clear of the obstacle, then drive.
	if math.Abs(geometry.AngleDiff(s.Yaw, s.Stuck.Heading)) < m.b.UnstuckYawSweep {
		return m.turnRight()
	}
	return rover.Actuation{Throttle: m.b.UnstuckThrottle}
}

func (m *Machine) returnHome(s *rover.State) rover.Actuation {
	home := s.HomeHeading
	nav, ok := geometry.Mean(s.Perception.NavAngles)
	if !ok {
		nav = home
	}
	blend := m.b.HomeWeight*home + (1-m.b.HomeWeight)*nav

	var a rover.Actuation
	if s.Velocity < m.b.HomeMaxVelocity {
		a.Throttle = m.b.HomeThrottle
	}

	switch d := s.HomeDist; {
	case d > m.b.HomeFarDistance:
		a.Steer = m.steer(nav)
	case d > m.b.HomeMidDistance:
		a.Steer = m.steer(blend)
	case d > m.b.HomeNearDistance:
		a.Throttle = 0
		if s.Velocity < m.b.HomeSlowVelocity {
			a.Throttle = m.b.HomeSlowThrottle
		}
		a.Steer = m.steer(blend)
	default:
		if s.Velocity > m.b.HomeParkVelocity {
			return m.brake()
		}
		switch {
		case home >= m.b.TurnInPlaceAngle:
			return m.turnLeft()
		case home <= -m.b.TurnInPlaceAngle:
			return m.turnRight()
		}
		a = rover.Actuation{Throttle: m.b.HomeParkThrottle, Steer: m.steer(home)}
	}
	return a
}

func (m *Machine) park(s *rover.State) rover.Actuation {
	if s.Velocity > m.b.TurnMinVelocity {
		return m.brake()
	}
	switch {
	case s.HomeHeading >= m.b.ParkHeadingTolerance:
		return m.turnLeft()
	case s.HomeHeading <= -m.b.ParkHeadingTolerance:
		return m.turnRight()
	}
	return m.brake()
}
