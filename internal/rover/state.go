// Package rover holds the mutable record shared by perception and decision
// for one mission run.
package rover

import (
	"math"
	"time"
)

// Actuation is the drive output of one cycle. Steer is in degrees, positive
// to the left.
type Actuation struct {
	Throttle float64 `json:"throttle"`
	Brake    float64 `json:"brake"`
	Steer    float64 `json:"steer"`
}

// StuckTimer tracks one continuous low-velocity interval.
type StuckTimer struct {
	On      bool      `json:"on"`
	Start   time.Time `json:"start"`
	Heading float64   `json:"heading"`
}

// Perception holds the per-cycle classification outputs in rover-centric
// polar form. Angles are degrees, distances are rover-frame pixels.
type Perception struct {
	NavDists      []float64
	NavAngles     []float64
	NavAnglesLeft []float64
	ObsDists      []float64
	ObsAngles     []float64
	SampleDists   []float64
	SampleAngles  []float64
}

// SamplePosition is a known sample location in world cells.
type SamplePosition struct {
	X, Y float64
}

// Mission holds the mission-wide counters.
type Mission struct {
	Started        bool
	StartTime      time.Time
	Elapsed        time.Duration
	SamplesToFind  int
	SamplesLeft    int
	Known          []SamplePosition
	SamplesLocated int
	PercentMapped  float64
	Fidelity       float64
}

// SamplesCollected is the number of samples picked up so far.
func (m Mission) SamplesCollected() int {
	return m.SamplesToFind - m.SamplesLeft
}

// State is the single record read and written by every cycle.
type State struct {
	// Pose in world cells and degrees.
	X, Y             float64
	Yaw, Pitch, Roll float64

	Velocity float64
	Current  Actuation

	NearSample bool
	PickingUp  bool

	Perception Perception
	Mission    Mission

	Behavior    Behavior
	GoingHome   bool
	SendPickup  bool
	Stuck       StuckTimer
	HomeDist    float64
	HomeHeading float64
}

// New returns the state at mission start.
func New() *State {
	return &State{Behavior: FindWall}
}

// VelocityValid reports whether the reported velocity can drive a behavior.
func (s *State) VelocityValid() bool {
	return !math.IsNaN(s.Velocity) && !math.IsInf(s.Velocity, 0)
}
