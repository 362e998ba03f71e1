// Package autopilot runs the perceive→decide→act cycle for one mission.
//
// An Autopilot owns the single rover.State of the mission. Transports hand
// it raw telemetry through Cycle and send back the command it returns;
// cycles are serialised so a state is never read and written concurrently.
package autopilot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/rover.autopilot/internal/config"
	"github.com/banshee-data/rover.autopilot/internal/decision"
	"github.com/banshee-data/rover.autopilot/internal/monitoring"
	"github.com/banshee-data/rover.autopilot/internal/perception"
	"github.com/banshee-data/rover.autopilot/internal/rover"
	"github.com/banshee-data/rover.autopilot/internal/telemetry"
	"github.com/banshee-data/rover.autopilot/internal/timeutil"
)

var logf = monitoring.Component("autopilot")

// historyLimit bounds the in-memory cycle history used by the charts.
const historyLimit = 20000

// Record describes one completed decision cycle.
type Record struct {
	Seq              int64               `json:"seq"`
	Time             time.Time           `json:"time"`
	Elapsed          time.Duration       `json:"elapsed_ns"`
	X                float64             `json:"x"`
	Y                float64             `json:"y"`
	Yaw              float64             `json:"yaw"`
	Velocity         float64             `json:"velocity"`
	Executed         rover.Behavior      `json:"executed"`
	Next             rover.Behavior      `json:"next"`
	Command          telemetry.Command   `json:"command"`
	NavPixels        int                 `json:"nav_pixels"`
	Stats            perception.MapStats `json:"stats"`
	SamplesCollected int                 `json:"samples_collected"`
}

// Recorder persists cycle records. Errors are logged and never change the
// command returned to the rover.
type Recorder interface {
	RecordCycle(ctx context.Context, r Record) error
}

// Options wires the collaborators of an Autopilot. Nil fields get defaults
// built from the RoverConfig.
type Options struct {
	Pipeline  *perception.Pipeline
	Machine   *decision.Machine
	Reference *perception.ReferenceMap
	Clock     timeutil.Clock
	Recorder  Recorder
}

// Autopilot is safe for concurrent use.
type Autopilot struct {
	cfg       *config.RoverConfig
	pipeline  *perception.Pipeline
	machine   *decision.Machine
	reference *perception.ReferenceMap
	clock     timeutil.Clock
	recorder  Recorder

	mu        sync.Mutex
	state     *rover.State
	stats     perception.MapStats
	last      telemetry.Command
	cycles    int64
	malformed int64
	history   []Record

	windowStart time.Time
	windowCount int
	rate        int
}

// New builds an autopilot for a fresh mission.
func New(cfg *config.RoverConfig, opts Options) (*Autopilot, error) {
	if cfg == nil {
		return nil, fmt.Errorf("autopilot: nil config")
	}
	a := &Autopilot{
		cfg:       cfg,
		pipeline:  opts.Pipeline,
		machine:   opts.Machine,
		reference: opts.Reference,
		clock:     opts.Clock,
		recorder:  opts.Recorder,
		state:     rover.New(),
		last:      telemetry.Zero(),
	}
	if a.clock == nil {
		a.clock = timeutil.RealClock{}
	}
	if a.pipeline == nil {
		p, err := perception.NewPipeline(cfg.Perception)
		if err != nil {
			return nil, err
		}
		a.pipeline = p
	}
	if a.machine == nil {
		a.machine = decision.NewMachine(cfg, a.clock)
	}
	a.windowStart = a.clock.Now()
	return a, nil
}

// Cycle runs one full cycle for a raw telemetry message and returns the
// command to send. When the message cannot be used the returned command is
// still safe to send and err says why.
func (a *Autopilot) Cycle(ctx context.Context, msg []byte) (telemetry.Command, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	a.tick(now)

	r, err := telemetry.Parse(msg)
	if err != nil {
		logf("malformed telemetry: %v", err)
		a.malformed++
		return a.emit(telemetry.SafeStop()), err
	}
	a.update(r, now)

	s := a.state
	if !s.VelocityValid() {
		return a.emit(telemetry.Zero()), nil
	}

	res, err := a.pipeline.Perceive(r.Image, s)
	if err != nil {
		logf("perception failed: %v", err)
		return a.emit(telemetry.SafeStop()), err
	}

	a.stats = a.pipeline.World().Stats(a.reference, s.Mission.Known, a.cfg.Perception.SampleLocateRadius)
	s.Mission.PercentMapped = a.stats.PercentMapped
	s.Mission.Fidelity = a.stats.Fidelity
	s.Mission.SamplesLocated = a.stats.SamplesLocated

	step := a.machine.Step(s)

	// A pickup request replaces the drive command for this cycle.
	var cmd telemetry.Command
	if s.SendPickup && !s.PickingUp {
		cmd = telemetry.Pickup()
		s.SendPickup = false
		logf("requesting sample pickup")
	} else {
		cmd = telemetry.Drive(step.Actuation)
	}
	a.emit(cmd)

	a.cycles++
	rec := Record{
		Seq:              a.cycles,
		Time:             now,
		Elapsed:          s.Mission.Elapsed,
		X:                s.X,
		Y:                s.Y,
		Yaw:              s.Yaw,
		Velocity:         s.Velocity,
		Executed:         step.Executed,
		Next:             step.Next,
		Command:          cmd,
		NavPixels:        res.NavPixels,
		Stats:            a.stats,
		SamplesCollected: s.Mission.SamplesCollected(),
	}
	a.remember(rec)
	if a.recorder != nil {
		if err := a.recorder.RecordCycle(ctx, rec); err != nil {
			logf("failed to record cycle %d: %v", rec.Seq, err)
		}
	}
	return cmd, nil
}

func (a *Autopilot) emit(cmd telemetry.Command) telemetry.Command {
	a.last = cmd
	return cmd
}

// update copies a reading into the state. The first reading starts the
// mission clock and fixes the sample count and the known sample positions.
func (a *Autopilot) update(r *telemetry.Reading, now time.Time) {
	s := a.state
	m := &s.Mission
	if !m.Started {
		m.Started = true
		m.StartTime = now
		m.SamplesToFind = r.SampleCount
		m.Known = r.Samples
		logf("mission started: %d samples to find, %d known positions", r.SampleCount, len(r.Samples))
	} else {
		m.Elapsed = now.Sub(m.StartTime)
	}
	m.SamplesLeft = r.SampleCount

	s.X, s.Y = r.X, r.Y
	s.Yaw, s.Pitch, s.Roll = r.Yaw, r.Pitch, r.Roll
	s.Velocity = r.Velocity
	s.NearSample = r.NearSample
	s.PickingUp = r.PickingUp
}

// tick counts cycles in one-second windows.
func (a *Autopilot) tick(now time.Time) {
	a.windowCount++
	if now.Sub(a.windowStart) > time.Second {
		a.rate = a.windowCount
		a.windowCount = 0
		a.windowStart = now
	}
}

func (a *Autopilot) remember(r Record) {
	if len(a.history) >= historyLimit {
		copy(a.history, a.history[1:])
		a.history = a.history[:len(a.history)-1]
	}
	a.history = append(a.history, r)
}
