package telemetry

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/banshee-data/rover.autopilot/internal/rover"
)

// CommandType distinguishes drive commands from pickup requests.
type CommandType string

const (
	CommandData   CommandType = "data"
	CommandPickup CommandType = "pickup"
)

// SafeStopBrake is the brake applied when telemetry cannot be decoded.
const SafeStopBrake = 10

// Command is one outbound message. Exactly one command is emitted per
// telemetry message.
type Command struct {
	Type     CommandType
	Throttle float64
	Brake    float64
	Steer    float64
}

// Drive returns a drive command for a.
func Drive(a rover.Actuation) Command {
	return Command{Type: CommandData, Throttle: a.Throttle, Brake: a.Brake, Steer: a.Steer}
}

// Pickup returns a sample pickup request.
func Pickup() Command { return Command{Type: CommandPickup} }

// SafeStop brakes without steering.
func SafeStop() Command { return Command{Type: CommandData, Brake: SafeStopBrake} }

// Zero is the null drive command.
func Zero() Command { return Command{Type: CommandData} }

func (c Command) String() string {
	if c.Type == CommandPickup {
		return "pickup"
	}
	return fmt.Sprintf("throttle=%g brake=%g steer=%g", c.Throttle, c.Brake, c.Steer)
}

type wireCommand struct {
	Type     CommandType `json:"type"`
	Throttle *Value      `json:"throttle,omitempty"`
	Brake    *Value      `json:"brake,omitempty"`
	Steer    *Value      `json:"steering_angle,omitempty"`
}

func format(f float64) *Value {
	v := Value(strconv.FormatFloat(f, 'f', -1, 64))
	return &v
}

// MarshalJSON encodes drive values as strings, which is what the simulator
// bridge expects. Pickup commands carry only their type.
func (c Command) MarshalJSON() ([]byte, error) {
	w := wireCommand{Type: c.Type}
	if c.Type != CommandPickup {
		w.Type = CommandData
		w.Throttle, w.Brake, w.Steer = format(c.Throttle), format(c.Brake), format(c.Steer)
	}
	return json.Marshal(w)
}

// UnmarshalJSON accepts string or numeric drive values.
func (c *Command) UnmarshalJSON(b []byte) error {
	var w wireCommand
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := Command{Type: w.Type}
	switch w.Type {
	case CommandPickup:
	case CommandData, "":
		out.Type = CommandData
		for _, f := range []struct {
			name string
			v    *Value
			dst  *float64
		}{
			{"throttle", w.Throttle, &out.Throttle},
			{"brake", w.Brake, &out.Brake},
			{"steering_angle", w.Steer, &out.Steer},
		} {
			if f.v == nil {
				continue
			}
			parsed, err := f.v.Float()
			if err != nil {
				return fmt.Errorf("%s: %w", f.name, err)
			}
			*f.dst = parsed
		}
	default:
		return fmt.Errorf("unknown command type %q", w.Type)
	}
	*c = out
	return nil
}
