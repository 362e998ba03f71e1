package rover

import "fmt"

// Behavior identifies one of the driving states of the decision engine.
type Behavior int

const (
	FindWall Behavior = iota
	FollowWall
	TurnToWall
	AvoidWall
	AvoidObstacles
	GoToSample
	Stop
	InitiatePickup
	WaitForPickupInitiate
	WaitForPickupFinish
	GetUnstuck
	ReturnHome
	Park

	numBehaviors
)

var behaviorNames = [numBehaviors]string{
	FindWall:              "FindWall",
	FollowWall:            "FollowWall",
	TurnToWall:            "TurnToWall",
	AvoidWall:             "AvoidWall",
	AvoidObstacles:        "AvoidObstacles",
	GoToSample:            "GoToSample",
	Stop:                  "Stop",
	InitiatePickup:        "InitiatePickup",
	WaitForPickupInitiate: "WaitForPickupInitiate",
	WaitForPickupFinish:   "WaitForPickupFinish",
	GetUnstuck:            "GetUnstuck",
	ReturnHome:            "ReturnHome",
	Park:                  "Park",
}

func (b Behavior) String() string {
	if b.Valid() {
		return behaviorNames[b]
	}
	return fmt.Sprintf("Behavior(%d)", int(b))
}

// Valid reports whether b is one of the defined behaviors.
func (b Behavior) Valid() bool {
	return b >= 0 && b < numBehaviors
}

// Behaviors returns every behavior in declaration order.
func Behaviors() []Behavior {
	out := make([]Behavior, numBehaviors)
	for i := range out {
		out[i] = Behavior(i)
	}
	return out
}

// ParseBehavior returns the behavior with the given name.
func ParseBehavior(name string) (Behavior, error) {
	for i, n := range behaviorNames {
		if n == name {
			return Behavior(i), nil
		}
	}
	return 0, fmt.Errorf("unknown behavior %q", name)
}

// MarshalText implements encoding.TextMarshaler so behaviors serialise by name.
func (b Behavior) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid behavior %d", int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Behavior) UnmarshalText(text []byte) error {
	v, err := ParseBehavior(string(text))
	if err != nil {
		return err
	}
	*b = v
	return nil
}
