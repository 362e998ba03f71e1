package serialmux

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
)

// DefaultBaudRate is the bridge's link speed.
const DefaultBaudRate = 115200

// PortOptions configures the port to the rover's telemetry bridge. Zero
// values take the 8N1 defaults at DefaultBaudRate.
type PortOptions struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits"`
	StopBits int    `json:"stop_bits"`
	Parity   string `json:"parity"`
}

var parities = map[string]struct {
	short string
	mode  serial.Parity
}{
	"N": {"N", serial.NoParity}, "NONE": {"N", serial.NoParity},
	"E": {"E", serial.EvenParity}, "EVEN": {"E", serial.EvenParity},
	"O": {"O", serial.OddParity}, "ODD": {"O", serial.OddParity},
}

var stopBits = map[int]serial.StopBits{1: serial.OneStopBit, 2: serial.TwoStopBits}

// Normalize fills defaults and folds parity to N, E or O.
func (o PortOptions) Normalize() (PortOptions, error) {
	n := o
	if n.BaudRate <= 0 {
		n.BaudRate = DefaultBaudRate
	}
	if n.DataBits == 0 {
		n.DataBits = 8
	}
	if n.StopBits == 0 {
		n.StopBits = 1
	}
	if n.DataBits < 5 || n.DataBits > 8 {
		return o, fmt.Errorf("invalid data bits %d: must be between 5 and 8", n.DataBits)
	}
	if _, ok := stopBits[n.StopBits]; !ok {
		return o, fmt.Errorf("invalid stop bits %d: supported values are 1 or 2", n.StopBits)
	}
	key := strings.ToUpper(strings.TrimSpace(n.Parity))
	if key == "" {
		key = "N"
	}
	p, ok := parities[key]
	if !ok {
		return o, fmt.Errorf("unsupported parity %q: expected N, E, or O", o.Parity)
	}
	n.Parity = p.short
	return n, nil
}

// Equal compares the normalized forms. Invalid options equal nothing.
func (o PortOptions) Equal(other PortOptions) bool {
	a, errA := o.Normalize()
	b, errB := other.Normalize()
	return errA == nil && errB == nil && a == b
}

func (o PortOptions) SerialMode() (*serial.Mode, error) {
	n, err := o.Normalize()
	if err != nil {
		return nil, err
	}
	return &serial.Mode{
		BaudRate: n.BaudRate,
		DataBits: n.DataBits,
		StopBits: stopBits[n.StopBits],
		Parity:   parities[n.Parity].mode,
	}, nil
}
