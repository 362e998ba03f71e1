// Package telemetry decodes simulator telemetry and encodes drive commands.
package telemetry

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/rover.autopilot/internal/rover"
)

// ErrMalformed is returned (wrapped) for any telemetry that cannot be
// decoded into a Reading.
var ErrMalformed = errors.New("malformed telemetry")

// Value is a telemetry field as sent on the wire. The simulator bridge
// sends numbers as strings, other producers send plain JSON numbers; both
// are accepted.
type Value string

// UnmarshalJSON accepts a JSON string, number or null.
func (v *Value) UnmarshalJSON(b []byte) error {
	var raw *string
	if err := json.Unmarshal(b, &raw); err == nil {
		if raw != nil {
			*v = Value(*raw)
		}
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*v = Value(n.String())
	return nil
}

// Float parses v, accepting ',' as the decimal separator.
func (v Value) Float() (float64, error) {
	s := strings.TrimSpace(string(v))
	if s == "" {
		return 0, errors.New("empty value")
	}
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
}

// Floats parses a ';'-separated list.
func (v Value) Floats() ([]float64, error) {
	if strings.TrimSpace(string(v)) == "" {
		return nil, nil
	}
	parts := strings.Split(string(v), ";")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		f, err := Value(p).Float()
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Message is the raw inbound telemetry object.
type Message struct {
	Position    Value  `json:"position"`
	Yaw         Value  `json:"yaw"`
	Pitch       Value  `json:"pitch"`
	Roll        Value  `json:"roll"`
	Speed       Value  `json:"speed"`
	Throttle    Value  `json:"throttle"`
	Steer       Value  `json:"steering_angle"`
	Brake       Value  `json:"brake"`
	NearSample  Value  `json:"near_sample"`
	PickingUp   Value  `json:"picking_up"`
	SampleCount Value  `json:"sample_count"`
	SamplesX    Value  `json:"samples_x,omitempty"`
	SamplesY    Value  `json:"samples_y,omitempty"`
	Image       string `json:"image"`
}

// Reading is a decoded telemetry message.
type Reading struct {
	X, Y        float64
	Yaw         float64
	Pitch       float64
	Roll        float64
	Velocity    float64
	Throttle    float64
	Steer       float64
	Brake       float64
	NearSample  bool
	PickingUp   bool
	SampleCount int
	Samples     []rover.SamplePosition
	Image       image.Image
}

// Parse decodes one telemetry message. Every failure wraps ErrMalformed,
// including NaN or Inf in any field but speed. A non-finite speed is not an
// error: the caller decides how to act on it.
func Parse(data []byte) (*Reading, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	r, err := m.Decode()
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Decode converts the raw message into a Reading.
func (m *Message) Decode() (*Reading, error) {
	r := &Reading{}
	p := fieldParser{}

	pos := p.floats("position", m.Position)
	if p.err == nil && len(pos) != 2 {
		p.err = fmt.Errorf("%w: position: want 2 values, got %d", ErrMalformed, len(pos))
	}
	if p.err == nil {
		r.X, r.Y = pos[0], pos[1]
	}
	r.Yaw = p.float("yaw", m.Yaw)
	r.Pitch = p.float("pitch", m.Pitch)
	r.Roll = p.float("roll", m.Roll)
	r.Velocity = p.anyFloat("speed", m.Speed)
	r.Throttle = p.float("throttle", m.Throttle)
	r.Steer = p.float("steering_angle", m.Steer)
	r.Brake = p.float("brake", m.Brake)
	r.NearSample = p.float("near_sample", m.NearSample) != 0
	r.PickingUp = p.float("picking_up", m.PickingUp) != 0
	r.SampleCount = int(math.Round(p.float("sample_count", m.SampleCount)))

	xs := p.floats("samples_x", m.SamplesX)
	ys := p.floats("samples_y", m.SamplesY)
	if p.err == nil && len(xs) != len(ys) {
		p.err = fmt.Errorf("%w: samples_x has %d values, samples_y has %d", ErrMalformed, len(xs), len(ys))
	}
	if p.err != nil {
		return nil, p.err
	}
	for i := range xs {
		r.Samples = append(r.Samples, rover.SamplePosition{X: xs[i], Y: ys[i]})
	}

	img, err := DecodeImage(m.Image)
	if err != nil {
		return nil, err
	}
	r.Image = img
	return r, nil
}

// DecodeImage decodes a base64 JPEG or PNG camera frame.
func DecodeImage(s string) (image.Image, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: image: missing", ErrMalformed)
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: image: %v", ErrMalformed, err)
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: image: %v", ErrMalformed, err)
	}
	return img, nil
}

// fieldParser keeps the first field error so Decode reads straight through.
type fieldParser struct {
	err error
}

// float parses a field that must be finite.
func (p *fieldParser) float(name string, v Value) float64 {
	f := p.anyFloat(name, v)
	if p.err == nil && !finite(f) {
		p.err = fmt.Errorf("%w: %s: not finite: %s", ErrMalformed, name, v)
		return 0
	}
	return f
}

// anyFloat parses a field that may be NaN or Inf.
func (p *fieldParser) anyFloat(name string, v Value) float64 {
	if p.err != nil {
		return 0
	}
	f, err := v.Float()
	if err != nil {
		p.err = fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
	}
	return f
}

func finite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

func (p *fieldParser) floats(name string, v Value) []float64 {
	if p.err != nil {
		return nil
	}
	fs, err := v.Floats()
	if err != nil {
		p.err = fmt.Errorf("%w: %s: %v", ErrMalformed, name, err)
		return nil
	}
	for _, f := range fs {
		if !finite(f) {
			p.err = fmt.Errorf("%w: %s: not finite: %s", ErrMalformed, name, v)
			return nil
		}
	}
	return fs
}
