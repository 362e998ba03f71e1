// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic camera frames, ground-truth maps and
// telemetry messages so perception, autopilot and transport tests drive the
// same inputs.
package testutil

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

// Frame sizes of the simulator camera.
const (
	FrameWidth  = 320
	FrameHeight = 160
)

// Colours that classify unambiguously with the default thresholds.
var (
	Ground = color.RGBA{R: 220, G: 210, B: 200, A: 255}
	Rock   = color.RGBA{R: 90, G: 60, B: 40, A: 255}
	Gold   = color.RGBA{R: 200, G: 170, B: 20, A: 255}
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// Frame returns a camera-sized frame filled with c.
func Frame(c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, FrameWidth, FrameHeight))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// Paint fills r of img with c and returns img.
func Paint(img *image.RGBA, r image.Rectangle, c color.RGBA) *image.RGBA {
	draw.Draw(img, r, &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

// EncodePNG returns img as base64 PNG, the way the simulator ships frames.
func EncodePNG(t testing.TB, img image.Image) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode frame: %v", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// WriteReferenceMap writes a size×size ground-truth PNG in which cells for
// which navigable returns true are white, and returns its path.
func WriteReferenceMap(t testing.TB, size int, navigable func(x, y int) bool) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			if navigable(x, y) {
				img.SetGray(x, y, color.Gray{Y: 255})
			}
		}
	}
	path := filepath.Join(t.TempDir(), "map_bw.png")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create reference map: %v", err)
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode reference map: %v", err)
	}
	return path
}

// Telemetry is a builder for inbound simulator messages. Field values are
// strings, as the simulator bridge sends them.
type Telemetry map[string]any

// NewTelemetry returns a message for a stationary rover at (x, y) with the
// given yaw, carrying frame as its image.
func NewTelemetry(t testing.TB, x, y, yaw float64, frame image.Image) Telemetry {
	t.Helper()
	return Telemetry{
		"position":       formatPair(x, y),
		"yaw":            ftoa(yaw),
		"pitch":          "0",
		"roll":           "0",
		"speed":          "0",
		"throttle":       "0",
		"steering_angle": "0",
		"brake":          "0",
		"near_sample":    "0",
		"picking_up":     "0",
		"sample_count":   "6",
		"image":          EncodePNG(t, frame),
	}
}

// With returns a copy of m with key set to v.
func (m Telemetry) With(key string, v any) Telemetry {
	out := make(Telemetry, len(m)+1)
	for k, val := range m {
		out[k] = val
	}
	out[key] = v
	return out
}

// JSON encodes the message.
func (m Telemetry) JSON(t testing.TB) []byte {
	t.Helper()
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal telemetry: %v", err)
	}
	return data
}

func ftoa(v float64) string {
	data, _ := json.Marshal(v)
	return string(data)
}

func formatPair(x, y float64) string {
	return ftoa(x) + ";" + ftoa(y)
}
