package vision

import (
	"image"
	"image/color"
	"image/draw"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var calibrationSource = []Point{{X: 14, Y: 140}, {X: 301, Y: 140}, {X: 200, Y: 96}, {X: 118, Y: 96}}

func TestNewHomography_MapsCalibrationPoints(t *testing.T) {
	dst := CalibrationTarget(320, 160, 10, 6)
	require.Equal(t, []Point{{155, 154}, {165, 154}, {165, 144}, {155, 144}}, dst)

	h, err := NewHomography(calibrationSource, dst)
	require.NoError(t, err)

	for i, p := range calibrationSource {
		got := h.Apply(p)
		assert.InDelta(t, dst[i].X, got.X, 1e-6, "point %d x", i)
		assert.InDelta(t, dst[i].Y, got.Y, 1e-6, "point %d y", i)
	}

	inv, err := h.Inverse()
	require.NoError(t, err)
	for i, p := range dst {
		got := inv.Apply(p)
		assert.InDelta(t, calibrationSource[i].X, got.X, 1e-6)
		assert.InDelta(t, calibrationSource[i].Y, got.Y, 1e-6)
	}
}

func TestNewHomography_Degenerate(t *testing.T) {
	same := []Point{{1, 1}, {1, 1}, {1, 1}, {1, 1}}
	_, err := NewHomography(same, CalibrationTarget(320, 160, 10, 6))
	require.ErrorIs(t, err, ErrDegenerateQuad)

	_, err = NewHomography(calibrationSource[:3], CalibrationTarget(320, 160, 10, 6)[:3])
	require.Error(t, err)
}

func TestWarp(t *testing.T) {
	h, err := NewHomography(calibrationSource, CalibrationTarget(320, 160, 10, 6))
	require.NoError(t, err)
	w, err := NewWarper(h)
	require.NoError(t, err)

	src := image.NewRGBA(image.Rect(0, 0, 320, 160))
	draw.Draw(src, src.Bounds(), &image.Uniform{C: color.RGBA{R: 220, G: 210, B: 200, A: 255}}, image.Point{}, draw.Src)

	out := w.Warp(src)
	require.Equal(t, src.Bounds(), out.Bounds())

	// The centre of the calibration square sees ground in front of the rover.
	assert.Equal(t, color.RGBA{R: 220, G: 210, B: 200, A: 255}, out.RGBAAt(160, 149))

	// Far to the side at the bottom edge is outside the camera's view.
	assert.Equal(t, color.RGBA{}, out.RGBAAt(0, 159))
	assert.Equal(t, color.RGBA{}, out.RGBAAt(319, 159))

	// Source is untouched.
	assert.Equal(t, color.RGBA{R: 220, G: 210, B: 200, A: 255}, src.RGBAAt(0, 0))
}

func TestBilinear(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 2, 1))
	img.SetRGBA(0, 0, color.RGBA{R: 0, G: 100, B: 200, A: 255})
	img.SetRGBA(1, 0, color.RGBA{R: 100, G: 100, B: 0, A: 255})

	got := bilinear(img, 0.5, 0)
	assert.Equal(t, color.RGBA{R: 50, G: 100, B: 100, A: 255}, got)
}
