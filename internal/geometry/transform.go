// Package geometry converts classified pixels between the camera, rover and
// world frames. Every function is pure: inputs are never modified and no
// state is retained between calls. Angles are in degrees at every exported
// boundary.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// ToPolar converts rover-frame coordinates into distance and heading angle
// in degrees (positive to the left of the rover's heading).
func ToPolar(x, y []float64) (dist, angle []float64) {
	n := min(len(x), len(y))
	dist = make([]float64, n)
	angle = make([]float64, n)
	for i := 0; i < n; i++ {
		dist[i] = math.Hypot(x[i], y[i])
		angle[i] = math.Atan2(y[i], x[i]) * radToDeg
	}
	return dist, angle
}

// Mask is a binary image addressed as Mask.At(col, row).
type Mask interface {
	Width() int
	Height() int
	At(col, row int) bool
}

// PixelsToRoverFrame converts every set pixel of mask to rover-frame
// coordinates. The camera mount sits at the bottom centre of the image,
// forward is +x and left is +y.
func PixelsToRoverFrame(mask Mask) (x, y []float64) {
	w, h := mask.Width(), mask.Height()
	half := float64(w) / 2
	for row := 0; row < h; row++ {
		for col := 0; col < w; col++ {
			if !mask.At(col, row) {
				continue
			}
			x = append(x, -(float64(row) - float64(h)))
			y = append(y, -(float64(col) - half))
		}
	}
	return x, y
}

// Rotate rotates points counter-clockwise by yaw degrees.
func Rotate(x, y []float64, yaw float64) (xr, yr []float64) {
	sin, cos := math.Sincos(yaw * degToRad)
	n := min(len(x), len(y))
	xr = make([]float64, n)
	yr = make([]float64, n)
	for i := 0; i < n; i++ {
		xr[i] = x[i]*cos - y[i]*sin
		yr[i] = x[i]*sin + y[i]*cos
	}
	return xr, yr
}

// Translate scales points down by scale and shifts them to the origin.
func Translate(x, y []float64, originX, originY, scale float64) (xt, yt []float64) {
	n := min(len(x), len(y))
	xt = make([]float64, n)
	yt = make([]float64, n)
	for i := 0; i < n; i++ {
		xt[i] = x[i]/scale + originX
		yt[i] = y[i]/scale + originY
	}
	return xt, yt
}

// Pose is the rover position in world cells and its yaw in degrees.
type Pose struct {
	X, Y float64
	Yaw  float64
}

// RoverToWorld projects rover-frame points into the world grid. Projections
// falling outside [0, worldSize-1] are clamped to the border rather than
// dropped.
func RoverToWorld(x, y []float64, pose Pose, worldSize int, scale float64) (xw, yw []float64) {
	xr, yr := Rotate(x, y, pose.Yaw)
	xw, yw = Translate(xr, yr, pose.X, pose.Y, scale)
	hi := float64(worldSize - 1)
	for i := range xw {
		xw[i] = Clip(xw[i], 0, hi)
		yw[i] = Clip(yw[i], 0, hi)
	}
	return xw, yw
}

// WorldToRover is the inverse of RoverToWorld without the clamping step.
func WorldToRover(xw, yw []float64, pose Pose, scale float64) (x, y []float64) {
	n := min(len(xw), len(yw))
	dx := make([]float64, n)
	dy := make([]float64, n)
	for i := 0; i < n; i++ {
		dx[i] = (xw[i] - pose.X) * scale
		dy[i] = (yw[i] - pose.Y) * scale
	}
	return Rotate(dx, dy, -pose.Yaw)
}

// HomeVector returns the distance (rover-frame pixels) and heading (degrees)
// from the rover to a fixed world point.
func HomeVector(homeX, homeY float64, pose Pose, scale float64) (dist, heading float64) {
	x, y := WorldToRover([]float64{homeX}, []float64{homeY}, pose, scale)
	d, a := ToPolar(x, y)
	return d[0], a[0]
}

// AngleDiff returns a-b folded into (-180, 180], so a turn across 0/360
// reads as the short way round.
func AngleDiff(a, b float64) float64 {
	d := math.Mod(a-b, 360)
	switch {
	case d > 180:
		d -= 360
	case d <= -180:
		d += 360
	}
	return d
}

// Clip bounds v to [lo, hi].
func Clip(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// Mean returns the arithmetic mean of xs. ok is false for an empty slice so
// callers never act on an undefined average.
func Mean(xs []float64) (mean float64, ok bool) {
	if len(xs) == 0 {
		return 0, false
	}
	return stat.Mean(xs, nil), true
}
