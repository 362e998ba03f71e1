package vision

import (
	"image"
	"math"
)

// Thresholds configures Classify. HSV bounds use the OpenCV byte convention:
// hue 0-180, saturation and value 0-255, both bounds inclusive.
type Thresholds struct {
	Navigable  [3]uint8
	SampleLow  [3]uint8
	SampleHigh [3]uint8
}

// Masks holds the three classifications of one frame.
type Masks struct {
	Navigable *Mask
	Obstacle  *Mask
	Sample    *Mask
}

// Classify thresholds img into navigable, obstacle and sample masks.
//
// A pixel is navigable when every channel is above the navigable threshold,
// and an obstacle when every channel is non-zero but it is not navigable, so
// the two masks never overlap and pure black is neither. The sample test is
// independent of both. img is not modified.
func Classify(img image.Image, t Thresholds) Masks {
	rgba := toRGBA(img)
	w, h := rgba.Rect.Dx(), rgba.Rect.Dy()
	m := Masks{
		Navigable: NewMask(w, h),
		Obstacle:  NewMask(w, h),
		Sample:    NewMask(w, h),
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			px := rgba.RGBAAt(x, y)
			nav := px.R > t.Navigable[0] && px.G > t.Navigable[1] && px.B > t.Navigable[2]
			switch {
			case nav:
				m.Navigable.Set(x, y)
			case px.R > 0 && px.G > 0 && px.B > 0:
				m.Obstacle.Set(x, y)
			}

			// Sample bounds were calibrated on blue-first buffers.
			hue, sat, val := RGBToHSV(px.B, px.G, px.R)
			if inRange(hue, t.SampleLow[0], t.SampleHigh[0]) &&
				inRange(sat, t.SampleLow[1], t.SampleHigh[1]) &&
				inRange(val, t.SampleLow[2], t.SampleHigh[2]) {
				m.Sample.Set(x, y)
			}
		}
	}
	return m
}

func inRange(v float64, lo, hi uint8) bool {
	return v >= float64(lo) && v <= float64(hi)
}

// RGBToHSV converts 8-bit RGB to HSV in the OpenCV byte convention: hue in
// 0-180, saturation and value in 0-255. Results are rounded to whole units.
func RGBToHSV(r8, g8, b8 uint8) (h, s, v float64) {
	r := float64(r8) / 255
	g := float64(g8) / 255
	b := float64(b8) / 255

	maxC := math.Max(r, math.Max(g, b))
	minC := math.Min(r, math.Min(g, b))
	diff := maxC - minC

	v = maxC * 255
	if maxC > 0 {
		s = diff / maxC * 255
	}

	switch {
	case diff == 0:
		h = 0
	case maxC == r:
		h = 60 * math.Mod((g-b)/diff, 6)
	case maxC == g:
		h = 60 * ((b-r)/diff + 2)
	default:
		h = 60 * ((r-g)/diff + 4)
	}
	if h < 0 {
		h += 360
	}

	return math.Round(h / 2), math.Round(s), math.Round(v)
}
