package vision

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrDegenerateQuad is returned when calibration points do not define a
// projective transform (collinear or repeated points).
var ErrDegenerateQuad = errors.New("vision: degenerate calibration quadrilateral")

// Point is a pixel coordinate.
type Point struct {
	X, Y float64
}

// Homography is a 3×3 projective transform in row-major order, normalised
// so that the last element is 1.
type Homography [9]float64

// NewHomography solves the projective transform mapping each src point to the
// matching dst point. Exactly four correspondences are required.
func NewHomography(src, dst []Point) (Homography, error) {
	if len(src) != 4 || len(dst) != 4 {
		return Homography{}, fmt.Errorf("need exactly 4 point pairs, got %d and %d", len(src), len(dst))
	}

	// x' = (h0 x + h1 y + h2) / (h6 x + h7 y + 1)
	// y' = (h3 x + h4 y + h5) / (h6 x + h7 y + 1)
	A := mat.NewDense(8, 8, nil)
	B := mat.NewVecDense(8, nil)
	for i := 0; i < 4; i++ {
		x, y := src[i].X, src[i].Y
		xp, yp := dst[i].X, dst[i].Y

		A.SetRow(i*2, []float64{x, y, 1, 0, 0, 0, -x * xp, -y * xp})
		B.SetVec(i*2, xp)

		A.SetRow(i*2+1, []float64{0, 0, 0, x, y, 1, -x * yp, -y * yp})
		B.SetVec(i*2+1, yp)
	}

	var params mat.VecDense
	if err := params.SolveVec(A, B); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerateQuad, err)
	}

	var h Homography
	for i := 0; i < 8; i++ {
		h[i] = params.AtVec(i)
	}
	h[8] = 1
	for _, v := range h {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Homography{}, ErrDegenerateQuad
		}
	}
	return h, nil
}

// Apply maps a point through the transform.
func (h Homography) Apply(p Point) Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

// Inverse returns the transform mapping dst back to src.
func (h Homography) Inverse() (Homography, error) {
	m := mat.NewDense(3, 3, h[:])
	var inv mat.Dense
	if err := inv.Inverse(m); err != nil {
		return Homography{}, fmt.Errorf("%w: %v", ErrDegenerateQuad, err)
	}
	var out Homography
	scale := inv.At(2, 2)
	if scale == 0 {
		return Homography{}, ErrDegenerateQuad
	}
	for r := 0; r < 3; r++ {
		for c := 0; c < 3; c++ {
			out[r*3+c] = inv.At(r, c) / scale
		}
	}
	return out, nil
}

// CalibrationTarget returns the destination square for the perspective
// calibration: a grid-sized square centred horizontally whose bottom edge
// sits bottomOffset pixels above the bottom of a w×h image. The corner order
// matches the source quad (bottom-left, bottom-right, top-right, top-left).
func CalibrationTarget(w, h int, grid, bottomOffset float64) []Point {
	half := grid / 2
	cx := float64(w) / 2
	bottom := float64(h) - bottomOffset
	top := bottom - grid
	return []Point{
		{X: cx - half, Y: bottom},
		{X: cx + half, Y: bottom},
		{X: cx + half, Y: top},
		{X: cx - half, Y: top},
	}
}

// Warper applies a fixed perspective transform to camera frames.
type Warper struct {
	inverse Homography
}

// NewWarper builds a Warper for the forward transform h.
func NewWarper(h Homography) (*Warper, error) {
	inv, err := h.Inverse()
	if err != nil {
		return nil, err
	}
	return &Warper{inverse: inv}, nil
}

// Warp renders the overhead view of src at the same size. Each output pixel
// is bilinearly sampled from the source; pixels that project outside the
// source frame are black.
func (w *Warper) Warp(src image.Image) *image.RGBA {
	b := src.Bounds()
	rgba := toRGBA(src)
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	maxX := float64(b.Dx() - 1)
	maxY := float64(b.Dy() - 1)

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			p := w.inverse.Apply(Point{X: float64(x), Y: float64(y)})
			if p.X < 0 || p.Y < 0 || p.X > maxX || p.Y > maxY || math.IsNaN(p.X) || math.IsNaN(p.Y) {
				continue
			}
			out.SetRGBA(x, y, bilinear(rgba, p.X, p.Y))
		}
	}
	return out
}

func bilinear(img *image.RGBA, fx, fy float64) color.RGBA {
	x0, y0 := int(fx), int(fy)
	x1, y1 := x0+1, y0+1
	w := img.Rect.Dx()
	h := img.Rect.Dy()
	if x1 >= w {
		x1 = x0
	}
	if y1 >= h {
		y1 = y0
	}
	ax, ay := fx-float64(x0), fy-float64(y0)

	c00 := img.RGBAAt(x0, y0)
	c10 := img.RGBAAt(x1, y0)
	c01 := img.RGBAAt(x0, y1)
	c11 := img.RGBAAt(x1, y1)

	mix := func(a, b, c, d uint8) uint8 {
		top := float64(a)*(1-ax) + float64(b)*ax
		bot := float64(c)*(1-ax) + float64(d)*ax
		return uint8(math.Round(top*(1-ay) + bot*ay))
	}
	return color.RGBA{
		R: mix(c00.R, c10.R, c01.R, c11.R),
		G: mix(c00.G, c10.G, c01.G, c11.G),
		B: mix(c00.B, c10.B, c01.B, c11.B),
		A: 255,
	}
}

// toRGBA returns src as an *image.RGBA anchored at the origin, copying only
// when the source is some other image type or offset.
func toRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok && rgba.Rect.Min == (image.Point{}) {
		return rgba
	}
	b := src.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, src.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}
