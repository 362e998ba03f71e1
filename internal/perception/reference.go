package perception

import (
	"fmt"
	"image"
	"image/color"
	"os"

	// Decoders for the formats ground-truth maps are distributed in.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
)

// ReferenceMap is the read-only ground truth of navigable terrain.
type ReferenceMap struct {
	size  int
	nav   []bool
	total int
}

// NewReferenceMap builds a ground truth from img. A cell is navigable when
// its green channel is non-zero; greyscale maps work unchanged.
func NewReferenceMap(img image.Image, size int) (*ReferenceMap, error) {
	b := img.Bounds()
	if b.Dx() != size || b.Dy() != size {
		return nil, fmt.Errorf("reference map is %dx%d, want %dx%d", b.Dx(), b.Dy(), size, size)
	}
	ref := &ReferenceMap{size: size, nav: make([]bool, size*size)}
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			if c.G > 0 {
				ref.nav[y*size+x] = true
				ref.total++
			}
		}
	}
	if ref.total == 0 {
		return nil, fmt.Errorf("reference map has no navigable cells")
	}
	return ref, nil
}

// LoadReferenceMap decodes the ground-truth image at path.
func LoadReferenceMap(path string, size int) (*ReferenceMap, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open reference map: %w", err)
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode reference map %s: %w", path, err)
	}
	ref, err := NewReferenceMap(img, size)
	if err != nil {
		return nil, fmt.Errorf("%s reference map %s: %w", format, path, err)
	}
	return ref, nil
}

// Total returns the number of navigable ground-truth cells.
func (r *ReferenceMap) Total() int { return r.total }

func (r *ReferenceMap) navigable(x, y int) bool {
	if x >= r.size || y >= r.size {
		return false
	}
	return r.nav[y*r.size+x]
}
