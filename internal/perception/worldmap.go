package perception

import (
	"math"

	"github.com/banshee-data/rover.autopilot/internal/rover"
)

// Channel selects one accumulator of the world map.
type Channel int

const (
	Obstacle Channel = iota
	Sample
	Navigable
)

// Cell holds the hit counts of one world cell.
type Cell struct {
	Obstacle  uint32 `json:"obstacle"`
	Sample    uint32 `json:"sample"`
	Navigable uint32 `json:"navigable"`
}

// Empty reports whether no channel has been hit.
func (c Cell) Empty() bool {
	return c.Obstacle == 0 && c.Sample == 0 && c.Navigable == 0
}

// WorldMap is a square grid of hit counts. Counts only ever increase during
// a mission.
type WorldMap struct {
	size  int
	cells []Cell
}

// NewWorldMap allocates an empty size×size map.
func NewWorldMap(size int) *WorldMap {
	return &WorldMap{size: size, cells: make([]Cell, size*size)}
}

// Clone returns an independent copy of m.
func (m *WorldMap) Clone() *WorldMap {
	out := &WorldMap{size: m.size, cells: make([]Cell, len(m.cells))}
	copy(out.cells, m.cells)
	return out
}

// Size returns the side length in cells.
func (m *WorldMap) Size() int { return m.size }

// Add increments ch for every (x, y) world coordinate. Coordinates are
// truncated to cell indices; anything outside the grid is ignored.
func (m *WorldMap) Add(ch Channel, xs, ys []float64) {
	n := min(len(xs), len(ys))
	for i := 0; i < n; i++ {
		x, y := int(xs[i]), int(ys[i])
		if x < 0 || y < 0 || x >= m.size || y >= m.size {
			continue
		}
		c := &m.cells[y*m.size+x]
		switch ch {
		case Obstacle:
			c.Obstacle++
		case Sample:
			c.Sample++
		case Navigable:
			c.Navigable++
		}
	}
}

// At returns the counts of cell (x, y), or an empty cell outside the grid.
func (m *WorldMap) At(x, y int) Cell {
	if x < 0 || y < 0 || x >= m.size || y >= m.size {
		return Cell{}
	}
	return m.cells[y*m.size+x]
}

// Each calls fn for every cell with at least one hit, in row-major order.
func (m *WorldMap) Each(fn func(x, y int, c Cell)) {
	for i, c := range m.cells {
		if c.Empty() {
			continue
		}
		fn(i%m.size, i/m.size, c)
	}
}

// MapStats scores a world map against the ground truth.
type MapStats struct {
	// PercentMapped is the share of ground-truth navigable cells the map has
	// marked navigable, in percent rounded to 0.1.
	PercentMapped float64 `json:"percent_mapped"`
	// Fidelity is the share of mapped navigable cells that are truly
	// navigable, in percent rounded to 0.1.
	Fidelity       float64 `json:"fidelity"`
	NavigableCells int     `json:"navigable_cells"`
	SamplesLocated int     `json:"samples_located"`
}

// Stats compares the navigable channel with ref and counts how many known
// samples have a sample hit within radius cells.
func (m *WorldMap) Stats(ref *ReferenceMap, known []rover.SamplePosition, radius int) MapStats {
	var good, nav int
	for i, c := range m.cells {
		if c.Navigable == 0 {
			continue
		}
		nav++
		if ref != nil && ref.navigable(i%m.size, i/m.size) {
			good++
		}
	}

	st := MapStats{NavigableCells: nav}
	if ref != nil && ref.total > 0 {
		st.PercentMapped = round1(100 * float64(good) / float64(ref.total))
	}
	if nav > 0 {
		st.Fidelity = round1(100 * float64(good) / float64(nav))
	}
	for _, s := range known {
		if m.sampleNear(s, radius) {
			st.SamplesLocated++
		}
	}
	return st
}

func (m *WorldMap) sampleNear(s rover.SamplePosition, radius int) bool {
	r2 := float64(radius * radius)
	cx, cy := int(s.X), int(s.Y)
	for y := cy - radius; y <= cy+radius; y++ {
		for x := cx - radius; x <= cx+radius; x++ {
			if m.At(x, y).Sample == 0 {
				continue
			}
			dx, dy := float64(x)-s.X, float64(y)-s.Y
			if dx*dx+dy*dy < r2 {
				return true
			}
		}
	}
	return false
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
