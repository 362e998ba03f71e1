package vision

// Mask is a binary image in row-major order.
type Mask struct {
	W, H int
	Pix  []bool
}

// NewMask allocates an empty w×h mask.
func NewMask(w, h int) *Mask {
	return &Mask{W: w, H: h, Pix: make([]bool, w*h)}
}

func (m *Mask) Width() int  { return m.W }
func (m *Mask) Height() int { return m.H }

// At reports whether the pixel at (col, row) is set. Out-of-range
// coordinates read as unset.
func (m *Mask) At(col, row int) bool {
	if col < 0 || row < 0 || col >= m.W || row >= m.H {
		return false
	}
	return m.Pix[row*m.W+col]
}

// Set marks the pixel at (col, row).
func (m *Mask) Set(col, row int) {
	m.Pix[row*m.W+col] = true
}

// Count returns the number of set pixels.
func (m *Mask) Count() int {
	n := 0
	for _, v := range m.Pix {
		if v {
			n++
		}
	}
	return n
}
