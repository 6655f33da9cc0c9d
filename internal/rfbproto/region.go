package rfbproto

// Region is a rectangle in unsigned 16-bit framebuffer coordinates
// (spec §3).
type Region struct {
	X, Y, Width, Height uint16
}

// Empty reports whether the region covers zero pixels.
func (r Region) Empty() bool { return r.Width == 0 || r.Height == 0 }

// Right returns the exclusive right edge (X + Width).
func (r Region) Right() int { return int(r.X) + int(r.Width) }

// Bottom returns the exclusive bottom edge (Y + Height).
func (r Region) Bottom() int { return int(r.Y) + int(r.Height) }

// Intersect returns the overlap of r and other. The result is empty if
// they don't overlap.
func (r Region) Intersect(other Region) Region {
	x0 := max16(r.X, other.X)
	y0 := max16(r.Y, other.Y)
	x1 := minInt(r.Right(), other.Right())
	y1 := minInt(r.Bottom(), other.Bottom())
	if x1 <= int(x0) || y1 <= int(y0) {
		return Region{}
	}
	return Region{X: x0, Y: y0, Width: uint16(x1 - int(x0)), Height: uint16(y1 - int(y0))}
}

// Join returns the smallest region containing both r and other. A join
// with an empty region is the identity.
func (r Region) Join(other Region) Region {
	if r.Empty() {
		return other
	}
	if other.Empty() {
		return r
	}
	x0 := min16(r.X, other.X)
	y0 := min16(r.Y, other.Y)
	x1 := maxInt(r.Right(), other.Right())
	y1 := maxInt(r.Bottom(), other.Bottom())
	return Region{X: x0, Y: y0, Width: uint16(x1 - int(x0)), Height: uint16(y1 - int(y0))}
}

// AlignUp grows the region so its edges fall on multiples of n, clipping
// the result to bounds. Used before dispatching a damage region to the
// encoding pipeline (spec §4.3: "aligns it, typically to a multiple of 4").
func (r Region) AlignUp(n uint16, bounds Region) Region {
	if n == 0 {
		n = 1
	}
	x0 := (r.X / n) * n
	y0 := (r.Y / n) * n
	x1 := alignCeil(uint16(r.Right()), n)
	y1 := alignCeil(uint16(r.Bottom()), n)
	aligned := Region{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
	return aligned.Intersect(bounds)
}

// ClipTo clips r to lie within bounds, satisfying the "region ⊆ framebuffer
// bounds" invariant (spec §3).
func (r Region) ClipTo(bounds Region) Region {
	return r.Intersect(bounds)
}

func alignCeil(v, n uint16) uint16 {
	if v%n == 0 {
		return v
	}
	return v - (v % n) + n
}

func max16(a, b uint16) uint16 {
	if a > b {
		return a
	}
	return b
}

func min16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
