package rfbproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegionIntersect(t *testing.T) {
	a := Region{X: 0, Y: 0, Width: 10, Height: 10}
	b := Region{X: 5, Y: 5, Width: 10, Height: 10}
	got := a.Intersect(b)
	require.Equal(t, Region{X: 5, Y: 5, Width: 5, Height: 5}, got)
}

func TestRegionIntersectDisjointIsEmpty(t *testing.T) {
	a := Region{X: 0, Y: 0, Width: 5, Height: 5}
	b := Region{X: 10, Y: 10, Width: 5, Height: 5}
	require.True(t, a.Intersect(b).Empty())
}

func TestRegionJoin(t *testing.T) {
	a := Region{X: 0, Y: 0, Width: 5, Height: 5}
	b := Region{X: 10, Y: 10, Width: 5, Height: 5}
	got := a.Join(b)
	require.Equal(t, Region{X: 0, Y: 0, Width: 15, Height: 15}, got)
}

func TestRegionAlignUpRoundsOutToMultiple(t *testing.T) {
	bounds := Region{X: 0, Y: 0, Width: 100, Height: 100}
	r := Region{X: 1, Y: 1, Width: 3, Height: 3}
	got := r.AlignUp(4, bounds)
	require.Equal(t, Region{X: 0, Y: 0, Width: 4, Height: 4}, got)
}

func TestRegionClipToBoundsInvariant(t *testing.T) {
	bounds := Region{X: 0, Y: 0, Width: 10, Height: 10}
	r := Region{X: 5, Y: 5, Width: 20, Height: 20}
	clipped := r.ClipTo(bounds)
	require.LessOrEqual(t, clipped.Right(), bounds.Right())
	require.LessOrEqual(t, clipped.Bottom(), bounds.Bottom())
}
