// Package coords maps between the normalized [0,1000] space the model speaks
// and the pixel space of the browser viewport.
package coords

import "github.com/xkilldash9x/franz/api/schemas"

const normMax = schemas.CoordMax

// Rect is a pixel rectangle; X2/Y2 are exclusive.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// Width of the rectangle.
func (r Rect) Width() int { return r.X2 - r.X1 }

// Height of the rectangle.
func (r Rect) Height() int { return r.Y2 - r.Y1 }

// Crop is a region of the surface in normalized coordinates. Corners are
// clamped and ordered on construction.
type Crop struct {
	X1, Y1, X2, Y2 int
}

// NewCrop builds a Crop, clamping each value and swapping inverted corners.
func NewCrop(x1, y1, x2, y2 int) Crop {
	x1, x2 = clamp(x1), clamp(x2)
	y1, y2 = clamp(y1), clamp(y2)
	if x2 < x1 {
		x1, x2 = x2, x1
	}
	if y2 < y1 {
		y1, y2 = y2, y1
	}
	return Crop{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

// FullCrop covers the whole surface.
func FullCrop() Crop { return Crop{X2: normMax, Y2: normMax} }

// Pixels returns the crop as a pixel rectangle on a w x h surface.
func (c Crop) Pixels(w, h int) Rect {
	r := Rect{
		X1: Edge(c.X1, w),
		Y1: Edge(c.Y1, h),
		X2: Edge(c.X2, w),
		Y2: Edge(c.Y2, h),
	}
	r.X1 = bound(r.X1, 0, w)
	r.Y1 = bound(r.Y1, 0, h)
	r.X2 = bound(r.X2, r.X1, w)
	r.Y2 = bound(r.Y2, r.Y1, h)
	return r
}

// ToPixel maps a normalized point inside the crop to surface pixels.
// (0,0) lands on the crop's first pixel and (1000,1000) on its last.
func (c Crop) ToPixel(nx, ny, w, h int) (int, int) {
	r := c.Pixels(w, h)
	return r.X1 + Point(nx, r.Width()), r.Y1 + Point(ny, r.Height())
}

// Edge scales a normalized boundary onto a span of pixels, rounding to nearest.
func Edge(v, span int) int {
	return (clamp(v)*span + normMax/2) / normMax
}

// Point scales a normalized position onto the pixel indices [0, span-1].
func Point(v, span int) int {
	if span <= 1 {
		return 0
	}
	return (clamp(v)*(span-1) + normMax/2) / normMax
}

func clamp(v int) int { return bound(v, 0, normMax) }

func bound(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
