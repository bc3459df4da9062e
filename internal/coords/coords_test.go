package coords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewCropOrdersAndClamps(t *testing.T) {
	c := NewCrop(900, -20, 100, 1500)
	assert.Equal(t, Crop{X1: 100, Y1: 0, X2: 900, Y2: 1000}, c)
}

func TestPixels(t *testing.T) {
	assert.Equal(t, Rect{0, 0, 1280, 720}, FullCrop().Pixels(1280, 720))

	r := NewCrop(250, 500, 750, 1000).Pixels(1280, 720)
	assert.Equal(t, Rect{X1: 320, Y1: 360, X2: 960, Y2: 720}, r)
	assert.Equal(t, 640, r.Width())
	assert.Equal(t, 360, r.Height())
}

func TestToPixel(t *testing.T) {
	full := FullCrop()
	tests := []struct {
		name       string
		crop       Crop
		nx, ny     int
		wantX, wtY int
	}{
		{"origin", full, 0, 0, 0, 0},
		{"far corner is last pixel", full, 1000, 1000, 1279, 719},
		{"center", full, 500, 500, 640, 360},
		{"clamped input", full, -50, 5000, 0, 719},
		{"inside crop", NewCrop(500, 500, 1000, 1000), 0, 0, 640, 360},
		{"inside crop far", NewCrop(500, 500, 1000, 1000), 1000, 1000, 1279, 719},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y := tt.crop.ToPixel(tt.nx, tt.ny, 1280, 720)
			assert.Equal(t, tt.wantX, x)
			assert.Equal(t, tt.wtY, y)
		})
	}
}

func TestPointDegenerateSpan(t *testing.T) {
	assert.Equal(t, 0, Point(700, 1))
	assert.Equal(t, 0, Point(700, 0))
}
