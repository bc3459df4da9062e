package capture

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/config"
	"github.com/xkilldash9x/franz/internal/coords"
)

type stubRunner struct {
	calls int
	err   error
}

func (s *stubRunner) Run(ctx context.Context, actions ...chromedp.Action) error {
	s.calls++
	return s.err
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 0, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestNewGeometry(t *testing.T) {
	cfg := config.NewDefaultConfig()
	g := NewGeometry(cfg)

	assert.Equal(t, coords.FullCrop(), g.Crop)
	assert.Equal(t, coords.Rect{X1: 0, Y1: 0, X2: 1280, Y2: 720}, g.Clip())

	w, h := g.OutputSize()
	assert.Equal(t, 512, w)
	assert.Equal(t, 288, h)
}

func TestOutputSizeScalePercent(t *testing.T) {
	g := Geometry{
		Crop:         coords.NewCrop(0, 0, 500, 500),
		Viewport:     schemas.Viewport{Width: 1280, Height: 720},
		ScalePercent: 50,
	}
	w, h := g.OutputSize()
	assert.Equal(t, 320, w)
	assert.Equal(t, 180, h)

	g.ScalePercent = 100
	w, h = g.OutputSize()
	assert.Equal(t, 640, w)
	assert.Equal(t, 360, h)
}

func TestNewCDPCapturerValidation(t *testing.T) {
	g := Geometry{Crop: coords.FullCrop(), Viewport: schemas.Viewport{Width: 10, Height: 10}}

	_, err := NewCDPCapturer(nil, g, 0, zap.NewNop())
	assert.Error(t, err)

	_, err = NewCDPCapturer(&stubRunner{}, g, 0, nil)
	assert.Error(t, err)

	empty := Geometry{Crop: coords.Crop{X1: 500, X2: 500, Y2: 1000}, Viewport: g.Viewport}
	_, err = NewCDPCapturer(&stubRunner{}, empty, 0, zap.NewNop())
	assert.ErrorContains(t, err, "capture region is empty")
}

func TestCaptureErrors(t *testing.T) {
	g := Geometry{Crop: coords.FullCrop(), Viewport: schemas.Viewport{Width: 10, Height: 10}}

	t.Run("runner failure", func(t *testing.T) {
		boom := errors.New("target crashed")
		c, err := NewCDPCapturer(&stubRunner{err: boom}, g, 0, zap.NewNop())
		require.NoError(t, err)
		_, err = c.Capture(context.Background())
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty payload", func(t *testing.T) {
		c, err := NewCDPCapturer(&stubRunner{}, g, 0, zap.NewNop())
		require.NoError(t, err)
		_, err = c.Capture(context.Background())
		assert.ErrorIs(t, err, ErrEmptyCapture)
	})

	t.Run("delay honors cancellation", func(t *testing.T) {
		runner := &stubRunner{}
		c, err := NewCDPCapturer(runner, g, time.Hour, zap.NewNop())
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = c.Capture(ctx)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, runner.calls)
	})
}

func TestFitPNG(t *testing.T) {
	src := encodePNG(t, 40, 20)

	t.Run("matching size is passed through", func(t *testing.T) {
		out, w, h, err := fitPNG(src, 40, 20)
		require.NoError(t, err)
		assert.Equal(t, src, out)
		assert.Equal(t, 40, w)
		assert.Equal(t, 20, h)
	})

	t.Run("resamples to the requested size", func(t *testing.T) {
		out, w, h, err := fitPNG(src, 10, 10)
		require.NoError(t, err)
		assert.Equal(t, 10, w)
		assert.Equal(t, 10, h)

		img, err := png.Decode(bytes.NewReader(out))
		require.NoError(t, err)
		assert.Equal(t, image.Rect(0, 0, 10, 10), img.Bounds())
	})

	t.Run("downscaling blends neighbouring pixels", func(t *testing.T) {
		stripes := image.NewRGBA(image.Rect(0, 0, 2, 2))
		for y := 0; y < 2; y++ {
			stripes.Set(0, y, color.RGBA{A: 255})
			stripes.Set(1, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
		}
		var buf bytes.Buffer
		require.NoError(t, png.Encode(&buf, stripes))

		out, _, _, err := fitPNG(buf.Bytes(), 1, 1)
		require.NoError(t, err)
		img, err := png.Decode(bytes.NewReader(out))
		require.NoError(t, err)

		r, g, b, a := img.At(0, 0).RGBA()
		assert.InDelta(t, 0x7fff, r, 0x400, "expected a grey blend, got r=%d", r)
		assert.InDelta(t, 0x7fff, g, 0x400)
		assert.InDelta(t, 0x7fff, b, 0x400)
		assert.Equal(t, uint32(0xffff), a)
	})

	t.Run("rejects non png data", func(t *testing.T) {
		_, _, _, err := fitPNG([]byte("not a png"), 1, 1)
		assert.ErrorContains(t, err, "decoding screenshot")
	})
}
