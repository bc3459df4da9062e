// Package capture takes the screenshots the annotation client draws on.
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/png"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/config"
	"github.com/xkilldash9x/franz/internal/coords"
)

// ErrEmptyCapture is returned when the browser hands back no image data.
var ErrEmptyCapture = errors.New("capture returned no image")

// Runner executes chromedp actions against the tab being driven.
type Runner interface {
	Run(ctx context.Context, actions ...chromedp.Action) error
}

// Geometry decides which part of the viewport is captured and at what size.
type Geometry struct {
	Crop         coords.Crop
	Viewport     schemas.Viewport
	Width        int
	Height       int
	ScalePercent int
}

// NewGeometry assembles capture geometry from configuration.
func NewGeometry(cfg config.Interface) Geometry {
	c := cfg.Capture()
	return Geometry{
		Crop:         coords.NewCrop(c.Crop.X1, c.Crop.Y1, c.Crop.X2, c.Crop.Y2),
		Viewport:     cfg.Browser().Viewport,
		Width:        c.Width,
		Height:       c.Height,
		ScalePercent: c.ScalePercent,
	}
}

// Clip returns the pixel region of the viewport to capture.
func (g Geometry) Clip() coords.Rect {
	return g.Crop.Pixels(g.Viewport.Width, g.Viewport.Height)
}

// OutputSize returns the dimensions of the delivered image. An explicit width
// and height win; otherwise the clip is scaled by ScalePercent.
func (g Geometry) OutputSize() (int, int) {
	clip := g.Clip()
	if g.Width > 0 && g.Height > 0 {
		return g.Width, g.Height
	}
	p := g.ScalePercent
	if p <= 0 || p == 100 {
		return clip.Width(), clip.Height()
	}
	return max(1, (clip.Width()*p+50)/100), max(1, (clip.Height()*p+50)/100)
}

// CDPCapturer implements schemas.CaptureProvider with Page.captureScreenshot.
type CDPCapturer struct {
	runner   Runner
	geometry Geometry
	delay    time.Duration
	logger   *zap.Logger
}

var _ schemas.CaptureProvider = (*CDPCapturer)(nil)

// NewCDPCapturer creates a capturer. delay is waited before every capture so
// the page can settle after input.
func NewCDPCapturer(runner Runner, geometry Geometry, delay time.Duration, logger *zap.Logger) (*CDPCapturer, error) {
	if runner == nil {
		return nil, errors.New("runner cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	clip := geometry.Clip()
	if clip.Width() <= 0 || clip.Height() <= 0 {
		return nil, fmt.Errorf("capture region is empty: %+v", clip)
	}
	return &CDPCapturer{
		runner:   runner,
		geometry: geometry,
		delay:    delay,
		logger:   logger.Named("capture"),
	}, nil
}

// Capture grabs the configured region and returns it as base64 PNG.
func (c *CDPCapturer) Capture(ctx context.Context) (schemas.Image, error) {
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return schemas.Image{}, ctx.Err()
		}
	}

	clip := c.geometry.Clip()
	outW, outH := c.geometry.OutputSize()
	scale := float64(outW) / float64(clip.Width())

	var buf []byte
	err := c.runner.Run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatPng).
			WithClip(&page.Viewport{
				X:      float64(clip.X1),
				Y:      float64(clip.Y1),
				Width:  float64(clip.Width()),
				Height: float64(clip.Height()),
				Scale:  scale,
			}).
			Do(ctx)
		return err
	}))
	if err != nil {
		return schemas.Image{}, fmt.Errorf("capturing screenshot: %w", err)
	}
	if len(buf) == 0 {
		return schemas.Image{}, ErrEmptyCapture
	}

	buf, w, h, err := fitPNG(buf, outW, outH)
	if err != nil {
		return schemas.Image{}, err
	}

	img := schemas.Image{
		B64:        base64.StdEncoding.EncodeToString(buf),
		Width:      w,
		Height:     h,
		CapturedAt: time.Now().UTC(),
	}
	c.logger.Info("Capture done.", zap.Int("width", w), zap.Int("height", h), zap.Int("b64_len", len(img.B64)))
	return img, nil
}

// fitPNG resamples a PNG to exactly w x h when the browser's uniform scale
// could not produce that size (the requested aspect differs from the clip).
// Bilinear filtering keeps thin UI lines visible after downscaling.
func fitPNG(data []byte, w, h int) ([]byte, int, int, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("decoding screenshot: %w", err)
	}
	b := src.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return data, w, h, nil
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var out bytes.Buffer
	if err := png.Encode(&out, dst); err != nil {
		return nil, 0, 0, fmt.Errorf("encoding screenshot: %w", err)
	}
	return out.Bytes(), w, h, nil
}
