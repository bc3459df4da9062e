// Package humanoid replays model actions as mouse input on the browser
// viewport. Actions arrive in normalized crop coordinates and are mapped to
// pixels before dispatch.
package humanoid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/config"
	"github.com/xkilldash9x/franz/internal/coords"
)

// Config carries pacing and geometry.
type Config struct {
	PhysicalExecution bool
	ActionDelay       time.Duration
	DragSteps         int
	DragStepDelay     time.Duration
	ClickHold         time.Duration
	DoubleClickGap    time.Duration
	Crop              coords.Crop
	Viewport          schemas.Viewport
}

// NewConfig assembles a Config from the executor, capture and browser sections.
func NewConfig(cfg config.Interface) Config {
	exec := cfg.Executor()
	crop := cfg.Capture().Crop
	return Config{
		PhysicalExecution: exec.PhysicalExecution,
		ActionDelay:       exec.ActionDelay,
		DragSteps:         exec.DragSteps,
		DragStepDelay:     exec.DragStepDelay,
		ClickHold:         exec.ClickHold,
		DoubleClickGap:    exec.DoubleClickGap,
		Crop:              coords.NewCrop(crop.X1, crop.Y1, crop.X2, crop.Y2),
		Viewport:          cfg.Browser().Viewport,
	}
}

type point struct{ x, y int }

// actionHandler performs one action kind between two pixel points.
type actionHandler func(ctx context.Context, from, to point) error

// Humanoid implements schemas.InputExecutor.
type Humanoid struct {
	cfg      Config
	executor Executor
	logger   *zap.Logger
	handlers map[schemas.ActionKind]actionHandler

	// Serializes batches; the engine runs one at a time but the executor is
	// reachable from tests and tools concurrently.
	mu sync.Mutex
}

var _ schemas.InputExecutor = (*Humanoid)(nil)

// New creates a Humanoid that dispatches through executor.
func New(cfg Config, executor Executor, logger *zap.Logger) (*Humanoid, error) {
	if executor == nil {
		return nil, errors.New("executor cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.Viewport.Width <= 0 || cfg.Viewport.Height <= 0 {
		return nil, fmt.Errorf("invalid viewport %dx%d", cfg.Viewport.Width, cfg.Viewport.Height)
	}
	if cfg.DragSteps <= 0 {
		cfg.DragSteps = 1
	}

	h := &Humanoid{
		cfg:      cfg,
		executor: executor,
		logger:   logger.Named("humanoid"),
	}
	h.handlers = map[schemas.ActionKind]actionHandler{
		schemas.ActionMove:        h.move,
		schemas.ActionClick:       h.leftClick,
		schemas.ActionRightClick:  h.rightClick,
		schemas.ActionDoubleClick: h.doubleClick,
		schemas.ActionDrag:        h.drag,
	}
	return h, nil
}

// Execute performs one action. Unknown kinds are logged and skipped, and with
// physical execution disabled nothing is dispatched.
func (h *Humanoid) Execute(ctx context.Context, action schemas.Action) error {
	kind := action.Name.Canonical()
	handler, ok := h.handlers[kind]
	if !ok {
		h.logger.Warn("Unknown action kind; skipping.", zap.String("name", string(action.Name)))
		return nil
	}

	from := h.toPixel(action.X1, action.Y1)
	ex, ey := action.End()
	to := h.toPixel(ex, ey)

	if !h.cfg.PhysicalExecution {
		h.logger.Info("Physical execution disabled; not dispatching.",
			zap.String("name", string(kind)),
			zap.Int("x", from.x), zap.Int("y", from.y),
		)
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.logger.Debug("Executing action.",
		zap.String("name", string(kind)),
		zap.Int("x1", from.x), zap.Int("y1", from.y),
		zap.Int("x2", to.x), zap.Int("y2", to.y),
	)
	if err := handler(ctx, from, to); err != nil {
		return fmt.Errorf("%s at (%d,%d): %w", kind, from.x, from.y, err)
	}
	return h.pause(ctx, h.cfg.ActionDelay)
}

func (h *Humanoid) toPixel(nx, ny int) point {
	x, y := h.cfg.Crop.ToPixel(nx, ny, h.cfg.Viewport.Width, h.cfg.Viewport.Height)
	return point{x, y}
}

func (h *Humanoid) pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return h.executor.Sleep(ctx, d)
}

func (h *Humanoid) dispatch(ctx context.Context, t schemas.MouseEventType, p point, button schemas.MouseButton, buttons int64, clicks int) error {
	return h.executor.DispatchMouseEvent(ctx, schemas.MouseEventData{
		Type:       t,
		X:          float64(p.x),
		Y:          float64(p.y),
		Button:     button,
		Buttons:    buttons,
		ClickCount: clicks,
	})
}

func (h *Humanoid) move(ctx context.Context, from, _ point) error {
	return h.dispatch(ctx, schemas.MouseMove, from, schemas.ButtonNone, schemas.ButtonsNone, 0)
}
