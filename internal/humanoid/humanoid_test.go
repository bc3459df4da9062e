package humanoid

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/config"
	"github.com/xkilldash9x/franz/internal/coords"
)

// recordingExecutor captures every dispatched event and sleep.
type recordingExecutor struct {
	mu      sync.Mutex
	events  []schemas.MouseEventData
	sleeps  []time.Duration
	failOn  schemas.MouseEventType
	failErr error
}

func (r *recordingExecutor) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sleeps = append(r.sleeps, d)
	return ctx.Err()
}

func (r *recordingExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, data)
	if r.failOn != "" && data.Type == r.failOn {
		return r.failErr
	}
	return nil
}

func (r *recordingExecutor) types() []schemas.MouseEventType {
	out := make([]schemas.MouseEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.Type)
	}
	return out
}

func testConfig() Config {
	return Config{
		PhysicalExecution: true,
		ActionDelay:       50 * time.Millisecond,
		DragSteps:         4,
		DragStepDelay:     10 * time.Millisecond,
		ClickHold:         30 * time.Millisecond,
		DoubleClickGap:    60 * time.Millisecond,
		Crop:              coords.FullCrop(),
		Viewport:          schemas.Viewport{Width: 1001, Height: 1001},
	}
}

func newTestHumanoid(t *testing.T, cfg Config) (*Humanoid, *recordingExecutor, *observer.ObservedLogs) {
	t.Helper()
	exec := &recordingExecutor{}
	core, logs := observer.New(zap.DebugLevel)
	h, err := New(cfg, exec, zap.New(core))
	require.NoError(t, err)
	return h, exec, logs
}

func intPtr(v int) *int { return &v }

func TestNewValidation(t *testing.T) {
	_, err := New(testConfig(), nil, zap.NewNop())
	assert.EqualError(t, err, "executor cannot be nil")

	_, err = New(testConfig(), &recordingExecutor{}, nil)
	assert.EqualError(t, err, "logger cannot be nil")

	cfg := testConfig()
	cfg.Viewport.Width = 0
	_, err = New(cfg, &recordingExecutor{}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewConfigFromSections(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.CaptureCfg.Crop = config.CropConfig{X1: 900, Y1: 0, X2: 100, Y2: 1000}

	hc := NewConfig(cfg)
	assert.True(t, hc.PhysicalExecution)
	assert.Equal(t, 20, hc.DragSteps)
	assert.Equal(t, coords.Crop{X1: 100, Y1: 0, X2: 900, Y2: 1000}, hc.Crop)
	assert.Equal(t, 1280, hc.Viewport.Width)
}

func TestClick(t *testing.T) {
	h, exec, _ := newTestHumanoid(t, testConfig())

	require.NoError(t, h.Execute(context.Background(), schemas.Action{Name: schemas.ActionClick, X1: 500, Y1: 250}))

	assert.Equal(t, []schemas.MouseEventType{schemas.MouseMove, schemas.MousePress, schemas.MouseRelease}, exec.types())
	press := exec.events[1]
	assert.Equal(t, 500.0, press.X)
	assert.Equal(t, 250.0, press.Y)
	assert.Equal(t, schemas.ButtonLeft, press.Button)
	assert.Equal(t, schemas.ButtonsLeft, press.Buttons)
	assert.Equal(t, 1, press.ClickCount)
	assert.Equal(t, []time.Duration{30 * time.Millisecond, 30 * time.Millisecond, 50 * time.Millisecond}, exec.sleeps)
}

func TestRightClickAliases(t *testing.T) {
	for _, name := range []schemas.ActionKind{"right_click", "rightclick"} {
		t.Run(string(name), func(t *testing.T) {
			h, exec, _ := newTestHumanoid(t, testConfig())
			require.NoError(t, h.Execute(context.Background(), schemas.Action{Name: name, X1: 1, Y1: 1}))
			require.Len(t, exec.events, 3)
			assert.Equal(t, schemas.ButtonRight, exec.events[1].Button)
		})
	}
}

func TestDoubleClick(t *testing.T) {
	h, exec, _ := newTestHumanoid(t, testConfig())
	require.NoError(t, h.Execute(context.Background(), schemas.Action{Name: "doubleclick", X1: 10, Y1: 10}))

	require.Len(t, exec.events, 6)
	assert.Equal(t, 1, exec.events[1].ClickCount)
	assert.Equal(t, 2, exec.events[4].ClickCount)
	assert.Contains(t, exec.sleeps, 60*time.Millisecond)
}

func TestDrag(t *testing.T) {
	h, exec, _ := newTestHumanoid(t, testConfig())
	action := schemas.Action{Name: schemas.ActionDrag, X1: 0, Y1: 0, X2: intPtr(400), Y2: intPtr(800)}
	require.NoError(t, h.Execute(context.Background(), action))

	// move, press, 4 steps, release
	require.Len(t, exec.events, 7)
	assert.Equal(t, schemas.MousePress, exec.events[1].Type)
	for _, step := range exec.events[2:6] {
		assert.Equal(t, schemas.MouseMove, step.Type)
		assert.Equal(t, schemas.ButtonsLeft, step.Buttons)
	}
	release := exec.events[6]
	assert.Equal(t, schemas.MouseRelease, release.Type)
	assert.Equal(t, 400.0, release.X)
	assert.Equal(t, 800.0, release.Y)
}

func TestDragWithoutEndPointStaysPut(t *testing.T) {
	h, exec, _ := newTestHumanoid(t, testConfig())
	require.NoError(t, h.Execute(context.Background(), schemas.Action{Name: schemas.ActionDrag, X1: 300, Y1: 300}))

	release := exec.events[len(exec.events)-1]
	assert.Equal(t, 300.0, release.X)
	assert.Equal(t, 300.0, release.Y)
}

func TestDragReleasesOnFailure(t *testing.T) {
	h, exec, _ := newTestHumanoid(t, testConfig())
	boom := errors.New("target closed")
	exec.failOn = schemas.MouseMove
	exec.failErr = boom

	// The initial move fails before anything is pressed.
	err := h.Execute(context.Background(), schemas.Action{Name: schemas.ActionDrag, X1: 1, Y1: 1, X2: intPtr(9), Y2: intPtr(9)})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []schemas.MouseEventType{schemas.MouseMove}, exec.types())
}

func TestMove(t *testing.T) {
	h, exec, _ := newTestHumanoid(t, testConfig())
	require.NoError(t, h.Execute(context.Background(), schemas.Action{Name: schemas.ActionMove, X1: 1000, Y1: 1000}))

	require.Len(t, exec.events, 1)
	assert.Equal(t, 1000.0, exec.events[0].X)
	assert.Equal(t, schemas.ButtonNone, exec.events[0].Button)
}

func TestCropMapping(t *testing.T) {
	cfg := testConfig()
	cfg.Viewport = schemas.Viewport{Width: 1280, Height: 720}
	cfg.Crop = coords.NewCrop(500, 500, 1000, 1000)
	h, exec, _ := newTestHumanoid(t, cfg)

	require.NoError(t, h.Execute(context.Background(), schemas.Action{Name: schemas.ActionMove, X1: 0, Y1: 0}))
	assert.Equal(t, 640.0, exec.events[0].X)
	assert.Equal(t, 360.0, exec.events[0].Y)
}

func TestUnknownKindIsSkipped(t *testing.T) {
	h, exec, logs := newTestHumanoid(t, testConfig())
	require.NoError(t, h.Execute(context.Background(), schemas.Action{Name: "scroll", X1: 1, Y1: 1}))

	assert.Empty(t, exec.events)
	assert.Equal(t, 1, logs.FilterMessage("Unknown action kind; skipping.").Len())
}

func TestPhysicalExecutionDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.PhysicalExecution = false
	h, exec, logs := newTestHumanoid(t, cfg)

	require.NoError(t, h.Execute(context.Background(), schemas.Action{Name: schemas.ActionClick, X1: 1, Y1: 1}))
	assert.Empty(t, exec.events)
	assert.Empty(t, exec.sleeps)
	assert.Equal(t, 1, logs.FilterMessage("Physical execution disabled; not dispatching.").Len())
}

func TestDispatchErrorIsWrapped(t *testing.T) {
	h, exec, _ := newTestHumanoid(t, testConfig())
	exec.failOn = schemas.MousePress
	exec.failErr = errors.New("no target")

	err := h.Execute(context.Background(), schemas.Action{Name: schemas.ActionClick, X1: 0, Y1: 0})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "click at (0,0)")
	assert.ErrorIs(t, err, exec.failErr)
}
