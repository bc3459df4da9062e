// Filename: internal/humanoid/executor.go
package humanoid

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/franz/api/schemas"
)

// Executor is the low-level surface the humanoid drives. It is the seam tests
// replace with a recorder.
type Executor interface {
	// Sleep pauses execution for a given duration (context-aware).
	Sleep(ctx context.Context, d time.Duration) error
	// DispatchMouseEvent sends a raw low-level mouse event in viewport pixels.
	DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error
}

// RunActionsFunc runs chromedp actions against a browser tab while honoring
// the caller's context.
type RunActionsFunc func(ctx context.Context, actions ...chromedp.Action) error

const mouseEventTimeout = 10 * time.Second

// CDPExecutor dispatches input through the Chrome DevTools protocol.
type CDPExecutor struct {
	run    RunActionsFunc
	logger *zap.Logger
}

// NewCDPExecutor creates an executor that runs events through run.
func NewCDPExecutor(run RunActionsFunc, logger *zap.Logger) *CDPExecutor {
	return &CDPExecutor{run: run, logger: logger.Named("cdp_executor")}
}

func (e *CDPExecutor) Sleep(ctx context.Context, d time.Duration) error {
	return chromedp.Sleep(d).Do(ctx)
}

func (e *CDPExecutor) DispatchMouseEvent(ctx context.Context, data schemas.MouseEventData) error {
	p := input.DispatchMouseEvent(input.MouseType(data.Type), data.X, data.Y).
		WithButton(input.MouseButton(data.Button)).
		WithButtons(data.Buttons).
		WithClickCount(int64(data.ClickCount))

	opCtx, cancel := context.WithTimeout(ctx, mouseEventTimeout)
	defer cancel()

	err := e.run(opCtx, p)
	if err != nil && opCtx.Err() == context.DeadlineExceeded {
		e.logger.Debug("DispatchMouseEvent timed out.", zap.Duration("timeout", mouseEventTimeout))
		return fmt.Errorf("DispatchMouseEvent timed out after %v: %w", mouseEventTimeout, opCtx.Err())
	}
	return err
}
