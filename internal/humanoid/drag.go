// Filename: internal/humanoid/drag.go
package humanoid

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/franz/api/schemas"
)

// drag presses at from, walks to `to` in DragSteps evenly spaced moves with
// the left button held, then releases at the destination. The button is
// always released, even when a move fails.
func (h *Humanoid) drag(ctx context.Context, from, to point) (err error) {
	if err := h.dispatch(ctx, schemas.MouseMove, from, schemas.ButtonNone, schemas.ButtonsNone, 0); err != nil {
		return err
	}
	if err := h.pause(ctx, h.cfg.ClickHold); err != nil {
		return err
	}
	if err := h.dispatch(ctx, schemas.MousePress, from, schemas.ButtonLeft, schemas.ButtonsLeft, 1); err != nil {
		return fmt.Errorf("press: %w", err)
	}

	last := from
	defer func() {
		// Release on a fresh context so a cancelled turn does not leave the
		// button stuck down in the page.
		releaseCtx := context.WithoutCancel(ctx)
		if rerr := h.dispatch(releaseCtx, schemas.MouseRelease, last, schemas.ButtonLeft, schemas.ButtonsNone, 1); rerr != nil && err == nil {
			err = fmt.Errorf("release: %w", rerr)
		}
	}()

	steps := h.cfg.DragSteps
	for i := 1; i <= steps; i++ {
		p := point{
			x: from.x + (to.x-from.x)*i/steps,
			y: from.y + (to.y-from.y)*i/steps,
		}
		if err := h.dispatch(ctx, schemas.MouseMove, p, schemas.ButtonLeft, schemas.ButtonsLeft, 0); err != nil {
			return fmt.Errorf("move step %d: %w", i, err)
		}
		last = p
		if err := h.pause(ctx, h.cfg.DragStepDelay); err != nil {
			return err
		}
	}
	return nil
}
