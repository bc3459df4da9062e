// Filename: internal/humanoid/clickmodel.go
package humanoid

import (
	"context"

	"github.com/xkilldash9x/franz/api/schemas"
)

func (h *Humanoid) leftClick(ctx context.Context, at, _ point) error {
	return h.click(ctx, at, schemas.ButtonLeft, 1)
}

func (h *Humanoid) rightClick(ctx context.Context, at, _ point) error {
	return h.click(ctx, at, schemas.ButtonRight, 1)
}

// doubleClick sends two press/release pairs. The second pair carries a click
// count of 2, which is what makes the page see a dblclick.
func (h *Humanoid) doubleClick(ctx context.Context, at, _ point) error {
	if err := h.click(ctx, at, schemas.ButtonLeft, 1); err != nil {
		return err
	}
	if err := h.pause(ctx, h.cfg.DoubleClickGap); err != nil {
		return err
	}
	return h.click(ctx, at, schemas.ButtonLeft, 2)
}

// click moves onto the target, then presses and releases with a short hold
// on either side of the press.
func (h *Humanoid) click(ctx context.Context, at point, button schemas.MouseButton, clickCount int) error {
	if err := h.dispatch(ctx, schemas.MouseMove, at, schemas.ButtonNone, schemas.ButtonsNone, 0); err != nil {
		return err
	}
	if err := h.pause(ctx, h.cfg.ClickHold); err != nil {
		return err
	}
	if err := h.dispatch(ctx, schemas.MousePress, at, button, buttonsMask(button), clickCount); err != nil {
		return err
	}
	if err := h.pause(ctx, h.cfg.ClickHold); err != nil {
		return err
	}
	return h.dispatch(ctx, schemas.MouseRelease, at, button, schemas.ButtonsNone, clickCount)
}

func buttonsMask(b schemas.MouseButton) int64 {
	switch b {
	case schemas.ButtonLeft:
		return schemas.ButtonsLeft
	case schemas.ButtonRight:
		return schemas.ButtonsRight
	}
	return schemas.ButtonsNone
}
