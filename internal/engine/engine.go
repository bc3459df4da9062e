// Package engine runs the observe/act turn loop.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/capture"
	"github.com/xkilldash9x/franz/internal/normalizer"
	"github.com/xkilldash9x/franz/internal/turnstate"
	"github.com/xkilldash9x/franz/internal/worker"
)

// Config holds the engine's behavior switches.
type Config struct {
	BootEnabled bool
	BootText    string
	// SystemPrompt is sent with every inference call.
	SystemPrompt string
	Options      schemas.GenerationOptions
	// InferenceMinInterval spaces inference calls apart; zero disables it.
	InferenceMinInterval time.Duration
}

// Dependencies are the collaborators a turn calls out to.
type Dependencies struct {
	State    *turnstate.State
	Pool     *worker.Pool
	Executor schemas.InputExecutor
	Capture  schemas.CaptureProvider
	LLM      schemas.LLMClient
	// Events is optional.
	Events schemas.EventPublisher
}

// TurnEngine is the only writer of phase, turn and queued model text. Turns
// run strictly one after another on the goroutine that calls Run.
type TurnEngine struct {
	cfg      Config
	state    *turnstate.State
	pool     *worker.Pool
	executor schemas.InputExecutor
	capture  schemas.CaptureProvider
	llm      schemas.LLMClient
	events   schemas.EventPublisher
	limiter  *rate.Limiter
	logger   *zap.Logger

	stateLock sync.Mutex
	isRunning bool
}

// New creates a TurnEngine.
func New(cfg Config, deps Dependencies, logger *zap.Logger) (*TurnEngine, error) {
	switch {
	case deps.State == nil:
		return nil, errors.New("turn state cannot be nil")
	case deps.Pool == nil:
		return nil, errors.New("worker pool cannot be nil")
	case deps.Executor == nil:
		return nil, errors.New("input executor cannot be nil")
	case deps.Capture == nil:
		return nil, errors.New("capture provider cannot be nil")
	case deps.LLM == nil:
		return nil, errors.New("llm client cannot be nil")
	case logger == nil:
		return nil, errors.New("logger cannot be nil")
	}

	e := &TurnEngine{
		cfg:      cfg,
		state:    deps.State,
		pool:     deps.Pool,
		executor: deps.Executor,
		capture:  deps.Capture,
		llm:      deps.LLM,
		events:   deps.Events,
		logger:   logger.Named("turn_engine"),
	}
	if cfg.InferenceMinInterval > 0 {
		e.limiter = rate.NewLimiter(rate.Every(cfg.InferenceMinInterval), 1)
	}
	return e, nil
}

// Run boots the engine and processes turns until ctx is cancelled. A turn in
// flight at cancellation is abandoned as-is.
func (e *TurnEngine) Run(ctx context.Context) error {
	e.stateLock.Lock()
	if e.isRunning {
		e.stateLock.Unlock()
		return errors.New("turn engine is already running")
	}
	e.isRunning = true
	e.stateLock.Unlock()
	defer func() {
		e.stateLock.Lock()
		e.isRunning = false
		e.stateLock.Unlock()
	}()

	e.boot(ctx)

	for {
		if err := e.state.WaitForWork(ctx); err != nil {
			e.logger.Info("Turn engine stopped.", zap.Int("turn", e.state.Turn()))
			return nil
		}

		text := e.state.TakeModelText()
		if strings.TrimSpace(text) == "" {
			continue
		}

		if err := e.runTurn(ctx, text); err != nil && ctx.Err() != nil {
			e.logger.Info("Turn engine stopped mid-turn.", zap.Error(err))
			return nil
		}
	}
}

func (e *TurnEngine) boot(ctx context.Context) {
	if e.cfg.BootEnabled && strings.TrimSpace(e.cfg.BootText) != "" {
		e.logger.Info("Injecting boot text.", zap.Int("len", len(e.cfg.BootText)))
		e.setPhase(ctx, schemas.PhaseBoot, "")
		e.state.QueueModelText(e.cfg.BootText)
		return
	}
	e.logger.Info("No boot text; waiting for an injection.")
	e.setPhase(ctx, schemas.PhaseWaitingInject, "")
}

// runTurn carries one model reply through execute, capture, annotation and
// inference. It returns an error only when ctx ended the turn; every other
// failure is recorded in the phase and the loop goes idle.
func (e *TurnEngine) runTurn(ctx context.Context, text string) (err error) {
	turn := e.state.BeginTurn()
	logger := e.logger.With(zap.Int("turn", turn))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("Recovered from panic in turn",
				zap.Any("panic_value", r),
				zap.ByteString("stack", debug.Stack()),
			)
			e.setPhase(ctx, schemas.PhaseError, fmt.Sprintf("turn panicked: %v", r))
			err = nil
		}
	}()

	e.setPhase(ctx, schemas.PhaseRunning, "")
	res := normalizer.Normalize(text)
	e.state.PublishModelOutput(text, res)
	logger.Info("Model output normalized.",
		zap.Stringer("outcome", res.Outcome),
		zap.Int("bboxes", len(res.BBoxes)),
		zap.Int("actions", len(res.Actions)),
	)

	e.setPhase(ctx, schemas.PhaseExecuting, "")
	if err := e.executeActions(ctx, logger, res.Actions); err != nil {
		return err
	}

	e.setPhase(ctx, schemas.PhaseCapturing, "")
	img, err := worker.Run(ctx, e.pool, "capture", e.capture.Capture)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil && img.B64 == "" {
		err = capture.ErrEmptyCapture
	}
	if err != nil {
		logger.Error("Capture failed; waiting for an injection.", zap.Error(err))
		e.setPhase(ctx, schemas.PhaseError, "capture failed: "+err.Error())
		return nil
	}

	e.state.PublishCapture(turn, img.B64)
	e.publish(ctx, schemas.TurnEvent{
		Type:        schemas.EventTurnCaptured,
		Turn:        turn,
		Observation: res.Observation,
		BBoxes:      res.BBoxes,
		Actions:     res.Actions,
		ImageB64:    img.B64,
	})

	e.setPhase(ctx, schemas.PhaseWaitingAnnotated, "")
	logger.Info("Waiting for annotated image.", zap.Int("seq", turn))
	if err := e.state.WaitForAnnotation(ctx); err != nil {
		return err
	}
	annotated, seq := e.state.AnnotatedImage()
	e.publish(ctx, schemas.TurnEvent{Type: schemas.EventTurnAnnotated, Turn: seq, ImageB64: annotated})

	e.setPhase(ctx, schemas.PhaseCallingVLM, "")
	reply, err := e.infer(ctx, res.Observation, annotated)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		logger.Error("Inference failed; waiting for an injection.", zap.Error(err))
		e.setPhase(ctx, schemas.PhaseVLMError, err.Error())
		return nil
	}

	logger.Info("Inference complete.", zap.Int("response_len", len(reply)))
	e.publish(ctx, schemas.TurnEvent{Type: schemas.EventTurnInferred, Turn: turn, RawText: reply})
	e.state.QueueModelText(reply)
	e.setPhase(ctx, schemas.PhaseRunning, "")
	return nil
}

// executeActions runs the batch in order. A failing action is logged and the
// batch continues.
func (e *TurnEngine) executeActions(ctx context.Context, logger *zap.Logger, actions []schemas.Action) error {
	for i, action := range actions {
		_, err := worker.Run(ctx, e.pool, "execute", func(ctx context.Context) (struct{}, error) {
			return struct{}{}, e.executor.Execute(ctx, action)
		})
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			logger.Warn("Action failed; continuing with the batch.",
				zap.Int("index", i),
				zap.String("name", string(action.Name)),
				zap.Error(err),
			)
		}
	}
	return nil
}

func (e *TurnEngine) infer(ctx context.Context, observation, annotated string) (string, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	req := schemas.GenerationRequest{
		SystemPrompt: e.cfg.SystemPrompt,
		UserPrompt:   observation,
		ImageB64:     annotated,
		Options:      e.cfg.Options,
	}
	return worker.Run(ctx, e.pool, "inference", func(ctx context.Context) (string, error) {
		return e.llm.Generate(ctx, req)
	})
}

func (e *TurnEngine) setPhase(ctx context.Context, phase schemas.Phase, errText string) {
	e.state.SetPhase(phase, errText)
	e.logger.Debug("Phase changed.", zap.String("phase", string(phase)), zap.String("error", errText))
	e.publish(ctx, schemas.TurnEvent{
		Type:  schemas.EventPhaseChanged,
		Turn:  e.state.Turn(),
		Phase: phase,
		Error: errText,
	})
}

func (e *TurnEngine) publish(ctx context.Context, ev schemas.TurnEvent) {
	if e.events == nil {
		return
	}
	ev.Timestamp = time.Now().UTC()
	if err := e.events.Publish(ctx, ev); err != nil {
		e.logger.Warn("Failed to publish turn event.", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
