// Package turnstate holds the single record shared by the turn engine and the
// sync protocol server. Every field is guarded by one mutex that is never held
// across a wait or a blocking call.
package turnstate

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xkilldash9x/franz/api/schemas"
	"github.com/xkilldash9x/franz/internal/normalizer"
)

// NoSequence marks an unset pending or annotated sequence.
const NoSequence = -1

var (
	// ErrSequenceMismatch is returned when a submission does not target the
	// pending sequence.
	ErrSequenceMismatch = errors.New("seq mismatch")
	// ErrImageTooShort is returned when a submitted image is below the
	// configured minimum length.
	ErrImageTooShort = errors.New("image_b64 too short")
)

// MismatchError carries both sides of a rejected submission.
type MismatchError struct {
	Got      int
	Expected int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("seq mismatch: got %d expected %d", e.Got, e.Expected)
}

func (e *MismatchError) Unwrap() error { return ErrSequenceMismatch }

// signal is a gate that stays set until cleared or consumed by a waiter.
type signal chan struct{}

func newSignal() signal { return make(signal, 1) }

func (s signal) set() {
	select {
	case s <- struct{}{}:
	default:
	}
}

func (s signal) clear() {
	select {
	case <-s:
	default:
	}
}

func (s signal) wait(ctx context.Context) error {
	select {
	case <-s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State is the shared turn record.
type State struct {
	mu sync.Mutex

	phase             schemas.Phase
	err               string
	turn              int
	msgID             int
	pendingSequence   int
	annotatedSequence int
	rawImage          string
	annotatedImage    string
	observation       string
	bboxes            []schemas.BoundingBox
	actions           []schemas.Action
	rawModelText      string
	pendingModelText  string

	minImageLen int

	workAvailable       signal
	annotationAvailable signal
}

// New returns a State in the init phase. Submitted images shorter than
// minImageLen are rejected.
func New(minImageLen int) *State {
	return &State{
		phase:               schemas.PhaseInit,
		pendingSequence:     NoSequence,
		annotatedSequence:   NoSequence,
		bboxes:              []schemas.BoundingBox{},
		actions:             []schemas.Action{},
		minImageLen:         minImageLen,
		workAvailable:       newSignal(),
		annotationAvailable: newSignal(),
	}
}

// Snapshot returns a consistent copy of the record. The slices are copies.
func (s *State) Snapshot() schemas.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errText *string
	if s.err != "" {
		e := s.err
		errText = &e
	}
	return schemas.Snapshot{
		Phase:        s.phase,
		Error:        errText,
		Turn:         s.turn,
		MsgID:        s.msgID,
		PendingSeq:   s.pendingSequence,
		AnnotatedSeq: s.annotatedSequence,
		RawB64:       s.rawImage,
		BBoxes:       append([]schemas.BoundingBox{}, s.bboxes...),
		Actions:      append([]schemas.Action{}, s.actions...),
		Observation:  s.observation,
		VLMJSON:      s.rawModelText,
	}
}

// SetPhase records the engine phase and its error text.
func (s *State) SetPhase(phase schemas.Phase, errText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	s.err = errText
}

// Phase returns the current phase.
func (s *State) Phase() schemas.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// QueueModelText stores text for the engine's next turn and wakes it.
func (s *State) QueueModelText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingModelText = text
	s.workAvailable.set()
}

// Inject is the external entry point for model text. The last writer before
// the engine consumes the text wins.
func (s *State) Inject(text string) {
	s.QueueModelText(text)
}

// TakeModelText atomically reads and clears the pending text and the
// work-available signal.
func (s *State) TakeModelText() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := s.pendingModelText
	s.pendingModelText = ""
	s.workAvailable.clear()
	return text
}

// Turn returns the current turn counter.
func (s *State) Turn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.turn
}

// BeginTurn increments the turn counter and returns the new value.
func (s *State) BeginTurn() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turn++
	return s.turn
}

// PublishModelOutput stores the normalized output of rawText for display.
func (s *State) PublishModelOutput(rawText string, res normalizer.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawModelText = rawText
	s.observation = res.Observation
	s.bboxes = append([]schemas.BoundingBox{}, res.BBoxes...)
	s.actions = append([]schemas.Action{}, res.Actions...)
	s.msgID++
}

// PublishCapture stores the raw screenshot for turn and opens the sequence
// for annotation. Any previously accepted annotation is discarded.
func (s *State) PublishCapture(turn int, rawB64 string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rawImage = rawB64
	s.pendingSequence = turn
	s.annotatedSequence = NoSequence
	s.annotatedImage = ""
	s.annotationAvailable.clear()
}

// SubmitAnnotation accepts an annotated image for the pending sequence. The
// check, the store and the signal happen in one critical section, so racing
// submissions for the same sequence are all accepted and the engine is woken
// once. A mismatch is reported before a short image.
func (s *State) SubmitAnnotation(seq int, imageB64 string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq != s.pendingSequence || seq == NoSequence {
		return &MismatchError{Got: seq, Expected: s.pendingSequence}
	}
	if len(imageB64) < s.minImageLen {
		return ErrImageTooShort
	}
	s.annotatedImage = imageB64
	s.annotatedSequence = seq
	s.annotationAvailable.set()
	return nil
}

// PendingSequence returns the sequence currently open for annotation.
func (s *State) PendingSequence() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingSequence
}

// AnnotatedImage returns the accepted image and its sequence.
func (s *State) AnnotatedImage() (string, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.annotatedImage, s.annotatedSequence
}

// WaitForWork blocks until model text is queued or ctx is done.
func (s *State) WaitForWork(ctx context.Context) error {
	return s.workAvailable.wait(ctx)
}

// WaitForAnnotation blocks until an annotation is accepted or ctx is done.
func (s *State) WaitForAnnotation(ctx context.Context) error {
	return s.annotationAvailable.wait(ctx)
}
