package schemas

import "time"

// Phase names the turn engine's current position in the observe/act cycle.
type Phase string

const (
	PhaseInit             Phase = "init"
	PhaseBoot             Phase = "boot"
	PhaseWaitingInject    Phase = "waiting_inject"
	PhaseRunning          Phase = "running"
	PhaseExecuting        Phase = "executing"
	PhaseCapturing        Phase = "capturing"
	PhaseWaitingAnnotated Phase = "waiting_annotated"
	PhaseCallingVLM       Phase = "calling_vlm"
	PhaseError            Phase = "error"
	PhaseVLMError         Phase = "vlm_error"
)

// IsIdleFailure reports whether the engine parked itself after a failed turn.
// Only a fresh injection moves it out of these phases.
func (p Phase) IsIdleFailure() bool {
	return p == PhaseError || p == PhaseVLMError
}

// ActionKind enumerates the input primitives a model may request.
type ActionKind string

const (
	ActionClick       ActionKind = "click"
	ActionRightClick  ActionKind = "right_click"
	ActionDoubleClick ActionKind = "double_click"
	ActionDrag        ActionKind = "drag"
	ActionMove        ActionKind = "move"
)

// Canonical folds the spellings models commonly emit onto the enumerated kinds.
// Names are lower-cased by the normalizer, so camel-case variants arrive here
// as "rightclick" and "doubleclick".
func (k ActionKind) Canonical() ActionKind {
	switch k {
	case "rightclick", "right-click":
		return ActionRightClick
	case "doubleclick", "double-click", "dblclick":
		return ActionDoubleClick
	}
	return k
}

// CoordMax is the upper bound of the normalized coordinate space.
const CoordMax = 1000

// Action is one input primitive in normalized [0,1000] coordinates.
// X2/Y2 are only meaningful for drags and are nil when the model omitted them.
type Action struct {
	Name ActionKind `json:"name"`
	X1   int        `json:"x1"`
	Y1   int        `json:"y1"`
	X2   *int       `json:"x2,omitempty"`
	Y2   *int       `json:"y2,omitempty"`
}

// End returns the end point of the action, defaulting to the start point.
func (a Action) End() (int, int) {
	x, y := a.X1, a.Y1
	if a.X2 != nil {
		x = *a.X2
	}
	if a.Y2 != nil {
		y = *a.Y2
	}
	return x, y
}

// BoundingBox is a region the model marked as interesting. Corners are not
// checked for ordering.
type BoundingBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Image is a base64 encoded PNG screenshot.
type Image struct {
	B64        string    `json:"b64"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	CapturedAt time.Time `json:"captured_at"`
}

// Snapshot is a consistent copy of the turn state as served on /state.
type Snapshot struct {
	Phase        Phase         `json:"phase"`
	Error        *string       `json:"error"`
	Turn         int           `json:"turn"`
	MsgID        int           `json:"msg_id"`
	PendingSeq   int           `json:"pending_seq"`
	AnnotatedSeq int           `json:"annotated_seq"`
	RawB64       string        `json:"raw_b64"`
	BBoxes       []BoundingBox `json:"bboxes"`
	Actions      []Action      `json:"actions"`
	Observation  string        `json:"observation"`
	VLMJSON      string        `json:"vlm_json"`
}

// ErrorText returns the recorded error, or "" when there is none.
func (s Snapshot) ErrorText() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}

// EventType identifies a turn lifecycle event.
type EventType string

const (
	EventTurnCaptured  EventType = "turn.captured"
	EventTurnAnnotated EventType = "turn.annotated"
	EventTurnInferred  EventType = "turn.inferred"
	EventPhaseChanged  EventType = "phase.changed"
)

// TurnEvent is published by the engine at each turn milestone. Fields that do
// not apply to a given type are left empty.
type TurnEvent struct {
	Type        EventType     `json:"type"`
	Turn        int           `json:"turn"`
	Phase       Phase         `json:"phase,omitempty"`
	Error       string        `json:"error,omitempty"`
	Observation string        `json:"observation,omitempty"`
	BBoxes      []BoundingBox `json:"bboxes,omitempty"`
	Actions     []Action      `json:"actions,omitempty"`
	RawText     string        `json:"raw_text,omitempty"`
	ImageB64    string        `json:"image_b64,omitempty"`
	Timestamp   time.Time     `json:"timestamp"`
}
