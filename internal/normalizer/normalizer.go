// Package normalizer turns free-form model output into the observation, bounding
// boxes and actions the turn engine works with. It never fails: text that
// cannot be decoded becomes the observation and both lists stay empty.
package normalizer

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/franz/api/schemas"
)

// Numbers decode as json.Number so that values outside float64 range reach
// coord instead of failing the whole document.
var jsonAPI = jsoniter.Config{
	EscapeHTML:             true,
	SortMapKeys:            true,
	ValidateJsonRawMessage: true,
	UseNumber:              true,
}.Froze()

// Outcome records which decoding strategy produced a Result.
type Outcome int

const (
	// OutcomeStrict means the whole text was a JSON object.
	OutcomeStrict Outcome = iota
	// OutcomeExtracted means the object was found between the first '{' and
	// the last '}' of otherwise noisy text.
	OutcomeExtracted
	// OutcomeFallback means no object could be decoded.
	OutcomeFallback
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStrict:
		return "strict"
	case OutcomeExtracted:
		return "extracted"
	case OutcomeFallback:
		return "fallback"
	}
	return "unknown"
}

// Result is the normalized form of one model response. The slices are never nil.
type Result struct {
	Observation string
	BBoxes      []schemas.BoundingBox
	Actions     []schemas.Action
	Outcome     Outcome
}

// Normalize decodes raw model text. It is total.
func Normalize(raw string) Result {
	if obj, ok := decodeObject(raw); ok {
		return fromObject(obj, OutcomeStrict)
	}

	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start >= 0 && end > start {
		if obj, ok := decodeObject(raw[start : end+1]); ok {
			return fromObject(obj, OutcomeExtracted)
		}
	}

	return Result{
		Observation: raw,
		BBoxes:      []schemas.BoundingBox{},
		Actions:     []schemas.Action{},
		Outcome:     OutcomeFallback,
	}
}

// Serialize renders the canonical JSON form accepted by Normalize.
func Serialize(observation string, bboxes []schemas.BoundingBox, actions []schemas.Action) (string, error) {
	if bboxes == nil {
		bboxes = []schemas.BoundingBox{}
	}
	if actions == nil {
		actions = []schemas.Action{}
	}
	b, err := jsonAPI.Marshal(struct {
		Observation string                `json:"observation"`
		BBoxes      []schemas.BoundingBox `json:"bboxes"`
		Actions     []schemas.Action      `json:"actions"`
	}{observation, bboxes, actions})
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeObject(text string) (map[string]interface{}, bool) {
	var v interface{}
	if err := jsonAPI.UnmarshalFromString(text, &v); err != nil {
		return nil, false
	}
	obj, ok := v.(map[string]interface{})
	return obj, ok
}

func fromObject(obj map[string]interface{}, outcome Outcome) Result {
	res := Result{
		Observation: stringify(obj["observation"]),
		BBoxes:      []schemas.BoundingBox{},
		Actions:     []schemas.Action{},
		Outcome:     outcome,
	}

	for _, item := range asList(obj["bboxes"]) {
		b, ok := item.(map[string]interface{})
		if !ok || !hasKeys(b, "x1", "y1", "x2", "y2") {
			continue
		}
		res.BBoxes = append(res.BBoxes, schemas.BoundingBox{
			X1: coord(b["x1"]), Y1: coord(b["y1"]), X2: coord(b["x2"]), Y2: coord(b["y2"]),
		})
	}

	for _, item := range asList(obj["actions"]) {
		a, ok := item.(map[string]interface{})
		if !ok || !hasKeys(a, "x1", "y1") {
			continue
		}
		name, ok := a["name"]
		if !ok {
			if name, ok = a["kind"]; !ok {
				continue
			}
		}
		action := schemas.Action{
			Name: schemas.ActionKind(strings.ToLower(stringify(name))),
			X1:   coord(a["x1"]),
			Y1:   coord(a["y1"]),
		}
		if hasKeys(a, "x2", "y2") {
			x2, y2 := coord(a["x2"]), coord(a["y2"])
			action.X2, action.Y2 = &x2, &y2
		}
		res.Actions = append(res.Actions, action)
	}
	return res
}

func asList(v interface{}) []interface{} {
	list, _ := v.([]interface{})
	return list
}

func hasKeys(m map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		s, err := jsonAPI.MarshalToString(t)
		if err != nil {
			return ""
		}
		return s
	}
}

// coord coerces a decoded JSON value to an integer in [0,1000]. Numbers
// truncate toward zero, integer strings parse, booleans are 1 or 0, anything
// else is 0. A number too large for float64 is invalid and also yields 0.
func coord(v interface{}) int {
	var f float64
	switch t := v.(type) {
	case json.Number:
		n, err := strconv.ParseFloat(t.String(), 64)
		if err != nil || math.IsInf(n, 0) {
			return 0
		}
		f = n
	case float64:
		f = t
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0
		}
		return clamp(n)
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return 0
	}
	if math.IsNaN(f) {
		return 0
	}
	f = math.Trunc(f)
	if f <= 0 {
		return 0
	}
	if f >= schemas.CoordMax {
		return schemas.CoordMax
	}
	return int(f)
}

func clamp(n int) int {
	if n < 0 {
		return 0
	}
	if n > schemas.CoordMax {
		return schemas.CoordMax
	}
	return n
}
