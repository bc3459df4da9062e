package config

// DefaultSystemPrompt instructs the model to answer with the single JSON object
// the normalizer understands.
const DefaultSystemPrompt = `You are controlling a browser page via a vision loop.
You receive an annotated screenshot where:
  - Orange heatmap = regions where actions were previously executed
  - Blue heatmap = regions you previously marked as interesting

You MUST respond with a single JSON object, no other text.
Schema:
{
  "observation": "<your observations, updated world model, max 200 words>",
  "bboxes": [
    {"x1": int, "y1": int, "x2": int, "y2": int}
  ],
  "actions": [
    {"name": "click"|"right_click"|"double_click"|"drag"|"move", "x1": int, "y1": int, "x2": int, "y2": int}
  ]
}

Rules:
- All coordinates are normalized ints in [0..1000] relative to the current screenshot crop. (0,0)=top-left, (1000,1000)=bottom-right, (500,500)=center.
- x2/y2 are only required for drag.
- At most 8 bboxes, at most 6 actions.
- Never fabricate feedback. Only describe what you see.
- Output ONLY the JSON object, nothing else.
`

// DefaultBootText is injected as the first model output so the loop has
// something to execute before any inference has happened.
const DefaultBootText = `{
  "observation": "I observe the page. There is a canvas area in the center of the screen. I will begin by clicking the center (500,500) to focus it, then drawing a shape.",
  "bboxes": [
    {"x1": 200, "y1": 150, "x2": 800, "y2": 600}
  ],
  "actions": [
    {"name": "click", "x1": 500, "y1": 500},
    {"name": "drag", "x1": 300, "y1": 300, "x2": 700, "y2": 300},
    {"name": "drag", "x1": 700, "y1": 300, "x2": 700, "y2": 600},
    {"name": "drag", "x1": 700, "y1": 600, "x2": 300, "y2": 600},
    {"name": "drag", "x1": 300, "y1": 600, "x2": 300, "y2": 300}
  ]
}
`

// DefaultUIConfig returns the overlay styling echoed to the annotation panel.
// The server treats it as opaque.
func DefaultUIConfig() map[string]interface{} {
	return map[string]interface{}{
		"executed_heat": map[string]interface{}{
			"enabled":      true,
			"radius_scale": 0.22,
			"trail_turns":  1,
			"trail_shrink": 1.0,
			"stops": []interface{}{
				[]interface{}{0.00, "rgba(255,40,0,0.88)"},
				[]interface{}{0.25, "rgba(255,80,0,0.70)"},
				[]interface{}{0.55, "rgba(255,120,0,0.35)"},
				[]interface{}{1.00, "rgba(255,160,0,0.00)"},
			},
		},
		"bbox_heat": map[string]interface{}{
			"enabled":      true,
			"border":       "rgba(80,160,255,0.75)",
			"border_width": 2,
			"fill_stops": []interface{}{
				[]interface{}{0.00, "rgba(80,160,255,0.28)"},
				[]interface{}{0.50, "rgba(80,160,255,0.12)"},
				[]interface{}{1.00, "rgba(80,160,255,0.00)"},
			},
		},
	}
}
