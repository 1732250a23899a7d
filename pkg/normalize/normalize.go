// Package normalize turns the free-form reply of a vision model into an
// AnalysisResult.
//
// Replies are tried as strict JSON first (after removing a markdown fence),
// then as the outermost {...} block of a sanitized reply, and finally as
// prose through keyword heuristics. Normalize never fails.
package normalize

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/menta2k/waste-analyzer/pkg/types"
)

// Normalizer converts raw model text into results.
type Normalizer struct {
	heur  Heuristics
	match matchers
}

// New creates a Normalizer. Empty keyword sets fall back to Default.
func New(h Heuristics) *Normalizer {
	h = h.withDefaults()
	return &Normalizer{heur: h, match: compileMatchers(h)}
}

var std = New(Default())

// Normalize uses the default heuristics.
func Normalize(raw string) types.AnalysisResult {
	return std.Normalize(raw)
}

// Normalize parses raw model text. The returned result always has a valid
// shape; the items carry no CO2 value yet.
func (n *Normalizer) Normalize(raw string) types.AnalysisResult {
	text := strings.TrimSpace(raw)
	if text == "" {
		return types.Empty()
	}

	if v, ok := decode(StripFences(text)); ok {
		return n.resolve(v, text)
	}
	log.Debug().Int("length", len(text)).Msg("reply is not strict JSON, salvaging")

	if block, ok := outerObject(Sanitize(text)); ok {
		if v, ok := decode(block); ok {
			return n.resolve(v, text)
		}
	}
	log.Debug().Msg("no JSON recovered, falling back to heuristic extraction")

	return n.extract(text)
}

func (n *Normalizer) resolve(v any, text string) types.AnalysisResult {
	switch val := v.(type) {
	case string:
		return n.extract(val)
	case []any:
		return n.fromList(val)
	case map[string]any:
		if raw, ok := val["items"]; ok {
			if list, ok := raw.([]any); ok {
				return n.fromList(list)
			}
		}
		item := n.item(val)
		if n.isSentinel(item) {
			return types.Empty()
		}
		return types.Single(item)
	default:
		return n.extract(text)
	}
}

func (n *Normalizer) fromList(list []any) types.AnalysisResult {
	items := make([]types.DetectedItem, 0, len(list))
	for _, el := range list {
		m, ok := el.(map[string]any)
		if !ok {
			continue
		}
		item := n.item(m)
		if n.isSentinel(item) {
			continue
		}
		items = append(items, item)
	}
	return types.Multiple(items)
}

func (n *Normalizer) item(m map[string]any) types.DetectedItem {
	item := types.DetectedItem{
		Object:               str(m, "object", "name", "item", "label"),
		Material:             str(m, "material"),
		DisposalInstructions: str(m, "disposal_instructions", "disposalInstructions", "disposal"),
		Description:          str(m, "description_info", "description", "descriptionInfo"),
	}
	if item.Object == "" {
		item.Object = "Unknown item"
	}
	if item.Material == "" {
		item.Material = "Unknown"
	}
	if item.Description == "" {
		item.Description = "No description available"
	}
	if p, ok := num(m, "points_earned", "pointsEarned", "points"); ok {
		item.PointsEarned = types.ClampPoints(p)
	}
	if b, ok := box(m, "bbox", "boundingBox", "bounding_box", "box"); ok {
		b = b.Clamp()
		item.BoundingBox = &b
	}
	return item
}

func (n *Normalizer) isSentinel(item types.DetectedItem) bool {
	o := strings.ToLower(strings.TrimSpace(item.Object))
	switch o {
	case "none", "n/a", "nothing":
		return true
	}
	for _, phrase := range n.heur.NothingFound {
		if phrase != "" && strings.HasPrefix(o, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}

// StripFences removes a surrounding ``` or ```json fence.
func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.Index(text, "\n"); nl >= 0 && !strings.ContainsAny(text[:nl], "{[") {
		text = text[nl+1:]
	} else if len(text) >= 4 && strings.EqualFold(text[:4], "json") {
		text = text[4:]
	}
	text = strings.TrimSpace(text)
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}

var (
	reBlockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	reLineComment  = regexp.MustCompile(`(?m)(^|[\s,{\[])//[^\n]*$`)
	reTrailing     = regexp.MustCompile(`,(\s*[}\]])`)
)

// Sanitize strips fences, comments and trailing commas that models tend to
// put around JSON.
func Sanitize(raw string) string {
	raw = StripFences(raw)
	raw = strings.Trim(raw, "`")
	raw = reBlockComment.ReplaceAllString(raw, "")
	raw = reLineComment.ReplaceAllString(raw, "$1")
	raw = reTrailing.ReplaceAllString(raw, "$1")
	return strings.TrimSpace(raw)
}

// outerObject returns the text from the first '{' to the last '}'.
func outerObject(text string) (string, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return "", false
	}
	return text[start : end+1], true
}

func decode(text string) (any, bool) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, false
	}
	if dec.More() {
		return nil, false
	}
	return v, true
}

func str(m map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := m[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}

func num(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if f, ok := toFloat(m[k]); ok {
			return f, true
		}
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case json.Number:
		x, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = x
	case float64:
		f = val
	case string:
		x, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(val), "%"), 64)
		if err != nil {
			return 0, false
		}
		f = x
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func box(m map[string]any, keys ...string) (types.BoundingBox, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case []any:
			if len(v) != 4 {
				continue
			}
			var vals [4]float64
			ok := true
			for i, el := range v {
				if vals[i], ok = toFloat(el); !ok {
					break
				}
			}
			if ok {
				return types.BoundingBox{X: vals[0], Y: vals[1], W: vals[2], H: vals[3]}, true
			}
		case map[string]any:
			x, okX := num(v, "x")
			y, okY := num(v, "y")
			w, okW := num(v, "w", "width")
			h, okH := num(v, "h", "height")
			if okX && okY && okW && okH {
				return types.BoundingBox{X: x, Y: y, W: w, H: h}, true
			}
		}
	}
	return types.BoundingBox{}, false
}
