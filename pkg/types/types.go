package types

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// NoGarbageFound is the wire form of an empty analysis result.
const NoGarbageFound = "No garbage found"

// MaxItemPoints caps the reward of a single item.
const MaxItemPoints = 1000

// ClampPoints rounds a model supplied reward into [0, MaxItemPoints].
// NaN yields 0.
func ClampPoints(v float64) int {
	if !(v > 0) {
		return 0
	}
	return int(math.Round(math.Min(v, MaxItemPoints)))
}

// BoundingBox locates an item as percentages (0-100) of the source image.
// X and Y are the top-left corner.
type BoundingBox struct {
	X float64
	Y float64
	W float64
	H float64
}

// FullFrame covers the whole image.
var FullFrame = BoundingBox{X: 0, Y: 0, W: 100, H: 100}

// Clamp returns the box limited to the image: X and Y in [0,100] and the
// extent cut so the box never leaves the frame.
func (b BoundingBox) Clamp() BoundingBox {
	x := clamp(b.X, 0, 100)
	y := clamp(b.Y, 0, 100)
	return BoundingBox{
		X: x,
		Y: y,
		W: clamp(b.W, 0, 100-x),
		H: clamp(b.H, 0, 100-y),
	}
}

// Valid reports whether the box has finite components and a positive area.
func (b BoundingBox) Valid() bool {
	for _, v := range []float64{b.X, b.Y, b.W, b.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.W > 0 && b.H > 0
}

// ClipPathInset renders the box as a CSS clip-path inset() so a client can
// show the item without a pixel crop.
func (b BoundingBox) ClipPathInset() string {
	c := b.Clamp()
	return fmt.Sprintf("inset(%s%% %s%% %s%% %s%%)",
		fmtPct(c.Y), fmtPct(100-c.X-c.W), fmtPct(100-c.Y-c.H), fmtPct(c.X))
}

// MarshalJSON encodes the box as [x, y, w, h].
func (b BoundingBox) MarshalJSON() ([]byte, error) {
	return json.Marshal([4]float64{b.X, b.Y, b.W, b.H})
}

// UnmarshalJSON accepts [x, y, w, h].
func (b *BoundingBox) UnmarshalJSON(data []byte) error {
	var v []float64
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if len(v) != 4 {
		return fmt.Errorf("bounding box needs 4 values, got %d", len(v))
	}
	*b = BoundingBox{X: v[0], Y: v[1], W: v[2], H: v[3]}
	return nil
}

// Co2Level is a categorical estimate of the environmental impact of an item.
type Co2Level string

const (
	Co2VeryHigh Co2Level = "Very High"
	Co2High     Co2Level = "High"
	Co2Medium   Co2Level = "Medium"
	Co2Low      Co2Level = "Low"
	Co2VeryLow  Co2Level = "Very Low"
	Co2Unknown  Co2Level = "Unknown"
)

// EncodedImage is an encoded image buffer. It travels as a data: URL in JSON.
type EncodedImage struct {
	MIMEType string
	Data     []byte
}

// DataURL returns the image as a data: URL.
func (e EncodedImage) DataURL() string {
	return "data:" + e.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(e.Data)
}

func (e EncodedImage) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.DataURL())
}

func (e *EncodedImage) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return fmt.Errorf("not a data URL")
	}
	mime, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return fmt.Errorf("data URL is not base64")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode data URL: %w", err)
	}
	*e = EncodedImage{MIMEType: mime, Data: raw}
	return nil
}

// DetectedItem is one waste object identified in an image.
type DetectedItem struct {
	Object               string        `json:"object"`
	Material             string        `json:"material"`
	DisposalInstructions string        `json:"disposalInstructions"`
	PointsEarned         int           `json:"pointsEarned"`
	Description          string        `json:"description"`
	BoundingBox          *BoundingBox  `json:"boundingBox,omitempty"`
	Co2Value             Co2Level      `json:"co2Value"`
	CroppedImage         *EncodedImage `json:"croppedImage,omitempty"`
	// Heuristic marks items recovered from prose rather than JSON. Treat as
	// low confidence.
	Heuristic bool `json:"heuristic,omitempty"`
}

// Kind distinguishes the three result shapes.
type Kind int

const (
	KindEmpty Kind = iota
	KindSingle
	KindMultiple
)

func (k Kind) String() string {
	switch k {
	case KindSingle:
		return "single"
	case KindMultiple:
		return "multiple"
	default:
		return "empty"
	}
}

// AnalysisResult is the envelope returned for one analyzed image.
//
// Exactly one of the shapes is populated: nothing for KindEmpty, Item for
// KindSingle and Items (two or more) for KindMultiple.
type AnalysisResult struct {
	Kind     Kind
	Item     *DetectedItem
	Items    []DetectedItem
	ImageURL string
	// Error carries the failure message of a degraded result.
	Error string
}

// Empty returns the "no garbage found" result.
func Empty() AnalysisResult {
	return AnalysisResult{Kind: KindEmpty}
}

// Single wraps one item.
func Single(item DetectedItem) AnalysisResult {
	return AnalysisResult{Kind: KindSingle, Item: &item}
}

// Multiple wraps a list of items, collapsing to Single or Empty when the
// list is too short for the multi-item shape.
func Multiple(items []DetectedItem) AnalysisResult {
	switch len(items) {
	case 0:
		return Empty()
	case 1:
		return Single(items[0])
	}
	return AnalysisResult{Kind: KindMultiple, Items: items}
}

// DetectedItems returns the items of the result in order.
func (r AnalysisResult) DetectedItems() []DetectedItem {
	switch r.Kind {
	case KindSingle:
		if r.Item != nil {
			return []DetectedItem{*r.Item}
		}
	case KindMultiple:
		return r.Items
	}
	return nil
}

func (r AnalysisResult) TotalItems() int {
	return len(r.DetectedItems())
}

func (r AnalysisResult) TotalPoints() int {
	total := 0
	for _, it := range r.DetectedItems() {
		total += min(max(it.PointsEarned, 0), MaxItemPoints)
	}
	return total
}

// WithoutCrops returns a copy of r with every cropped image removed. The
// receiver is not modified.
func (r AnalysisResult) WithoutCrops() AnalysisResult {
	if r.Item != nil {
		item := *r.Item
		item.CroppedImage = nil
		r.Item = &item
	}
	if len(r.Items) > 0 {
		items := make([]DetectedItem, len(r.Items))
		copy(items, r.Items)
		for i := range items {
			items[i].CroppedImage = nil
		}
		r.Items = items
	}
	return r
}

// itemJSON adds the CSS clip-path of the box so a client can show the item
// without a pixel crop.
type itemJSON struct {
	DetectedItem
	ClipPath string `json:"clipPath,omitempty"`
}

func toItemJSON(it DetectedItem) itemJSON {
	out := itemJSON{DetectedItem: it}
	if it.BoundingBox != nil {
		out.ClipPath = it.BoundingBox.ClipPathInset()
	}
	return out
}

type singleJSON struct {
	itemJSON
	ImageURL        string `json:"imageUrl"`
	IsMultipleItems bool   `json:"isMultipleItems"`
	Error           string `json:"error,omitempty"`
}

type multipleJSON struct {
	Items           []itemJSON     `json:"items"`
	TotalItems      int            `json:"totalItems"`
	TotalPoints     int            `json:"totalPoints"`
	ImageURL        string         `json:"imageUrl"`
	IsMultipleItems bool           `json:"isMultipleItems"`
}

func (r AnalysisResult) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case KindSingle:
		if r.Item == nil {
			return json.Marshal(NoGarbageFound)
		}
		return json.Marshal(singleJSON{itemJSON: toItemJSON(*r.Item), ImageURL: r.ImageURL, Error: r.Error})
	case KindMultiple:
		items := make([]itemJSON, len(r.Items))
		for i, it := range r.Items {
			items[i] = toItemJSON(it)
		}
		return json.Marshal(multipleJSON{
			Items:           items,
			TotalItems:      r.TotalItems(),
			TotalPoints:     r.TotalPoints(),
			ImageURL:        r.ImageURL,
			IsMultipleItems: true,
		})
	default:
		return json.Marshal(NoGarbageFound)
	}
}

func (r *AnalysisResult) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*r = Empty()
		return nil
	}
	var shape struct {
		IsMultipleItems bool `json:"isMultipleItems"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}
	if shape.IsMultipleItems {
		var m multipleJSON
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		items := make([]DetectedItem, len(m.Items))
		for i, it := range m.Items {
			items[i] = it.DetectedItem
		}
		*r = AnalysisResult{Kind: KindMultiple, Items: items, ImageURL: m.ImageURL}
		return nil
	}
	var s singleJSON
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	item := s.DetectedItem
	*r = AnalysisResult{Kind: KindSingle, Item: &item, ImageURL: s.ImageURL, Error: s.Error}
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func fmtPct(v float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.2f", v), "0"), ".")
}
