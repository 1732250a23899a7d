// Package estimate maps detected items to a categorical CO2 impact level and
// a points reward.
package estimate

import (
	"strings"

	"github.com/menta2k/waste-analyzer/pkg/types"
)

type entry struct {
	keyword string
	level   types.Co2Level
}

// table is scanned in order and the first keyword contained in the text wins.
var table = []entry{
	{"styrofoam", types.Co2VeryHigh},
	{"polystyrene", types.Co2VeryHigh},
	{"battery", types.Co2VeryHigh},
	{"electronic", types.Co2VeryHigh},
	{"mylar", types.Co2High},
	{"balloon", types.Co2High},
	{"plastic", types.Co2High},
	{"nylon", types.Co2High},
	{"aluminum", types.Co2Medium},
	{"aluminium", types.Co2Medium},
	{"foil", types.Co2Medium},
	{"metal", types.Co2Medium},
	{"steel", types.Co2Medium},
	{"tin can", types.Co2Medium},
	{"glass", types.Co2Medium},
	{"cardboard", types.Co2Low},
	{"paper", types.Co2Low},
	{"textile", types.Co2Low},
	{"fabric", types.Co2Low},
	{"wood", types.Co2VeryLow},
	{"organic", types.Co2VeryLow},
	{"food", types.Co2VeryLow},
	{"compost", types.Co2VeryLow},
}

// Estimate returns the impact level for an item. The object name is checked
// before the material; unknown combinations yield types.Co2Unknown.
func Estimate(object, material string) types.Co2Level {
	if lvl, ok := lookup(object); ok {
		return lvl
	}
	if lvl, ok := lookup(material); ok {
		return lvl
	}
	return types.Co2Unknown
}

// EstimateItem is Estimate applied to an item's fields.
func EstimateItem(item types.DetectedItem) types.Co2Level {
	return Estimate(item.Object, item.Material)
}

// Attach sets Co2Value on every item in place.
func Attach(items []types.DetectedItem) {
	for i := range items {
		items[i].Co2Value = EstimateItem(items[i])
	}
}

// PointsForMaterial is the reward given when the model did not state one.
func PointsForMaterial(material string) int {
	m := strings.ToLower(material)
	switch {
	case strings.Contains(m, "glass"):
		return 7
	case strings.Contains(m, "aluminum"), strings.Contains(m, "metal"):
		return 6
	case strings.Contains(m, "plastic"):
		return 4
	default:
		return 3
	}
}

func lookup(text string) (types.Co2Level, bool) {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return "", false
	}
	for _, e := range table {
		if strings.Contains(text, e.keyword) {
			return e.level, true
		}
	}
	return "", false
}
