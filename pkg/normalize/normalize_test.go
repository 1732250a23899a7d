package normalize

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/waste-analyzer/pkg/types"
)

const canJSON = `{"object":"Aluminum Can","material":"Aluminum","disposal_instructions":"Rinse and recycle","points_earned":10,"description_info":"Recyclable metal","bbox":[10,20,30,40]}`

func TestNormalizeSingleItem(t *testing.T) {
	res := Normalize(canJSON)

	require.Equal(t, types.KindSingle, res.Kind)
	want := types.DetectedItem{
		Object:               "Aluminum Can",
		Material:             "Aluminum",
		DisposalInstructions: "Rinse and recycle",
		PointsEarned:         10,
		Description:          "Recyclable metal",
		BoundingBox:          &types.BoundingBox{X: 10, Y: 20, W: 30, H: 40},
	}
	if diff := cmp.Diff(want, *res.Item); diff != "" {
		t.Errorf("item mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalizeFencedJSON(t *testing.T) {
	for _, raw := range []string{
		"```json\n" + canJSON + "\n```",
		"```\n" + canJSON + "\n```",
		"```json" + canJSON + "```",
	} {
		res := Normalize(raw)
		require.Equal(t, types.KindSingle, res.Kind, raw)
		assert.Equal(t, "Aluminum Can", res.Item.Object)
		assert.False(t, res.Item.Heuristic)
	}
}

func TestNormalizeSalvagesEmbeddedJSON(t *testing.T) {
	raw := "Sure! Here is the analysis:\n" + canJSON + "\nLet me know if you need more."
	res := Normalize(raw)
	require.Equal(t, types.KindSingle, res.Kind)
	assert.Equal(t, "Aluminum Can", res.Item.Object)
	assert.Equal(t, 10, res.Item.PointsEarned)
}

func TestNormalizeSalvagesCommentsAndTrailingCommas(t *testing.T) {
	raw := `{
  "object": "Plastic Bottle", // the main item
  "material": "Plastic",
  /* model note */
  "points_earned": 5,
  "bbox": [5, 5, 20, 60],
}`
	res := Normalize(raw)
	require.Equal(t, types.KindSingle, res.Kind)
	assert.Equal(t, "Plastic Bottle", res.Item.Object)
	assert.Equal(t, 5, res.Item.PointsEarned)
}

func TestNormalizeMultipleItems(t *testing.T) {
	raw := `{"items":[
		{"object":"Plastic Bottle","material":"Plastic","disposal_instructions":"Recycle","points_earned":5,"description_info":"PET","bbox":[0,0,50,50]},
		{"object":"Soda Can","material":"Aluminum","disposal_instructions":"Recycle","points_earned":8,"description_info":"Metal","bbox":[50,50,50,50]},
		{"object":"Paper Cup","material":"Paper","disposal_instructions":"Compost","points_earned":3,"description_info":"Lined","bbox":[20,20,10,10]}
	]}`
	res := Normalize(raw)
	require.Equal(t, types.KindMultiple, res.Kind)
	assert.Equal(t, 3, res.TotalItems())
	assert.Equal(t, 16, res.TotalPoints())
	assert.Equal(t, "Soda Can", res.Items[1].Object)
}

func TestNormalizeUnwrapsSingleElementItems(t *testing.T) {
	wrapped := Normalize(`{"items":[` + canJSON + `]}`)
	plain := Normalize(canJSON)

	require.Equal(t, types.KindSingle, wrapped.Kind)
	if diff := cmp.Diff(plain.Item, wrapped.Item); diff != "" {
		t.Errorf("unwrapped item differs (-plain +wrapped):\n%s", diff)
	}
}

func TestNormalizeLegacyArray(t *testing.T) {
	res := Normalize(`[{"object":"Bag","material":"Plastic","points_earned":2},{"object":"Jar","material":"Glass","points_earned":4}]`)
	require.Equal(t, types.KindMultiple, res.Kind)
	assert.Equal(t, 6, res.TotalPoints())
}

func TestNormalizeSentinels(t *testing.T) {
	tests := map[string]string{
		"empty items":     `{"items":[]}`,
		"sentinel object": `{"object":"No waste found","material":"N/A","disposal_instructions":"N/A","points_earned":0,"description_info":"No waste detected","bbox":[0,0,0,0]}`,
		"json string":     `"No garbage found"`,
		"empty array":     `[]`,
		"prose":           "No waste item is visible in this image.",
		"blank":           "   ",
		"only sentinels":  `{"items":[{"object":"none"},{"object":"No waste found"}]}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			res := Normalize(raw)
			assert.Equal(t, types.KindEmpty, res.Kind)
			assert.Equal(t, 0, res.TotalItems())
		})
	}
}

func TestNormalizeDropsSentinelEntriesFromItems(t *testing.T) {
	res := Normalize(`{"items":[{"object":"No waste found"},` + canJSON + `]}`)
	require.Equal(t, types.KindSingle, res.Kind)
	assert.Equal(t, "Aluminum Can", res.Item.Object)
}

func TestNormalizeHeuristicExtraction(t *testing.T) {
	raw := `I can see **a crumpled plastic water bottle** lying on the grass. ` +
		`It should be rinsed and placed in the recycling bin. Plastic takes centuries to break down.`
	res := Normalize(raw)

	require.Equal(t, types.KindSingle, res.Kind)
	item := res.Item
	assert.True(t, item.Heuristic)
	assert.Equal(t, "crumpled plastic water bottle", item.Object)
	assert.Equal(t, "plastic", item.Material)
	assert.Equal(t, 4, item.PointsEarned)
	assert.Equal(t, "It should be rinsed and placed in the recycling bin.", item.DisposalInstructions)
	require.NotNil(t, item.BoundingBox)
	assert.Equal(t, types.BoundingBox{X: 10, Y: 10, W: 80, H: 80}, *item.BoundingBox)
	assert.True(t, len([]rune(item.Description)) <= 153)
	assert.NotContains(t, item.Description, "**")
}

func TestNormalizeHeuristicDefaults(t *testing.T) {
	res := Normalize("The picture is blurry and hard to interpret")
	require.Equal(t, types.KindSingle, res.Kind)
	assert.Equal(t, "Unknown item", res.Item.Object)
	assert.Equal(t, "Unknown", res.Item.Material)
	assert.Equal(t, "Place in appropriate waste bin", res.Item.DisposalInstructions)
	assert.Equal(t, 3, res.Item.PointsEarned)
}

func TestNormalizeNeverPanics(t *testing.T) {
	inputs := []string{
		`{"object":"Bottle"`,
		`{{{{`,
		`}{`,
		"```json\n{\"items\": [\n```",
		`{"items": [1, "two", null]}`,
		`{"items": "not a list"}`,
		`null`,
		`42`,
		`{"object": 17, "points_earned": "7", "bbox": "[1,2,3,4]"}`,
		`{"object":"Can","points_earned":-5,"bbox":[-10, 120, 300, 40]}`,
		`{"object":"Can","points_earned":1e30}`,
		`{"object":"Can","points_earned":"9.3e18"}`,
		`{"object":"Can","points_earned":"NaN"}`,
		`{"items":[{"object":"Can","points_earned":9e18},{"object":"Jar","points_earned":9e18}]}`,
	}
	for _, raw := range inputs {
		assert.NotPanics(t, func() {
			res := Normalize(raw)
			switch res.Kind {
			case types.KindEmpty:
			case types.KindSingle:
				require.NotNil(t, res.Item)
				assert.GreaterOrEqual(t, res.Item.PointsEarned, 0)
			case types.KindMultiple:
				assert.GreaterOrEqual(t, len(res.Items), 2)
			}
			assert.GreaterOrEqual(t, res.TotalPoints(), 0)
		}, raw)
	}
}

func TestNormalizeClampsBoxAndPoints(t *testing.T) {
	res := Normalize(`{"object":"Can","points_earned":-5,"bbox":[-10, 95, 300, 40]}`)
	require.Equal(t, types.KindSingle, res.Kind)
	assert.Equal(t, 0, res.Item.PointsEarned)
	assert.Equal(t, types.BoundingBox{X: 0, Y: 95, W: 100, H: 5}, *res.Item.BoundingBox)

	for _, raw := range []string{
		`{"object":"Can","points_earned":1e30}`,
		`{"object":"Can","points_earned":"9.3e18"}`,
	} {
		res := Normalize(raw)
		require.Equal(t, types.KindSingle, res.Kind, raw)
		assert.Equal(t, types.MaxItemPoints, res.Item.PointsEarned, raw)
	}

	res = Normalize(`{"items":[{"object":"Can","points_earned":9e18},{"object":"Jar","points_earned":9e18}]}`)
	require.Equal(t, types.KindMultiple, res.Kind)
	assert.Equal(t, 2*types.MaxItemPoints, res.TotalPoints())
}

func TestNormalizeFlexibleFields(t *testing.T) {
	raw := `{"object":"Cup","disposalInstructions":"Compost","pointsEarned":"6",` +
		`"description":"Paper cup","boundingBox":{"x":1,"y":2,"width":3,"height":4}}`
	res := Normalize(raw)
	require.Equal(t, types.KindSingle, res.Kind)
	assert.Equal(t, "Compost", res.Item.DisposalInstructions)
	assert.Equal(t, 6, res.Item.PointsEarned)
	assert.Equal(t, "Paper cup", res.Item.Description)
	assert.Equal(t, types.BoundingBox{X: 1, Y: 2, W: 3, H: 4}, *res.Item.BoundingBox)
}

func TestCustomHeuristics(t *testing.T) {
	n := New(Heuristics{
		ObjectNouns: []string{"straw"},
		Materials:   []string{"bamboo"},
	})
	res := n.Normalize(`Found a "bamboo straw" near the sink.`)
	require.Equal(t, types.KindSingle, res.Kind)
	assert.Equal(t, "bamboo straw", res.Item.Object)
	assert.Equal(t, "bamboo", res.Item.Material)
	assert.Equal(t, "Place in appropriate waste bin", res.Item.DisposalInstructions)
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, StripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, StripFences("```JSON{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, StripFences(`{"a":1}`))
}

func TestSanitizeKeepsURLs(t *testing.T) {
	out := Sanitize(`{"source": "http://example.com/a", // note
"b": [1,2,],}`)
	assert.Contains(t, out, "http://example.com/a")
	assert.NotContains(t, out, "note")
	assert.NotContains(t, out, ",]")
}
