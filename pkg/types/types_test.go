package types

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundingBoxClamp(t *testing.T) {
	tests := []struct {
		in, want BoundingBox
	}{
		{BoundingBox{10, 20, 30, 40}, BoundingBox{10, 20, 30, 40}},
		{BoundingBox{95, 0, 30, 100}, BoundingBox{95, 0, 5, 100}},
		{BoundingBox{-10, -5, 50, 50}, BoundingBox{0, 0, 50, 50}},
		{BoundingBox{150, 150, 10, 10}, BoundingBox{100, 100, 0, 0}},
		{BoundingBox{math.NaN(), 10, 10, 10}, BoundingBox{0, 10, 10, 10}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.Clamp())
	}
}

func TestBoundingBoxValid(t *testing.T) {
	assert.True(t, FullFrame.Valid())
	assert.False(t, BoundingBox{0, 0, 0, 10}.Valid())
	assert.False(t, BoundingBox{0, 0, 10, -1}.Valid())
	assert.False(t, BoundingBox{math.Inf(1), 0, 10, 10}.Valid())
}

func TestClipPathInset(t *testing.T) {
	assert.Equal(t, "inset(20% 60% 40% 10%)", BoundingBox{10, 20, 30, 40}.ClipPathInset())
	assert.Equal(t, "inset(0% 0% 0% 0%)", FullFrame.ClipPathInset())
	assert.Equal(t, "inset(12.5% 0% 0% 0.25%)", BoundingBox{0.25, 12.5, 200, 200}.ClipPathInset())
}

func TestBoundingBoxJSON(t *testing.T) {
	b, err := json.Marshal(BoundingBox{10, 20.5, 30, 40})
	require.NoError(t, err)
	assert.Equal(t, `[10,20.5,30,40]`, string(b))

	var got BoundingBox
	require.NoError(t, json.Unmarshal([]byte(`[1,2,3,4]`), &got))
	assert.Equal(t, BoundingBox{1, 2, 3, 4}, got)
	assert.Error(t, json.Unmarshal([]byte(`[1,2,3]`), &got))
}

func TestEncodedImageDataURL(t *testing.T) {
	e := EncodedImage{MIMEType: "image/jpeg", Data: []byte{0xff, 0xd8, 0xff}}
	assert.Equal(t, "data:image/jpeg;base64,/9j/", e.DataURL())

	b, err := json.Marshal(e)
	require.NoError(t, err)
	var back EncodedImage
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, e, back)

	assert.Error(t, json.Unmarshal([]byte(`"http://x/y.jpg"`), &back))
	assert.Error(t, json.Unmarshal([]byte(`"data:image/png,raw"`), &back))
}

func TestMultipleCollapses(t *testing.T) {
	assert.Equal(t, KindEmpty, Multiple(nil).Kind)

	one := Multiple([]DetectedItem{{Object: "Can"}})
	require.Equal(t, KindSingle, one.Kind)
	assert.Equal(t, "Can", one.Item.Object)

	two := Multiple([]DetectedItem{{Object: "Can", PointsEarned: 2}, {Object: "Cup", PointsEarned: 3}})
	assert.Equal(t, KindMultiple, two.Kind)
	assert.Equal(t, 2, two.TotalItems())
	assert.Equal(t, 5, two.TotalPoints())
}

func TestEmptyJSON(t *testing.T) {
	res := Empty()
	res.ImageURL = "https://x/y.jpg"
	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Equal(t, `"No garbage found"`, string(b))

	var back AnalysisResult
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, KindEmpty, back.Kind)
}

func TestSingleJSON(t *testing.T) {
	box := BoundingBox{10, 20, 30, 40}
	res := Single(DetectedItem{
		Object:               "Aluminum Can",
		Material:             "Aluminum",
		DisposalInstructions: "Rinse and recycle",
		PointsEarned:         10,
		Description:          "Recyclable metal",
		BoundingBox:          &box,
		Co2Value:             Co2Medium,
	})
	res.ImageURL = "https://x/y.jpg"

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"object": "Aluminum Can",
		"material": "Aluminum",
		"disposalInstructions": "Rinse and recycle",
		"pointsEarned": 10,
		"description": "Recyclable metal",
		"boundingBox": [10, 20, 30, 40],
		"clipPath": "inset(20% 60% 40% 10%)",
		"co2Value": "Medium",
		"imageUrl": "https://x/y.jpg",
		"isMultipleItems": false
	}`, string(b))

	var back AnalysisResult
	require.NoError(t, json.Unmarshal(b, &back))
	if diff := cmp.Diff(res, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMultipleJSON(t *testing.T) {
	box := BoundingBox{X: 50, Y: 0, W: 25, H: 100}
	res := Multiple([]DetectedItem{
		{Object: "Bottle", PointsEarned: 5, Co2Value: Co2High,
			CroppedImage: &EncodedImage{MIMEType: "image/png", Data: []byte("x")}},
		{Object: "Can", PointsEarned: 8, Co2Value: Co2Medium, BoundingBox: &box},
	})
	res.ImageURL = "u"

	b, err := json.Marshal(res)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, true, decoded["isMultipleItems"])
	assert.Equal(t, 2.0, decoded["totalItems"])
	assert.Equal(t, 13.0, decoded["totalPoints"])
	assert.Equal(t, "u", decoded["imageUrl"])
	items := decoded["items"].([]any)
	assert.Equal(t, "data:image/png;base64,eA==", items[0].(map[string]any)["croppedImage"])
	assert.NotContains(t, items[0].(map[string]any), "clipPath")
	assert.Equal(t, "inset(0% 25% 0% 50%)", items[1].(map[string]any)["clipPath"])

	var back AnalysisResult
	require.NoError(t, json.Unmarshal(b, &back))
	if diff := cmp.Diff(res, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestWithoutCrops(t *testing.T) {
	res := Multiple([]DetectedItem{
		{Object: "Bottle", CroppedImage: &EncodedImage{MIMEType: "image/png"}},
		{Object: "Can", CroppedImage: &EncodedImage{MIMEType: "image/png"}},
	})
	stripped := res.WithoutCrops()
	for _, it := range stripped.Items {
		assert.Nil(t, it.CroppedImage)
	}
	assert.NotNil(t, res.Items[0].CroppedImage)
}

func TestClampPoints(t *testing.T) {
	tests := []struct {
		in   float64
		want int
	}{
		{-3, 0},
		{0, 0},
		{4.6, 5},
		{1e30, MaxItemPoints},
		{math.Inf(1), MaxItemPoints},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClampPoints(tt.in), "%v", tt.in)
	}
}

func TestTotalPointsIgnoresOutOfRangeItems(t *testing.T) {
	res := Multiple([]DetectedItem{
		{Object: "Can", PointsEarned: math.MaxInt},
		{Object: "Jar", PointsEarned: math.MaxInt},
		{Object: "Lid", PointsEarned: -7},
	})
	assert.Equal(t, 2*MaxItemPoints, res.TotalPoints())
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "empty", KindEmpty.String())
	assert.Equal(t, "single", KindSingle.String())
	assert.Equal(t, "multiple", KindMultiple.String())
}
