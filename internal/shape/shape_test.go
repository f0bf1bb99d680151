package shape

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShape_Validate_KindPayloadPairing(t *testing.T) {
	valid := Shape{
		RoomID:   "room-1",
		Kind:     KindRectangle,
		Geometry: Rectangle{X: 10, Y: 10, Width: 50, Height: 30},
	}
	require.NoError(t, valid.Validate())

	mismatched := valid
	mismatched.Geometry = Circle{X: 1, Y: 1, RadiusX: 2, RadiusY: 2}
	assert.Error(t, mismatched.Validate(), "circle payload on a rectangle must be rejected")

	missing := valid
	missing.Geometry = nil
	assert.Error(t, missing.Validate())

	unknown := valid
	unknown.Kind = "TRIANGLE"
	assert.Error(t, unknown.Validate())

	noRoom := valid
	noRoom.RoomID = ""
	assert.Error(t, noRoom.Validate())
}

func TestShape_Validate_SegmentServesLineAndArrow(t *testing.T) {
	seg := Segment{X: 0, Y: 0, EndX: 5, EndY: 5}

	for _, k := range []Kind{KindLine, KindArrow} {
		s := Shape{RoomID: "room-1", Kind: k, Geometry: seg}
		assert.NoError(t, s.Validate(), "segment geometry should fit %s", k)
	}

	s := Shape{RoomID: "room-1", Kind: KindPencil, Geometry: seg}
	assert.Error(t, s.Validate())
}

func TestShape_Validate_EmptyPolyline(t *testing.T) {
	s := Shape{RoomID: "room-1", Kind: KindPencil, Geometry: Polyline{}}
	assert.Error(t, s.Validate())

	s.Geometry = Polyline{Points: []Point{{X: 1, Y: 2}}}
	assert.NoError(t, s.Validate())
}

func TestShape_RoundTrip(t *testing.T) {
	shapes := []Shape{
		{ID: "abc", RoomID: "r", UserID: "u", Kind: KindRectangle, Color: "#ffffff", StrokeWidth: 2,
			Geometry: Rectangle{X: 10, Y: 10, Width: 50, Height: 30}},
		{ID: "def", RoomID: "r", Kind: KindCircle,
			Geometry: Circle{X: 1, Y: 2, RadiusX: 3, RadiusY: 4}},
		{TempID: "temp-1", RoomID: "r", Kind: KindArrow,
			Geometry: Segment{X: 0, Y: 0, EndX: 9, EndY: 9}},
		{ID: "ghi", RoomID: "r", Kind: KindEraser,
			Geometry: Polyline{Points: []Point{{X: 1, Y: 1}, {X: 2, Y: 2}}}},
		{ID: "jkl", RoomID: "r", Kind: KindText,
			Geometry: Text{X: 5, Y: 6, TextContent: "hello"}},
	}

	for _, want := range shapes {
		data, err := json.Marshal(want)
		require.NoError(t, err)

		var got Shape
		require.NoError(t, json.Unmarshal(data, &got))
		assert.Equal(t, want, got)
	}
}

func TestShape_Unmarshal_RejectsPartialGeometry(t *testing.T) {
	cases := map[string]string{
		"rectangle missing height": `{"roomId":"r","type":"RECTANGLE","x":1,"y":2,"width":3}`,
		"circle missing radiusY":   `{"roomId":"r","type":"CIRCLE","x":1,"y":2,"radiusX":3}`,
		"line missing end":         `{"roomId":"r","type":"LINE","x":1,"y":2}`,
		"pencil without points":    `{"roomId":"r","type":"PENCIL"}`,
		"text without content":     `{"roomId":"r","type":"TEXT","x":1,"y":2}`,
		"unknown kind":             `{"roomId":"r","type":"STAR","x":1,"y":2}`,
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var s Shape
			assert.Error(t, json.Unmarshal([]byte(raw), &s))
		})
	}
}

func TestShape_Unmarshal_ZeroValuedFieldsArePresent(t *testing.T) {
	// A rectangle at the origin is legal; zero is not absent.
	raw := `{"roomId":"r","type":"RECTANGLE","x":0,"y":0,"width":0,"height":0}`

	var s Shape
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, Rectangle{}, s.Geometry)
}
