package shape

import (
	"encoding/json"
	"fmt"
)

// wireShape is the flat JSON form of a Shape: one object with a "type"
// discriminator and only the fields that belong to that kind. Pointer
// fields let the decoder distinguish absent from zero, so a partially
// populated record is a decode error rather than a silently defaulted
// geometry.
type wireShape struct {
	ID          string   `json:"id,omitempty"`
	TempID      string   `json:"tempId,omitempty"`
	RoomID      string   `json:"roomId"`
	UserID      string   `json:"userId,omitempty"`
	Type        Kind     `json:"type"`
	Color       string   `json:"color,omitempty"`
	StrokeWidth float64  `json:"strokeWidth,omitempty"`
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	Width       *float64 `json:"width,omitempty"`
	Height      *float64 `json:"height,omitempty"`
	RadiusX     *float64 `json:"radiusX,omitempty"`
	RadiusY     *float64 `json:"radiusY,omitempty"`
	EndX        *float64 `json:"endX,omitempty"`
	EndY        *float64 `json:"endY,omitempty"`
	Points      []Point  `json:"points,omitempty"`
	TextContent *string  `json:"textContent,omitempty"`
}

func ptr(v float64) *float64 { return &v }

// MarshalJSON encodes the shape in its flat wire form.
func (s Shape) MarshalJSON() ([]byte, error) {
	w := wireShape{
		ID:          s.ID,
		TempID:      s.TempID,
		RoomID:      s.RoomID,
		UserID:      s.UserID,
		Type:        s.Kind,
		Color:       s.Color,
		StrokeWidth: s.StrokeWidth,
	}

	switch g := s.Geometry.(type) {
	case Rectangle:
		w.X, w.Y = ptr(g.X), ptr(g.Y)
		w.Width, w.Height = ptr(g.Width), ptr(g.Height)
	case Circle:
		w.X, w.Y = ptr(g.X), ptr(g.Y)
		w.RadiusX, w.RadiusY = ptr(g.RadiusX), ptr(g.RadiusY)
	case Segment:
		w.X, w.Y = ptr(g.X), ptr(g.Y)
		w.EndX, w.EndY = ptr(g.EndX), ptr(g.EndY)
	case Polyline:
		w.Points = g.Points
	case Text:
		w.X, w.Y = ptr(g.X), ptr(g.Y)
		w.TextContent = &g.TextContent
	case nil:
		return nil, fmt.Errorf("marshal shape: %s shape has no geometry", s.Kind)
	default:
		return nil, fmt.Errorf("marshal shape: unsupported geometry %T", s.Geometry)
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes the flat wire form, requiring every geometry
// field of the declared kind to be present.
func (s *Shape) UnmarshalJSON(data []byte) error {
	var w wireShape
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal shape: %w", err)
	}

	if !w.Type.Valid() {
		return fmt.Errorf("unmarshal shape: unknown kind %q", w.Type)
	}

	geom, err := geometryFromWire(w)
	if err != nil {
		return fmt.Errorf("unmarshal shape: %w", err)
	}

	*s = Shape{
		ID:          w.ID,
		TempID:      w.TempID,
		RoomID:      w.RoomID,
		UserID:      w.UserID,
		Kind:        w.Type,
		Color:       w.Color,
		StrokeWidth: w.StrokeWidth,
		Geometry:    geom,
	}
	return nil
}

func geometryFromWire(w wireShape) (Geometry, error) {
	switch w.Type {
	case KindRectangle:
		if w.X == nil || w.Y == nil || w.Width == nil || w.Height == nil {
			return nil, fmt.Errorf("%s requires x, y, width, height", w.Type)
		}
		return Rectangle{X: *w.X, Y: *w.Y, Width: *w.Width, Height: *w.Height}, nil
	case KindCircle:
		if w.X == nil || w.Y == nil || w.RadiusX == nil || w.RadiusY == nil {
			return nil, fmt.Errorf("%s requires x, y, radiusX, radiusY", w.Type)
		}
		return Circle{X: *w.X, Y: *w.Y, RadiusX: *w.RadiusX, RadiusY: *w.RadiusY}, nil
	case KindLine, KindArrow:
		if w.X == nil || w.Y == nil || w.EndX == nil || w.EndY == nil {
			return nil, fmt.Errorf("%s requires x, y, endX, endY", w.Type)
		}
		return Segment{X: *w.X, Y: *w.Y, EndX: *w.EndX, EndY: *w.EndY}, nil
	case KindPencil, KindEraser:
		if len(w.Points) == 0 {
			return nil, fmt.Errorf("%s requires a non-empty points array", w.Type)
		}
		return Polyline{Points: w.Points}, nil
	case KindText:
		if w.X == nil || w.Y == nil || w.TextContent == nil {
			return nil, fmt.Errorf("%s requires x, y, textContent", w.Type)
		}
		return Text{X: *w.X, Y: *w.Y, TextContent: *w.TextContent}, nil
	default:
		return nil, fmt.Errorf("unknown kind %q", w.Type)
	}
}
