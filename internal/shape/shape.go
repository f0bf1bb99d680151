// Package shape defines the drawable vector primitives shared by the
// client store, the relay and the persistence layer.
//
// A Shape is a tagged variant keyed on Kind. Geometry is carried by a
// per-kind payload type behind the Geometry interface, so a shape can
// never hold fields that are meaningless for its kind. Validate enforces
// that the payload matches the discriminator.
package shape

import (
	"errors"
	"fmt"
)

// Kind discriminates the closed set of shape variants.
type Kind string

const (
	KindRectangle Kind = "RECTANGLE"
	KindCircle    Kind = "CIRCLE"
	KindLine      Kind = "LINE"
	KindArrow     Kind = "ARROW"
	KindPencil    Kind = "PENCIL"
	KindText      Kind = "TEXT"
	KindEraser    Kind = "ERASER"
)

// Kinds lists every valid shape kind in a stable order.
var Kinds = []Kind{
	KindRectangle,
	KindCircle,
	KindLine,
	KindArrow,
	KindPencil,
	KindText,
	KindEraser,
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindRectangle, KindCircle, KindLine, KindArrow, KindPencil, KindText, KindEraser:
		return true
	}
	return false
}

// Point is one vertex of a polyline stroke.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Geometry is the per-kind payload of a Shape. Implementations are
// Rectangle, Circle, Segment, Polyline and Text.
type Geometry interface {
	// fits reports whether this payload type is legal for the given kind.
	fits(k Kind) bool
	validate() error
}

// Rectangle is the geometry for KindRectangle.
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func (Rectangle) fits(k Kind) bool { return k == KindRectangle }
func (Rectangle) validate() error  { return nil }

// Circle is the geometry for KindCircle. RadiusX and RadiusY are
// independent axes, so the shape is a true ellipse.
type Circle struct {
	X       float64
	Y       float64
	RadiusX float64
	RadiusY float64
}

func (Circle) fits(k Kind) bool { return k == KindCircle }
func (Circle) validate() error  { return nil }

// Segment is the geometry for KindLine and KindArrow: a start point and
// an end point. The kind, not the payload, decides whether an arrowhead
// is rendered.
type Segment struct {
	X    float64
	Y    float64
	EndX float64
	EndY float64
}

func (Segment) fits(k Kind) bool { return k == KindLine || k == KindArrow }
func (Segment) validate() error  { return nil }

// Polyline is the geometry for KindPencil and KindEraser: the ordered
// path of the stroke. Eraser points describe the erase path, not a
// visible shape.
type Polyline struct {
	Points []Point
}

func (Polyline) fits(k Kind) bool { return k == KindPencil || k == KindEraser }

func (p Polyline) validate() error {
	if len(p.Points) == 0 {
		return errors.New("polyline has no points")
	}
	return nil
}

// Text is the geometry for KindText: an anchor point and the content.
type Text struct {
	X           float64
	Y           float64
	TextContent string
}

func (Text) fits(k Kind) bool { return k == KindText }
func (Text) validate() error  { return nil }

// Shape is one drawable primitive.
//
// ID is empty until the relay assigns a durable identifier; it is
// assigned exactly once and immutable thereafter. TempID is the
// client-chosen placeholder used for reconciliation and never persisted.
// RoomID and Kind are immutable for the life of the shape.
type Shape struct {
	ID          string
	TempID      string
	RoomID      string
	UserID      string
	Kind        Kind
	Color       string
	StrokeWidth float64
	Geometry    Geometry
}

// Validate checks the discriminator/payload pairing and the payload's
// own invariants. A shape with a nil or mismatched payload is invalid.
func (s Shape) Validate() error {
	if !s.Kind.Valid() {
		return fmt.Errorf("unknown shape kind %q", s.Kind)
	}
	if s.RoomID == "" {
		return errors.New("shape has no room id")
	}
	if s.Geometry == nil {
		return fmt.Errorf("%s shape has no geometry", s.Kind)
	}
	if !s.Geometry.fits(s.Kind) {
		return fmt.Errorf("geometry %T is not valid for kind %s", s.Geometry, s.Kind)
	}
	return s.Geometry.validate()
}

// Durable reports whether the shape carries a server-assigned id.
func (s Shape) Durable() bool {
	return s.ID != ""
}
