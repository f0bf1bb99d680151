package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/drawbridge-app/drawbridge/internal/shape"
)

// UpsertShape writes the shape's current state under its durable id.
// On id conflict the mutable columns are overwritten (last write wins);
// room_id, type and seq are immutable and left untouched, so a shape
// keeps its original insertion order however often it is edited.
func (s *Store) UpsertShape(ctx context.Context, sh shape.Shape, seq int64) error {
	if !sh.Durable() {
		return fmt.Errorf("upsert shape: shape has no durable id")
	}
	if err := sh.Validate(); err != nil {
		return fmt.Errorf("upsert shape %s: %w", sh.ID, err)
	}

	cols, err := geometryColumns(sh)
	if err != nil {
		return fmt.Errorf("upsert shape %s: %w", sh.ID, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO shapes
		(id, room_id, user_id, type, color, stroke_width,
		 x, y, width, height, radius_x, radius_y, end_x, end_y, points, text_content, seq)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id      = excluded.user_id,
			color        = excluded.color,
			stroke_width = excluded.stroke_width,
			x            = excluded.x,
			y            = excluded.y,
			width        = excluded.width,
			height       = excluded.height,
			radius_x     = excluded.radius_x,
			radius_y     = excluded.radius_y,
			end_x        = excluded.end_x,
			end_y        = excluded.end_y,
			points       = excluded.points,
			text_content = excluded.text_content
	`,
		sh.ID, sh.RoomID, sh.UserID, string(sh.Kind), sh.Color, sh.StrokeWidth,
		cols.x, cols.y, cols.width, cols.height,
		cols.radiusX, cols.radiusY, cols.endX, cols.endY,
		cols.points, cols.textContent, seq,
	)
	if err != nil {
		return fmt.Errorf("upsert shape %s: %w", sh.ID, err)
	}

	return nil
}

// DeleteShape removes the row with the given id. Deleting an absent
// shape is a no-op, so replayed deletions are harmless.
func (s *Store) DeleteShape(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shapes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete shape %s: %w", id, err)
	}
	return nil
}

// RecentShapes returns the most recent limit shapes of a room in
// insertion (seq) order, ready to seed a client's store in paint order.
func (s *Store) RecentShapes(ctx context.Context, roomID string, limit int) ([]shape.Shape, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, user_id, type, color, stroke_width,
		       x, y, width, height, radius_x, radius_y, end_x, end_y, points, text_content
		FROM (
			SELECT * FROM shapes WHERE room_id = ? ORDER BY seq DESC LIMIT ?
		) ORDER BY seq ASC
	`, roomID, limit)
	if err != nil {
		return nil, fmt.Errorf("recent shapes for %s: %w", roomID, err)
	}
	defer rows.Close()

	var shapes []shape.Shape
	for rows.Next() {
		sh, err := scanShape(rows)
		if err != nil {
			return nil, fmt.Errorf("recent shapes for %s: %w", roomID, err)
		}
		shapes = append(shapes, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recent shapes for %s: %w", roomID, err)
	}

	return shapes, nil
}

// geomColumns is the nullable column set for one row.
type geomColumns struct {
	x, y        sql.NullFloat64
	width       sql.NullFloat64
	height      sql.NullFloat64
	radiusX     sql.NullFloat64
	radiusY     sql.NullFloat64
	endX, endY  sql.NullFloat64
	points      sql.NullString
	textContent sql.NullString
}

func nf(v float64) sql.NullFloat64 { return sql.NullFloat64{Float64: v, Valid: true} }

func geometryColumns(sh shape.Shape) (geomColumns, error) {
	var c geomColumns
	switch g := sh.Geometry.(type) {
	case shape.Rectangle:
		c.x, c.y = nf(g.X), nf(g.Y)
		c.width, c.height = nf(g.Width), nf(g.Height)
	case shape.Circle:
		c.x, c.y = nf(g.X), nf(g.Y)
		c.radiusX, c.radiusY = nf(g.RadiusX), nf(g.RadiusY)
	case shape.Segment:
		c.x, c.y = nf(g.X), nf(g.Y)
		c.endX, c.endY = nf(g.EndX), nf(g.EndY)
	case shape.Polyline:
		blob, err := json.Marshal(g.Points)
		if err != nil {
			return c, fmt.Errorf("encode points: %w", err)
		}
		c.points = sql.NullString{String: string(blob), Valid: true}
	case shape.Text:
		c.x, c.y = nf(g.X), nf(g.Y)
		c.textContent = sql.NullString{String: g.TextContent, Valid: true}
	default:
		return c, fmt.Errorf("unsupported geometry %T", sh.Geometry)
	}
	return c, nil
}

func scanShape(rows *sql.Rows) (shape.Shape, error) {
	var (
		sh   shape.Shape
		kind string
		c    geomColumns
	)
	err := rows.Scan(
		&sh.ID, &sh.RoomID, &sh.UserID, &kind, &sh.Color, &sh.StrokeWidth,
		&c.x, &c.y, &c.width, &c.height,
		&c.radiusX, &c.radiusY, &c.endX, &c.endY, &c.points, &c.textContent,
	)
	if err != nil {
		return shape.Shape{}, err
	}

	sh.Kind = shape.Kind(kind)
	sh.Geometry, err = geometryFromColumns(sh.Kind, c)
	if err != nil {
		return shape.Shape{}, fmt.Errorf("shape %s: %w", sh.ID, err)
	}
	return sh, nil
}

func geometryFromColumns(kind shape.Kind, c geomColumns) (shape.Geometry, error) {
	switch kind {
	case shape.KindRectangle:
		if !(c.x.Valid && c.y.Valid && c.width.Valid && c.height.Valid) {
			return nil, fmt.Errorf("%s row missing geometry columns", kind)
		}
		return shape.Rectangle{X: c.x.Float64, Y: c.y.Float64, Width: c.width.Float64, Height: c.height.Float64}, nil
	case shape.KindCircle:
		if !(c.x.Valid && c.y.Valid && c.radiusX.Valid && c.radiusY.Valid) {
			return nil, fmt.Errorf("%s row missing geometry columns", kind)
		}
		return shape.Circle{X: c.x.Float64, Y: c.y.Float64, RadiusX: c.radiusX.Float64, RadiusY: c.radiusY.Float64}, nil
	case shape.KindLine, shape.KindArrow:
		if !(c.x.Valid && c.y.Valid && c.endX.Valid && c.endY.Valid) {
			return nil, fmt.Errorf("%s row missing geometry columns", kind)
		}
		return shape.Segment{X: c.x.Float64, Y: c.y.Float64, EndX: c.endX.Float64, EndY: c.endY.Float64}, nil
	case shape.KindPencil, shape.KindEraser:
		if !c.points.Valid {
			return nil, fmt.Errorf("%s row missing points", kind)
		}
		var pts []shape.Point
		if err := json.Unmarshal([]byte(c.points.String), &pts); err != nil {
			return nil, fmt.Errorf("decode points: %w", err)
		}
		return shape.Polyline{Points: pts}, nil
	case shape.KindText:
		if !(c.x.Valid && c.y.Valid && c.textContent.Valid) {
			return nil, fmt.Errorf("%s row missing geometry columns", kind)
		}
		return shape.Text{X: c.x.Float64, Y: c.y.Float64, TextContent: c.textContent.String}, nil
	default:
		return nil, fmt.Errorf("unknown shape kind %q", kind)
	}
}
