package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawbridge-app/drawbridge/internal/shape"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "shapes.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testShape(id string, x float64) shape.Shape {
	return shape.Shape{
		ID:          id,
		RoomID:      "room-1",
		UserID:      "user-a",
		Kind:        shape.KindRectangle,
		Color:       "#ffffff",
		StrokeWidth: 2,
		Geometry:    shape.Rectangle{X: x, Y: 10, Width: 50, Height: 30},
	}
}

func TestStore_OpenIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "shapes.db")

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestStore_UpsertAndFetch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertShape(ctx, testShape("a", 10), 1))

	shapes, err := s.RecentShapes(ctx, "room-1", 50)
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	assert.Equal(t, testShape("a", 10), shapes[0])
}

func TestStore_UpsertLastWriteWinsKeepsSeq(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertShape(ctx, testShape("a", 10), 1))
	require.NoError(t, s.UpsertShape(ctx, testShape("b", 20), 2))

	// Editing "a" later must not move it above "b" in insertion order.
	moved := testShape("a", 99)
	require.NoError(t, s.UpsertShape(ctx, moved, 7))

	shapes, err := s.RecentShapes(ctx, "room-1", 50)
	require.NoError(t, err)
	require.Len(t, shapes, 2)
	assert.Equal(t, "a", shapes[0].ID)
	assert.Equal(t, shape.Rectangle{X: 99, Y: 10, Width: 50, Height: 30}, shapes[0].Geometry)
	assert.Equal(t, "b", shapes[1].ID)
}

func TestStore_UpsertRejectsNonDurable(t *testing.T) {
	s := openTestStore(t)

	sh := testShape("", 10)
	sh.TempID = "temp-1"
	assert.Error(t, s.UpsertShape(context.Background(), sh, 1))
}

func TestStore_DeleteIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertShape(ctx, testShape("a", 10), 1))
	require.NoError(t, s.DeleteShape(ctx, "a"))
	require.NoError(t, s.DeleteShape(ctx, "a"))

	shapes, err := s.RecentShapes(ctx, "room-1", 50)
	require.NoError(t, err)
	assert.Empty(t, shapes)
}

func TestStore_RecentShapesLimitKeepsNewest(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		sh := testShape(string(rune('a'+i)), float64(i))
		require.NoError(t, s.UpsertShape(ctx, sh, int64(i+1)))
	}

	shapes, err := s.RecentShapes(ctx, "room-1", 3)
	require.NoError(t, err)
	require.Len(t, shapes, 3)
	// The newest three, still in insertion order.
	assert.Equal(t, "c", shapes[0].ID)
	assert.Equal(t, "d", shapes[1].ID)
	assert.Equal(t, "e", shapes[2].ID)
}

func TestStore_RecentShapesScopedToRoom(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertShape(ctx, testShape("a", 1), 1))

	other := testShape("z", 2)
	other.RoomID = "room-2"
	require.NoError(t, s.UpsertShape(ctx, other, 2))

	shapes, err := s.RecentShapes(ctx, "room-1", 50)
	require.NoError(t, err)
	require.Len(t, shapes, 1)
	assert.Equal(t, "a", shapes[0].ID)
}

func TestStore_AllKindsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	shapes := []shape.Shape{
		{ID: "r", RoomID: "room-1", UserID: "u", Kind: shape.KindRectangle,
			Geometry: shape.Rectangle{X: 1, Y: 2, Width: 3, Height: 4}},
		{ID: "c", RoomID: "room-1", UserID: "u", Kind: shape.KindCircle,
			Geometry: shape.Circle{X: 1, Y: 2, RadiusX: 3, RadiusY: 4}},
		{ID: "l", RoomID: "room-1", UserID: "u", Kind: shape.KindLine,
			Geometry: shape.Segment{X: 1, Y: 2, EndX: 3, EndY: 4}},
		{ID: "p", RoomID: "room-1", UserID: "u", Kind: shape.KindPencil,
			Geometry: shape.Polyline{Points: []shape.Point{{X: 1, Y: 2}, {X: 3, Y: 4}}}},
		{ID: "t", RoomID: "room-1", UserID: "u", Kind: shape.KindText,
			Geometry: shape.Text{X: 1, Y: 2, TextContent: "hi"}},
		{ID: "e", RoomID: "room-1", UserID: "u", Kind: shape.KindEraser,
			Geometry: shape.Polyline{Points: []shape.Point{{X: 5, Y: 6}}}},
	}
	for i, sh := range shapes {
		require.NoError(t, s.UpsertShape(ctx, sh, int64(i+1)))
	}

	got, err := s.RecentShapes(ctx, "room-1", 50)
	require.NoError(t, err)
	assert.Equal(t, shapes, got)
}
