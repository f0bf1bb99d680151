package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drawbridge-app/drawbridge/internal/shape"
	"github.com/drawbridge-app/drawbridge/internal/testutil"
)

type upsertRec struct {
	shape shape.Shape
	seq   int64
}

// fakeWriter records writes and can be told to fail specific shapes.
type fakeWriter struct {
	mu      sync.Mutex
	upserts []upsertRec
	deletes []string

	// failures maps shape id to remaining failures; -1 fails forever.
	failures map[string]int
}

func newFakeWriter() *fakeWriter {
	return &fakeWriter{failures: make(map[string]int)}
}

func (w *fakeWriter) UpsertShape(_ context.Context, sh shape.Shape, seq int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.maybeFail(sh.ID); err != nil {
		return err
	}
	w.upserts = append(w.upserts, upsertRec{shape: sh, seq: seq})
	return nil
}

func (w *fakeWriter) DeleteShape(_ context.Context, id string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.maybeFail(id); err != nil {
		return err
	}
	w.deletes = append(w.deletes, id)
	return nil
}

func (w *fakeWriter) maybeFail(id string) error {
	n, ok := w.failures[id]
	if !ok {
		return nil
	}
	if n == 0 {
		delete(w.failures, id)
		return nil
	}
	if n > 0 {
		w.failures[id] = n - 1
	}
	return fmt.Errorf("injected write failure for %s", id)
}

func (w *fakeWriter) upsertCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.upserts)
}

func (w *fakeWriter) lastUpsert() upsertRec {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.upserts[len(w.upserts)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func rectAt(id string, x float64) shape.Shape {
	return shape.Shape{
		ID:       id,
		RoomID:   "room-1",
		UserID:   "user-a",
		Kind:     shape.KindRectangle,
		Geometry: shape.Rectangle{X: x, Y: 0, Width: 10, Height: 10},
	}
}

// seed places entries directly into the room buffers, bypassing the
// worker autostart so drain behavior can be tested deterministically.
func seed(q *Queue, entries ...Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, e := range entries {
		q.rooms[e.RoomID] = append(q.rooms[e.RoomID], e)
	}
}

func TestCoalesce_KeepsHighestSeqPerShape(t *testing.T) {
	batch := []Entry{
		{Op: OpUpsert, ShapeID: "xyz", Seq: 1, Shape: rectAt("xyz", 1)},
		{Op: OpUpsert, ShapeID: "xyz", Seq: 2, Shape: rectAt("xyz", 2)},
		{Op: OpUpsert, ShapeID: "other", Seq: 3, Shape: rectAt("other", 0)},
		{Op: OpUpsert, ShapeID: "xyz", Seq: 5, Shape: rectAt("xyz", 5)},
		{Op: OpUpsert, ShapeID: "xyz", Seq: 4, Shape: rectAt("xyz", 4)},
	}

	final := coalesce(batch)

	require.Len(t, final, 2)
	assert.Equal(t, "other", final[0].ShapeID)
	assert.Equal(t, int64(5), final[1].Seq)
	assert.Equal(t, shape.Rectangle{X: 5, Y: 0, Width: 10, Height: 10}, final[1].Shape.Geometry)
}

func TestQueue_DrainOnce_FiveUpdatesOneWrite(t *testing.T) {
	// Five queued updates to shape "xyz" with seq t1<...<t5: storage
	// must end with exactly the t5 state.
	w := newFakeWriter()
	q := New(w, discardLogger())

	var entries []Entry
	for i := 1; i <= 5; i++ {
		entries = append(entries, Entry{
			Op: OpUpsert, RoomID: "room-1", ShapeID: "xyz",
			Seq: int64(i), Shape: rectAt("xyz", float64(i)),
		})
	}
	seed(q, entries...)

	q.DrainOnce(context.Background())

	require.Equal(t, 1, w.upsertCount())
	assert.Equal(t, int64(5), w.lastUpsert().seq)
	assert.Equal(t, shape.Rectangle{X: 5, Y: 0, Width: 10, Height: 10}, w.lastUpsert().shape.Geometry)
	assert.Equal(t, 0, q.Pending())
}

func TestQueue_DrainOnce_DeleteOutlivesEarlierUpdate(t *testing.T) {
	w := newFakeWriter()
	q := New(w, discardLogger())

	seed(q,
		Entry{Op: OpUpsert, RoomID: "room-1", ShapeID: "xyz", Seq: 1, Shape: rectAt("xyz", 1)},
		Entry{Op: OpDelete, RoomID: "room-1", ShapeID: "xyz", Seq: 2},
	)

	q.DrainOnce(context.Background())

	assert.Zero(t, w.upsertCount(), "coalescing must discard the superseded update")
	assert.Equal(t, []string{"xyz"}, w.deletes)
}

func TestQueue_DrainOnce_RespectsBatchSize(t *testing.T) {
	w := newFakeWriter()
	q := New(w, discardLogger(), WithBatchSize(2))

	seed(q,
		Entry{Op: OpUpsert, RoomID: "room-1", ShapeID: "a", Seq: 1, Shape: rectAt("a", 1)},
		Entry{Op: OpUpsert, RoomID: "room-1", ShapeID: "b", Seq: 2, Shape: rectAt("b", 2)},
		Entry{Op: OpUpsert, RoomID: "room-1", ShapeID: "c", Seq: 3, Shape: rectAt("c", 3)},
	)

	q.DrainOnce(context.Background())
	assert.Equal(t, 2, w.upsertCount())
	assert.Equal(t, 1, q.Pending())

	q.DrainOnce(context.Background())
	assert.Equal(t, 3, w.upsertCount())
	assert.Equal(t, 0, q.Pending())
}

func TestQueue_PoisonEntryDoesNotStarveBatch(t *testing.T) {
	w := newFakeWriter()
	w.failures["poison"] = -1
	q := New(w, discardLogger(), WithMaxRetries(2))

	seed(q,
		Entry{Op: OpUpsert, RoomID: "room-1", ShapeID: "poison", Seq: 1, Shape: rectAt("poison", 1)},
		Entry{Op: OpUpsert, RoomID: "room-1", ShapeID: "good", Seq: 2, Shape: rectAt("good", 2)},
	)

	ctx := context.Background()
	q.DrainOnce(ctx)

	// The good write landed despite the poison entry failing first.
	require.Equal(t, 1, w.upsertCount())
	assert.Equal(t, "good", w.lastUpsert().shape.ID)
	assert.Equal(t, 1, q.Pending(), "poison entry re-enqueued for retry")

	// Retries are bounded: after they are exhausted the entry is dropped.
	q.DrainOnce(ctx)
	q.DrainOnce(ctx)
	assert.Equal(t, 0, q.Pending())
	assert.Equal(t, 1, w.upsertCount())
}

func TestQueue_TransientFailureEventuallyWrites(t *testing.T) {
	w := newFakeWriter()
	w.failures["flaky"] = 2
	q := New(w, discardLogger(), WithMaxRetries(3))

	seed(q, Entry{Op: OpUpsert, RoomID: "room-1", ShapeID: "flaky", Seq: 1, Shape: rectAt("flaky", 1)})

	ctx := context.Background()
	for i := 0; i < 3 && q.Pending() > 0; i++ {
		q.DrainOnce(ctx)
	}

	require.Equal(t, 1, w.upsertCount())
	assert.Equal(t, int64(1), w.lastUpsert().seq, "retries keep the original seq")
}

func TestQueue_WorkerIdleDrainingIdle(t *testing.T) {
	w := newFakeWriter()
	q := New(w, discardLogger(), WithScheduler(func() Scheduler {
		return testutil.NewManualScheduler()
	}))

	require.True(t, q.Idle())

	q.EnqueueUpsert(rectAt("abc", 1))

	// The enqueue wakes the worker, which drains and parks itself.
	require.Eventually(t, func() bool {
		return q.Idle() && w.upsertCount() == 1
	}, time.Second, time.Millisecond)

	// A later enqueue restarts the worker lazily.
	q.EnqueueUpsert(rectAt("def", 2))
	require.Eventually(t, func() bool {
		return q.Idle() && w.upsertCount() == 2
	}, time.Second, time.Millisecond)
}

func TestQueue_EnqueueStampsIncreasingSeq(t *testing.T) {
	q := New(newFakeWriter(), discardLogger())

	s1 := q.EnqueueUpsert(rectAt("a", 1))
	s2 := q.EnqueueDelete("room-1", "a")
	assert.Less(t, s1, s2)
}

func TestQueue_CloseFlushesPending(t *testing.T) {
	w := newFakeWriter()
	q := New(w, discardLogger())

	seed(q,
		Entry{Op: OpUpsert, RoomID: "room-1", ShapeID: "a", Seq: 1, Shape: rectAt("a", 1)},
		Entry{Op: OpDelete, RoomID: "room-2", ShapeID: "b", Seq: 2},
	)

	q.Close(context.Background())

	assert.Equal(t, 1, w.upsertCount())
	assert.Equal(t, []string{"b"}, w.deletes)
	assert.Equal(t, 0, q.Pending())
}
