package queue

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/drawbridge-app/drawbridge/internal/shape"
)

// Op distinguishes entry kinds.
type Op int

const (
	// OpUpsert persists the shape's full current state.
	OpUpsert Op = iota + 1
	// OpDelete removes the shape row.
	OpDelete
)

// Entry is one pending write for a room.
type Entry struct {
	Op      Op
	RoomID  string
	ShapeID string
	Shape   shape.Shape // populated for OpUpsert
	Seq     int64

	attempts int
}

// Writer is the durable store the queue drains into.
// Implemented by *store.Store in production and by fakes in tests.
type Writer interface {
	UpsertShape(ctx context.Context, sh shape.Shape, seq int64) error
	DeleteShape(ctx context.Context, id string) error
}

// Scheduler paces drain cycles while work remains. The default is a
// time.Ticker; tests inject a manual implementation so state
// transitions run without wall-clock waits.
type Scheduler interface {
	// Tick returns a channel that fires when the next drain cycle may run.
	Tick() <-chan time.Time
	// Stop releases the scheduler's resources.
	Stop()
}

type tickerScheduler struct {
	t *time.Ticker
}

func (s *tickerScheduler) Tick() <-chan time.Time { return s.t.C }
func (s *tickerScheduler) Stop()                  { s.t.Stop() }

// Worker states.
const (
	stateIdle int32 = iota
	stateDraining
)

// Queue is the per-room persistence buffer with its drain worker.
type Queue struct {
	writer Writer
	clock  *Clock
	log    *slog.Logger

	batchSize    int
	maxRetries   int
	interval     time.Duration
	newScheduler func() Scheduler

	mu     sync.Mutex
	rooms  map[string][]Entry
	state  int32
	wake   chan struct{}
	closed bool

	// draining tracks the live worker so Close can wait for it.
	wg sync.WaitGroup
}

// Option configures a Queue.
type Option func(*Queue)

// WithBatchSize bounds how many entries one room contributes per cycle.
func WithBatchSize(n int) Option {
	return func(q *Queue) { q.batchSize = n }
}

// WithMaxRetries bounds re-enqueues of a failing entry before it is
// dropped with a logged error.
func WithMaxRetries(n int) Option {
	return func(q *Queue) { q.maxRetries = n }
}

// WithInterval sets the pacing interval between drain cycles.
func WithInterval(d time.Duration) Option {
	return func(q *Queue) { q.interval = d }
}

// WithScheduler overrides the drain pacing primitive, for tests.
func WithScheduler(fn func() Scheduler) Option {
	return func(q *Queue) { q.newScheduler = fn }
}

// New creates a queue draining into w.
func New(w Writer, log *slog.Logger, opts ...Option) *Queue {
	q := &Queue{
		writer:     w,
		clock:      NewClock(),
		log:        log,
		batchSize:  64,
		maxRetries: 3,
		interval:   250 * time.Millisecond,
		rooms:      make(map[string][]Entry),
		wake:       make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(q)
	}
	if q.newScheduler == nil {
		q.newScheduler = func() Scheduler {
			return &tickerScheduler{t: time.NewTicker(q.interval)}
		}
	}
	return q
}

// EnqueueUpsert buffers the shape's current state for persistence and
// returns the logical seq it was stamped with. Starts the drain worker
// if it is idle.
func (q *Queue) EnqueueUpsert(sh shape.Shape) int64 {
	seq := q.clock.Next()
	q.push(Entry{
		Op:      OpUpsert,
		RoomID:  sh.RoomID,
		ShapeID: sh.ID,
		Shape:   sh,
		Seq:     seq,
	})
	return seq
}

// EnqueueDelete buffers a shape deletion.
func (q *Queue) EnqueueDelete(roomID, shapeID string) int64 {
	seq := q.clock.Next()
	q.push(Entry{
		Op:      OpDelete,
		RoomID:  roomID,
		ShapeID: shapeID,
		Seq:     seq,
	})
	return seq
}

func (q *Queue) push(e Entry) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		q.log.Warn("queue closed, dropping write", "room", e.RoomID, "shape", e.ShapeID)
		return
	}
	q.rooms[e.RoomID] = append(q.rooms[e.RoomID], e)
	start := q.state == stateIdle
	if start {
		q.state = stateDraining
		q.wg.Add(1)
	}
	q.mu.Unlock()

	if start {
		go q.drainLoop()
	} else {
		// Worker already draining: nudge it so new work is picked up
		// before the next scheduled tick. Buffered send coalesces.
		select {
		case q.wake <- struct{}{}:
		default:
		}
	}
}

// Idle reports whether the drain worker is parked. Used by tests to
// observe the Idle/Draining transitions.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state == stateIdle
}

// Pending returns the number of buffered entries across all rooms.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, entries := range q.rooms {
		n += len(entries)
	}
	return n
}

// drainLoop is the worker: drain cycles until every queue is empty,
// then exit back to Idle. Exactly one instance runs at a time.
func (q *Queue) drainLoop() {
	defer q.wg.Done()

	sched := q.newScheduler()
	defer sched.Stop()

	ctx := context.Background()
	for {
		q.DrainOnce(ctx)

		q.mu.Lock()
		empty := true
		for _, entries := range q.rooms {
			if len(entries) > 0 {
				empty = false
				break
			}
		}
		if empty || q.closed {
			q.state = stateIdle
			q.mu.Unlock()
			return
		}
		q.mu.Unlock()

		select {
		case <-sched.Tick():
		case <-q.wake:
		}
	}
}

// DrainOnce runs one drain cycle: every non-empty room contributes one
// bounded, coalesced batch. Returns the number of writes attempted.
// Exported for tests and for a final flush on shutdown; the worker is
// the only caller in normal operation.
func (q *Queue) DrainOnce(ctx context.Context) int {
	q.mu.Lock()
	batches := make(map[string][]Entry)
	for room, entries := range q.rooms {
		if len(entries) == 0 {
			continue
		}
		n := q.batchSize
		if n > len(entries) {
			n = len(entries)
		}
		batch := make([]Entry, n)
		copy(batch, entries[:n])
		rest := append([]Entry(nil), entries[n:]...)
		if len(rest) == 0 {
			delete(q.rooms, room)
		} else {
			q.rooms[room] = rest
		}
		batches[room] = batch
	}
	q.mu.Unlock()

	writes := 0
	for room, batch := range batches {
		writes += q.writeBatch(ctx, room, batch)
	}
	return writes
}

// writeBatch coalesces one room's batch and writes the survivors in
// seq order. A failing entry is retried or dropped; it never aborts
// the rest of the batch.
func (q *Queue) writeBatch(ctx context.Context, room string, batch []Entry) int {
	final := coalesce(batch)

	writes := 0
	for _, e := range final {
		var err error
		switch e.Op {
		case OpUpsert:
			err = q.writer.UpsertShape(ctx, e.Shape, e.Seq)
		case OpDelete:
			err = q.writer.DeleteShape(ctx, e.ShapeID)
		}
		writes++
		if err == nil {
			continue
		}

		e.attempts++
		if e.attempts > q.maxRetries {
			q.log.Error("dropping shape write after retries",
				"room", room, "shape", e.ShapeID, "attempts", e.attempts, "err", err)
			continue
		}
		q.log.Warn("shape write failed, re-enqueueing",
			"room", room, "shape", e.ShapeID, "attempt", e.attempts, "err", err)
		q.requeue(e)
	}
	return writes
}

// coalesce collapses entries for the same shape id to the one with the
// highest seq, returning survivors in ascending seq order.
func coalesce(batch []Entry) []Entry {
	latest := make(map[string]Entry, len(batch))
	for _, e := range batch {
		if cur, ok := latest[e.ShapeID]; !ok || e.Seq > cur.Seq {
			latest[e.ShapeID] = e
		}
	}

	final := make([]Entry, 0, len(latest))
	for _, e := range latest {
		final = append(final, e)
	}
	sort.Slice(final, func(i, j int) bool { return final[i].Seq < final[j].Seq })
	return final
}

// requeue puts a failed entry back at the tail of its room queue,
// preserving its original seq. Unlike push it ignores closed: a retry
// in flight during shutdown still gets its remaining attempts in the
// final flush.
func (q *Queue) requeue(e Entry) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rooms[e.RoomID] = append(q.rooms[e.RoomID], e)
}

// Close stops accepting writes, waits for the worker to park, then
// synchronously flushes whatever is still buffered. Pending work
// enqueued before Close completes regardless of any connection's
// lifetime.
func (q *Queue) Close(ctx context.Context) {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	// Unblock a worker waiting on its scheduler.
	select {
	case q.wake <- struct{}{}:
	default:
	}
	q.wg.Wait()

	for q.DrainOnce(ctx) > 0 {
	}
}
