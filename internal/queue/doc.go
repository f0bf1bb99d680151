// Package queue decouples the broadcast hot path from storage latency.
//
// Each room owns a FIFO of pending writes (shape upserts and deletes),
// stamped with a logical seq at enqueue time. A single drain worker
// walks the room queues in bounded batches and pushes final states into
// the Writer (the SQLite shape store in production).
//
// # Coalescing
//
// Within one drained batch, entries for the same shape id collapse to
// the entry with the highest seq; only the final state matters for
// durability, and rapid dragging must not amplify into one write per
// mouse move. A delete with a higher seq than a queued update wins.
//
// # Worker state machine
//
//	Idle --enqueue--> Draining --more work--> Draining
//	                      \--all queues empty--> Idle
//
// The worker self-terminates when every queue is empty and is restarted
// lazily by the next enqueue; an idle server runs no drain goroutine
// and no timer. Starting while already draining is a no-op (atomic
// state transition). The Scheduler paces Draining->Draining cycles and
// is injectable, so the transitions are testable without wall-clock
// waits.
//
// # Failure containment
//
// A failed write never aborts its batch. The entry is re-enqueued and
// retried up to a bounded count, then dropped with a logged error:
// losing one shape beats an unbounded retry storm blocking the room's
// queue. Writes never surface errors to clients; durability is
// invisible to the live protocol.
package queue
