// Package store provides SQLite-backed durable storage for shapes.
//
// One row per shape, primary key id, with a type discriminator and
// per-kind nullable geometry columns (points ride as a JSON blob).
// Rows carry the logical seq assigned when the shape was first
// enqueued for persistence; seq never changes on update, so a room's
// rows ordered by seq reproduce the client's paint order.
//
// Writes are idempotent:
//   - UpsertShape: insert, or last-write-wins update of the mutable
//     columns on id conflict (room_id, type and seq stay immutable)
//   - DeleteShape: no-op when the row is already gone
//
// # Database configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON
//   - single-connection pool: SQLite allows one writer at a time
package store
