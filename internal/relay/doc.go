// Package relay is the server side of the drawing protocol: it accepts
// websocket connections, tracks who is in which room, and fans inbound
// envelopes out to room members.
//
// Three pieces cooperate:
//
//   - Registry: user id -> live connection plus joined-room sets. One
//     tracked connection per user; a reconnect replaces the old socket
//     (last-connect-wins), it never multiplexes.
//   - Router: turns one inbound envelope into a persistence enqueue and
//     zero or more deliveries. Draw envelopes get a durable id assigned
//     here and are echoed back to the sender so the client can
//     reconcile its temp id.
//   - Server: the gin HTTP surface (seed fetch, token mint, websocket
//     upgrade) and the per-connection reader/writer goroutines.
//
// Fan-out is fire-and-forget per target: every connection has a bounded
// send queue drained by its own writer goroutine, and a full or dead
// peer loses that one delivery without delaying anyone else. Envelopes
// from a single connection are processed in arrival order; ordering
// across connections is not guaranteed and the client's last-write-wins
// store absorbs it.
//
// Persistence never happens on the message path. The router only
// enqueues; the queue's drain worker does the writing.
package relay
