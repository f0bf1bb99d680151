package relay

import (
	"log/slog"

	"github.com/google/uuid"

	"github.com/drawbridge-app/drawbridge/internal/shape"
	"github.com/drawbridge-app/drawbridge/internal/wire"
)

// Persister is the write-buffering queue the router pushes durable
// state into. Implemented by *queue.Queue.
type Persister interface {
	EnqueueUpsert(sh shape.Shape) int64
	EnqueueDelete(roomID, shapeID string) int64
}

// Router turns one inbound envelope into a persistence enqueue plus
// zero or more deliveries. It never blocks on a target connection and
// never touches storage synchronously.
type Router struct {
	reg   *Registry
	queue Persister
	log   *slog.Logger

	// newID assigns durable shape ids; overridable in tests.
	newID func() string
}

// NewRouter creates a router fanning out through reg and persisting
// through q.
func NewRouter(reg *Registry, q Persister, log *slog.Logger) *Router {
	return &Router{
		reg:   reg,
		queue: q,
		log:   log,
		newID: uuid.NewString,
	}
}

// HandleMessage processes one raw inbound message from sender.
// Malformed or unrecognized envelopes are logged and dropped; they
// never close the connection.
func (r *Router) HandleMessage(sender *Conn, data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		r.log.Warn("dropping malformed envelope", "user", sender.UserID(), "err", err)
		return
	}

	switch env.Type {
	case wire.TypeJoinRoom:
		r.reg.JoinRoom(sender, env.RoomID)
	case wire.TypeLeaveRoom:
		r.reg.LeaveRoom(sender, env.RoomID)
	case wire.TypeDraw:
		r.handleDraw(sender, env)
	case wire.TypeUpdate:
		r.handleUpdate(sender, env)
	case wire.TypeDelete:
		r.handleDelete(sender, env)
	default:
		r.log.Warn("dropping unhandled envelope type", "user", sender.UserID(), "type", env.Type)
	}
}

// handleDraw assigns a durable id, enqueues persistence, then delivers
// the acknowledged shape to the room: peers get it as an insert, the
// sender gets the same envelope as its reconciliation echo (the temp
// id rides along for both).
func (r *Router) handleDraw(sender *Conn, env wire.Envelope) {
	sh := *env.Shape
	sh.UserID = sender.UserID()
	if !sh.Durable() {
		sh.ID = r.newID()
	}

	persisted := sh
	persisted.TempID = ""
	r.queue.EnqueueUpsert(persisted)

	out := wire.Envelope{Type: wire.TypeDraw, RoomID: env.RoomID, Shape: &sh}
	r.deliver(env.RoomID, sender.UserID(), out)
	if !sender.trySend(out) {
		r.log.Warn("failed to echo draw ack", "user", sender.UserID(), "shape", sh.ID)
	}
}

// handleUpdate requires a durable id; without one the sender alone
// gets an error envelope and nothing is broadcast or persisted. The
// sender is excluded from the fan-out: it already applied the change
// locally before sending.
func (r *Router) handleUpdate(sender *Conn, env wire.Envelope) {
	if !env.Shape.Durable() {
		if !sender.trySend(wire.ErrorEnvelope(env.RoomID, "update requires a durable shape id")) {
			r.log.Warn("failed to deliver update rejection", "user", sender.UserID())
		}
		return
	}

	sh := *env.Shape
	sh.UserID = sender.UserID()
	sh.TempID = ""
	r.queue.EnqueueUpsert(sh)

	r.deliver(env.RoomID, sender.UserID(), wire.Envelope{
		Type: wire.TypeUpdate, RoomID: env.RoomID, Shape: &sh,
	})
}

func (r *Router) handleDelete(sender *Conn, env wire.Envelope) {
	r.queue.EnqueueDelete(env.RoomID, env.ShapeID)

	r.deliver(env.RoomID, sender.UserID(), wire.Envelope{
		Type: wire.TypeDelete, RoomID: env.RoomID, ShapeID: env.ShapeID,
	})
}

// deliver fans an envelope out to every room member except the given
// user. Delivery is per-target fire-and-forget: one full or dead peer
// queue costs only that peer its copy.
func (r *Router) deliver(roomID, excludingUserID string, env wire.Envelope) {
	for _, conn := range r.reg.MembersOf(roomID, excludingUserID) {
		if !conn.trySend(env) {
			r.log.Warn("dropping delivery to slow or closed peer",
				"room", roomID, "user", conn.UserID())
		}
	}
}
