// Package client implements the room session protocol over one
// websocket connection: it sends local mutations as envelopes, applies
// remote envelopes to the board store, and seeds the store from the
// initial-state fetch.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/drawbridge-app/drawbridge/internal/board"
	"github.com/drawbridge-app/drawbridge/internal/shape"
	"github.com/drawbridge-app/drawbridge/internal/wire"
)

// ErrShapeNotDurable is returned for updates and deletes of shapes the
// server has not acknowledged yet. Sending one would be a protocol
// violation; the relay rejects id-less updates.
var ErrShapeNotDurable = errors.New("shape has no durable id yet")

// ErrClosed is returned once the transport is gone. A gesture in
// flight at that point stays local-only for the rest of the session;
// the next room load refetches durable state and drops it.
var ErrClosed = errors.New("connection closed")

// Client owns one websocket for one room session and drives the board
// store from both ends: local gestures out, remote envelopes in.
//
// The reader goroutine is the only network writer into the store;
// outbound writes are serialized by a mutex because the websocket
// permits a single concurrent writer.
type Client struct {
	roomID string
	store  *board.Store
	log    *slog.Logger

	ws      *websocket.Conn
	writeMu sync.Mutex

	done      chan struct{}
	closeOnce sync.Once

	// newTempID generates gesture placeholders; overridable in tests.
	newTempID func() string
}

// Dial opens the websocket (the caller supplies the full URL including
// the token query parameter), sends join_room, and starts the reader.
func Dial(ctx context.Context, wsURL, roomID string, store *board.Store, log *slog.Logger) (*Client, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", wsURL, err)
	}

	c := &Client{
		roomID:    roomID,
		store:     store,
		log:       log,
		ws:        ws,
		done:      make(chan struct{}),
		newTempID: func() string { return "temp-" + uuid.NewString() },
	}

	if err := c.send(wire.Envelope{Type: wire.TypeJoinRoom, RoomID: roomID}); err != nil {
		ws.Close()
		return nil, err
	}

	go c.readLoop()
	return c, nil
}

// Seed fetches the room's durable shapes over HTTP and loads them into
// the store. Call before (or right after) Dial; anything the fetch
// misses arrives over the live socket.
func Seed(ctx context.Context, httpClient *http.Client, baseURL, roomID string, store *board.Store) error {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/rooms/%s/shapes", baseURL, roomID), nil)
	if err != nil {
		return fmt.Errorf("seed room %s: %w", roomID, err)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("seed room %s: %w", roomID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("seed room %s: unexpected status %s", roomID, resp.Status)
	}

	var body struct {
		Shapes []shape.Shape `json:"shapes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return fmt.Errorf("seed room %s: %w", roomID, err)
	}

	store.Seed(body.Shapes)
	return nil
}

// Draw applies the shape optimistically under a fresh temp id and
// sends the draw envelope. The returned temp id identifies the gesture
// until the acknowledgement reconciles it.
//
// If the send fails the shape stays in the store as local-only state;
// it is never retried and never silently duplicated on reconnect.
func (c *Client) Draw(sh shape.Shape) (string, error) {
	tempID := c.newTempID()
	sh.RoomID = c.roomID
	c.store.InsertOptimistic(sh, tempID)

	sh.ID = ""
	sh.TempID = tempID
	err := c.send(wire.Envelope{Type: wire.TypeDraw, RoomID: c.roomID, Shape: &sh})
	if err != nil {
		c.log.Warn("draw not sent, shape stays local-only", "tempId", tempID, "err", err)
		return tempID, err
	}
	return tempID, nil
}

// Update applies a full-record replace locally and broadcasts it. The
// shape must already carry its durable id.
func (c *Client) Update(sh shape.Shape) error {
	if !sh.Durable() {
		return ErrShapeNotDurable
	}
	sh.RoomID = c.roomID
	sh.TempID = ""

	// Applied locally first; the relay excludes us from the broadcast.
	c.store.ApplyRemoteUpdate(sh)
	return c.send(wire.Envelope{Type: wire.TypeUpdate, RoomID: c.roomID, Shape: &sh})
}

// Delete removes the shape locally and broadcasts the deletion.
func (c *Client) Delete(shapeID string) error {
	if shapeID == "" {
		return ErrShapeNotDurable
	}
	c.store.ApplyRemoteDelete(shapeID)
	return c.send(wire.Envelope{Type: wire.TypeDelete, RoomID: c.roomID, ShapeID: shapeID})
}

// Leave sends leave_room; no acknowledgement exists for it.
func (c *Client) Leave() error {
	return c.send(wire.Envelope{Type: wire.TypeLeaveRoom, RoomID: c.roomID})
}

// Close tears the transport down. Idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.Close()
	})
}

// Done is closed once the connection is gone, whether by Close or by a
// transport failure.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) send(env wire.Envelope) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.WriteJSON(env); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

// readLoop applies inbound envelopes to the store until the socket
// dies. Reconciliation is keyed by temp id inside the store, never by
// timing: acknowledgements may arrive out of order relative to later
// gestures.
func (c *Client) readLoop() {
	defer c.Close()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				c.log.Warn("connection lost", "room", c.roomID, "err", err)
			}
			return
		}

		env, err := wire.Decode(data)
		if err != nil {
			c.log.Warn("dropping malformed server envelope", "err", err)
			continue
		}

		switch env.Type {
		case wire.TypeDraw:
			c.store.ApplyRemoteInsert(*env.Shape)
		case wire.TypeUpdate:
			c.store.ApplyRemoteUpdate(*env.Shape)
		case wire.TypeDelete:
			c.store.ApplyRemoteDelete(env.ShapeID)
		case wire.TypeError:
			c.log.Warn("server rejected a request", "room", env.RoomID, "err", env.Error)
		default:
			c.log.Warn("dropping unhandled server envelope", "type", env.Type)
		}
	}
}
