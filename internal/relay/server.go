package relay

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/drawbridge-app/drawbridge/internal/shape"
)

// Package-level websocket upgrader shared by all connections.
var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the bearer token is the access control, not the origin
	},
}

const pingInterval = 15 * time.Second

// ShapeReader serves the initial-state fetch. Implemented by
// *store.Store.
type ShapeReader interface {
	RecentShapes(ctx context.Context, roomID string, limit int) ([]shape.Shape, error)
}

// Server is the HTTP and websocket surface of the relay.
type Server struct {
	reg    *Registry
	router *Router
	auth   *TokenAuth
	shapes ShapeReader
	log    *slog.Logger

	fetchLimit    int
	sendQueueSize int
}

// NewServer wires the relay's HTTP surface together.
func NewServer(reg *Registry, router *Router, auth *TokenAuth, shapes ShapeReader, log *slog.Logger, fetchLimit, sendQueueSize int) *Server {
	if fetchLimit <= 0 {
		fetchLimit = 100
	}
	return &Server{
		reg:           reg,
		router:        router,
		auth:          auth,
		shapes:        shapes,
		log:           log,
		fetchLimit:    fetchLimit,
		sendQueueSize: sendQueueSize,
	}
}

// Routes builds the gin engine.
func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.POST("/token", s.mintToken)
	r.GET("/rooms/:roomId/shapes", s.roomShapes)
	r.GET("/ws", s.websocketHandler)

	return r
}

// mintToken stands in for the external auth collaborator in local and
// test deployments: it issues a signed connect token for a user id.
func (s *Server) mintToken(c *gin.Context) {
	var req struct {
		UserID string `json:"userId" binding:"required"`
	}
	if err := c.BindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": s.auth.Mint(req.UserID)})
}

// roomShapes returns the most recent durable shapes of a room in paint
// order, used by clients to seed their store before the socket is live.
func (s *Server) roomShapes(c *gin.Context) {
	roomID := c.Param("roomId")

	limit := s.fetchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		if n < limit {
			limit = n
		}
	}

	shapes, err := s.shapes.RecentShapes(c.Request.Context(), roomID, limit)
	if err != nil {
		s.log.Error("shape fetch failed", "room", roomID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load shapes"})
		return
	}
	if shapes == nil {
		shapes = []shape.Shape{}
	}
	c.JSON(http.StatusOK, gin.H{"shapes": shapes})
}

// websocketHandler authenticates the handshake, upgrades, and runs the
// connection's pumps. A bad or missing token is fatal to the attempt:
// the request is rejected before any state is queued.
func (s *Server) websocketHandler(c *gin.Context) {
	userID, err := s.auth.Verify(c.Query("token"))
	if err != nil {
		s.log.Warn("rejecting websocket handshake", "err", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.log.Warn("websocket upgrade failed", "user", userID, "err", err)
		return
	}

	conn := NewConn(userID, s.sendQueueSize)
	if replaced := s.reg.Register(conn); replaced != nil {
		// Last-connect-wins: the old socket is told to stop; its
		// reader's unregister is a no-op against the new entry.
		replaced.Close()
	}
	s.log.Info("client connected", "user", userID, "connections", s.reg.Len())

	go s.readPump(ws, conn)
	s.writePump(ws, conn)
}

// readPump feeds inbound messages to the router until the socket dies,
// then tears the connection down.
func (s *Server) readPump(ws *websocket.Conn, conn *Conn) {
	defer func() {
		s.reg.Unregister(conn)
		conn.Close()
		ws.Close()
		s.log.Info("client disconnected", "user", conn.UserID(), "connections", s.reg.Len())
	}()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		s.router.HandleMessage(conn, data)
	}
}

// writePump drains the connection's outbox onto the socket and keeps
// the connection alive with pings.
func (s *Server) writePump(ws *websocket.Conn, conn *Conn) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		conn.Close()
		ws.Close()
	}()

	for {
		select {
		case env := <-conn.Outbox():
			if err := ws.WriteJSON(env); err != nil {
				return
			}
		case <-ticker.C:
			if err := ws.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}
