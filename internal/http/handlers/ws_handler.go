package handlers

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/freelance-marketplace/contract-workflow/internal/auth"
	"github.com/freelance-marketplace/contract-workflow/internal/events"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// WSHub fans workflow events out to the connected parties of each contract.
type WSHub struct {
	jwtSecret   string
	subscriber  events.Subscriber
	log         *zap.Logger
	mu          sync.RWMutex
	connections map[uuid.UUID][]*wsConn
}

type frameWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// wsConn serializes writes; the websocket connection is not safe for
// concurrent writers.
type wsConn struct {
	mu   sync.Mutex
	conn frameWriter
}

func (c *wsConn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func NewWSHub(jwtSecret string, subscriber events.Subscriber, log *zap.Logger) *WSHub {
	return &WSHub{
		jwtSecret:   jwtSecret,
		subscriber:  subscriber,
		log:         log,
		connections: make(map[uuid.UUID][]*wsConn),
	}
}

func (h *WSHub) Start(ctx context.Context) error {
	return h.subscriber.Subscribe(ctx, events.Stream, h.Dispatch)
}

// Dispatch delivers the event to every connection of its recipients.
// Delivery is best effort: a failed write never fails the event.
func (h *WSHub) Dispatch(event events.Event) error {
	recipients := event.Recipients()
	if len(recipients) == 0 {
		return nil
	}

	data, err := json.Marshal(event)
	if err != nil {
		h.log.Warn("failed to marshal ws event", zap.String("type", event.Type), zap.Error(err))
		return nil
	}

	for _, recipient := range recipients {
		userID, err := uuid.Parse(recipient)
		if err != nil {
			continue
		}
		for _, conn := range h.snapshot(userID) {
			if err := conn.write(data); err != nil {
				h.log.Debug("ws write failed", zap.String("user_id", recipient), zap.Error(err))
			}
		}
	}
	return nil
}

// snapshot copies the user's connections so writes happen without the
// hub lock held.
func (h *WSHub) snapshot(userID uuid.UUID) []*wsConn {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]*wsConn(nil), h.connections[userID]...)
}

// WSUpgradeMiddleware checks for websocket upgrade
func WSUpgradeMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	}
}

func (h *WSHub) register(userID uuid.UUID, c *wsConn) {
	h.mu.Lock()
	h.connections[userID] = append(h.connections[userID], c)
	h.mu.Unlock()
}

func (h *WSHub) unregister(userID uuid.UUID, c *wsConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns := h.connections[userID]
	for i, existing := range conns {
		if existing == c {
			h.connections[userID] = append(conns[:i], conns[i+1:]...)
			break
		}
	}
	if len(h.connections[userID]) == 0 {
		delete(h.connections, userID)
	}
}

func (h *WSHub) HandleWS(conn *websocket.Conn) {
	tokenStr := conn.Query("token")
	if tokenStr == "" {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"missing token"}`))
		conn.Close()
		return
	}

	claims, err := auth.ParseJWT(h.jwtSecret, tokenStr)
	if err != nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"invalid token"}`))
		conn.Close()
		return
	}

	userID := claims.UserID
	c := &wsConn{conn: conn}
	h.register(userID, c)
	defer func() {
		h.unregister(userID, c)
		conn.Close()
	}()

	// Read loop (keep alive / pings)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
