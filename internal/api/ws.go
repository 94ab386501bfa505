package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"tablio/internal/fanout"
	"tablio/internal/metrics"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Cross-origin policy is enforced at the edge proxy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsConn adapts a websocket connection to the fanout delivery interface.
// Writes are serialized; a slow or dead peer fails fast on the deadline
// instead of blocking the publisher.
type wsConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsConn) SendEvent(event fanout.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
		return err
	}
	return c.conn.WriteJSON(event)
}

// handleWebSocket upgrades a staff connection and subscribes it to the
// restaurant's live booking feed until the peer disconnects.
// GET /ws/restaurants/{id}
func (s *HTTPServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("ws_subscribe")

	c, err := s.staffCaller(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid session")
		return
	}

	restaurantID, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid restaurant id")
		return
	}
	if restaurantID != c.restaurantID {
		writeError(w, http.StatusForbidden, "session is scoped to a different restaurant")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	subscriber := &wsConn{conn: conn}
	s.registry.Subscribe(restaurantID, subscriber)
	s.logger.Info().Int64("restaurant_id", restaurantID).Msg("websocket subscribed")

	// The feed is one-way; the read loop only notices the peer going away.
	go func() {
		defer func() {
			s.registry.Unsubscribe(subscriber)
			_ = conn.Close()
			s.logger.Info().Int64("restaurant_id", restaurantID).Msg("websocket closed")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
