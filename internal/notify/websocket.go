package notify

import (
	"io"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// OwnerFunc extracts the authenticated owner id from a request.
type OwnerFunc func(r *http.Request) (string, bool)

// WebSocketHandler streams an owner's events over a websocket connection.
type WebSocketHandler struct {
	hub      *Hub
	owner    OwnerFunc
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

// NewWebSocketHandler builds the handler. checkOrigin may be nil to accept
// same-origin requests only.
func NewWebSocketHandler(hub *Hub, owner OwnerFunc, checkOrigin func(*http.Request) bool, logger *zerolog.Logger) *WebSocketHandler {
	l := zerolog.New(io.Discard)
	if logger != nil {
		l = *logger
	}
	return &WebSocketHandler{
		hub:   hub,
		owner: owner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger: l,
	}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := h.owner(r)
	if !ok || ownerID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("notify: websocket upgrade failed")
		return
	}
	sub := h.hub.Subscribe(ownerID)
	h.logger.Debug().Str("owner_id", ownerID).Msg("notify: websocket connected")

	done := make(chan struct{})
	go h.readPump(conn, done)
	h.writePump(conn, sub, done)
	sub.Close()
	h.logger.Debug().Str("owner_id", ownerID).Msg("notify: websocket disconnected")
}

// readPump discards client messages and tracks pongs until the peer leaves.
func (h *WebSocketHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(512)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug().Err(err).Msg("notify: websocket read error")
			}
			return
		}
	}
}

func (h *WebSocketHandler) writePump(conn *websocket.Conn, sub *Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()
	for {
		select {
		case <-done:
			return
		case e, ok := <-sub.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "subscriber too slow"))
				return
			}
			if err := conn.WriteJSON(e); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
