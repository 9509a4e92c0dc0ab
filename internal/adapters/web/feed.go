package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"inventory-admin/internal/entity"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 30 * time.Second
	writeWait  = 10 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// feedMessage is one collection snapshot sent to a browser.
type feedMessage struct {
	Collection string `json:"collection"`
	Items      any    `json:"items,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Hub tracks open change-feed connections so they can be closed on shutdown.
type Hub struct {
	clients map[string]*websocket.Conn
	mu      sync.RWMutex
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]*websocket.Conn)}
}

// Register adds a connection under id.
func (h *Hub) Register(id string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[id] = conn
	log.Printf("web: feed client registered: %s", id)
}

// Unregister removes the connection under id.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[id]; ok {
		delete(h.clients, id)
		log.Printf("web: feed client unregistered: %s", id)
	}
}

// Len returns the number of open connections.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CloseAll sends a going-away close frame to every client and closes it.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	for id, conn := range h.clients {
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		delete(h.clients, id)
	}
}

func newUpgrader(allowedOrigins []string) *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(allowedOrigins, origin) {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// serveFeed upgrades the request and streams a snapshot of st after every
// change. Only the latest pending snapshot is kept for a slow client, since
// each one carries the whole collection.
func serveFeed[T any](h *Handler, st *entity.Store[T], w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: feed upgrade for %s failed: %v", st.Collection(), err)
		return
	}
	id := uuid.NewString()
	h.hub.Register(id, conn)

	ctx, cancel := context.WithCancel(context.Background())
	pending := make(chan []byte, 1)
	unsubscribe := st.Subscribe(ctx, func(snap entity.Snapshot[T]) {
		msg := feedMessage{Collection: st.Collection(), Items: snap.Items}
		if snap.Err != nil {
			msg.Items = nil
			msg.Error = snap.Err.Error()
		}
		b, err := json.Marshal(msg)
		if err != nil {
			log.Printf("web: encode %s snapshot: %v", st.Collection(), err)
			return
		}
		select {
		case pending <- b:
		default:
			select {
			case <-pending:
			default:
			}
			select {
			case pending <- b:
			default:
			}
		}
	})

	defer func() {
		unsubscribe()
		cancel()
		h.hub.Unregister(id)
		conn.Close()
	}()

	go writeFeed(ctx, conn, pending, cancel)

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("web: feed %s closed: %v", id, err)
			}
			return
		}
	}
}

func writeFeed(ctx context.Context, conn *websocket.Conn, pending <-chan []byte, cancel context.CancelFunc) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case b := <-pending:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
