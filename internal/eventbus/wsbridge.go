package eventbus

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketBridge republishes Bus events to any number of connected
// websocket clients, for dashboards that want a live feed of cycle and
// trade events without polling the snapshot tree. Grounded on the
// connection/write idiom of the Kalshi websocket client, adapted here
// to the server side.
type WebSocketBridge struct {
	bus      *Bus
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// NewWebSocketBridge wires a bridge to bus. It does not start serving
// until ServeHTTP is registered with an http.Server.
func NewWebSocketBridge(bus *Bus) *WebSocketBridge {
	return &WebSocketBridge{
		bus:   bus,
		conns: make(map[*websocket.Conn]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the connection and streams bus events to it until
// the client disconnects or the write fails.
func (w *WebSocketBridge) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	conn, err := w.upgrader.Upgrade(rw, r, nil)
	if err != nil {
		log.Printf("[EventBus] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	w.mu.Lock()
	w.conns[conn] = struct{}{}
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.conns, conn)
		w.mu.Unlock()
	}()

	sub := w.bus.Subscribe()
	defer sub.Unsubscribe()

	for ev := range sub.Events() {
		body, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[EventBus] marshal event for websocket: %v", err)
			continue
		}
		conn.SetWriteDeadline(timeNow().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
			return
		}
	}
}

// ConnectionCount reports how many websocket clients are attached.
func (w *WebSocketBridge) ConnectionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.conns)
}

var timeNow = time.Now
