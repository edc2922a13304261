// wsbroadcast.go
//
// Optional live event feed over WebSocket: a dashboard watching cluster
// state doesn't have to poll /cluster/status. Grounded on the teacher's
// websocket.go WSManager (register/unregister channels, a send buffer per
// client, ping/pong keepalive), simplified from per-user rooms to a single
// broadcast-to-all room since cluster events have no owning user.
package parkcluster

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
)

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ClusterEvent is one message pushed to every connected dashboard client.
type ClusterEvent struct {
	Type       string    `json:"type"`
	NodeID     string    `json:"node_id"`
	Leader     string    `json:"leader,omitempty"`
	Decision   string    `json:"decision,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// ClusterEventBroadcaster fans out ClusterEvents to every connected client.
type ClusterEventBroadcaster struct {
	mu       sync.RWMutex
	clients  map[*wsClient]bool
	register chan *wsClient
	unreg    chan *wsClient
	closed   chan struct{}
}

// NewClusterEventBroadcaster constructs an idle broadcaster; call Run in a
// goroutine to start serving register/unregister/broadcast traffic.
func NewClusterEventBroadcaster() *ClusterEventBroadcaster {
	return &ClusterEventBroadcaster{
		clients:  make(map[*wsClient]bool),
		register: make(chan *wsClient),
		unreg:    make(chan *wsClient),
		closed:   make(chan struct{}),
	}
}

// Run services the broadcaster's registration channels until Stop is called.
func (b *ClusterEventBroadcaster) Run() {
	for {
		select {
		case c := <-b.register:
			b.mu.Lock()
			b.clients[c] = true
			b.mu.Unlock()
		case c := <-b.unreg:
			b.mu.Lock()
			if _, ok := b.clients[c]; ok {
				delete(b.clients, c)
				close(c.send)
			}
			b.mu.Unlock()
		case <-b.closed:
			b.mu.Lock()
			for c := range b.clients {
				c.conn.Close()
				close(c.send)
			}
			b.clients = make(map[*wsClient]bool)
			b.mu.Unlock()
			return
		}
	}
}

// Stop tears down every connected client and stops Run.
func (b *ClusterEventBroadcaster) Stop() { close(b.closed) }

// Broadcast pushes evt to every connected client. A client whose send
// buffer is full is dropped rather than blocking the broadcaster.
func (b *ClusterEventBroadcaster) Broadcast(evt ClusterEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		Logger().Warn("ws_broadcast_marshal_failed", "err", err)
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			go func(cl *wsClient) { b.unreg <- cl }(c)
		}
	}
}

// ServeWS upgrades the connection and registers it with the broadcaster.
func (b *ClusterEventBroadcaster) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		Logger().Warn("ws_upgrade_failed", "err", err)
		return
	}
	client := &wsClient{conn: conn, send: make(chan []byte, 64)}
	b.register <- client
	go client.writePump()
	go client.readPump(b)
}

func (c *wsClient) readPump(b *ClusterEventBroadcaster) {
	defer func() {
		b.unreg <- c
		c.conn.Close()
	}()
	_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
