package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 5 * time.Second
)

type wsMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func mustMarshal(v any) json.RawMessage {
	data, _ := json.Marshal(v)
	return data
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	ping time.Duration
	// reason goes into the close frame once send is closed.
	reason string
}

func (c *client) sendJSON(msg wsMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// Hub fans game updates out to the websocket clients watching each game.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*client]struct{}
	// pingPeriod is how long a watcher may sit idle before it is pinged.
	pingPeriod time.Duration
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*client]struct{}), pingPeriod: wsPingPeriod}
}

// register adds c to the room of game and queues its first message.
func (h *Hub) register(game string, c *client, first wsMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.sendJSON(first)
	room, ok := h.rooms[game]
	if !ok {
		room = make(map[*client]struct{})
		h.rooms[game] = room
	}
	room[c] = struct{}{}
}

func (h *Hub) unregister(game string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[game]
	if _, ok := room[c]; !ok {
		return
	}
	delete(room, c)
	close(c.send)
	if len(room) == 0 {
		delete(h.rooms, game)
	}
}

// sendTo delivers msg to c if it is still connected to game.
func (h *Hub) sendTo(game string, c *client, msg wsMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[game][c]; ok {
		c.sendJSON(msg)
	}
}

// Publish never blocks; slow clients miss messages.
func (h *Hub) Publish(game, typ string, payload any) {
	msg := wsMessage{Type: typ, Payload: mustMarshal(payload)}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[game] {
		c.sendJSON(msg)
	}
}

// CloseRoom disconnects every client of game, telling them why.
func (h *Hub) CloseRoom(game, reason string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.rooms[game] {
		c.reason = reason
		close(c.send)
	}
	delete(h.rooms, game)
}

func (h *Hub) Clients(game string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[game])
}

// writeLoop owns every write to c.conn. A ping frame goes out whenever the
// connection has been quiet for c.ping, and a closed send channel
// ends the loop with a close frame carrying c.reason.
func (c *client) writeLoop() error {
	idle := time.NewTimer(c.ping)
	defer idle.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				return c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.reason))
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return err
			}
		case <-idle.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return err
			}
		}
		idle.Reset(c.ping)
	}
}

// keepAlive drops a watcher that neither talks nor answers pings for two
// ping periods.
func (c *client) keepAlive() {
	c.extend()
	c.conn.SetPongHandler(func(string) error { return c.extend() })
}

func (c *client) extend() error {
	return c.conn.SetReadDeadline(time.Now().Add(2 * c.ping))
}

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// serveWS streams snapshots of g until either side goes away. Clients may
// send {"type":"request_status"} to get the current snapshot again.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, g *game) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 16), ping: s.hub.pingPeriod}
	c.keepAlive()
	s.hub.register(g.id, c, wsMessage{Type: "snapshot", Payload: mustMarshal(g.sess.Snapshot())})

	go func() {
		defer conn.Close()
		_ = c.writeLoop()
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.hub.unregister(g.id, c)
			return
		}
		_ = c.extend()
		var msg wsMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "request_status":
			s.hub.sendTo(g.id, c, wsMessage{Type: "snapshot", Payload: mustMarshal(g.sess.Snapshot())})
		}
	}
}
