package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ecopoints/internal/models"
)

const topSize = 10

// LeaderboardMessage is the wire frame pushed to connected clients. The
// same shape serves the connect-time snapshot and subsequent updates.
type LeaderboardMessage struct {
	Type     string                    `json:"type"` // "snapshot" or "update"
	Students []models.LeaderboardEntry `json:"students"`
	Schools  []models.LeaderboardEntry `json:"schools"`
}

// Source produces the current top-N of both scopes.
type Source interface {
	Snapshot(n int) (students, schools []models.LeaderboardEntry)
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 16),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Broadcaster pushes leaderboard changes to websocket clients. Publishes
// are coalesced: many applies within the throttle window produce one frame.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*client]bool

	source   Source
	throttle time.Duration

	flushMu    sync.Mutex
	flushTimer *time.Timer
}

// NewBroadcaster creates a broadcaster over the given leaderboard source.
func NewBroadcaster(source Source, throttle time.Duration) *Broadcaster {
	return &Broadcaster{
		clients:  make(map[*client]bool),
		source:   source,
		throttle: throttle,
	}
}

// AddClient registers a connection and sends it the current snapshot.
func (b *Broadcaster) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	if data, err := b.frame("snapshot"); err == nil {
		select {
		case c.send <- data:
		default:
			// Client too slow, drop the snapshot
		}
	}

	return c
}

// RemoveClient unregisters a connection and closes its send channel.
func (b *Broadcaster) RemoveClient(c *client) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		c.close()
	}
	b.mu.Unlock()
}

// Publish schedules a throttled broadcast of the current leaderboards.
// Safe to call from request handlers; never blocks.
func (b *Broadcaster) Publish() {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	if b.flushTimer == nil {
		b.flushTimer = time.AfterFunc(b.throttle, b.flush)
	}
}

func (b *Broadcaster) flush() {
	b.flushMu.Lock()
	b.flushTimer = nil
	b.flushMu.Unlock()

	data, err := b.frame("update")
	if err != nil {
		log.Printf("warning: failed to encode leaderboard frame: %v", err)
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		select {
		case c.send <- data:
		default:
			// Client too slow, drop this update
		}
	}
}

func (b *Broadcaster) frame(msgType string) ([]byte, error) {
	students, schools := b.source.Snapshot(topSize)
	return json.Marshal(LeaderboardMessage{
		Type:     msgType,
		Students: students,
		Schools:  schools,
	})
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}
