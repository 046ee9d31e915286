package ws

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The feed is read-only public leaderboard data
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler upgrades GET /ws/leaderboard requests and parks them on the
// broadcaster until the peer disconnects.
func (b *Broadcaster) Handler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade failed: %v", err)
		return
	}

	c := b.AddClient(conn)
	defer b.RemoveClient(c)

	// Clients never send application data; the read loop only notices closes.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
