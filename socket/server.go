package socket

import (
	"log"

	socketio "github.com/googollee/go-socket.io"
)

// Server relays match-lifecycle events to connected Mini-App clients.
// Clients join their own player room on connect and a match room when a
// match starts; the services broadcast into those rooms through Emit.
type Server struct {
	io *socketio.Server
}

// NewServer initializes and returns a new Socket.IO server
func NewServer() *Server {
	io := socketio.NewServer(nil)

	io.OnConnect("/", func(c socketio.Conn) error {
		log.Println("✅ Socket connected:", c.ID())
		return nil
	})

	// Clients join a room per player id ("user:<telegramId>") and per match id.
	io.OnEvent("/", "join", func(c socketio.Conn, room string) {
		if room == "" {
			log.Println("❌ Invalid room in join request")
			return
		}
		log.Printf("👥 Socket %s joined room %s\n", c.ID(), room)
		c.Join(room)
	})

	io.OnEvent("/", "leave", func(c socketio.Conn, room string) {
		c.Leave(room)
	})

	io.OnDisconnect("/", func(c socketio.Conn, reason string) {
		log.Println("❌ Socket disconnected:", c.ID(), reason)
	})

	return &Server{io: io}
}

// Emit broadcasts an event into a room. Implements services.Notifier.
func (s *Server) Emit(room, event string, payload interface{}) {
	s.io.BroadcastToRoom("/", room, event, payload)
}

// IO exposes the underlying Socket.IO server for mounting and lifecycle.
func (s *Server) IO() *socketio.Server {
	return s.io
}
