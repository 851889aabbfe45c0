package relaytest

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/BioHazard786/warpmesh/internal/signaling"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Server is a relay listening on a loopback httptest server.
type Server struct {
	hub    *Hub
	http   *httptest.Server
	cancel context.CancelFunc
}

// NewServer starts a relay. Call Close when done.
func NewServer(logger *slog.Logger) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(logger)
	go hub.Run(ctx)

	s := &Server{hub: hub, cancel: cancel}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.serveWs)
	s.http = httptest.NewServer(mux)
	return s
}

// URL returns the websocket endpoint.
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.http.URL, "http") + "/ws"
}

func (s *Server) Close() {
	s.http.CloseClientConnections()
	s.http.Close()
	s.cancel()
}

// Members returns the client ids in roomID in join order.
func (s *Server) Members(ctx context.Context, roomID string) []string {
	var ids []string
	s.hub.do(ctx, func() {
		if r := s.hub.rooms[roomID]; r != nil {
			for _, p := range r.order {
				ids = append(ids, p.clientID)
			}
		}
	})
	return ids
}

// Inject delivers msg to clientID in roomID as if the relay had produced it.
func (s *Server) Inject(ctx context.Context, roomID, clientID string, msg *signaling.Message) bool {
	sent := false
	s.hub.do(ctx, func() {
		if r := s.hub.rooms[roomID]; r != nil {
			if p := r.members[clientID]; p != nil {
				s.hub.push(p, msg)
				sent = true
			}
		}
	})
	return sent
}

func (s *Server) serveWs(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.hub.logger.Warn("failed to upgrade connection", "error", err)
		return
	}

	p := &peer{hub: s.hub, conn: conn, send: make(chan *signaling.Message, 256)}
	select {
	case s.hub.register <- p:
	case <-s.hub.stopped:
		conn.Close()
		return
	}

	go p.writePump()
	go p.readPump()
}

// peer is one websocket connection to the relay.
type peer struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan *signaling.Message
	roomID      string
	clientID    string
	displayName string
}

func (p *peer) readPump() {
	defer func() {
		select {
		case p.hub.unregister <- p:
		case <-p.hub.stopped:
		}
		p.conn.Close()
	}()

	p.conn.SetReadLimit(maxMessageSize)
	p.conn.SetReadDeadline(time.Now().Add(pongWait))
	p.conn.SetPongHandler(func(string) error {
		return p.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg signaling.Message
		if err := p.conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case p.hub.inbound <- &frame{msg: &msg, from: p}:
		case <-p.hub.stopped:
			return
		}
	}
}

func (p *peer) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		p.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-p.send:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				p.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := p.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			p.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := p.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-p.hub.stopped:
			return
		}
	}
}
