package web

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"asv-survey/internal/survey"
)

const streamWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

// Stream fans saved records out to websocket clients. It is a survey.Sink.
// A new client is sent the most recent record first.
type Stream struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte
	last    []byte
	buffer  int
	closed  bool
}

func NewStream(buffer int) *Stream {
	if buffer <= 0 {
		buffer = 8
	}
	return &Stream{clients: map[*websocket.Conn]chan []byte{}, buffer: buffer}
}

func (s *Stream) Name() string { return "websocket" }

// Save never blocks on a slow client; its message is dropped instead.
func (s *Stream) Save(_ context.Context, r survey.Record) error {
	b, err := json.Marshal(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = b
	for _, ch := range s.clients {
		select {
		case ch <- b:
		default:
		}
	}
	return nil
}

// Clients is the number of connected subscribers.
func (s *Stream) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Stream) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ch := make(chan []byte, s.buffer)
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			_ = conn.Close()
			return
		}
		if s.last != nil {
			ch <- s.last
		}
		s.clients[conn] = ch
		s.mu.Unlock()

		go s.writeLoop(conn, ch)
		go func() {
			defer s.drop(conn)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
	})
}

func (s *Stream) writeLoop(conn *websocket.Conn, ch <-chan []byte) {
	for b := range ch {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			log.Printf("stream: write to %s failed: %v", conn.RemoteAddr(), err)
			s.drop(conn)
			return
		}
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	_ = conn.Close()
}

func (s *Stream) drop(conn *websocket.Conn) {
	s.mu.Lock()
	ch, ok := s.clients[conn]
	if ok {
		delete(s.clients, conn)
		close(ch)
	}
	s.mu.Unlock()
	if ok {
		_ = conn.Close()
	}
}

// Close disconnects every client.
func (s *Stream) Close() error {
	s.mu.Lock()
	s.closed = true
	for conn, ch := range s.clients {
		delete(s.clients, conn)
		close(ch)
	}
	s.mu.Unlock()
	return nil
}
