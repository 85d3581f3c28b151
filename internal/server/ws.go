package server

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ayusman/cuerposonoro/internal/pose"
	"github.com/ayusman/cuerposonoro/internal/session"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow local connections
	},
}

// frameMessage is the wire format of one landmark frame as produced by the
// pose tracker client.
type frameMessage struct {
	TimestampMs int64           `json:"timestamp_ms"`
	Landmarks   []pose.Landmark `json:"landmarks"`
}

// FramesHandler receives landmark frames over a WebSocket and feeds them to
// the session pipeline. One tracker connection at a time is expected; frames
// from concurrent connections interleave into the same session.
type FramesHandler struct {
	session *session.Session
}

// NewFramesHandler creates a new FramesHandler feeding the given session.
func NewFramesHandler(s *session.Session) *FramesHandler {
	return &FramesHandler{session: s}
}

// ServeHTTP handles WebSocket upgrade requests and reads frames until the
// client disconnects. Malformed frames are logged and skipped; they never
// close the connection or reset the pipeline.
func (h *FramesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg frameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("frames: skipping unparseable frame: %v", err)
			continue
		}

		frame, err := pose.FrameFromSlice(time.UnixMilli(msg.TimestampMs), msg.Landmarks)
		if err != nil {
			log.Printf("frames: skipping frame: %v", err)
			continue
		}

		if _, err := h.session.Process(frame); err != nil {
			log.Printf("frames: skipping frame: %v", err)
		}
	}
}

// MonitorHandler broadcasts session snapshots to connected monitoring
// clients over WebSocket.
type MonitorHandler struct {
	session *session.Session
	clients map[*websocket.Conn]bool
	mu      sync.RWMutex
}

// NewMonitorHandler creates a new MonitorHandler for the given session.
func NewMonitorHandler(s *session.Session) *MonitorHandler {
	h := &MonitorHandler{
		session: s,
		clients: make(map[*websocket.Conn]bool),
	}
	go h.broadcast()
	return h
}

// ServeHTTP handles WebSocket upgrade requests.
func (h *MonitorHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()

	defer func() {
		h.mu.Lock()
		delete(h.clients, conn)
		h.mu.Unlock()
	}()

	// Keep connection alive by reading messages
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

// broadcast sends session snapshots to all connected clients.
func (h *MonitorHandler) broadcast() {
	ticker := time.NewTicker(66 * time.Millisecond) // ~15 FPS
	defer ticker.Stop()

	for range ticker.C {
		h.mu.RLock()
		if len(h.clients) == 0 {
			h.mu.RUnlock()
			continue
		}
		h.mu.RUnlock()

		msg, err := json.Marshal(h.session.Snapshot())
		if err != nil {
			continue
		}

		h.mu.RLock()
		for conn := range h.clients {
			conn.WriteMessage(websocket.TextMessage, msg)
		}
		h.mu.RUnlock()
	}
}
