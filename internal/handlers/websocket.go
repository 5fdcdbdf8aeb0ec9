package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"talentscout/internal/services"
)

const (
	wsReadTimeout  = 10 * time.Minute
	wsPingInterval = 30 * time.Second
	wsMaxMessage   = 16 * 1024
)

// ClientMessage is a message from the interview client
type ClientMessage struct {
	Type string `json:"type"` // "message" or "ping"
	Text string `json:"text,omitempty"`
}

// ServerMessage is a message to the interview client
type ServerMessage struct {
	Type  string         `json:"type"` // "connected", "reply", "error", "pong"
	Reply *ReplyResponse `json:"reply,omitempty"`
	Error string         `json:"error,omitempty"`
}

// WebSocketHandler carries interview turns over a WebSocket
type WebSocketHandler struct {
	interviews *InterviewHandler
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(interviews *InterviewHandler) *WebSocketHandler {
	return &WebSocketHandler{interviews: interviews}
}

type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (w *wsConn) send(msg ServerMessage) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(msg)
}

// Handle handles a new WebSocket connection for /ws/interviews/:id
func (h *WebSocketHandler) Handle(c *websocket.Conn) {
	candidateID := c.Params("id")
	conn := &wsConn{conn: c}
	done := make(chan struct{})
	defer close(done)

	session, err := h.interviews.sessions.Session(candidateID)
	if err != nil {
		_, message := errorStatus(err)
		_ = conn.send(ServerMessage{Type: "error", Error: message})
		return
	}

	wsGauge := services.GetMetrics().WebSocketConnections
	wsGauge.Inc()
	defer wsGauge.Dec()

	c.SetReadLimit(wsMaxMessage)
	c.SetReadDeadline(time.Now().Add(wsReadTimeout))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})
	go h.pingLoop(conn, done)

	log.Printf("🔌 [WS] Candidate %s connected", candidateID)
	if err := conn.send(ServerMessage{
		Type:  "connected",
		Reply: h.interviews.render(&services.Reply{Stage: session.Stage()}),
	}); err != nil {
		return
	}

	for {
		_, raw, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("⚠️  [WS] Read error for %s: %v", candidateID, err)
			}
			return
		}
		c.SetReadDeadline(time.Now().Add(wsReadTimeout))

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			if conn.send(ServerMessage{Type: "error", Error: "Invalid message format"}) != nil {
				return
			}
			continue
		}

		switch msg.Type {
		case "ping":
			if conn.send(ServerMessage{Type: "pong"}) != nil {
				return
			}
		case "message":
			out, ended := h.turn(candidateID, msg.Text)
			if conn.send(out) != nil || ended {
				return
			}
		default:
			if conn.send(ServerMessage{Type: "error", Error: "Unknown message type"}) != nil {
				return
			}
		}
	}
}

// turn runs one interview turn and reports whether the connection should close
func (h *WebSocketHandler) turn(candidateID, text string) (ServerMessage, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	reply, err := h.interviews.sessions.Submit(ctx, candidateID, text)
	if err != nil && reply == nil {
		_, message := errorStatus(err)
		return ServerMessage{Type: "error", Error: message}, errors.Is(err, services.ErrSessionNotFound)
	}

	out := ServerMessage{Type: "reply", Reply: h.interviews.render(reply)}
	if err != nil && !errors.Is(err, services.ErrSessionEnded) {
		log.Printf("❌ [WS] Session %s: %v", candidateID, err)
		out.Error = "Your answers could not be saved yet. Send any message to retry."
	}
	return out, reply.SessionEnded
}

func (h *WebSocketHandler) pingLoop(conn *wsConn, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			conn.mu.Lock()
			err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second))
			conn.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}
