package bridge

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/seven-days-calm/internal/analytics"
	"github.com/ashureev/seven-days-calm/internal/domain"
	"github.com/ashureev/seven-days-calm/internal/identity"
	"github.com/ashureev/seven-days-calm/internal/metrics"
	"github.com/ashureev/seven-days-calm/internal/middleware"
)

// Message types.
const (
	TypePing      = "ping"
	TypePong      = "pong"
	TypeLifecycle = "lifecycle"
	TypeEvent     = "event"
	TypeAck       = "ack"
	TypeError     = "error"
)

// Lifecycle names carried by TypeLifecycle messages.
const (
	LifecycleCall   = "call"
	LifecycleHangup = "hangup"
)

const writeTimeout = 5 * time.Second

// Message is the frame exchanged with the page script.
type Message struct {
	Type    string         `json:"type"`
	Name    string         `json:"name,omitempty"`
	Day     *int           `json:"day,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
	ID      string         `json:"id,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// WebSocketHandler accepts bridge connections.
type WebSocketHandler struct {
	sink      analytics.Sink
	sm        *SessionManager
	allowlist []string
}

// NewWebSocketHandler creates a bridge handler that forwards events to sink.
func NewWebSocketHandler(sink analytics.Sink, sm *SessionManager, allowlist []string) *WebSocketHandler {
	if sink == nil {
		sink = analytics.Discard{}
	}
	return &WebSocketHandler{sink: sink, sm: sm, allowlist: allowlist}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("Widget bridge connection request", "user_id", userID, "session_id", sessionID, "ip", r.RemoteAddr)

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)

	h.readLoop(r.Context(), ws, userID, sessionID)
	slog.Info("Widget bridge session ended", "user_id", userID, "session_id", sessionID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	origin := strings.TrimRight(r.Header.Get("Origin"), "/")
	if origin == "" || middleware.OriginAllowed(h.allowlist, origin) {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

func (h *WebSocketHandler) readLoop(ctx context.Context, ws *websocket.Conn, userID, sessionID string) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Debug("WebSocket read ended", "error", err, "user_id", userID)
			}
			return
		}

		reply := h.handle(userID, sessionID, data)
		if err := writeJSON(ctx, ws, reply); err != nil {
			slog.Debug("Failed to write bridge reply", "error", err, "user_id", userID)
			return
		}
	}
}

// handle processes one frame and returns the reply. Bad frames get an error
// reply; they never end the session.
func (h *WebSocketHandler) handle(userID, sessionID string, data []byte) Message {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		metrics.BridgeMessages.WithLabelValues("invalid").Inc()
		return Message{Type: TypeError, Error: "invalid message"}
	}

	switch msg.Type {
	case TypePing:
		metrics.BridgeMessages.WithLabelValues(TypePing).Inc()
		return Message{Type: TypePong}

	case TypeLifecycle:
		var name string
		switch msg.Name {
		case LifecycleCall:
			name = analytics.EventConvaiStarted
		case LifecycleHangup:
			name = analytics.EventConvaiEnded
		default:
			metrics.BridgeMessages.WithLabelValues("invalid").Inc()
			return Message{Type: TypeError, Error: "unknown lifecycle " + msg.Name}
		}
		metrics.BridgeMessages.WithLabelValues(TypeLifecycle).Inc()
		payload := map[string]any{}
		if msg.Day != nil {
			payload["day"] = domain.ClampDay(*msg.Day)
		}
		return h.push(userID, sessionID, name, payload)

	case TypeEvent:
		if strings.TrimSpace(msg.Name) == "" {
			metrics.BridgeMessages.WithLabelValues("invalid").Inc()
			return Message{Type: TypeError, Error: "event name is required"}
		}
		metrics.BridgeMessages.WithLabelValues(TypeEvent).Inc()
		payload := msg.Payload
		if payload == nil {
			payload = map[string]any{}
		}
		if msg.Day != nil {
			payload["day"] = *msg.Day
		}
		return h.push(userID, sessionID, msg.Name, payload)

	default:
		metrics.BridgeMessages.WithLabelValues("invalid").Inc()
		return Message{Type: TypeError, Error: "unknown message type"}
	}
}

func (h *WebSocketHandler) push(userID, sessionID, name string, payload map[string]any) Message {
	payload["session_id"] = sessionID
	e := analytics.New(name, payload)
	e.UserID = userID
	if err := h.sink.Push(e); err != nil {
		slog.Warn("Failed to push bridge event", "event", name, "user_id", userID, "error", err)
	}
	return Message{Type: TypeAck, ID: e.ID, Name: name}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return ws.Write(ctx, websocket.MessageText, data)
}
