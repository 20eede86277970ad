package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/seven-days-calm/internal/analytics"
	"github.com/ashureev/seven-days-calm/internal/identity"
	"github.com/ashureev/seven-days-calm/internal/store"
)

func TestHandleMessages(t *testing.T) {
	rec := analytics.NewRecorder()
	h := NewWebSocketHandler(rec, NewSessionManager(), nil)

	reply := h.handle("alice", "tab-1", []byte(`{"type":"ping"}`))
	assert.Equal(t, TypePong, reply.Type)

	reply = h.handle("alice", "tab-1", []byte(`{"type":"lifecycle","name":"call","day":3}`))
	assert.Equal(t, TypeAck, reply.Type)
	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, analytics.EventConvaiStarted, last.Name)
	assert.Equal(t, "alice", last.UserID)
	assert.Equal(t, 3, last.Payload["day"])
	assert.Equal(t, "tab-1", last.Payload["session_id"])
	assert.Equal(t, last.ID, reply.ID)

	reply = h.handle("alice", "tab-1", []byte(`{"type":"lifecycle","name":"hangup","day":3}`))
	assert.Equal(t, TypeAck, reply.Type)
	last, _ = rec.Last()
	assert.Equal(t, analytics.EventConvaiEnded, last.Name)

	reply = h.handle("alice", "tab-1", []byte(`{"type":"event","name":"em_day_unlocked","day":4,"payload":{"next_day":5}}`))
	assert.Equal(t, TypeAck, reply.Type)
	last, _ = rec.Last()
	assert.Equal(t, "em_day_unlocked", last.Name)
	assert.Equal(t, float64(5), last.Payload["next_day"])
	assert.Equal(t, 4, last.Payload["day"])
}

func TestHandleRejectsBadFrames(t *testing.T) {
	rec := analytics.NewRecorder()
	h := NewWebSocketHandler(rec, NewSessionManager(), nil)

	for _, frame := range []string{
		`not json`,
		`{"type":"teleport"}`,
		`{"type":"lifecycle","name":"explode"}`,
		`{"type":"event","name":"  "}`,
	} {
		reply := h.handle("alice", "tab-1", []byte(frame))
		assert.Equal(t, TypeError, reply.Type, "frame %s", frame)
		assert.NotEmpty(t, reply.Error)
	}
	assert.Empty(t, rec.Events())
}

func dial(t *testing.T, srv *httptest.Server, header http.Header) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/widget"
	conn, _, err := websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
	require.NoError(t, err)
	return conn
}

func roundTrip(t *testing.T, conn *websocket.Conn, msg string) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(msg)))
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var reply Message
	require.NoError(t, json.Unmarshal(data, &reply))
	return reply
}

func TestWebSocketSession(t *testing.T) {
	rec := analytics.NewRecorder()
	sm := NewSessionManager()
	h := NewWebSocketHandler(rec, sm, nil)
	srv := httptest.NewServer(identity.Middleware(store.NewMemory(), "demo-user")(h))
	defer srv.Close()

	header := http.Header{}
	header.Set(identity.UserHeaderName, "carol")
	header.Set(identity.SessionHeaderName, "tab-9")
	conn := dial(t, srv, header)
	defer conn.Close(websocket.StatusNormalClosure, "")

	reply := roundTrip(t, conn, `garbage`)
	assert.Equal(t, TypeError, reply.Type)

	reply = roundTrip(t, conn, `{"type":"lifecycle","name":"call","day":2}`)
	assert.Equal(t, TypeAck, reply.Type, "socket must survive a bad frame")

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, "carol", last.UserID)
	assert.Equal(t, "tab-9", last.Payload["session_id"])

	assert.Eventually(t, func() bool { return sm.GetActive("carol", "tab-9") != nil }, time.Second, 10*time.Millisecond)
}

func TestWebSocketRejectsForeignOrigin(t *testing.T) {
	h := NewWebSocketHandler(nil, NewSessionManager(), []string{"https://calm.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws/widget", nil)
	req.Header.Set("Origin", "https://evil.example")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
