package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rl-arena/codebattle-backend/pkg/ratelimit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	connectionID string
	msgType      string
	payload      json.RawMessage
}

type recordingDispatcher struct {
	mu           sync.Mutex
	messages     []received
	disconnected []string
	notify       chan struct{}
}

func newRecordingDispatcher() *recordingDispatcher {
	return &recordingDispatcher{notify: make(chan struct{}, 64)}
}

func (d *recordingDispatcher) HandleMessage(connectionID, msgType string, payload json.RawMessage) error {
	d.mu.Lock()
	d.messages = append(d.messages, received{connectionID, msgType, payload})
	d.mu.Unlock()
	d.notify <- struct{}{}
	return nil
}

func (d *recordingDispatcher) HandleDisconnect(connectionID string) {
	d.mu.Lock()
	d.disconnected = append(d.disconnected, connectionID)
	d.mu.Unlock()
	d.notify <- struct{}{}
}

func (d *recordingDispatcher) wait(t *testing.T) {
	t.Helper()
	select {
	case <-d.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatcher")
	}
}

type testServer struct {
	hub        *Hub
	dispatcher *recordingDispatcher
	url        string
}

func newTestServer(t *testing.T, opts HubOptions) *testServer {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(opts, nil)
	go hub.Run(ctx)

	dispatcher := newRecordingDispatcher()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, dispatcher, w, r)
	}))

	t.Cleanup(func() {
		srv.Close()
		cancel()
	})

	return &testServer{
		hub:        hub,
		dispatcher: dispatcher,
		url:        "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

// dial 연결 후 connected 메시지에서 연결 ID 반환
func (s *testServer) dial(t *testing.T) (*websocket.Conn, string) {
	t.Helper()

	conn, _, err := websocket.DefaultDialer.Dial(s.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	var msg struct {
		Type    string           `json:"type"`
		Payload ConnectedPayload `json:"payload"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, MsgConnected, msg.Type)
	require.NotEmpty(t, msg.Payload.ConnectionID)

	return conn, msg.Payload.ConnectionID
}

func readMessage(t *testing.T, conn *websocket.Conn) (string, map[string]interface{}) {
	t.Helper()

	var msg struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg.Type, msg.Payload
}

func TestHub_DispatchesInboundMessages(t *testing.T) {
	s := newTestServer(t, HubOptions{})
	conn, id := s.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type":    "joinQueue",
		"payload": map[string]interface{}{"username": "alice", "topic": "DSA"},
	}))
	s.dispatcher.wait(t)

	s.dispatcher.mu.Lock()
	defer s.dispatcher.mu.Unlock()
	require.Len(t, s.dispatcher.messages, 1, "malformed envelope is dropped")
	assert.Equal(t, id, s.dispatcher.messages[0].connectionID)
	assert.Equal(t, "joinQueue", s.dispatcher.messages[0].msgType)
	assert.JSONEq(t, `{"username":"alice","topic":"DSA"}`, string(s.dispatcher.messages[0].payload))
}

func TestHub_SendToAndBroadcast(t *testing.T) {
	s := newTestServer(t, HubOptions{})
	connA, idA := s.dial(t)
	connB, idB := s.dial(t)

	s.hub.Subscribe("room-1", idA)
	s.hub.Subscribe("room-1", idB)
	s.hub.Subscribe("room-1", "unknown")
	assert.Equal(t, HubStats{Connections: 2, Groups: 1}, s.hub.Stats())

	s.hub.Broadcast("room-1", "roomJoined", map[string]string{"roomId": "room-1"})
	for _, conn := range []*websocket.Conn{connA, connB} {
		msgType, payload := readMessage(t, conn)
		assert.Equal(t, "roomJoined", msgType)
		assert.Equal(t, "room-1", payload["roomId"])
	}

	s.hub.SendTo(idB, "opponentCodeChange", map[string]string{"code": "x"})
	msgType, payload := readMessage(t, connB)
	assert.Equal(t, "opponentCodeChange", msgType)
	assert.Equal(t, "x", payload["code"])

	s.hub.CloseGroup("room-1")
	s.hub.Broadcast("room-1", "ignored", nil)
	s.hub.SendTo(idA, "statusUpdate", map[string]string{"message": "after close"})
	msgType, _ = readMessage(t, connA)
	assert.Equal(t, "statusUpdate", msgType, "closed group no longer receives broadcasts")
}

func TestHub_Unsubscribe(t *testing.T) {
	s := newTestServer(t, HubOptions{})
	connA, idA := s.dial(t)
	connB, idB := s.dial(t)

	s.hub.Subscribe("room-1", idA)
	s.hub.Subscribe("room-1", idB)
	s.hub.Unsubscribe("room-1", idA)

	s.hub.Broadcast("room-1", "opponentSubmitted", map[string]string{"username": "bob"})
	msgType, _ := readMessage(t, connB)
	assert.Equal(t, "opponentSubmitted", msgType)

	s.hub.SendTo(idA, "statusUpdate", map[string]string{"message": "direct"})
	msgType, _ = readMessage(t, connA)
	assert.Equal(t, "statusUpdate", msgType, "unsubscribed connection skips the broadcast")

	s.hub.Unsubscribe("room-1", idB)
	assert.Equal(t, HubStats{Connections: 2}, s.hub.Stats())
	s.hub.Unsubscribe("missing", idA)
}

func TestHub_DisconnectNotifiesDispatcher(t *testing.T) {
	s := newTestServer(t, HubOptions{})
	conn, id := s.dial(t)
	s.hub.Subscribe("room-1", id)

	require.NoError(t, conn.Close())
	s.dispatcher.wait(t)

	s.dispatcher.mu.Lock()
	assert.Equal(t, []string{id}, s.dispatcher.disconnected)
	s.dispatcher.mu.Unlock()

	assert.Eventually(t, func() bool {
		return s.hub.Stats() == HubStats{}
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHub_MessageRateLimit(t *testing.T) {
	limiter := ratelimit.NewRateLimiter(2, 0)
	defer limiter.Stop()

	s := newTestServer(t, HubOptions{MessageLimiter: limiter})
	conn, _ := s.dial(t)

	for i := 0; i < 4; i++ {
		require.NoError(t, conn.WriteJSON(map[string]string{"type": "codeChange"}))
	}
	s.dispatcher.wait(t)
	s.dispatcher.wait(t)

	select {
	case <-s.dispatcher.notify:
		t.Fatal("messages over the limit should be dropped")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	s := newTestServer(t, HubOptions{AllowedOrigins: []string{"http://localhost:3000"}})

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(s.url, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://localhost:3000"}}
	conn, _, err := websocket.DefaultDialer.Dial(s.url, header)
	require.NoError(t, err)
	conn.Close()
}
