package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// 제출 코드가 담기므로 넉넉하게
	maxMessageSize = 128 * 1024

	// MsgConnected 연결 직후 연결 ID를 알려주는 메시지
	MsgConnected = "connected"
)

// Dispatcher 수신 메시지 처리 (service.RoomCoordinator)
type Dispatcher interface {
	HandleMessage(connectionID, msgType string, payload json.RawMessage) error
	HandleDisconnect(connectionID string)
}

// envelope 수신 메시지 봉투
type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ConnectedPayload connected 메시지 내용
type ConnectedPayload struct {
	ConnectionID string `json:"connectionId"`
}

// Client WebSocket 연결 하나
type Client struct {
	id         string
	hub        *Hub
	conn       *websocket.Conn
	send       chan *Message
	dispatcher Dispatcher
	logger     *zap.Logger
}

func newClient(hub *Hub, conn *websocket.Conn, dispatcher Dispatcher) *Client {
	id := uuid.New().String()
	return &Client{
		id:         id,
		hub:        hub,
		conn:       conn,
		send:       make(chan *Message, 256),
		dispatcher: dispatcher,
		logger:     hub.logger.With(zap.String("connectionId", id)),
	}
}

// readPump 클라이언트 메시지를 Dispatcher로 전달 (핑/퐁 유지)
func (c *Client) readPump() {
	defer func() {
		c.hub.requestUnregister(c)
		c.conn.Close()
		if c.hub.limiter != nil {
			c.hub.limiter.Reset(c.id)
		}
		c.dispatcher.HandleDisconnect(c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			break
		}

		c.handle(data)
	}
}

func (c *Client) handle(data []byte) {
	if c.hub.limiter != nil && !c.hub.limiter.Allow(c.id) {
		c.logger.Debug("WebSocket message rate limited")
		return
	}

	var msg envelope
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		c.logger.Debug("Dropping malformed WebSocket message", zap.Int("bytes", len(data)))
		return
	}

	if err := c.dispatcher.HandleMessage(c.id, msg.Type, msg.Payload); err != nil {
		c.logger.Debug("WebSocket message rejected", zap.String("type", msg.Type), zap.Error(err))
	}
}

// writePump Hub로부터 메시지를 받아 클라이언트에게 전송
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub가 채널을 닫음
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(message)
			if err != nil {
				c.logger.Error("Failed to marshal message", zap.String("type", message.Type), zap.Error(err))
				continue
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("Failed to write message", zap.Error(err))
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs WebSocket 연결 업그레이드 및 클라이언트 시작
func ServeWs(hub *Hub, dispatcher Dispatcher, w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return hub.checkOrigin(r.Header.Get("Origin"))
		},
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := newClient(hub, conn, dispatcher)

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
