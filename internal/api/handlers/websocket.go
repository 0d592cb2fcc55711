package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/rl-arena/codebattle-backend/internal/websocket"
)

// WebSocketHandler WebSocket 연결 처리
type WebSocketHandler struct {
	hub        *websocket.Hub
	dispatcher websocket.Dispatcher
}

// NewWebSocketHandler WebSocketHandler 생성
func NewWebSocketHandler(hub *websocket.Hub, dispatcher websocket.Dispatcher) *WebSocketHandler {
	return &WebSocketHandler{
		hub:        hub,
		dispatcher: dispatcher,
	}
}

// HandleWebSocket WebSocket 연결 엔드포인트
// 참가자 식별은 메시지의 username으로 한다.
func (h *WebSocketHandler) HandleWebSocket(c *gin.Context) {
	websocket.ServeWs(h.hub, h.dispatcher, c.Writer, c.Request)
}
