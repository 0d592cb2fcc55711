package websocket

import (
	"context"
	"sync"

	"github.com/rl-arena/codebattle-backend/pkg/ratelimit"
	"go.uber.org/zap"
)

// Hub WebSocket 연결과 방(group) 구독 관리
// 연결 ID로 개별 전송, 방 ID로 그룹 전송한다.
type Hub struct {
	// 연결 ID -> *Client
	clients map[string]*Client
	// 방 ID -> 연결 ID 집합
	groups map[string]map[string]struct{}
	mu     sync.RWMutex

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	allowedOrigins map[string]bool
	limiter        *ratelimit.RateLimiter

	logger *zap.Logger
}

// Message WebSocket 메시지 봉투 {type, payload}
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// HubOptions Hub 설정
type HubOptions struct {
	// 비어 있으면 모든 origin 허용
	AllowedOrigins []string
	// 연결별 수신 메시지 제한 (nil이면 제한 없음)
	MessageLimiter *ratelimit.RateLimiter
}

// HubStats 연결 통계
type HubStats struct {
	Connections int `json:"connections"`
	Groups      int `json:"groups"`
}

// NewHub Hub 생성
func NewHub(opts HubOptions, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}

	origins := make(map[string]bool, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		origins[o] = true
	}

	return &Hub{
		clients:        make(map[string]*Client),
		groups:         make(map[string]map[string]struct{}),
		register:       make(chan *Client),
		unregister:     make(chan *Client),
		done:           make(chan struct{}),
		allowedOrigins: origins,
		limiter:        opts.MessageLimiter,
		logger:         logger,
	}
}

// Run Hub 실행. ctx가 취소되면 모든 연결을 닫는다.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client.id] = client
	h.deliver(client, &Message{Type: MsgConnected, Payload: ConnectedPayload{ConnectionID: client.id}})

	h.logger.Info("WebSocket client registered",
		zap.String("connectionId", client.id),
		zap.Int("totalClients", len(h.clients)))
}

func (h *Hub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if current, exists := h.clients[client.id]; !exists || current != client {
		return
	}

	delete(h.clients, client.id)
	for group, members := range h.groups {
		delete(members, client.id)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
	close(client.send)

	h.logger.Info("WebSocket client unregistered",
		zap.String("connectionId", client.id),
		zap.Int("totalClients", len(h.clients)))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, client := range h.clients {
		close(client.send)
		delete(h.clients, id)
	}
	h.groups = make(map[string]map[string]struct{})
}

// requestUnregister Run이 종료된 뒤에도 막히지 않음
func (h *Hub) requestUnregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribe 연결을 방에 추가 (없는 연결은 무시)
func (h *Hub) Subscribe(group, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.clients[connectionID]; !exists {
		return
	}

	members, ok := h.groups[group]
	if !ok {
		members = make(map[string]struct{})
		h.groups[group] = members
	}
	members[connectionID] = struct{}{}
}

// Unsubscribe 연결 하나를 방에서 제거
func (h *Hub) Unsubscribe(group, connectionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.groups[group]
	if !ok {
		return
	}
	delete(members, connectionID)
	if len(members) == 0 {
		delete(h.groups, group)
	}
}

// CloseGroup 방 구독 해제 (연결은 유지)
func (h *Hub) CloseGroup(group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.groups, group)
}

// SendTo 특정 연결에 메시지 전송
func (h *Hub) SendTo(connectionID, msgType string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if client, exists := h.clients[connectionID]; exists {
		h.deliver(client, &Message{Type: msgType, Payload: payload})
	}
}

// Broadcast 방의 모든 연결에 메시지 전송
func (h *Hub) Broadcast(group, msgType string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	message := &Message{Type: msgType, Payload: payload}
	for id := range h.groups[group] {
		if client, exists := h.clients[id]; exists {
			h.deliver(client, message)
		}
	}
}

// deliver h.mu를 잡은 상태에서 호출
func (h *Hub) deliver(client *Client, message *Message) {
	select {
	case client.send <- message:
	default:
		// 채널이 가득 찬 느린 연결은 해제
		h.logger.Warn("Client send channel full, unregistering",
			zap.String("connectionId", client.id),
			zap.String("type", message.Type))
		go h.requestUnregister(client)
	}
}

// Stats 연결 통계
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{Connections: len(h.clients), Groups: len(h.groups)}
}

func (h *Hub) checkOrigin(origin string) bool {
	if len(h.allowedOrigins) == 0 || origin == "" {
		return true
	}
	return h.allowedOrigins[origin]
}
