package service

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// PlaceholderCode 참가자 슬롯의 초기 코드
const PlaceholderCode = "// Start coding here\n"

// RoomState 방 상태
type RoomState string

const (
	RoomForming         RoomState = "forming"
	RoomQuestionPending RoomState = "question_pending"
	RoomInProgress      RoomState = "in_progress"
	RoomEvaluating      RoomState = "evaluating"
	RoomArchived        RoomState = "archived"
	RoomAborted         RoomState = "aborted"
)

// 허용된 상태 전이. ABORTED는 모든 비종료 상태에서 가능하다.
var roomTransitions = map[RoomState][]RoomState{
	RoomForming:         {RoomQuestionPending, RoomAborted},
	RoomQuestionPending: {RoomInProgress, RoomAborted},
	RoomInProgress:      {RoomEvaluating, RoomAborted},
	RoomEvaluating:      {RoomArchived, RoomAborted},
}

// Terminal 종료 상태 여부
func (s RoomState) Terminal() bool {
	return s == RoomArchived || s == RoomAborted
}

// CanTransition from -> to 전이 가능 여부
func (s RoomState) CanTransition(to RoomState) bool {
	for _, next := range roomTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Participant 방 참가자 슬롯
type Participant struct {
	Username     string
	ConnectionID string
	Code         string
	HasSubmitted bool
	// 매칭 시점 레이팅 (레이팅 저장소 조회 실패 시 사용)
	RatingSnapshot int
}

// Room 두 참가자의 진행 중인 배틀
type Room struct {
	ID    string
	Topic string
	UserA string
	UserB string
	State RoomState
	// Question은 QuestionReady가 true일 때만 유효
	Question      string
	QuestionReady bool
	AverageRating float64
	Participants  map[string]*Participant
	CreatedAt     time.Time

	questionAttempt int
	generating      bool
}

// Transition 허용된 전이만 적용
func (r *Room) Transition(to RoomState) bool {
	if !r.State.CanTransition(to) {
		return false
	}
	r.State = to
	return true
}

// Participant username 슬롯 조회
func (r *Room) Participant(username string) *Participant {
	return r.Participants[username]
}

// Opponent username의 상대 슬롯
func (r *Room) Opponent(username string) *Participant {
	switch username {
	case r.UserA:
		return r.Participants[r.UserB]
	case r.UserB:
		return r.Participants[r.UserA]
	}
	return nil
}

// ParticipantByConnection 연결 ID로 슬롯 조회
func (r *Room) ParticipantByConnection(connectionID string) *Participant {
	for _, p := range r.Participants {
		if p.ConnectionID == connectionID {
			return p
		}
	}
	return nil
}

// Users 참가자 이름 (A, B 순서)
func (r *Room) Users() []string {
	return []string{r.UserA, r.UserB}
}

// SubmitResult MarkSubmitted 결과
type SubmitResult struct {
	Changed       bool
	BothSubmitted bool
	Opponent      string
}

// RoomRegistry 활성 방 목록
//
// RoomCoordinator 이벤트 루프 전용이며 동시 사용에 안전하지 않다.
type RoomRegistry struct {
	rooms map[string]*Room
	newID func(userA, userB string) string
	now   func() time.Time
}

// NewRoomRegistry 방 레지스트리 생성
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]*Room),
		newID: NewRoomID,
		now:   time.Now,
	}
}

// NewRoomID "<userA>_<userB>_<6자리 난수>" 형식의 방 ID
func NewRoomID(userA, userB string) string {
	return fmt.Sprintf("%s_%s_%d", userA, userB, 100000+rand.IntN(900000))
}

// Create 두 슬롯을 모두 채운 새 방 생성
func (r *RoomRegistry) Create(topic string, a, b WaitingEntry) (*Room, error) {
	id := r.newID(a.Username, b.Username)
	if _, exists := r.rooms[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrRoomExists, id)
	}

	room := &Room{
		ID:    id,
		Topic: topic,
		UserA: a.Username,
		UserB: b.Username,
		State: RoomForming,
		Participants: map[string]*Participant{
			a.Username: {Username: a.Username, ConnectionID: a.ConnectionID, Code: PlaceholderCode, RatingSnapshot: a.Rating},
			b.Username: {Username: b.Username, ConnectionID: b.ConnectionID, Code: PlaceholderCode, RatingSnapshot: b.Rating},
		},
		CreatedAt: r.now(),
	}
	r.rooms[id] = room

	return room, nil
}

// Get 방 조회
func (r *RoomRegistry) Get(roomID string) (*Room, bool) {
	room, ok := r.rooms[roomID]
	return room, ok
}

// UpdateCode 참가자 코드 갱신 (방/슬롯이 없으면 무시)
func (r *RoomRegistry) UpdateCode(roomID, username, code string) bool {
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	p := room.Participant(username)
	if p == nil {
		return false
	}
	p.Code = code
	return true
}

// MarkSubmitted 제출 플래그 설정 (멱등)
func (r *RoomRegistry) MarkSubmitted(roomID, username string) SubmitResult {
	room, ok := r.rooms[roomID]
	if !ok {
		return SubmitResult{}
	}
	p := room.Participant(username)
	opponent := room.Opponent(username)
	if p == nil || opponent == nil {
		return SubmitResult{}
	}

	result := SubmitResult{Opponent: opponent.Username}
	if !p.HasSubmitted {
		p.HasSubmitted = true
		result.Changed = true
	}
	result.BothSubmitted = p.HasSubmitted && opponent.HasSubmitted
	return result
}

// Rebind 재접속한 연결을 참가자 슬롯에 연결
func (r *RoomRegistry) Rebind(roomID, username, connectionID string) bool {
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	p := room.Participant(username)
	if p == nil {
		return false
	}
	p.ConnectionID = connectionID
	return true
}

// FindByConnection 연결 ID가 참가 중인 방 목록
func (r *RoomRegistry) FindByConnection(connectionID string) []*Room {
	var out []*Room
	for _, room := range r.rooms {
		if room.ParticipantByConnection(connectionID) != nil {
			out = append(out, room)
		}
	}
	return out
}

// Destroy 방 제거 (두 번 호출해도 안전)
func (r *RoomRegistry) Destroy(roomID string) bool {
	if _, ok := r.rooms[roomID]; !ok {
		return false
	}
	delete(r.rooms, roomID)
	return true
}

// Len 활성 방 개수
func (r *RoomRegistry) Len() int {
	return len(r.rooms)
}
