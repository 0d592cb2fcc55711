package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
)

// 클라이언트 -> 서버 메시지 타입
const (
	MsgJoinQueue        = "joinQueue"
	MsgLeaveQueue       = "leaveQueue"
	MsgJoinRoom         = "joinRoom"
	MsgCodeChange       = "codeChange"
	MsgSubmitCode       = "submitCode"
	MsgGenerateQuestion = "generateQuestion"
)

// 서버 -> 클라이언트 메시지 타입
const (
	MsgRoomJoined           = "roomJoined"
	MsgQuestionGenerated    = "questionGenerated"
	MsgQuestionError        = "questionError"
	MsgOpponentCodeChange   = "opponentCodeChange"
	MsgOpponentSubmitted    = "opponentSubmitted"
	MsgStatusUpdate         = "statusUpdate"
	MsgEvaluationComplete   = "evaluationComplete"
	MsgEvaluationError      = "evaluationError"
	MsgOpponentDisconnected = "opponentDisconnected"
)

// 클라이언트에 노출되는 고정 메시지
const (
	questionErrorMessage        = "Failed to generate question."
	evaluationErrorMessage      = "Failed to evaluate submissions."
	waitingForOpponentMessage   = "Waiting for opponent to submit..."
	opponentDisconnectedMessage = "Your opponent has disconnected."
)

// ErrUnknownMessage 알 수 없는 메시지 타입
var ErrUnknownMessage = errors.New("unknown message type")

// JoinQueueRequest joinQueue payload
// 이전 클라이언트는 rating 대신 averageRating을 보낸다. 둘 다 소수일 수 있다.
type JoinQueueRequest struct {
	Username      string  `json:"username"`
	Topic         string  `json:"topic"`
	Rating        float64 `json:"rating"`
	AverageRating float64 `json:"averageRating"`
}

func (r JoinQueueRequest) rating() int {
	if r.Rating != 0 {
		return int(math.Round(r.Rating))
	}
	return int(math.Round(r.AverageRating))
}

// LeaveQueueRequest leaveQueue payload
type LeaveQueueRequest struct {
	Username string `json:"username"`
}

// RoomRequest joinRoom, submitCode, generateQuestion payload
type RoomRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// CodeChangeRequest codeChange payload
type CodeChangeRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
	Code     string `json:"code"`
}

// RoomJoinedPayload roomJoined
type RoomJoinedPayload struct {
	RoomID string   `json:"roomId"`
	Users  []string `json:"users"`
}

// QuestionPayload questionGenerated
type QuestionPayload struct {
	RoomID    string    `json:"roomId"`
	Question  string    `json:"question"`
	Timestamp time.Time `json:"timestamp"`
}

// QuestionErrorPayload questionError
type QuestionErrorPayload struct {
	Error string `json:"error"`
}

// CodePayload opponentCodeChange
type CodePayload struct {
	Code string `json:"code"`
}

// OpponentSubmittedPayload opponentSubmitted
type OpponentSubmittedPayload struct {
	Username string `json:"username"`
}

// MessagePayload statusUpdate, evaluationError, opponentDisconnected
type MessagePayload struct {
	Message string `json:"message"`
}

// EvaluationCompletePayload evaluationComplete
type EvaluationCompletePayload struct {
	RoomID  string                    `json:"roomId"`
	Results map[string]UserEvaluation `json:"results"`
}

// CoordinatorStats 코디네이터 현재 상태 요약
type CoordinatorStats struct {
	Waiting      int               `json:"waiting"`
	ActiveRooms  int               `json:"activeRooms"`
	RoomsByState map[RoomState]int `json:"roomsByState"`
	Evaluations  int64             `json:"evaluations"`
}

// 이벤트 루프가 처리하는 내부 이벤트
type event interface{}

type joinQueueEvent struct {
	connectionID string
	req          JoinQueueRequest
}

type leaveQueueEvent struct {
	connectionID string
	req          LeaveQueueRequest
}

type joinRoomEvent struct {
	connectionID string
	req          RoomRequest
}

type codeChangeEvent struct {
	connectionID string
	req          CodeChangeRequest
}

type submitEvent struct {
	connectionID string
	req          RoomRequest
}

type generateQuestionEvent struct {
	connectionID string
	req          RoomRequest
}

type disconnectEvent struct {
	connectionID string
}

type questionResultEvent struct {
	roomID        string
	attempt       int
	question      string
	averageRating float64
	err           error
}

type evaluationResultEvent struct {
	roomID  string
	raw     string
	ratings [2]int
	err     error
}

type statsRequest struct {
	reply chan CoordinatorStats
}

// HandleMessage websocket 메시지를 디코딩해 이벤트 루프에 전달
func (c *RoomCoordinator) HandleMessage(connectionID, msgType string, payload json.RawMessage) error {
	evt, err := decodeEvent(connectionID, msgType, payload)
	if err != nil {
		return err
	}
	return c.post(evt)
}

// HandleDisconnect 연결 종료 전달
func (c *RoomCoordinator) HandleDisconnect(connectionID string) {
	if err := c.post(disconnectEvent{connectionID: connectionID}); err != nil {
		c.logger.Debug("Dropped disconnect event", zap.String("connectionId", connectionID), zap.Error(err))
	}
}

func decodeEvent(connectionID, msgType string, payload json.RawMessage) (event, error) {
	switch msgType {
	case MsgJoinQueue:
		var req JoinQueueRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		req.Username = strings.TrimSpace(req.Username)
		req.Topic = strings.TrimSpace(req.Topic)
		return joinQueueEvent{connectionID: connectionID, req: req}, nil
	case MsgLeaveQueue:
		var req LeaveQueueRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		return leaveQueueEvent{connectionID: connectionID, req: req}, nil
	case MsgJoinRoom, MsgSubmitCode, MsgGenerateQuestion:
		var req RoomRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		switch msgType {
		case MsgJoinRoom:
			return joinRoomEvent{connectionID: connectionID, req: req}, nil
		case MsgSubmitCode:
			return submitEvent{connectionID: connectionID, req: req}, nil
		default:
			return generateQuestionEvent{connectionID: connectionID, req: req}, nil
		}
	case MsgCodeChange:
		var req CodeChangeRequest
		if err := decodePayload(payload, &req); err != nil {
			return nil, err
		}
		return codeChangeEvent{connectionID: connectionID, req: req}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownMessage, msgType)
}

func decodePayload(payload json.RawMessage, v interface{}) error {
	if len(payload) == 0 {
		return fmt.Errorf("%w: empty payload", ErrInvalidInput)
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}
