package service

import (
	"fmt"
	"time"

	"github.com/rl-arena/codebattle-backend/internal/models"
	"github.com/rl-arena/codebattle-backend/pkg/compress"
)

// UserEvaluation 참가자 한 명의 평가 결과
type UserEvaluation struct {
	Username  string `json:"username"`
	OldRating int    `json:"oldRating"`
	NewRating int    `json:"newRating"`
	Increment int    `json:"increment"`
	Analysis  string `json:"analysis"`
}

// battleSnapshot 방 파괴 이후에도 보관 작업이 사용할 수 있는 방 데이터 복사본
type battleSnapshot struct {
	RoomID        string
	Topic         string
	Question      string
	AverageRating float64
	StartedAt     time.Time
	Users         [2]string
	Codes         [2]string
}

func snapshotRoom(room *Room) battleSnapshot {
	return battleSnapshot{
		RoomID:        room.ID,
		Topic:         room.Topic,
		Question:      room.Question,
		AverageRating: room.AverageRating,
		StartedAt:     room.CreatedAt,
		Users:         [2]string{room.UserA, room.UserB},
		Codes:         [2]string{room.Participants[room.UserA].Code, room.Participants[room.UserB].Code},
	}
}

// BuildBattleRecord 평가 결과를 압축된 보관 기록으로 변환
func buildBattleRecord(snap battleSnapshot, results [2]UserEvaluation, endedAt time.Time) (*models.BattleRecord, error) {
	question, err := compress.Encode(snap.Question)
	if err != nil {
		return nil, fmt.Errorf("failed to compress question: %w", err)
	}

	users := make([]models.BattleUser, 0, len(results))
	for i, r := range results {
		code, err := compress.Encode(snap.Codes[i])
		if err != nil {
			return nil, fmt.Errorf("failed to compress code of %s: %w", r.Username, err)
		}
		users = append(users, models.BattleUser{
			Username:       r.Username,
			Code:           code,
			CodeCompressed: true,
			FinalRating:    r.NewRating,
			RatingChange:   r.Increment,
			Analysis:       r.Analysis,
		})
	}

	duration := int(endedAt.Sub(snap.StartedAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	return &models.BattleRecord{
		RoomID:             snap.RoomID,
		Question:           question,
		QuestionCompressed: true,
		Users:              users,
		Topic:              snap.Topic,
		AverageRating:      snap.AverageRating,
		BattleStarted:      snap.StartedAt,
		BattleEnded:        endedAt,
		DurationSeconds:    duration,
	}, nil
}

// DecompressBattleRecord 압축 필드를 풀어낸 복사본 반환
func DecompressBattleRecord(record *models.BattleRecord) (*models.BattleRecord, error) {
	out := *record
	if record.QuestionCompressed {
		question, err := compress.Decode(record.Question)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress question: %w", err)
		}
		out.Question = question
		out.QuestionCompressed = false
	}

	out.Users = make([]models.BattleUser, len(record.Users))
	for i, u := range record.Users {
		if u.CodeCompressed {
			code, err := compress.Decode(u.Code)
			if err != nil {
				return nil, fmt.Errorf("failed to decompress code of %s: %w", u.Username, err)
			}
			u.Code = code
			u.CodeCompressed = false
		}
		out.Users[i] = u
	}

	return &out, nil
}
