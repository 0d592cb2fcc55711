package service

import (
	"context"

	"github.com/rl-arena/codebattle-backend/internal/models"
)

// RatingStore 사용자 레이팅 저장소 (없는 사용자는 기본 레이팅)
type RatingStore interface {
	GetRating(ctx context.Context, username string) (int, error)
	SetRating(ctx context.Context, username string, rating int) error
}

// QuestionGenerator 평균 레이팅에 맞는 문제를 생성하는 외부 서비스
type QuestionGenerator interface {
	GenerateQuestion(ctx context.Context, averageRating float64) (string, error)
}

// Evaluator 두 제출 코드를 평가하는 외부 서비스 (원문 텍스트 반환)
type Evaluator interface {
	Evaluate(ctx context.Context, question, codeA, codeB string) (string, error)
}

// BattleArchive 종료된 배틀의 영구 저장소
type BattleArchive interface {
	Save(ctx context.Context, record *models.BattleRecord) error
}

// ArchiveDispatcher 배틀 기록 저장을 코디네이터와 분리된 작업으로 넘김
type ArchiveDispatcher interface {
	Dispatch(record *models.BattleRecord)
}

// Notifier 참가자에게 이벤트 전송
// group은 방 ID와 같음
type Notifier interface {
	Subscribe(group, connectionID string)
	Unsubscribe(group, connectionID string)
	CloseGroup(group string)
	SendTo(connectionID, msgType string, payload interface{})
	Broadcast(group, msgType string, payload interface{})
}
