package models

import "time"

// BattleUser 배틀 참가자 한 명의 결과
type BattleUser struct {
	Username       string `json:"username"`
	Code           string `json:"code"`
	CodeCompressed bool   `json:"codeCompressed"`
	FinalRating    int    `json:"finalRating"`
	RatingChange   int    `json:"ratingChange"`
	Analysis       string `json:"analysis"`
}

// BattleRecord 종료된 배틀의 보관 기록 (생성 후 변경되지 않음)
type BattleRecord struct {
	ID                 string       `json:"id,omitempty"`
	RoomID             string       `json:"roomId"`
	Question           string       `json:"question"`
	QuestionCompressed bool         `json:"questionCompressed"`
	Users              []BattleUser `json:"users"`
	Topic              string       `json:"topic"`
	AverageRating      float64      `json:"averageRating"`
	BattleStarted      time.Time    `json:"battleStarted"`
	BattleEnded        time.Time    `json:"battleEnded"`
	DurationSeconds    int          `json:"battleDuration"`
	CreatedAt          time.Time    `json:"createdAt"`
}

// BattleSummaryUser 최근 배틀 목록에 노출되는 참가자 정보
type BattleSummaryUser struct {
	Username     string `json:"username"`
	FinalRating  int    `json:"finalRating"`
	RatingChange int    `json:"ratingChange"`
}

// BattleSummary 코드/문제를 제외한 배틀 요약
type BattleSummary struct {
	RoomID          string              `json:"roomId"`
	Users           []BattleSummaryUser `json:"users"`
	DurationSeconds int                 `json:"battleDuration"`
	CreatedAt       time.Time           `json:"createdAt"`
}

// BattleResultEntry 특정 사용자 관점의 배틀 결과 한 건
type BattleResultEntry struct {
	RatingChange int
	FinalRating  int
	CreatedAt    time.Time
}

// BattleStats 사용자 배틀 통계
type BattleStats struct {
	TotalBattles        int     `json:"totalBattles"`
	TotalRatingGained   int     `json:"totalRatingGained"`
	AverageRatingChange float64 `json:"averageRatingChange"`
	Wins                int     `json:"wins"`
	MaxRatingGain       int     `json:"maxRatingGain"`
	CurrentRating       int     `json:"currentRating"`
	WinRate             string  `json:"winRate"`
}
