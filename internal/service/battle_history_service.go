package service

import (
	"context"
	"fmt"

	"github.com/rl-arena/codebattle-backend/internal/models"
	"go.uber.org/zap"
)

const (
	defaultHistoryLimit = 10
	defaultRecentLimit  = 20
	maxHistoryLimit     = 100

	// 이 이상 오르면 승리로 집계
	winThreshold = 15
)

// BattleStore 배틀 기록 조회 저장소 (repository.BattleRepository)
type BattleStore interface {
	FindByUsername(ctx context.Context, username string, limit, offset int) ([]*models.BattleRecord, error)
	CountByUsername(ctx context.Context, username string) (int, error)
	FindRecent(ctx context.Context, limit int) ([]*models.BattleSummary, error)
	ResultsByUsername(ctx context.Context, username string) ([]models.BattleResultEntry, error)
}

// Pagination 페이지 정보
type Pagination struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Pages int `json:"pages"`
}

type BattleHistoryService struct {
	battles       BattleStore
	defaultRating int
	logger        *zap.Logger
}

func NewBattleHistoryService(battles BattleStore, defaultRating int, logger *zap.Logger) *BattleHistoryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BattleHistoryService{battles: battles, defaultRating: defaultRating, logger: logger}
}

// GetUserBattles 사용자 배틀 기록 (최신순, 압축 해제)
func (s *BattleHistoryService) GetUserBattles(ctx context.Context, username string, limit, page int) ([]*models.BattleRecord, *Pagination, error) {
	if username == "" {
		return nil, nil, ErrInvalidInput
	}
	limit = clampLimit(limit, defaultHistoryLimit)
	if page < 1 {
		page = 1
	}

	records, err := s.battles.FindByUsername(ctx, username, limit, (page-1)*limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get battles: %w", err)
	}

	total, err := s.battles.CountByUsername(ctx, username)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to count battles: %w", err)
	}

	out := make([]*models.BattleRecord, 0, len(records))
	for _, record := range records {
		decoded, err := DecompressBattleRecord(record)
		if err != nil {
			// 손상된 기록은 원본 그대로 노출
			s.logger.Warn("Failed to decompress battle", zap.String("roomId", record.RoomID), zap.Error(err))
			out = append(out, record)
			continue
		}
		out = append(out, decoded)
	}

	pages := (total + limit - 1) / limit
	return out, &Pagination{Total: total, Page: page, Limit: limit, Pages: pages}, nil
}

// GetRecent 최근 배틀 요약
func (s *BattleHistoryService) GetRecent(ctx context.Context, limit int) ([]*models.BattleSummary, error) {
	summaries, err := s.battles.FindRecent(ctx, clampLimit(limit, defaultRecentLimit))
	if err != nil {
		return nil, fmt.Errorf("failed to get recent battles: %w", err)
	}
	if summaries == nil {
		summaries = []*models.BattleSummary{}
	}
	return summaries, nil
}

// GetStats 사용자 배틀 통계
func (s *BattleHistoryService) GetStats(ctx context.Context, username string) (*models.BattleStats, error) {
	if username == "" {
		return nil, ErrInvalidInput
	}

	results, err := s.battles.ResultsByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to get battle results: %w", err)
	}

	return summarize(results, s.defaultRating), nil
}

// summarize results는 오래된 순
func summarize(results []models.BattleResultEntry, defaultRating int) *models.BattleStats {
	stats := &models.BattleStats{
		TotalBattles:  len(results),
		CurrentRating: defaultRating,
		WinRate:       "0",
	}
	if len(results) == 0 {
		return stats
	}

	stats.MaxRatingGain = results[0].RatingChange
	for _, r := range results {
		stats.TotalRatingGained += r.RatingChange
		if r.RatingChange > winThreshold {
			stats.Wins++
		}
		if r.RatingChange > stats.MaxRatingGain {
			stats.MaxRatingGain = r.RatingChange
		}
	}

	stats.AverageRatingChange = float64(stats.TotalRatingGained) / float64(stats.TotalBattles)
	stats.CurrentRating = results[len(results)-1].FinalRating
	stats.WinRate = fmt.Sprintf("%.1f", float64(stats.Wins)/float64(stats.TotalBattles)*100)
	return stats
}

func clampLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > maxHistoryLimit {
		return maxHistoryLimit
	}
	return limit
}
