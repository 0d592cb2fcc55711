package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/codebattle-backend/internal/models"
	"github.com/rl-arena/codebattle-backend/internal/service"
)

// BattleHistoryService service.BattleHistoryService
type BattleHistoryService interface {
	GetUserBattles(ctx context.Context, username string, limit, page int) ([]*models.BattleRecord, *service.Pagination, error)
	GetRecent(ctx context.Context, limit int) ([]*models.BattleSummary, error)
	GetStats(ctx context.Context, username string) (*models.BattleStats, error)
}

type BattleHandler struct {
	battleService BattleHistoryService
}

func NewBattleHandler(battleService BattleHistoryService) *BattleHandler {
	return &BattleHandler{battleService: battleService}
}

// GetUserBattles 사용자 배틀 기록 (?limit=10&page=1)
func (h *BattleHandler) GetUserBattles(c *gin.Context) {
	limit := queryInt(c, "limit", 10)
	page := queryInt(c, "page", 1)

	battles, pagination, err := h.battleService.GetUserBattles(c.Request.Context(), c.Param("username"), limit, page)
	if err != nil {
		respondError(c, err, "Failed to fetch battle history")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"battles":    battles,
		"pagination": pagination,
	})
}

// GetRecentBattles 최근 배틀 (?limit=20)
func (h *BattleHandler) GetRecentBattles(c *gin.Context) {
	battles, err := h.battleService.GetRecent(c.Request.Context(), queryInt(c, "limit", 20))
	if err != nil {
		respondError(c, err, "Failed to fetch recent battles")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "battles": battles})
}

// GetStats 사용자 배틀 통계
func (h *BattleHandler) GetStats(c *gin.Context) {
	stats, err := h.battleService.GetStats(c.Request.Context(), c.Param("username"))
	if err != nil {
		respondError(c, err, "Failed to fetch battle statistics")
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "stats": stats})
}

// queryInt 잘못된 값은 기본값
func queryInt(c *gin.Context, key string, fallback int) int {
	n, err := strconv.Atoi(c.Query(key))
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
