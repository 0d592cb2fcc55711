package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rl-arena/codebattle-backend/internal/service"
	"github.com/rl-arena/codebattle-backend/internal/websocket"
	"github.com/rl-arena/codebattle-backend/pkg/distributed"
	"github.com/rl-arena/codebattle-backend/pkg/logger"
)

// CoordinatorStats service.RoomCoordinator
type CoordinatorStats interface {
	Stats(ctx context.Context) (service.CoordinatorStats, error)
}

// ArchiveStats service.QueuedArchiver (Redis 사용 시)
type ArchiveStats interface {
	Stats(ctx context.Context) (*distributed.QueueStats, error)
}

// HubStats websocket.Hub
type HubStats interface {
	Stats() websocket.HubStats
}

type MatchmakingHandler struct {
	coordinator CoordinatorStats
	archive     ArchiveStats
	hub         HubStats
}

// NewMatchmakingHandler archive는 nil 가능
func NewMatchmakingHandler(coordinator CoordinatorStats, archive ArchiveStats, hub HubStats) *MatchmakingHandler {
	return &MatchmakingHandler{coordinator: coordinator, archive: archive, hub: hub}
}

// GetStats 대기열/방/보관 큐 통계
func (h *MatchmakingHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	stats, err := h.coordinator.Stats(ctx)
	if err != nil {
		logger.Warn("Failed to get coordinator stats", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "Matchmaking unavailable"})
		return
	}

	resp := gin.H{
		"success":     true,
		"matchmaking": stats,
	}

	if h.hub != nil {
		resp["connections"] = h.hub.Stats()
	}

	if h.archive != nil {
		queue, err := h.archive.Stats(ctx)
		if err != nil {
			logger.Warn("Failed to get archive queue stats", "error", err)
		} else {
			resp["archiveQueue"] = queue
		}
	}

	c.JSON(http.StatusOK, resp)
}
