package api

import (
	"github.com/gin-gonic/gin"
	"github.com/rl-arena/codebattle-backend/internal/api/handlers"
	"github.com/rl-arena/codebattle-backend/internal/api/middleware"
	"github.com/rl-arena/codebattle-backend/internal/config"
	"github.com/rl-arena/codebattle-backend/internal/websocket"
	"github.com/rl-arena/codebattle-backend/pkg/ratelimit"
)

// Dependencies 라우터가 사용하는 서비스 (main에서 조립)
type Dependencies struct {
	Users       handlers.UserService
	Battles     handlers.BattleHistoryService
	Coordinator handlers.CoordinatorStats
	Dispatcher  websocket.Dispatcher
	Hub         *websocket.Hub

	// 선택 항목
	ArchiveStats     handlers.ArchiveStats
	Readiness        map[string]handlers.Pinger
	RateLimiter      *ratelimit.RateLimiter
	RateLimitBurst   int64
	RedisRateLimiter *ratelimit.RedisRateLimiter
}

// SetupRouter API 라우터 설정
func SetupRouter(cfg *config.Config, deps Dependencies) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// 전역 미들웨어
	router.Use(gin.Recovery())
	router.Use(middleware.Logger("/health", "/ready"))
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	userHandler := handlers.NewUserHandler(deps.Users)
	battleHandler := handlers.NewBattleHandler(deps.Battles)
	var hubStats handlers.HubStats
	if deps.Hub != nil {
		hubStats = deps.Hub
	}
	matchmakingHandler := handlers.NewMatchmakingHandler(deps.Coordinator, deps.ArchiveStats, hubStats)
	wsHandler := handlers.NewWebSocketHandler(deps.Hub, deps.Dispatcher)

	// Health check
	router.GET("/health", handlers.HealthCheck)
	router.GET("/ready", handlers.ReadinessCheck(deps.Readiness))

	// WebSocket endpoint (요청 제한은 연결별 메시지 제한으로 대신함)
	router.GET("/ws", wsHandler.HandleWebSocket)

	// API v1
	v1 := router.Group("/api/v1")
	switch {
	case deps.RedisRateLimiter != nil:
		v1.Use(middleware.RedisRateLimit(deps.RedisRateLimiter, middleware.IPKeyFunc))
	case deps.RateLimiter != nil:
		v1.Use(middleware.RateLimit(deps.RateLimiter, deps.RateLimitBurst, middleware.IPKeyFunc))
	}
	{
		users := v1.Group("/users")
		{
			users.POST("/save-user", userHandler.SaveUser)
			users.GET("/getUser/:clerkId", userHandler.GetUser)
			users.PUT("/update-username", userHandler.UpdateUsername)
		}

		battles := v1.Group("/battles")
		{
			battles.GET("/user/:username", battleHandler.GetUserBattles)
			battles.GET("/recent", battleHandler.GetRecentBattles)
			battles.GET("/stats/:username", battleHandler.GetStats)
		}

		v1.GET("/matchmaking/stats", matchmakingHandler.GetStats)
	}

	return router
}
