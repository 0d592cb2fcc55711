package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rl-arena/codebattle-backend/internal/api"
	"github.com/rl-arena/codebattle-backend/internal/api/handlers"
	"github.com/rl-arena/codebattle-backend/internal/config"
	"github.com/rl-arena/codebattle-backend/internal/repository"
	"github.com/rl-arena/codebattle-backend/internal/service"
	"github.com/rl-arena/codebattle-backend/internal/websocket"
	"github.com/rl-arena/codebattle-backend/pkg/database"
	"github.com/rl-arena/codebattle-backend/pkg/distributed"
	"github.com/rl-arena/codebattle-backend/pkg/gemini"
	"github.com/rl-arena/codebattle-backend/pkg/logger"
	"github.com/rl-arena/codebattle-backend/pkg/ratelimit"
)

const (
	leaderLockKey = "codebattle:coordinator:leader"
	leaderLockTTL = 15 * time.Second
)

// assistant 문제 생성과 평가를 함께 제공하는 외부 서비스
type assistant interface {
	service.QuestionGenerator
	service.Evaluator
}

func main() {
	// 설정 로드
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 로거 초기화
	logger.Init(cfg.Env, cfg.LogLevel)
	defer logger.Sync()

	logger.Info("Starting CodeBattle Backend",
		"port", cfg.Port,
		"env", cfg.Env,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 데이터베이스 연결 및 마이그레이션
	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	if err := database.Migrate(cfg.DatabaseURL, logger.Named("migrate")); err != nil {
		logger.Fatal("Failed to migrate database", "error", err)
	}

	// Repository / Service 초기화
	userRepo := repository.NewUserRepository(db, cfg.DefaultRating)
	battleRepo := repository.NewBattleRepository(db)

	userService := service.NewUserService(userRepo, cfg.DefaultRating, logger.Named("users"))
	battleService := service.NewBattleHistoryService(battleRepo, cfg.DefaultRating, logger.Named("battles"))

	readiness := map[string]handlers.Pinger{"database": db.PingContext}

	// Redis (선택)
	var (
		redisClient  *redis.Client
		leaderLock   *distributed.RedisLock
		archiver     service.ArchiveDispatcher
		archiveStats handlers.ArchiveStats
		stopArchiver func()
		redisLimiter *ratelimit.RedisRateLimiter
	)

	if cfg.RedisURL != "" {
		redisClient, err = connectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal("Failed to connect to Redis", "error", err)
		}
		defer redisClient.Close()
		readiness["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }

		// 코디네이터는 하나의 인스턴스만 실행
		leaderLock, err = acquireLeadership(ctx, redisClient)
		if err != nil {
			logger.Fatal("Failed to acquire coordinator lock", "error", err)
		}
		go keepLeadership(ctx, leaderLock, stop)

		queued := service.NewQueuedArchiver(
			distributed.NewRedisQueue(redisClient, "archive", 0),
			battleRepo,
			cfg.ArchivePollInterval,
			cfg.ArchiveTimeout,
			cfg.ArchiveQueueMaxRetries,
			logger.Named("archive"),
		)
		queued.Start()
		archiver, archiveStats, stopArchiver = queued, queued, queued.Stop

		redisLimiter = ratelimit.NewRedisRateLimiter(redisClient, "codebattle:ratelimit:", cfg.APIRateLimit, time.Minute)
	} else {
		logger.Warn("REDIS_URL not set, archiving directly and limiting requests in memory")

		direct := service.NewDirectArchiver(battleRepo, cfg.ArchiveTimeout, logger.Named("archive"))
		archiver, stopArchiver = direct, direct.Wait
	}

	// 메모리 요청 제한 (Redis가 없을 때 REST, 항상 WebSocket 메시지)
	apiBurst := int64(cfg.APIRateLimit / 6)
	if apiBurst < 1 {
		apiBurst = 1
	}
	apiLimiter := ratelimit.NewRateLimiter(apiBurst, int64(cfg.APIRateLimit/60)+1)
	defer apiLimiter.Stop()

	wsLimiter := ratelimit.NewRateLimiter(cfg.WSMessageRate*2, cfg.WSMessageRate)
	defer wsLimiter.Stop()

	// Gemini
	var ai assistant
	client, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger.Named("gemini"))
	switch {
	case err == nil:
		ai = client
	case errors.Is(err, gemini.ErrNotConfigured):
		logger.Warn("GEMINI_API_KEY not set, question generation and evaluation will fail")
		ai = gemini.Disabled{}
	default:
		logger.Fatal("Failed to create Gemini client", "error", err)
	}

	// WebSocket Hub
	hub := websocket.NewHub(websocket.HubOptions{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		MessageLimiter: wsLimiter,
	}, logger.Named("ws"))
	go hub.Run(ctx)

	// Room coordinator
	coordinatorCfg := service.CoordinatorConfig{
		RatingTolerance:   cfg.RatingTolerance,
		DefaultRating:     cfg.DefaultRating,
		MaxCodeBytes:      cfg.MaxCodeBytes,
		QuestionTimeout:   cfg.QuestionTimeout,
		EvaluationTimeout: cfg.EvaluationTimeout,
		PersistTimeout:    cfg.ArchiveTimeout,
		Policy: service.RatingPolicy{
			MinIncrement: cfg.MinIncrement,
			MaxIncrement: cfg.MaxIncrement,
			Floor:        cfg.RatingFloor,
			Ceiling:      cfg.RatingCeiling,
		},
	}
	coordinator := service.NewRoomCoordinator(coordinatorCfg, userService, ai, ai, archiver, hub, logger.Named("coordinator"))
	go func() {
		if err := coordinator.Run(ctx); err != nil {
			logger.Error("Room coordinator stopped", "error", err)
		}
	}()

	// 라우터 설정
	router := api.SetupRouter(cfg, api.Dependencies{
		Users:            userService,
		Battles:          battleService,
		Coordinator:      coordinator,
		Dispatcher:       coordinator,
		Hub:              hub,
		ArchiveStats:     archiveStats,
		Readiness:        readiness,
		RateLimiter:      apiLimiter,
		RateLimitBurst:   apiBurst,
		RedisRateLimiter: redisLimiter,
	})

	// 서버 설정
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 서버 시작 (고루틴)
	go func() {
		logger.Info("Server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Failed to start server", "error", err)
			stop()
		}
	}()

	// Graceful shutdown 대기
	<-ctx.Done()
	logger.Info("Shutting down server...")

	// 10초 타임아웃으로 종료
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}

	// 진행 중인 평가/레이팅 저장/보관 작업 정리
	coordinator.Stop()
	coordinator.Wait()
	stopArchiver()

	if leaderLock != nil {
		if err := leaderLock.Release(shutdownCtx); err != nil && !errors.Is(err, distributed.ErrLockNotHeld) {
			logger.Warn("Failed to release coordinator lock", "error", err)
		}
	}

	logger.Info("Server exited")
}

func connectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	logger.Info("Redis connected", "addr", opts.Addr, "db", opts.DB)
	return client, nil
}

// acquireLeadership 이전 인스턴스의 락이 만료될 때까지 기다린다
func acquireLeadership(ctx context.Context, client *redis.Client) (*distributed.RedisLock, error) {
	owner := uuid.New().String()

	lock, err := distributed.NewRedisLockManager(client).TryLockWithRetry(
		ctx, leaderLockKey, owner, leaderLockTTL, 10, leaderLockTTL/5,
	)
	if err != nil {
		return nil, err
	}

	logger.Info("Coordinator lock acquired", "key", leaderLockKey, "owner", owner)
	return lock, nil
}

// keepLeadership 락을 잃으면 서버를 종료한다
func keepLeadership(ctx context.Context, lock *distributed.RedisLock, shutdown context.CancelFunc) {
	if err := lock.KeepAlive(ctx); err != nil {
		logger.Error("Coordinator lock lost, shutting down", "key", lock.Key(), "error", err)
		shutdown()
	}
}
