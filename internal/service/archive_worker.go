package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rl-arena/codebattle-backend/internal/models"
	"github.com/rl-arena/codebattle-backend/pkg/distributed"
	"go.uber.org/zap"
)

const archiveJobKind = "battle_archive"

// DirectArchiver 배틀 기록을 별도 고루틴에서 바로 저장
type DirectArchiver struct {
	archive BattleArchive
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

func NewDirectArchiver(archive BattleArchive, timeout time.Duration, logger *zap.Logger) *DirectArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectArchiver{archive: archive, timeout: timeout, logger: logger}
}

// Dispatch 저장 실패는 로그만 남긴다
func (a *DirectArchiver) Dispatch(record *models.BattleRecord) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		if err := a.archive.Save(ctx, record); err != nil {
			a.logger.Error("Failed to archive battle", zap.String("roomId", record.RoomID), zap.Error(err))
			return
		}
		a.logger.Debug("Battle archived", zap.String("roomId", record.RoomID))
	}()
}

// Wait 진행 중인 저장 완료 대기
func (a *DirectArchiver) Wait() {
	a.wg.Wait()
}

// ArchiveQueue 보관 작업 큐 (distributed.RedisQueue)
type ArchiveQueue interface {
	Enqueue(ctx context.Context, job *distributed.Job) error
	Dequeue(ctx context.Context) (*distributed.Job, error)
	Complete(ctx context.Context, jobID string) error
	Retry(ctx context.Context, job *distributed.Job, cause error) error
	MoveToDLQ(ctx context.Context, job *distributed.Job, reason string) error
	RecoverStale(ctx context.Context, olderThan time.Duration) (int, error)
	GetStats(ctx context.Context) (*distributed.QueueStats, error)
}

// QueuedArchiver 배틀 기록을 Redis 큐에 넣고 워커가 재시도와 DLQ를 관리
// 큐에 넣지 못하면 DirectArchiver로 바로 저장한다.
type QueuedArchiver struct {
	queue       ArchiveQueue
	archive     BattleArchive
	fallback    *DirectArchiver
	logger      *zap.Logger
	interval    time.Duration
	timeout     time.Duration
	maxAttempts int

	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewQueuedArchiver(
	queue ArchiveQueue,
	archive BattleArchive,
	interval, timeout time.Duration,
	maxAttempts int,
	logger *zap.Logger,
) *QueuedArchiver {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &QueuedArchiver{
		queue:       queue,
		archive:     archive,
		fallback:    NewDirectArchiver(archive, timeout, logger),
		logger:      logger,
		interval:    interval,
		timeout:     timeout,
		maxAttempts: maxAttempts,
		stopChan:    make(chan struct{}),
	}
}

// Dispatch 기록을 작업 큐에 추가
func (a *QueuedArchiver) Dispatch(record *models.BattleRecord) {
	payload, err := json.Marshal(record)
	if err != nil {
		a.logger.Error("Failed to encode battle record", zap.String("roomId", record.RoomID), zap.Error(err))
		return
	}

	job := &distributed.Job{
		ID:          uuid.New().String(),
		Kind:        archiveJobKind,
		Payload:     payload,
		MaxAttempts: a.maxAttempts,
	}

	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	if err := a.queue.Enqueue(ctx, job); err != nil {
		a.logger.Warn("Failed to enqueue archive job, saving directly",
			zap.String("roomId", record.RoomID),
			zap.Error(err))
		a.fallback.Dispatch(record)
		return
	}

	a.logger.Debug("Archive job queued", zap.String("roomId", record.RoomID), zap.String("jobId", job.ID))
}

// Start 워커 시작
func (a *QueuedArchiver) Start() {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return
	}
	a.running = true
	a.mu.Unlock()

	a.logger.Info("Starting ArchiveWorker", zap.Duration("interval", a.interval))

	a.wg.Add(1)
	go a.loop()
}

// Stop 워커 중지. 진행 중인 직접 저장도 기다린다.
func (a *QueuedArchiver) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		a.fallback.Wait()
		return
	}
	a.running = false
	a.mu.Unlock()

	close(a.stopChan)
	a.wg.Wait()
	a.fallback.Wait()
	a.logger.Info("ArchiveWorker stopped")
}

// Stats 큐 통계
func (a *QueuedArchiver) Stats(ctx context.Context) (*distributed.QueueStats, error) {
	return a.queue.GetStats(ctx)
}

func (a *QueuedArchiver) loop() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	// 이전 프로세스가 처리하다 남긴 작업 복구
	a.recoverStale()
	a.drain()

	ticks := 0
	for {
		select {
		case <-ticker.C:
			ticks++
			if ticks%30 == 0 {
				a.recoverStale()
			}
			a.drain()
		case <-a.stopChan:
			return
		}
	}
}

func (a *QueuedArchiver) recoverStale() {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	recovered, err := a.queue.RecoverStale(ctx, 3*a.timeout)
	if err != nil {
		a.logger.Error("Failed to recover stale archive jobs", zap.Error(err))
		return
	}
	if recovered > 0 {
		a.logger.Info("Recovered stale archive jobs", zap.Int("count", recovered))
	}
}

// drain 큐가 빌 때까지 처리 (중지 요청 시 중단)
// 저장이 실패하면 다음 주기까지 기다려 재시도 간격을 둔다.
func (a *QueuedArchiver) drain() {
	for {
		select {
		case <-a.stopChan:
			return
		default:
		}

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		job, err := a.queue.Dequeue(ctx)
		cancel()

		if errors.Is(err, distributed.ErrQueueEmpty) {
			return
		}
		if err != nil {
			a.logger.Error("Failed to dequeue archive job", zap.Error(err))
			return
		}

		if !a.process(job) {
			return
		}
	}
}

// process 저장에 실패해 재시도가 필요하면 false
func (a *QueuedArchiver) process(job *distributed.Job) bool {
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()

	var record models.BattleRecord
	if err := json.Unmarshal(job.Payload, &record); err != nil {
		a.logger.Error("Invalid archive job payload", zap.String("jobId", job.ID), zap.Error(err))
		if err := a.queue.MoveToDLQ(ctx, job, "invalid payload"); err != nil {
			a.logger.Error("Failed to move archive job to DLQ", zap.String("jobId", job.ID), zap.Error(err))
		}
		return true
	}

	if err := a.archive.Save(ctx, &record); err != nil {
		a.logger.Warn("Archive attempt failed",
			zap.String("jobId", job.ID),
			zap.String("roomId", record.RoomID),
			zap.Int("attempt", job.Attempts+1),
			zap.Error(err))
		if err := a.queue.Retry(ctx, job, err); err != nil {
			a.logger.Error("Failed to retry archive job", zap.String("jobId", job.ID), zap.Error(err))
		}
		return false
	}

	if err := a.queue.Complete(ctx, job.ID); err != nil {
		a.logger.Error("Failed to complete archive job", zap.String("jobId", job.ID), zap.Error(err))
		return true
	}

	a.logger.Info("Battle archived", zap.String("roomId", record.RoomID), zap.String("jobId", job.ID))
	return true
}
