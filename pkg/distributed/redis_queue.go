package distributed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrQueueEmpty   = errors.New("queue is empty")
	ErrQueueFull    = errors.New("queue is full")
	ErrLeaseExpired = errors.New("processing lease expired")
)

// Job 큐 작업 단위
type Job struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload"`
	Priority    int             `json:"priority"` // 높을수록 먼저 처리
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"maxAttempts"`
	LastError   string          `json:"lastError,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueuedAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// DeadLetter DLQ에 보관된 작업
type DeadLetter struct {
	Job     Job       `json:"job"`
	Reason  string    `json:"reason"`
	MovedAt time.Time `json:"movedAt"`
}

// QueueStats 큐 통계
type QueueStats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	DeadLetter int64 `json:"deadLetter"`
}

// KEYS[1]=pending ARGV[1]=score ARGV[2]=data ARGV[3]=maxSize
var enqueueScript = redis.NewScript(`
	local max = tonumber(ARGV[3])
	if max > 0 and redis.call('ZCARD', KEYS[1]) >= max then
		return 0
	end
	redis.call('ZADD', KEYS[1], ARGV[1], ARGV[2])
	return 1
`)

// KEYS[1]=pending KEYS[2]=processing KEYS[3]=leases ARGV[1]=now
var dequeueScript = redis.NewScript(`
	local items = redis.call('ZPOPMIN', KEYS[1], 1)
	if #items == 0 then
		return false
	end
	local data = items[1]
	local id = cjson.decode(data).id
	redis.call('HSET', KEYS[2], id, data)
	redis.call('ZADD', KEYS[3], ARGV[1], id)
	return data
`)

// RedisQueue Redis 기반 우선순위 작업 큐
//
// pending(Sorted Set)에서 꺼낸 작업은 processing(Hash)과 leases(Sorted Set, 시작 시각)에
// 기록되고 Complete/Retry/MoveToDLQ 중 하나로 정리된다.
type RedisQueue struct {
	client        *redis.Client
	pendingKey    string
	processingKey string
	leasesKey     string
	dlqKey        string
	maxSize       int
}

// NewRedisQueue Redis Queue 생성 (maxSize 0 = 무제한)
func NewRedisQueue(client *redis.Client, name string, maxSize int) *RedisQueue {
	prefix := fmt.Sprintf("codebattle:queue:%s", name)
	return &RedisQueue{
		client:        client,
		pendingKey:    prefix,
		processingKey: prefix + ":processing",
		leasesKey:     prefix + ":leases",
		dlqKey:        prefix + ":dlq",
		maxSize:       maxSize,
	}
}

// Enqueue 작업 추가
func (q *RedisQueue) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}

	now := time.Now()
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = now
	}
	job.UpdatedAt = now

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	// ZPOPMIN이 높은 priority를 먼저 꺼내도록 음수 score 사용
	added, err := enqueueScript.Run(ctx, q.client, []string{q.pendingKey}, -job.Priority, data, q.maxSize).Int()
	if err != nil {
		return fmt.Errorf("failed to enqueue: %w", err)
	}
	if added == 0 {
		return ErrQueueFull
	}

	return nil
}

// Dequeue 가장 우선순위가 높은 작업을 꺼내 처리 중으로 표시
func (q *RedisQueue) Dequeue(ctx context.Context) (*Job, error) {
	result, err := dequeueScript.Run(ctx, q.client,
		[]string{q.pendingKey, q.processingKey, q.leasesKey},
		time.Now().Unix()).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrQueueEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	var job Job
	if err := json.Unmarshal([]byte(result), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}

	return &job, nil
}

// Complete 처리 완료
func (q *RedisQueue) Complete(ctx context.Context, jobID string) error {
	_, err := q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, q.processingKey, jobID)
		pipe.ZRem(ctx, q.leasesKey, jobID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

// Retry 실패한 작업을 낮은 우선순위로 다시 넣거나, 최대 시도 횟수를 넘으면 DLQ로 이동
func (q *RedisQueue) Retry(ctx context.Context, job *Job, cause error) error {
	job.Attempts++
	job.UpdatedAt = time.Now()
	if cause != nil {
		job.LastError = cause.Error()
	}

	if job.MaxAttempts > 0 && job.Attempts >= job.MaxAttempts {
		return q.MoveToDLQ(ctx, job, "max attempts exceeded")
	}

	job.Priority--

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HDel(ctx, q.processingKey, job.ID)
		pipe.ZRem(ctx, q.leasesKey, job.ID)
		pipe.ZAdd(ctx, q.pendingKey, redis.Z{Score: float64(-job.Priority), Member: data})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}
	return nil
}

// MoveToDLQ Dead Letter Queue로 이동
func (q *RedisQueue) MoveToDLQ(ctx context.Context, job *Job, reason string) error {
	data, err := json.Marshal(DeadLetter{Job: *job, Reason: reason, MovedAt: time.Now()})
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	_, err = q.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, q.dlqKey, data)
		pipe.HDel(ctx, q.processingKey, job.ID)
		pipe.ZRem(ctx, q.leasesKey, job.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to move job to DLQ: %w", err)
	}
	return nil
}

// RecoverStale olderThan 이상 처리 중인 작업을 재시도로 돌림
func (q *RedisQueue) RecoverStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).Unix()
	ids, err := q.client.ZRangeByScore(ctx, q.leasesKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list stale jobs: %w", err)
	}

	recovered := 0
	for _, id := range ids {
		data, err := q.client.HGet(ctx, q.processingKey, id).Result()
		if errors.Is(err, redis.Nil) {
			// processing 기록 없이 lease만 남은 경우
			q.client.ZRem(ctx, q.leasesKey, id)
			continue
		}
		if err != nil {
			return recovered, fmt.Errorf("failed to load stale job %s: %w", id, err)
		}

		var job Job
		if err := json.Unmarshal([]byte(data), &job); err != nil {
			continue
		}
		if err := q.Retry(ctx, &job, ErrLeaseExpired); err != nil {
			return recovered, err
		}
		recovered++
	}

	return recovered, nil
}

// Size 대기 중 작업 수
func (q *RedisQueue) Size(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.pendingKey).Result()
}

// ProcessingCount 처리 중 작업 수
func (q *RedisQueue) ProcessingCount(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.leasesKey).Result()
}

// DLQSize DLQ 크기
func (q *RedisQueue) DLQSize(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.dlqKey).Result()
}

// PeekDLQ 최근 DLQ 항목 조회 (제거하지 않음)
func (q *RedisQueue) PeekDLQ(ctx context.Context, count int64) ([]DeadLetter, error) {
	items, err := q.client.LRange(ctx, q.dlqKey, 0, count-1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]DeadLetter, 0, len(items))
	for _, item := range items {
		var dl DeadLetter
		if err := json.Unmarshal([]byte(item), &dl); err != nil {
			continue
		}
		out = append(out, dl)
	}
	return out, nil
}

// ClearDLQ DLQ 비우기
func (q *RedisQueue) ClearDLQ(ctx context.Context) error {
	return q.client.Del(ctx, q.dlqKey).Err()
}

// GetStats 큐 통계 조회
func (q *RedisQueue) GetStats(ctx context.Context) (*QueueStats, error) {
	pending, err := q.Size(ctx)
	if err != nil {
		return nil, err
	}
	processing, err := q.ProcessingCount(ctx)
	if err != nil {
		return nil, err
	}
	dlq, err := q.DLQSize(ctx)
	if err != nil {
		return nil, err
	}

	return &QueueStats{Pending: pending, Processing: processing, DeadLetter: dlq}, nil
}
