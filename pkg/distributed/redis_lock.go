package distributed

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
	ErrLockNotHeld     = errors.New("lock not held")
)

// 자신이 획득한 락만 해제
var releaseScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	end
	return 0
`)

// 자신이 획득한 락만 TTL 연장
var extendScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	end
	return 0
`)

// RedisLock Redis 기반 락
type RedisLock struct {
	client *redis.Client
	key    string
	owner  string
	ttl    time.Duration
}

// RedisLockManager Redis 락 관리자
type RedisLockManager struct {
	client *redis.Client
}

// NewRedisLockManager Redis Lock Manager 생성
func NewRedisLockManager(client *redis.Client) *RedisLockManager {
	return &RedisLockManager{client: client}
}

// AcquireLock 락 획득 시도 (SET NX)
func (m *RedisLockManager) AcquireLock(ctx context.Context, key, owner string, ttl time.Duration) (*RedisLock, error) {
	ok, err := m.client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrLockNotAcquired
	}

	return &RedisLock{client: m.client, key: key, owner: owner, ttl: ttl}, nil
}

// TryLockWithRetry 이전 소유자의 락이 만료될 때까지 재시도
func (m *RedisLockManager) TryLockWithRetry(
	ctx context.Context,
	key, owner string,
	ttl time.Duration,
	maxRetries int,
	retryInterval time.Duration,
) (*RedisLock, error) {
	for i := 0; i < maxRetries; i++ {
		lock, err := m.AcquireLock(ctx, key, owner, ttl)
		if err == nil {
			return lock, nil
		}
		if !errors.Is(err, ErrLockNotAcquired) {
			return nil, err
		}

		if i < maxRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryInterval):
			}
		}
	}

	return nil, ErrLockNotAcquired
}

// Key 락 키
func (l *RedisLock) Key() string {
	return l.key
}

// Release 락 해제
func (l *RedisLock) Release(ctx context.Context) error {
	released, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.owner).Int()
	if err != nil {
		return err
	}
	if released == 0 {
		return ErrLockNotHeld
	}
	return nil
}

// Extend 락 TTL 연장
func (l *RedisLock) Extend(ctx context.Context, ttl time.Duration) error {
	extended, err := extendScript.Run(ctx, l.client, []string{l.key}, l.owner, ttl.Milliseconds()).Int()
	if err != nil {
		return err
	}
	if extended == 0 {
		return ErrLockNotHeld
	}

	l.ttl = ttl
	return nil
}

// IsHeld 락을 아직 소유하고 있는지 확인
func (l *RedisLock) IsHeld(ctx context.Context) (bool, error) {
	value, err := l.client.Get(ctx, l.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return value == l.owner, nil
}

// KeepAlive ttl/3 간격으로 락을 연장한다.
// ctx가 취소되면 nil, 락을 잃으면 ErrLockNotHeld를 반환한다.
// 일시적인 Redis 오류는 ttl 안에서 재시도한다.
func (l *RedisLock) KeepAlive(ctx context.Context) error {
	interval := l.ttl / 3
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastExtended := time.Now()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := l.Extend(ctx, l.ttl)
			if err == nil {
				lastExtended = time.Now()
				continue
			}
			if errors.Is(err, ErrLockNotHeld) {
				return err
			}
			if ctx.Err() != nil {
				return nil
			}
			if time.Since(lastExtended) >= l.ttl {
				return ErrLockNotHeld
			}
		}
	}
}
