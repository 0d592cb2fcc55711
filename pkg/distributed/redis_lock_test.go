package distributed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisLock_AcquireAndRelease(t *testing.T) {
	manager := NewRedisLockManager(setupRedisClient(t))
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "test:leader", "instance1", 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "test:leader", lock.Key())

	_, err = manager.AcquireLock(ctx, "test:leader", "instance2", 5*time.Second)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	require.NoError(t, lock.Release(ctx))

	lock2, err := manager.AcquireLock(ctx, "test:leader", "instance2", 5*time.Second)
	require.NoError(t, err)
	defer lock2.Release(ctx)
}

func TestRedisLock_AutoExpire(t *testing.T) {
	manager := NewRedisLockManager(setupRedisClient(t))
	ctx := context.Background()

	lock, err := manager.AcquireLock(ctx, "test:expire", "instance1", time.Second)
	require.NoError(t, err)

	held, err := lock.IsHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)

	time.Sleep(1500 * time.Millisecond)

	held, err = lock.IsHeld(ctx)
	require.NoError(t, err)
	assert.False(t, held)
	assert.ErrorIs(t, lock.Extend(ctx, time.Second), ErrLockNotHeld)
}

func TestRedisLock_SafeRelease(t *testing.T) {
	manager := NewRedisLockManager(setupRedisClient(t))
	ctx := context.Background()

	stale, err := manager.AcquireLock(ctx, "test:safe", "instance1", time.Second)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	current, err := manager.AcquireLock(ctx, "test:safe", "instance2", 5*time.Second)
	require.NoError(t, err)
	defer current.Release(ctx)

	assert.ErrorIs(t, stale.Release(ctx), ErrLockNotHeld)

	held, err := current.IsHeld(ctx)
	require.NoError(t, err)
	assert.True(t, held)
}

func TestRedisLock_TryLockWithRetry(t *testing.T) {
	manager := NewRedisLockManager(setupRedisClient(t))
	ctx := context.Background()

	previous, err := manager.AcquireLock(ctx, "test:retry", "old-instance", 5*time.Second)
	require.NoError(t, err)

	go func() {
		time.Sleep(400 * time.Millisecond)
		previous.Release(context.Background())
	}()

	lock, err := manager.TryLockWithRetry(ctx, "test:retry", "new-instance", 5*time.Second, 5, 200*time.Millisecond)
	require.NoError(t, err)
	defer lock.Release(ctx)

	_, err = manager.TryLockWithRetry(ctx, "test:retry", "third", time.Second, 2, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrLockNotAcquired)
}

func TestRedisLock_KeepAlive(t *testing.T) {
	client := setupRedisClient(t)
	manager := NewRedisLockManager(client)

	lock, err := manager.AcquireLock(context.Background(), "test:keepalive", "instance1", 900*time.Millisecond)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- lock.KeepAlive(ctx) }()

	// TTL보다 오래 기다려도 유지
	time.Sleep(2 * time.Second)
	held, err := lock.IsHeld(context.Background())
	require.NoError(t, err)
	assert.True(t, held)

	// 다른 소유자가 키를 가져가면 KeepAlive는 ErrLockNotHeld로 종료
	require.NoError(t, client.Set(context.Background(), "test:keepalive", "intruder", time.Minute).Err())
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrLockNotHeld)
	case <-time.After(2 * time.Second):
		t.Fatal("KeepAlive did not notice the lost lock")
	}
	cancel()
}

func TestRedisLock_KeepAliveStopsOnCancel(t *testing.T) {
	manager := NewRedisLockManager(setupRedisClient(t))

	lock, err := manager.AcquireLock(context.Background(), "test:cancel", "instance1", 3*time.Second)
	require.NoError(t, err)
	defer lock.Release(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, lock.KeepAlive(ctx))
}
