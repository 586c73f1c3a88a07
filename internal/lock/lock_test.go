package lock

import (
	"context"
	"testing"
	"time"

	"medallion/pkg/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	ok, err := l.TryLock(ctx, "run", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.TryLock(ctx, "run", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "second holder is refused")

	ok, _ = l.TryLock(ctx, "other", time.Minute)
	assert.True(t, ok, "keys are independent")

	require.NoError(t, l.Unlock(ctx, "run"))
	ok, _ = l.TryLock(ctx, "run", time.Minute)
	assert.True(t, ok)
}

func TestLocalLockerExpiry(t *testing.T) {
	l := NewLocalLocker()
	now := time.Date(2025, 10, 16, 0, 0, 0, 0, time.UTC)
	l.clock = func() time.Time { return now }

	ok, _ := l.TryLock(context.Background(), "run", time.Minute)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, _ = l.TryLock(context.Background(), "run", time.Minute)
	assert.True(t, ok, "expired lock can be taken over")
}

func TestAcquire(t *testing.T) {
	l := NewLocalLocker()
	ctx := context.Background()

	release, err := Acquire(ctx, l, "pipeline", 0)
	require.NoError(t, err)

	_, err = Acquire(ctx, l, "pipeline", 0)
	assert.Equal(t, errors.ErrCodeRunInProgress, errors.GetErrorCode(err))

	require.NoError(t, release(ctx))
	release, err = Acquire(ctx, l, "pipeline", 0)
	require.NoError(t, err)
	assert.NoError(t, release(ctx))
}

func TestNewRedisLockerUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, err := NewRedisLocker(ctx, RedisOptions{Addr: "127.0.0.1:1"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConnectionFailed, errors.GetErrorCode(err))
}
