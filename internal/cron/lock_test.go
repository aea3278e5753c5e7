package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cronKey = "lib:lock:cron-worker:test"

type leaseTable struct {
	values map[string]string
	ttls   map[string]time.Duration
	err    error
}

func newLeaseTable() *leaseTable {
	return &leaseTable{values: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (l *leaseTable) SetNX(_ context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if _, taken := l.values[key]; taken {
		return false, nil
	}
	l.values[key] = value.(string)
	l.ttls[key] = ttl
	return true, nil
}

func (l *leaseTable) DelIfValue(_ context.Context, key, value string) (bool, error) {
	if l.values[key] != value {
		return false, nil
	}
	delete(l.values, key)
	return true, nil
}

func TestRedisLockHandsOverAfterRelease(t *testing.T) {
	ctx := context.Background()
	table := newLeaseTable()
	a, err := NewRedisLock(table, cronKey, 0)
	require.NoError(t, err)
	b, err := NewRedisLock(table, cronKey, time.Minute)
	require.NoError(t, err)

	won, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, won)
	assert.Equal(t, defaultLeaseTTL, table.ttls[cronKey])

	won, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, won)

	// b never held the lease, so releasing it is a no-op
	require.NoError(t, b.Release(ctx))
	assert.Contains(t, table.values, cronKey)

	require.NoError(t, a.Release(ctx))
	won, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestRedisLockKeepsSuccessorLease(t *testing.T) {
	ctx := context.Background()
	table := newLeaseTable()
	lock, err := NewRedisLock(table, cronKey, time.Minute)
	require.NoError(t, err)

	won, _ := lock.Acquire(ctx)
	require.True(t, won)
	table.values[cronKey] = "successor"

	require.NoError(t, lock.Release(ctx))
	assert.Equal(t, "successor", table.values[cronKey])
}

func TestRedisLockSurfacesStoreErrors(t *testing.T) {
	table := newLeaseTable()
	table.err = errors.New("connection refused")
	lock, err := NewRedisLock(table, cronKey, time.Minute)
	require.NoError(t, err)

	won, err := lock.Acquire(context.Background())
	assert.False(t, won)
	assert.ErrorContains(t, err, "connection refused")
}

func TestNewRedisLockRequiresStoreAndKey(t *testing.T) {
	_, err := NewRedisLock(nil, cronKey, 0)
	assert.Error(t, err)
	_, err = NewRedisLock(newLeaseTable(), "", 0)
	assert.Error(t, err)
}

func TestLocalLockIsExclusive(t *testing.T) {
	ctx := context.Background()
	lock := NewLocalLock()

	won, _ := lock.Acquire(ctx)
	assert.True(t, won)
	won, _ = lock.Acquire(ctx)
	assert.False(t, won)

	require.NoError(t, lock.Release(ctx))
	won, _ = lock.Acquire(ctx)
	assert.True(t, won)
}
