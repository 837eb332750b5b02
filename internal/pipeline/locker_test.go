package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMutexLocker(t *testing.T) {
	l := NewMutexLocker()
	ctx := context.Background()

	release, err := l.Lock(ctx)
	require.NoError(t, err)

	_, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	release()
	release() // second call is a no-op

	release2, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, _ = l.TryLock(ctx)
	assert.False(t, ok, "double release must not free a second slot")
	release2()
}

func TestMutexLocker_LockHonoursContext(t *testing.T) {
	l := NewMutexLocker()
	release, err := l.Lock(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMutexLocker_WaiterGetsLockOnRelease(t *testing.T) {
	l := NewMutexLocker()
	release, err := l.Lock(context.Background())
	require.NoError(t, err)

	acquired := make(chan func())
	go func() {
		r, err := l.Lock(context.Background())
		if err == nil {
			acquired <- r
		}
	}()

	select {
	case <-acquired:
		t.Fatal("lock taken while held")
	case <-time.After(20 * time.Millisecond):
	}

	release()
	select {
	case r := <-acquired:
		r()
	case <-time.After(time.Second):
		t.Fatal("waiter never got the lock")
	}
}

func TestMutexLocker_DoneContextFails(t *testing.T) {
	l := NewMutexLocker()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Lock(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	release, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	require.True(t, ok, "a failed Lock must not leave the lock held")
	release()
}

type failingLocker struct{ err error }

func (f failingLocker) Lock(context.Context) (func(), error) { return nil, f.err }

func (f failingLocker) TryLock(context.Context) (func(), bool, error) { return nil, false, f.err }

func TestChainLocker(t *testing.T) {
	a, b := NewMutexLocker(), NewMutexLocker()
	chain := ChainLocker{a, b}
	ctx := context.Background()

	release, err := chain.Lock(ctx)
	require.NoError(t, err)

	_, ok, _ := b.TryLock(ctx)
	assert.False(t, ok)

	release()
	rb, ok, _ := b.TryLock(ctx)
	require.True(t, ok)

	// b is busy, so the chain takes nothing and leaves a free
	_, ok, err = chain.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	ra, ok, _ := a.TryLock(ctx)
	assert.True(t, ok)
	ra()
	rb()
}

func TestChainLocker_ErrorReleasesEarlierLocks(t *testing.T) {
	a := NewMutexLocker()
	boom := errors.New("db down")
	chain := ChainLocker{a, failingLocker{err: boom}}

	_, err := chain.Lock(context.Background())
	assert.ErrorIs(t, err, boom)

	release, ok, _ := a.TryLock(context.Background())
	assert.True(t, ok)
	release()
}
