package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Locker serializes pipeline runs. The returned release func must be called
// exactly once; calling it again is a no-op for the implementations here.
type Locker interface {
	Lock(ctx context.Context) (release func(), err error)
	TryLock(ctx context.Context) (release func(), ok bool, err error)
}

// MutexLocker is an in-process Locker. Unlike sync.Mutex, Lock gives up when
// ctx is done.
type MutexLocker struct {
	sem *semaphore.Weighted
}

// NewMutexLocker creates an unlocked MutexLocker.
func NewMutexLocker() *MutexLocker {
	return &MutexLocker{sem: semaphore.NewWeighted(1)}
}

// Lock waits for the lock or for ctx to be done.
func (l *MutexLocker) Lock(ctx context.Context) (func(), error) {
	if err := l.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return l.releaser(), nil
}

// TryLock takes the lock only if it is free.
func (l *MutexLocker) TryLock(_ context.Context) (func(), bool, error) {
	if !l.sem.TryAcquire(1) {
		return nil, false, nil
	}
	return l.releaser(), true, nil
}

func (l *MutexLocker) releaser() func() {
	return sync.OnceFunc(func() { l.sem.Release(1) })
}

// ChainLocker takes several locks in order and releases them in reverse.
// Used to hold the in-process lock together with the database advisory lock.
type ChainLocker []Locker

// Lock acquires every lock in order.
func (c ChainLocker) Lock(ctx context.Context) (func(), error) {
	releases := make([]func(), 0, len(c))
	for _, l := range c {
		release, err := l.Lock(ctx)
		if err != nil {
			releaseAll(releases)
			return nil, err
		}
		releases = append(releases, release)
	}
	return onceFunc(releases), nil
}

// TryLock acquires every lock without waiting, or none of them.
func (c ChainLocker) TryLock(ctx context.Context) (func(), bool, error) {
	releases := make([]func(), 0, len(c))
	for _, l := range c {
		release, ok, err := l.TryLock(ctx)
		if err != nil || !ok {
			releaseAll(releases)
			return nil, false, err
		}
		releases = append(releases, release)
	}
	return onceFunc(releases), true, nil
}

func onceFunc(releases []func()) func() {
	return sync.OnceFunc(func() { releaseAll(releases) })
}

func releaseAll(releases []func()) {
	for i := len(releases) - 1; i >= 0; i-- {
		releases[i]()
	}
}
