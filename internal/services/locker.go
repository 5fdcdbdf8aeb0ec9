package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CandidateLocker serializes record store mutations for one candidate.
// Different candidates never contend.
type CandidateLocker interface {
	Lock(ctx context.Context, candidateID string) (unlock func(), err error)
}

// LocalLocker is a keyed mutex for a single process.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker creates an empty keyed mutex.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{locks: make(map[string]*keyedLock)}
}

// Lock blocks until the candidate's lock is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, candidateID string) (func(), error) {
	l.mu.Lock()
	entry, ok := l.locks[candidateID]
	if !ok {
		entry = &keyedLock{sem: make(chan struct{}, 1)}
		l.locks[candidateID] = entry
	}
	entry.refs++
	l.mu.Unlock()

	select {
	case entry.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(candidateID, entry)
		return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.sem
			l.release(candidateID, entry)
		})
	}, nil
}

func (l *LocalLocker) release(candidateID string, entry *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, candidateID)
	}
}

// size returns the number of tracked keys.
func (l *LocalLocker) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// RedisLocker serializes candidates across service instances with SET NX and
// a token-checked release. The TTL bounds how long a crashed holder blocks others.
type RedisLocker struct {
	redis      *RedisService
	ttl        time.Duration
	retryDelay time.Duration
	maxWait    time.Duration
}

// NewRedisLocker creates a distributed locker.
func NewRedisLocker(redis *RedisService) *RedisLocker {
	return &RedisLocker{
		redis:      redis,
		ttl:        30 * time.Second,
		retryDelay: 50 * time.Millisecond,
		maxWait:    10 * time.Second,
	}
}

func lockKey(candidateID string) string {
	return "talentscout:lock:candidate:" + candidateID
}

// Lock retries until acquired, ctx is done, or maxWait passes.
func (l *RedisLocker) Lock(ctx context.Context, candidateID string) (func(), error) {
	key := lockKey(candidateID)
	token := uuid.NewString()
	deadline := time.Now().Add(l.maxWait)

	for {
		ok, err := l.redis.AcquireLock(ctx, key, token, l.ttl)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: timed out waiting for %s", ErrLockUnavailable, candidateID)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockUnavailable, ctx.Err())
		case <-time.After(l.retryDelay):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if released, err := l.redis.ReleaseLock(releaseCtx, key, token); err != nil || !released {
				log.Printf("⚠️ [LOCK] Lock for %s was not released cleanly (released=%v, err=%v)", candidateID, released, err)
			}
		})
	}, nil
}
