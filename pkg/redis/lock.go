package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockTTL = 30 * time.Second

// ErrLockNotAcquired means every attempt found another owner holding the key.
var ErrLockNotAcquired = errors.New("lock not acquired")

// LockStore is the subset of Client a Lock needs.
type LockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Lock is a single-holder lease on one key. The holder writes a random token
// as the value so Release never deletes a lease taken over after expiry.
// A Lock is not safe for concurrent use; build one per critical section.
type Lock struct {
	store LockStore
	key   string
	ttl   time.Duration
	token string
}

func NewLock(store LockStore, key string, ttl time.Duration) (*Lock, error) {
	switch {
	case store == nil:
		return nil, errors.New("lock store is required")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &Lock{store: store, key: key, ttl: ttl}, nil
}

func (l *Lock) Key() string { return l.key }

// Acquire makes a single SETNX attempt and reports whether it won.
func (l *Lock) Acquire(ctx context.Context) (bool, error) {
	token := uuid.NewString()
	won, err := l.store.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", l.key, err)
	}
	if won {
		l.token = token
	}
	return won, nil
}

// AcquireWithRetry makes up to attempts tries spaced by delay. It gives up
// early when ctx ends.
func (l *Lock) AcquireWithRetry(ctx context.Context, attempts int, delay time.Duration) error {
	for try := 1; ; try++ {
		won, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if won {
			return nil
		}
		if try >= attempts {
			return fmt.Errorf("%w: %s", ErrLockNotAcquired, l.key)
		}
		wait := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			wait.Stop()
			return ctx.Err()
		case <-wait.C:
		}
	}
}

// Release deletes the key if this Lock still holds it. Releasing an expired
// or foreign lease is a no-op.
func (l *Lock) Release(ctx context.Context) error {
	token := l.token
	if token == "" {
		return nil
	}
	l.token = ""

	current, err := l.store.Get(ctx, l.key)
	switch {
	case errors.Is(err, redis.Nil):
		return nil
	case err != nil:
		return fmt.Errorf("read lock %s: %w", l.key, err)
	case current != token:
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	return nil
}
