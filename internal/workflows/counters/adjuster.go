package counters

import (
	"context"
	"errors"
	"fmt"
	"time"

	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
	"github.com/angelmondragon/mangopay-gateway/pkg/redis"
)

// LockStore is the redis surface the adjuster needs.
type LockStore interface {
	redis.LockStore
	LockKey(parts ...string) string
}

type Params struct {
	Store       LockStore
	TTL         time.Duration
	MaxAttempts int
	RetryDelay  time.Duration
	Logger      *logger.Logger
}

// Adjuster serializes read-modify-write updates of a counter held on a
// marketplace resource. Without a store it runs updates unguarded.
type Adjuster struct {
	store    LockStore
	ttl      time.Duration
	attempts int
	delay    time.Duration
	logg     *logger.Logger
}

func NewAdjuster(params Params) *Adjuster {
	attempts := params.MaxAttempts
	if attempts <= 0 {
		attempts = 20
	}
	delay := params.RetryDelay
	if delay <= 0 {
		delay = 50 * time.Millisecond
	}
	return &Adjuster{
		store:    params.Store,
		ttl:      params.TTL,
		attempts: attempts,
		delay:    delay,
		logg:     params.Logger,
	}
}

// Guarded reports whether updates run under a distributed lock.
func (a *Adjuster) Guarded() bool {
	return a != nil && a.store != nil
}

// With runs fn while holding the lock for (platform, resource, id).
func (a *Adjuster) With(ctx context.Context, platformID, resource, id string, fn func(ctx context.Context) error) error {
	if !a.Guarded() {
		return fn(ctx)
	}

	lock, err := redis.NewLock(a.store, a.store.LockKey("counter", platformID, resource, id), a.ttl)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build counter lock")
	}
	if err := lock.AcquireWithRetry(ctx, a.attempts, a.delay); err != nil {
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, fmt.Sprintf("%s %s is being updated, retry later", resource, id))
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire counter lock")
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := lock.Release(releaseCtx); err != nil && a.logg != nil {
			a.logg.Warn(a.logg.WithField(ctx, "lock_key", lock.Key()), "counter lock release failed: "+err.Error())
		}
	}()

	return fn(ctx)
}
