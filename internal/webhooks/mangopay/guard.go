package mangopaywebhook

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/mangopay-gateway/pkg/marketplace"
	"github.com/angelmondragon/mangopay-gateway/pkg/redis"
)

const guardScope = "mangopay-webhook"

// DeliveryGuard marks notifications in redis so concurrent or repeated
// deliveries of the same event are only recorded once.
type DeliveryGuard struct {
	store redis.IdempotencyStore
	ttl   time.Duration
}

func NewDeliveryGuard(store redis.IdempotencyStore, ttl time.Duration) (*DeliveryGuard, error) {
	if store == nil {
		return nil, errors.New("idempotency store is required")
	}
	if ttl < 0 {
		return nil, errors.New("ttl must be non-negative")
	}
	return &DeliveryGuard{store: store, ttl: ttl}, nil
}

// DeliveryKey identifies one notification within a platform environment.
func DeliveryKey(scope marketplace.Scope, eventType, resourceID string, date int64) string {
	return strings.Join([]string{scope.PlatformID, scope.Env, eventType, resourceID, strconv.FormatInt(date, 10)}, ":")
}

// CheckAndMark reports whether the key was already marked.
func (g *DeliveryGuard) CheckAndMark(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("delivery key is required")
	}
	set, err := g.store.SetNX(ctx, g.store.IdempotencyKey(guardScope, key), "1", g.ttl)
	if err != nil {
		return false, fmt.Errorf("set delivery key: %w", err)
	}
	return !set, nil
}

// Release unmarks the key so the processor's retry is processed again.
func (g *DeliveryGuard) Release(ctx context.Context, key string) error {
	if key == "" {
		return errors.New("delivery key is required")
	}
	return g.store.Del(ctx, g.store.IdempotencyKey(guardScope, key))
}
