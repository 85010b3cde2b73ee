package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/mangopay-gateway/api/responses"
	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
)

type windowLimiter interface {
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

// RateLimitPolicy is a fixed-window budget for one traffic surface.
type RateLimitPolicy struct {
	Name   string
	Window time.Duration
	Limit  int
	// Key derives the bucket from the request; an empty key skips limiting.
	Key func(*http.Request) string
}

func (p RateLimitPolicy) enabled() bool {
	return p.Window > 0 && p.Limit > 0 && p.Key != nil
}

// RateLimit rejects requests once a bucket exceeds its window budget.
func RateLimit(policy RateLimitPolicy, store windowLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.enabled() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			bucket := policy.Key(r)
			if bucket == "" {
				next.ServeHTTP(w, r)
				return
			}
			allowed, count, err := store.FixedWindowAllow(ctx, policy.Name+":"+bucket, int64(policy.Limit), policy.Window)
			if err != nil {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limiting"))
				return
			}
			if !allowed {
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":   policy.Name,
						"bucket":   bucket,
						"attempts": count,
						"limit":    policy.Limit,
					}), "rate_limit.blocked")
				}
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerBucket limits per platform environment and user.
func CallerBucket(r *http.Request) string {
	identity, ok := caller.FromContext(r.Context())
	if !ok {
		return clientIP(r)
	}
	return identity.PlatformID + ":" + identity.Env + ":" + identity.UserID
}

// RoutingBucket limits webhook deliveries per public platform id.
func RoutingBucket(param string) func(*http.Request) string {
	return func(r *http.Request) string {
		return chi.URLParam(r, param)
	}
}
