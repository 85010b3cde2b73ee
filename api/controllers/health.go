package controllers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/mangopay-gateway/api/responses"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
)

const readinessTimeout = 3 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

func HealthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Mangopay-Gateway-Env", env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady pings every dependency concurrently and fails when any is down.
// Nil pingers are treated as not configured.
func HealthReady(env string, logg *logger.Logger, deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Mangopay-Gateway-Env", env)
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		names := make([]string, 0, len(deps))
		for name, dep := range deps {
			if dep != nil {
				names = append(names, name)
			}
		}
		sort.Strings(names)

		failures := make([]error, len(names))
		g, gctx := errgroup.WithContext(ctx)
		for i, name := range names {
			g.Go(func() error {
				failures[i] = deps[name].Ping(gctx)
				return nil
			})
		}
		_ = g.Wait()

		status := map[string]string{}
		var down []string
		for i, name := range names {
			if failures[i] != nil {
				status[name] = "down"
				down = append(down, name)
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "readiness check failed", failures[i])
				}
				continue
			}
			status[name] = "ok"
		}
		if len(down) > 0 {
			responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeDependency, "not ready").
				WithDetails(map[string]any{"down": down}))
			return
		}
		status["status"] = "ready"
		responses.WriteSuccess(w, status)
	}
}
