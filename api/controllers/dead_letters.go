package controllers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/angelmondragon/mangopay-gateway/api/responses"
	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	"github.com/angelmondragon/mangopay-gateway/pkg/db/models"
	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
)

type deadLetterLister interface {
	ListByPlatform(ctx context.Context, platformID, env string, limit int) ([]models.OutboxDLQ, error)
}

type deadLetter struct {
	EventID      string    `json:"eventId"`
	EventType    string    `json:"eventType"`
	ResourceID   string    `json:"resourceId"`
	Reason       string    `json:"reason"`
	Message      string    `json:"message,omitempty"`
	AttemptCount int       `json:"attemptCount"`
	FailedAt     time.Time `json:"failedAt"`
}

// DeadLetters lists webhook events that could not be recorded on the
// caller's platform. Only privileged callers may read them.
func DeadLetters(store deadLetterLister, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity, ok := caller.FromContext(r.Context())
		if !ok {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing caller"))
			return
		}
		if !identity.Privileged() {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "dead letters require a privileged token"))
			return
		}

		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "limit must be a non-negative integer"))
				return
			}
			limit = n
		}

		rows, err := store.ListByPlatform(r.Context(), identity.PlatformID, identity.Env, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list dead letters"))
			return
		}
		out := make([]deadLetter, 0, len(rows))
		for _, row := range rows {
			item := deadLetter{
				EventID:      row.EventID.String(),
				EventType:    string(row.EventType),
				ResourceID:   row.ResourceID,
				Reason:       string(row.ErrorReason),
				AttemptCount: row.AttemptCount,
				FailedAt:     row.FailedAt,
			}
			if row.ErrorMessage != nil {
				item.Message = *row.ErrorMessage
			}
			out = append(out, item)
		}
		responses.WriteSuccess(w, out)
	}
}
