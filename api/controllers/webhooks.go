package controllers

import (
	"context"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/mangopay-gateway/api/responses"
	"github.com/angelmondragon/mangopay-gateway/api/validators"
	mangopaywebhook "github.com/angelmondragon/mangopay-gateway/internal/webhooks/mangopay"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
)

type webhookIngestor interface {
	IngestRequest(ctx context.Context, routingID string, query url.Values, body []byte) (*mangopaywebhook.Result, error)
}

// MangopayWebhook accepts processor hook notifications for one platform
// environment. Mangopay sends GET requests with query parameters.
func MangopayWebhook(svc webhookIngestor, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		var body []byte
		if r.Method == http.MethodPost {
			payload, err := validators.ReadBody(w, r)
			if err != nil {
				responses.WriteError(ctx, logg, w, err)
				return
			}
			body = payload
		}

		result, err := svc.IngestRequest(ctx, chi.URLParam(r, "publicPlatformId"), r.URL.Query(), body)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
