package controllers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/angelmondragon/mangopay-gateway/api/responses"
	"github.com/angelmondragon/mangopay-gateway/api/validators"
	"github.com/angelmondragon/mangopay-gateway/pkg/logger"
)

type requestHandler interface {
	Handle(ctx context.Context, method string, args json.RawMessage) (any, error)
}

type processorRequest struct {
	Method string          `json:"method" validate:"required,max=64"`
	Args   json.RawMessage `json:"args"`
}

// ProcessorRequest runs one processor method or workflow for the caller.
func ProcessorRequest(svc requestHandler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body processorRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Handle(r.Context(), body.Method, body.Args)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
