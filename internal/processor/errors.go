package processor

import (
	"context"
	"errors"
	"net/http"

	pkgerrors "github.com/angelmondragon/mangopay-gateway/pkg/errors"
	"github.com/angelmondragon/mangopay-gateway/pkg/mangopay"
)

const processorErrorMessage = "payment processor error"

// Wrap converts a processor failure into a PROCESSOR_ERROR carrying the remote
// status. Details hold the method and processor payload unless redact is set.
func Wrap(method string, err error, redact bool) error {
	if err == nil {
		return nil
	}
	if typed := pkgerrors.As(err); typed != nil {
		return err
	}

	status := http.StatusBadGateway
	var payload any
	if apiErr, ok := mangopay.AsAPIError(err); ok {
		status = apiErr.StatusCode
		payload = apiErr.Payload()
	} else if errors.Is(err, context.DeadlineExceeded) {
		status = http.StatusGatewayTimeout
		payload = map[string]any{"message": "processor call timed out"}
	} else {
		payload = map[string]any{"message": err.Error()}
	}

	wrapped := pkgerrors.Wrap(pkgerrors.CodeProcessor, err, processorErrorMessage).WithStatus(status)
	if redact {
		return wrapped
	}
	return wrapped.WithDetails(map[string]any{
		"method":    method,
		"processor": payload,
	})
}

// Wrap applies the handle's redaction policy.
func (h *Handle) Wrap(method string, err error) error {
	redact := h != nil && h.Redact
	return Wrap(method, err, redact)
}
