package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	"github.com/angelmondragon/mangopay-gateway/pkg/auth"
	"github.com/angelmondragon/mangopay-gateway/pkg/db/models"
	"github.com/angelmondragon/mangopay-gateway/pkg/enums"
)

type stubDeadLetters struct {
	platformID string
	env        string
	limit      int
	rows       []models.OutboxDLQ
	err        error
}

func (s *stubDeadLetters) ListByPlatform(_ context.Context, platformID, env string, limit int) ([]models.OutboxDLQ, error) {
	s.platformID, s.env, s.limit = platformID, env, limit
	return s.rows, s.err
}

func deadLetterRequest(target string, permissions ...string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	ctx := caller.WithIdentity(req.Context(), caller.Identity{PlatformID: "42", Env: "live", Permissions: permissions})
	return req.WithContext(ctx)
}

func TestDeadLettersListsCallerScope(t *testing.T) {
	msg := "marketplace 422: invalid resource"
	store := &stubDeadLetters{rows: []models.OutboxDLQ{{
		EventID:      uuid.New(),
		EventType:    enums.EventProcessorWebhookReceived,
		ResourceID:   "po_1",
		ErrorReason:  enums.OutboxDLQReasonNonRetryable,
		ErrorMessage: &msg,
		AttemptCount: 1,
		FailedAt:     time.Now().UTC(),
	}}}
	resp := httptest.NewRecorder()
	DeadLetters(store, nil)(resp, deadLetterRequest("/integrations/mangopay/dead-letters?limit=5", auth.PermissionMangopay))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if store.platformID != "42" || store.env != "live" || store.limit != 5 {
		t.Fatalf("unexpected query %s/%s limit=%d", store.platformID, store.env, store.limit)
	}
	var body struct {
		Data []deadLetter `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].ResourceID != "po_1" || body.Data[0].Message != msg {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestDeadLettersRejects(t *testing.T) {
	cases := []struct {
		name   string
		req    *http.Request
		store  *stubDeadLetters
		status int
	}{
		{"anonymous", httptest.NewRequest(http.MethodGet, "/dead-letters", nil), &stubDeadLetters{}, http.StatusUnauthorized},
		{"unprivileged", deadLetterRequest("/dead-letters"), &stubDeadLetters{}, http.StatusForbidden},
		{"bad limit", deadLetterRequest("/dead-letters?limit=abc", auth.PermissionAll), &stubDeadLetters{}, http.StatusBadRequest},
		{"store down", deadLetterRequest("/dead-letters", auth.PermissionAll), &stubDeadLetters{err: errors.New("db")}, http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		resp := httptest.NewRecorder()
		DeadLetters(tc.store, nil)(resp, tc.req)
		if resp.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.status, resp.Code)
		}
	}
}
