package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"

	"github.com/angelmondragon/mangopay-gateway/api/controllers"
	"github.com/angelmondragon/mangopay-gateway/internal/caller"
	"github.com/angelmondragon/mangopay-gateway/internal/resources"
	mangopaywebhook "github.com/angelmondragon/mangopay-gateway/internal/webhooks/mangopay"
	"github.com/angelmondragon/mangopay-gateway/pkg/auth"
	"github.com/angelmondragon/mangopay-gateway/pkg/config"
	"github.com/angelmondragon/mangopay-gateway/pkg/db/models"
	"github.com/angelmondragon/mangopay-gateway/pkg/metrics"
	"github.com/angelmondragon/mangopay-gateway/pkg/outbox"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error { return nil }

type stubGateway struct {
	identity caller.Identity
	method   string
}

func (s *stubGateway) Handle(ctx context.Context, method string, args json.RawMessage) (any, error) {
	s.identity, _ = caller.FromContext(ctx)
	s.method = method
	return map[string]string{"ok": "yes"}, nil
}

func (s *stubGateway) Methods() []string { return []string{"Users.get"} }

type noEvents struct{}

func (noEvents) FindEvents(context.Context, string, string, int) ([]resources.Event, error) {
	return nil, nil
}

type acceptingOutbox struct{ rows int }

func (a *acceptingOutbox) Emit(context.Context, *gorm.DB, outbox.DomainEvent) (bool, error) {
	a.rows++
	return true, nil
}

type recordingDeadLetters struct{ platformID, env string }

func (r *recordingDeadLetters) ListByPlatform(_ context.Context, platformID, env string, _ int) ([]models.OutboxDLQ, error) {
	r.platformID, r.env = platformID, env
	return nil, nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error { return fn(nil) }

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.App.Env = "dev"
	cfg.JWT = config.JWTConfig{Secret: "secret", Issuer: "platform", ExpirationMinutes: 60}
	cfg.Telemetry.MetricsRoute = "/metrics"
	return cfg
}

var deadLetters *recordingDeadLetters

func newTestRouter(t *testing.T) (http.Handler, *stubGateway, *acceptingOutbox) {
	t.Helper()
	reg := prometheus.NewRegistry()
	box := &acceptingOutbox{}
	hooks, err := mangopaywebhook.NewService(mangopaywebhook.ServiceParams{
		Events:   noEvents{},
		Outbox:   box,
		TxRunner: passthroughTx{},
		Metrics:  metrics.NewWebhookMetrics(reg),
	})
	if err != nil {
		t.Fatalf("webhook service: %v", err)
	}
	gw := &stubGateway{}
	deadLetters = &recordingDeadLetters{}
	handler := NewRouter(RouterParams{
		Config:      testConfig(),
		Gateway:     gw,
		Webhooks:    hooks,
		DeadLetters: deadLetters,
		Ready:       map[string]controllers.Pinger{"db": stubPinger{}},
		Gatherer:    reg,
	})
	return handler, gw, box
}

func TestHealthRoutes(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	for _, path := range []string{"/health/live", "/health/ready"} {
		resp := httptest.NewRecorder()
		handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, path, nil))
		if resp.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, resp.Code)
		}
		if resp.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s: request id header missing", path)
		}
	}
}

func TestRequestRouteRequiresToken(t *testing.T) {
	handler, gw, _ := newTestRouter(t)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodPost, "/integrations/mangopay/request", strings.NewReader(`{"method":"Users.get"}`)))
	if resp.Code != http.StatusUnauthorized || gw.method != "" {
		t.Fatalf("expected 401 before the gateway, got %d", resp.Code)
	}
}

func TestRequestRouteReachesGateway(t *testing.T) {
	handler, gw, _ := newTestRouter(t)
	token, err := auth.MintAccessToken(testConfig().JWT, time.Now(), auth.AccessTokenPayload{UserID: "usr_1", PlatformID: "42", Env: "test"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/integrations/mangopay/request", strings.NewReader(`{"method":"Users.get","args":["1001"]}`))
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if gw.method != "Users.get" || gw.identity.UserID != "usr_1" || gw.identity.PlatformID != "42" {
		t.Fatalf("unexpected gateway call %s %+v", gw.method, gw.identity)
	}
}

func TestWebhookRouteQueuesEvent(t *testing.T) {
	handler, _, box := newTestRouter(t)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/integrations/mangopay/webhooks/e42_live?EventType=PAYIN_NORMAL_SUCCEEDED&RessourceId=3001&Date=1772366400", nil))

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if box.rows != 1 {
		t.Fatalf("expected one queued event, got %d", box.rows)
	}
	if !strings.Contains(resp.Body.String(), `"type":"mangopay_PAYIN_NORMAL_SUCCEEDED"`) {
		t.Fatalf("unexpected body %s", resp.Body.String())
	}
}

func TestMetricsRoute(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/integrations/mangopay/webhooks/e42_live?EventType=PAYIN_NORMAL_SUCCEEDED&RessourceId=1", nil))

	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "mangopay_gateway_webhook") {
		t.Fatalf("webhook metrics missing from exposition")
	}
}

func TestDeadLettersRouteScopedToToken(t *testing.T) {
	handler, _, _ := newTestRouter(t)
	token, err := auth.MintAccessToken(testConfig().JWT, time.Now(), auth.AccessTokenPayload{
		PlatformID:  "42",
		Env:         "test",
		Permissions: []string{auth.PermissionMangopay},
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/integrations/mangopay/dead-letters", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if deadLetters.platformID != "42" || deadLetters.env != "test" {
		t.Fatalf("unexpected scope %s/%s", deadLetters.platformID, deadLetters.env)
	}
}
