package mangopay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type recordingObserver struct {
	mu     sync.Mutex
	routes []string
}

func (r *recordingObserver) ObserveRequest(route, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route+" "+status)
}

func newTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *int) {
	t.Helper()
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/v2.01/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-1" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"Message":"invalid credentials","Type":"invalid_client"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-1","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v2.01/client-1/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok-1" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		handler(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &tokenCalls
}

func TestClientCreatesTransferWithBearerToken(t *testing.T) {
	var transferKey, walletKey string
	server, tokenCalls := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method + " " + r.URL.Path {
		case "POST /v2.01/client-1/transfers":
			transferKey = r.Header.Get(IdempotencyHeader)
			var body map[string]any
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if body["AuthorId"] != "10" || body["DebitedWalletId"] != "11" {
				t.Errorf("ids must be sent as strings, got %v", body)
			}
			_, _ = w.Write([]byte(`{"Id":"99","Status":"SUCCEEDED","DebitedFunds":{"Currency":"EUR","Amount":500},"CreditedFunds":{"Currency":"EUR","Amount":500},"Fees":{"Currency":"EUR","Amount":0},"AuthorId":"10","DebitedWalletId":"11","CreditedWalletId":"12"}`))
		case "GET /v2.01/client-1/wallets/12":
			walletKey = r.Header.Get(IdempotencyHeader)
			_, _ = w.Write([]byte(`{"Id":"12","Owners":["10"],"Currency":"EUR","Balance":{"Currency":"EUR","Amount":500}}`))
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	observer := &recordingObserver{}
	client, err := NewClient(Credentials{ClientID: "client-1", APIKey: "secret", BaseURL: server.URL + "/v2.01/"}, WithObserver(observer))
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	ctx := WithIdempotencyKey(context.Background(), "transfer-key-0001")
	transfer, err := client.CreateTransfer(ctx, Transfer{
		AuthorID:         10,
		DebitedWalletID:  11,
		CreditedWalletID: 12,
		DebitedFunds:     Money{Currency: "EUR", Amount: 500},
		Fees:             Money{Currency: "EUR"},
	})
	if err != nil {
		t.Fatalf("create transfer: %v", err)
	}
	if transfer.ID != 99 || transfer.Status != StatusSucceeded || transfer.Credited() != 500 {
		t.Fatalf("unexpected transfer %+v", transfer)
	}

	if transferKey != "transfer-key-0001" {
		t.Fatalf("expected idempotency key on POST, got %q", transferKey)
	}

	if _, err := client.GetWallet(ctx, 12); err != nil {
		t.Fatalf("second call: %v", err)
	}
	if walletKey != "" {
		t.Fatalf("GET must not carry an idempotency key, got %q", walletKey)
	}
	if *tokenCalls != 1 {
		t.Fatalf("expected token to be reused, got %d token calls", *tokenCalls)
	}
	if len(observer.routes) != 2 || observer.routes[1] != "GET /wallets/{id} 200" {
		t.Fatalf("unexpected observed routes %v", observer.routes)
	}
}

func TestClientMapsProcessorErrors(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"Message":"One or several required parameters are missing or incorrect.","Type":"param_error","Id":"abc","errors":{"CardId":"The value is invalid"}}`))
	})

	client, err := NewClient(Credentials{ClientID: "client-1", APIKey: "secret", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetCard(context.Background(), 5)
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected api error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Type != "param_error" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	payload := apiErr.Payload()
	if payload["id"] != "abc" || payload["errors"] == nil {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestClientMapsAuthenticationFailure(t *testing.T) {
	server, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("api must not be reached without a token")
	})

	client, err := NewClient(Credentials{ClientID: "client-1", APIKey: "wrong", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	_, err = client.GetUser(context.Background(), 1)
	apiErr, ok := AsAPIError(err)
	if !ok {
		t.Fatalf("expected api error, got %v", err)
	}
	if apiErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", apiErr.StatusCode)
	}
}

func TestNewClientValidatesCredentials(t *testing.T) {
	if _, err := NewClient(Credentials{APIKey: "k"}); err == nil {
		t.Fatalf("expected missing client id error")
	}
	if _, err := NewClient(Credentials{ClientID: "c"}); err == nil {
		t.Fatalf("expected missing api key error")
	}
	client, err := NewClient(Credentials{ClientID: "c", APIKey: "k"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if !strings.HasPrefix(client.endpoint("/users/1", nil), DefaultBaseURL+"/v2.01/c/") {
		t.Fatalf("unexpected endpoint %s", client.endpoint("/users/1", nil))
	}
}

func TestRouteLabel(t *testing.T) {
	if got := routeLabel("/payins/123/refunds"); got != "/payins/{id}/refunds" {
		t.Fatalf("unexpected label %s", got)
	}
}
