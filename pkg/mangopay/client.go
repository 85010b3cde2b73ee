package mangopay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	DefaultBaseURL = "https://api.sandbox.mangopay.com"
	apiVersion     = "v2.01"

	defaultTimeout       = 30 * time.Second
	errorBodyReadLimit   = 64 * 1024
	successBodyReadLimit = 8 * 1024 * 1024
)

var (
	errClientIDRequired = errors.New("mangopay client id is required")
	errAPIKeyRequired   = errors.New("mangopay api key is required")
)

// Credentials identify one platform's processor account.
type Credentials struct {
	ClientID string
	APIKey   string
	BaseURL  string
}

// Observer receives one call per processor HTTP round trip.
type Observer interface {
	ObserveRequest(route, status string)
}

// Client talks to the Mangopay REST API with OAuth2 client credentials.
type Client struct {
	httpClient *http.Client
	baseURL    string
	clientID   string
	timeout    time.Duration
	observer   Observer
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient sets the transport used for both token and API calls.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient builds an authenticated client. The access token is fetched
// lazily on the first call and refreshed by the oauth2 transport.
func NewClient(creds Credentials, opts ...Option) (*Client, error) {
	clientID := strings.TrimSpace(creds.ClientID)
	if clientID == "" {
		return nil, errClientIDRequired
	}
	apiKey := strings.TrimSpace(creds.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}

	client := &Client{
		clientID: clientID,
		baseURL:  normalizeBaseURL(creds.BaseURL),
		timeout:  defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	base := client.httpClient
	if base == nil {
		base = &http.Client{}
	}
	if base.Timeout == 0 {
		base = &http.Client{Transport: base.Transport, Timeout: client.timeout}
	}

	oauthCfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: apiKey,
		TokenURL:     client.baseURL + "/" + apiVersion + "/oauth/token",
		AuthStyle:    oauth2.AuthStyleInHeader,
	}
	tokenCtx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	authed := oauthCfg.Client(tokenCtx)
	authed.Timeout = base.Timeout
	client.httpClient = authed

	return client, nil
}

func normalizeBaseURL(raw string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(raw), "/")
	if trimmed == "" {
		return DefaultBaseURL
	}
	return strings.TrimSuffix(trimmed, "/"+apiVersion)
}

func (c *Client) ClientID() string {
	if c == nil {
		return ""
	}
	return c.clientID
}

// Do performs one API call. path is relative to /v2.01/{clientId}. A nil
// body sends no payload; out may be nil or any JSON target, including
// *json.RawMessage.
func (c *Client) Do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return errors.New("mangopay client not configured")
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		reader = bytes.NewReader(payload)
	}

	endpoint := c.endpoint(path, query)
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := IdempotencyKey(ctx); key != "" && method == http.MethodPost {
		req.Header.Set(IdempotencyHeader, key)
	}

	route := method + " " + routeLabel(path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			apiErr := authError(retrieveErr)
			c.observe(route, strconv.Itoa(apiErr.StatusCode))
			return apiErr
		}
		c.observe(route, "transport_error")
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	c.observe(route, strconv.Itoa(resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyReadLimit))
		return parseAPIError(resp.StatusCode, raw)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, successBodyReadLimit))
	if err != nil {
		return fmt.Errorf("read %s %s: %w", method, path, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	var b strings.Builder
	b.WriteString(c.baseURL)
	b.WriteString("/")
	b.WriteString(apiVersion)
	b.WriteString("/")
	b.WriteString(url.PathEscape(c.clientID))
	if !strings.HasPrefix(path, "/") {
		b.WriteString("/")
	}
	b.WriteString(path)
	if len(query) > 0 {
		b.WriteString("?")
		b.WriteString(query.Encode())
	}
	return b.String()
}

func (c *Client) observe(route, status string) {
	if c.observer != nil {
		c.observer.ObserveRequest(route, status)
	}
}

// routeLabel replaces numeric path segments so metric labels stay bounded.
func routeLabel(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, segment := range segments {
		if segment == "" {
			continue
		}
		if _, err := strconv.ParseInt(segment, 10, 64); err == nil {
			segments[i] = "{id}"
		}
	}
	return "/" + strings.Join(segments, "/")
}

func idPath(format string, ids ...ID) string {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = url.PathEscape(id.String())
	}
	return fmt.Sprintf(format, args...)
}
