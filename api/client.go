// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/boothline/boothline/lib/netutil"
	"github.com/boothline/boothline/lib/schema"
	"github.com/boothline/boothline/session"
)

// healthFetchTimeout bounds the best-effort health fetch used to
// enrich heartbeats. The endpoint is on the booth LAN; three seconds
// of silence means it is down and the heartbeat goes out without the
// server fields.
const healthFetchTimeout = 3 * time.Second

// RosterMirror receives a write-through copy of every successful
// non-empty roster fetch. Implemented by backup.Snapshot.
type RosterMirror interface {
	Save(dancers []schema.Dancer) error
}

// ClientConfig holds configuration for creating a venue Client.
type ClientConfig struct {
	// BaseURL is the venue server base URL (e.g. "http://booth.local:4000").
	BaseURL string
	// Sessions supplies the bearer token for authenticated calls and
	// receives Expire on unauthorized responses. Required.
	Sessions *session.Store
	// Mirror, if non-nil, receives every successful non-empty dancer
	// roster for degraded-mode fallback.
	Mirror RosterMirror
	// HTTPClient is used for all requests. If nil, a client with a
	// 10 second timeout is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// Client is the venue server API client.
type Client struct {
	baseURL    string
	sessions   *session.Store
	mirror     RosterMirror
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a venue API client.
func NewClient(config ClientConfig) (*Client, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("api: BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("api: invalid BaseURL %q: %w", config.BaseURL, err)
	}
	if config.Sessions == nil {
		return nil, fmt.Errorf("api: Sessions is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		sessions:   config.Sessions,
		mirror:     config.Mirror,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Login authenticates with a role and PIN. On success the returned
// session is stored in the session store, replacing any prior grant.
func (c *Client) Login(ctx context.Context, role schema.Role, pin string) (*schema.Session, error) {
	body, err := c.do(ctx, http.MethodPost, "/auth/login", "", map[string]any{
		"role": role,
		"pin":  pin,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("api: login failed: %w", err)
	}

	var grant schema.Session
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, fmt.Errorf("api: login: %w: %v", ErrMalformedResponse, err)
	}
	c.sessions.Set(grant)
	return &grant, nil
}

// CheckSession validates the stored token against the server. A 401
// expires the session store.
func (c *Client) CheckSession(ctx context.Context) (*schema.Session, error) {
	body, err := c.doAuthed(ctx, http.MethodGet, "/auth/session", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("api: session check failed: %w", err)
	}

	var grant schema.Session
	if err := json.Unmarshal(body, &grant); err != nil {
		return nil, fmt.Errorf("api: session check: %w: %v", ErrMalformedResponse, err)
	}
	return &grant, nil
}

// ListDancers fetches the dancer roster. A successful non-empty result
// is written through to the roster mirror so the last good lineup
// survives a server outage; mirror write failures are logged and do
// not fail the fetch.
func (c *Client) ListDancers(ctx context.Context) ([]schema.Dancer, error) {
	body, err := c.doAuthed(ctx, http.MethodGet, "/booth/dancers", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("api: list dancers failed: %w", err)
	}

	var dancers []schema.Dancer
	if err := json.Unmarshal(body, &dancers); err != nil {
		return nil, fmt.Errorf("api: list dancers: %w: %v", ErrMalformedResponse, err)
	}

	if c.mirror != nil && len(dancers) > 0 {
		if err := c.mirror.Save(dancers); err != nil {
			c.logger.Warn("roster mirror save failed", "error", err, "dancers", len(dancers))
		}
	}
	return dancers, nil
}

// CommandsSince fetches the command batch with IDs greater than the
// given cursor, in ascending ID order.
func (c *Client) CommandsSince(ctx context.Context, cursor int64) ([]schema.CommandEnvelope, error) {
	query := url.Values{}
	query.Set("since", strconv.FormatInt(cursor, 10))

	body, err := c.doAuthed(ctx, http.MethodGet, "/booth/commands", nil, query)
	if err != nil {
		return nil, fmt.Errorf("api: fetch commands since %d failed: %w", cursor, err)
	}

	var envelopes []schema.CommandEnvelope
	if err := json.Unmarshal(body, &envelopes); err != nil {
		return nil, fmt.Errorf("api: fetch commands: %w: %v", ErrMalformedResponse, err)
	}
	return envelopes, nil
}

// AckCommands informs the server that every command with ID <= upToID
// has been applied. The protocol is idempotent: re-acknowledging or
// re-fetching already-acknowledged IDs is safe, so callers treat a
// failure here as non-fatal and retry on their next poll.
func (c *Client) AckCommands(ctx context.Context, upToID int64) error {
	_, err := c.doAuthed(ctx, http.MethodPost, "/booth/commands/ack", map[string]any{
		"upToId": upToID,
	}, nil)
	if err != nil {
		return fmt.Errorf("api: ack commands through %d failed: %w", upToID, err)
	}
	return nil
}

// FetchHealth reads the venue server's process health with a short
// timeout. Unauthenticated and best-effort; callers tolerate failure.
func (c *Client) FetchHealth(ctx context.Context) (*schema.ServerHealth, error) {
	ctx, cancel := context.WithTimeout(ctx, healthFetchTimeout)
	defer cancel()

	body, err := c.do(ctx, http.MethodGet, "/health", "", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("api: health fetch failed: %w", err)
	}

	var health schema.ServerHealth
	if err := json.Unmarshal(body, &health); err != nil {
		return nil, fmt.Errorf("api: health fetch: %w: %v", ErrMalformedResponse, err)
	}
	return &health, nil
}

// OpenEvents opens the booth event stream. The push transport cannot
// carry custom headers, so the token travels as a query parameter
// instead of an Authorization header. The caller owns the returned
// body and must close it; a 401 at open time expires the session.
func (c *Client) OpenEvents(ctx context.Context) (io.ReadCloser, error) {
	token := c.sessions.Token()
	if token == "" {
		return nil, ErrNoSession
	}

	query := url.Values{}
	query.Set("token", token)
	requestURL := c.baseURL + "/booth/events?" + query.Encode()

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, fmt.Errorf("api: creating event stream request: %w", err)
	}
	request.Header.Set("Accept", "text/event-stream")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("api: opening event stream: %w", err)
	}

	if response.StatusCode == http.StatusUnauthorized {
		response.Body.Close()
		c.sessions.Expire()
		return nil, fmt.Errorf("api: opening event stream: %w", ErrSessionExpired)
	}
	if response.StatusCode != http.StatusOK {
		detail := netutil.ErrorBody(response.Body)
		response.Body.Close()
		return nil, &APIError{StatusCode: response.StatusCode, Message: detail}
	}
	return response.Body, nil
}

// doAuthed performs an authenticated request with the stored bearer
// token. On a 401 it expires the session store exactly once and
// returns ErrSessionExpired.
func (c *Client) doAuthed(ctx context.Context, method, path string, requestBody any, query url.Values) ([]byte, error) {
	token := c.sessions.Token()
	if token == "" {
		return nil, ErrNoSession
	}

	body, err := c.do(ctx, method, path, token, requestBody, query)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			c.sessions.Expire()
			return nil, ErrSessionExpired
		}
		return nil, err
	}
	return body, nil
}

// do performs an HTTP request against the venue server. Non-2xx
// responses are returned as *APIError.
func (c *Client) do(ctx context.Context, method, path, token string, requestBody any, query url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("api: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("api: creating request: %w", err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("api: request to %s %s failed: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("api: reading response body: %w", err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	// Error responses share one JSON shape; fall back to the raw body
	// when the server sends something else.
	apiErr := &APIError{StatusCode: response.StatusCode}
	if jsonErr := json.Unmarshal(responseBody, apiErr); jsonErr != nil || apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(responseBody))
	}
	return nil, apiErr
}
