// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/boothline/boothline/lib/netutil"
	"github.com/boothline/boothline/lib/schema"
)

// deviceKeyHeader authenticates fleet calls. The key is provisioned
// per booth and stored in the state database, not tied to any user
// session.
const deviceKeyHeader = "X-Device-Key"

// collectorTimeout bounds log and heartbeat POSTs. A hung collector
// must not pin a flush cycle past its period.
const collectorTimeout = 10 * time.Second

// CollectorConfig holds configuration for creating a CollectorClient.
type CollectorConfig struct {
	// BaseURL is the fleet collector base URL.
	BaseURL string
	// DeviceKey authenticates this booth with the collector.
	DeviceKey string
	// HTTPClient is used for all requests. If nil, a client with a
	// 10 second timeout is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default().
	Logger *slog.Logger
}

// CollectorClient posts telemetry and heartbeats to the fleet
// collector. Constructed by the credential gate once both an endpoint
// and a device key exist.
type CollectorClient struct {
	baseURL    string
	deviceKey  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewCollectorClient creates a fleet collector client.
func NewCollectorClient(config CollectorConfig) (*CollectorClient, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("api: collector BaseURL is required")
	}
	if _, err := url.Parse(config.BaseURL); err != nil {
		return nil, fmt.Errorf("api: invalid collector BaseURL %q: %w", config.BaseURL, err)
	}
	if config.DeviceKey == "" {
		return nil, fmt.Errorf("api: collector DeviceKey is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: collectorTimeout}
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &CollectorClient{
		baseURL:    strings.TrimRight(config.BaseURL, "/"),
		deviceKey:  config.DeviceKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// PostLogs ships a batch of telemetry entries to the collector's log
// ingest endpoint. The JSON body is gzip-compressed: stack traces
// compress an order of magnitude and booth uplinks are often thin.
func (c *CollectorClient) PostLogs(ctx context.Context, entries []schema.TelemetryEntry) error {
	if len(entries) == 0 {
		return nil
	}

	payload, err := json.Marshal(map[string]any{"logs": entries})
	if err != nil {
		return fmt.Errorf("api: encoding log batch: %w", err)
	}

	var compressed bytes.Buffer
	writer := gzip.NewWriter(&compressed)
	if _, err := writer.Write(payload); err != nil {
		return fmt.Errorf("api: compressing log batch: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("api: compressing log batch: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/fleet/logs", &compressed)
	if err != nil {
		return fmt.Errorf("api: creating log request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Content-Encoding", "gzip")
	request.Header.Set(deviceKeyHeader, c.deviceKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("api: posting %d log entries failed: %w", len(entries), err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return &APIError{
			StatusCode: response.StatusCode,
			Message:    netutil.ErrorBody(response.Body),
		}
	}
	return nil
}

// PostHeartbeat ships one liveness sample to the collector. The
// acknowledgement body is optional; an empty 2xx response yields a
// zero-value ack.
func (c *CollectorClient) PostHeartbeat(ctx context.Context, sample schema.HeartbeatSample) (*schema.HeartbeatAck, error) {
	payload, err := json.Marshal(sample)
	if err != nil {
		return nil, fmt.Errorf("api: encoding heartbeat: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/fleet/heartbeat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("api: creating heartbeat request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set(deviceKeyHeader, c.deviceKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("api: posting heartbeat failed: %w", err)
	}
	defer response.Body.Close()

	body, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("api: reading heartbeat response: %w", err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: response.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	var ack schema.HeartbeatAck
	if len(body) > 0 {
		if err := json.Unmarshal(body, &ack); err != nil {
			// The heartbeat landed; a garbled ack is not worth a retry.
			c.logger.Warn("unparseable heartbeat ack", "error", err)
		}
	}
	return &ack, nil
}
