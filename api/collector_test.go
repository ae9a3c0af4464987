// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/boothline/boothline/lib/schema"
)

func newTestCollector(t *testing.T, handler http.Handler) *CollectorClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewCollectorClient(CollectorConfig{
		BaseURL:   server.URL,
		DeviceKey: "dk-test",
		Logger:    testLogger(),
	})
	if err != nil {
		t.Fatalf("NewCollectorClient: %v", err)
	}
	return client
}

func TestNewCollectorClientValidation(t *testing.T) {
	if _, err := NewCollectorClient(CollectorConfig{DeviceKey: "dk"}); err == nil {
		t.Fatal("expected error for missing BaseURL")
	}
	if _, err := NewCollectorClient(CollectorConfig{BaseURL: "http://collector"}); err == nil {
		t.Fatal("expected error for missing DeviceKey")
	}
}

func TestPostLogsCompressedBody(t *testing.T) {
	entries := []schema.TelemetryEntry{
		{ID: "e1", Timestamp: 1700000000000, Level: schema.LevelError, Component: "stream", Message: "stream dropped"},
		{ID: "e2", Timestamp: 1700000001000, Level: schema.LevelInfo, Component: "commands", Message: "cursor advanced"},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /fleet/logs", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(deviceKeyHeader); got != "dk-test" {
			t.Errorf("%s = %q, want dk-test", deviceKeyHeader, got)
		}
		if got := r.Header.Get("Content-Encoding"); got != "gzip" {
			t.Errorf("Content-Encoding = %q, want gzip", got)
		}
		reader, err := gzip.NewReader(r.Body)
		if err != nil {
			t.Fatalf("opening gzip body: %v", err)
		}
		var body struct {
			Logs []schema.TelemetryEntry `json:"logs"`
		}
		if err := json.NewDecoder(reader).Decode(&body); err != nil {
			t.Fatalf("decoding log batch: %v", err)
		}
		if len(body.Logs) != 2 || body.Logs[0].ID != "e1" || body.Logs[1].Message != "cursor advanced" {
			t.Errorf("unexpected batch: %+v", body.Logs)
		}
	})

	client := newTestCollector(t, mux)
	if err := client.PostLogs(context.Background(), entries); err != nil {
		t.Fatalf("PostLogs: %v", err)
	}
}

func TestPostLogsEmptyBatchSkipsRequest(t *testing.T) {
	var hits atomic.Int64
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	})

	client := newTestCollector(t, handler)
	if err := client.PostLogs(context.Background(), nil); err != nil {
		t.Fatalf("PostLogs: %v", err)
	}
	if hits.Load() != 0 {
		t.Error("empty batch must not produce a request")
	}
}

func TestPostLogsServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "ingest backlogged", http.StatusServiceUnavailable)
	})

	client := newTestCollector(t, handler)
	err := client.PostLogs(context.Background(), []schema.TelemetryEntry{{ID: "e1"}})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", apiErr.StatusCode)
	}
}

func TestPostHeartbeat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /fleet/heartbeat", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(deviceKeyHeader); got != "dk-test" {
			t.Errorf("%s = %q, want dk-test", deviceKeyHeader, got)
		}
		var sample schema.HeartbeatSample
		if err := json.NewDecoder(r.Body).Decode(&sample); err != nil {
			t.Fatalf("decoding heartbeat: %v", err)
		}
		if sample.AppVersion != "1.4.0" || !sample.IsActive {
			t.Errorf("unexpected sample: %+v", sample)
		}
		if sample.ServerUptimeSeconds != nil {
			t.Error("server fields must be absent when not set")
		}
		json.NewEncoder(w).Encode(schema.HeartbeatAck{Acknowledged: true, Message: "ok"})
	})

	client := newTestCollector(t, mux)
	ack, err := client.PostHeartbeat(context.Background(), schema.HeartbeatSample{
		AppVersion: "1.4.0",
		IsActive:   true,
	})
	if err != nil {
		t.Fatalf("PostHeartbeat: %v", err)
	}
	if !ack.Acknowledged || ack.Message != "ok" {
		t.Errorf("unexpected ack: %+v", ack)
	}
}

func TestPostHeartbeatEmptyAckBody(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	client := newTestCollector(t, handler)
	ack, err := client.PostHeartbeat(context.Background(), schema.HeartbeatSample{})
	if err != nil {
		t.Fatalf("PostHeartbeat: %v", err)
	}
	if ack == nil || ack.Acknowledged {
		t.Errorf("empty body should yield a zero ack, got %+v", ack)
	}
}
