// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Level classifies a telemetry entry.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Field length caps applied by the telemetry buffer before an entry is
// stored. The collector rejects oversized fields; truncating at the
// client keeps an entry with a pathological payload deliverable.
const (
	MaxMessageLength = 2000
	MaxStackLength   = 4000
)

// TelemetryEntry is one client-observed log event bound for the fleet
// collector. Entries are immutable once created; the ID lets the
// collector deduplicate the at-least-once delivery.
type TelemetryEntry struct {
	ID         string `json:"id"`
	Timestamp  int64  `json:"timestamp"` // epoch milliseconds
	Level      Level  `json:"level"`
	Component  string `json:"component"`
	Message    string `json:"message"`
	Stack      string `json:"stack,omitempty"`
	AppVersion string `json:"appVersion"`
}
