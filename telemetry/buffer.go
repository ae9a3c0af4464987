// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boothline/boothline/lib/clock"
	"github.com/boothline/boothline/lib/schema"
	"github.com/boothline/boothline/statedb"
)

// bufferCapacity bounds the buffer. Under a sustained collector
// outage the oldest entries are dropped; the newest entries are the
// ones the operator will ask about.
const bufferCapacity = 200

// persistTimeout bounds each synchronous write-through to the state
// database. The database is a local file; if a write takes longer
// than this something is badly wrong and Record must still return.
const persistTimeout = 5 * time.Second

// BufferConfig holds the parameters for creating a Buffer.
type BufferConfig struct {
	// DB persists the buffer across restarts. Required.
	DB *statedb.DB

	// Clock supplies entry timestamps. If nil, the real clock.
	Clock clock.Clock

	// AppVersion is stamped on every entry.
	AppVersion string

	// Logger receives operational messages. If nil, slog.Default().
	Logger *slog.Logger
}

// Buffer is a bounded FIFO of telemetry entries, written through to
// the state database on every mutation. Safe for concurrent use:
// Record, Snapshot, Drain, and Requeue are mutually exclusive.
type Buffer struct {
	db         *statedb.DB
	clock      clock.Clock
	appVersion string
	logger     *slog.Logger

	mu      sync.Mutex
	entries []schema.TelemetryEntry
}

// NewBuffer creates a buffer, rehydrating any entries persisted by a
// previous run. Entries beyond capacity (a downgrade, or a corrupted
// trim) are dropped oldest-first on load.
func NewBuffer(cfg BufferConfig) (*Buffer, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("telemetry: DB is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	entries, err := cfg.DB.LoadTelemetry(ctx)
	if err != nil {
		return nil, fmt.Errorf("telemetry: loading persisted buffer: %w", err)
	}
	if len(entries) > bufferCapacity {
		entries = entries[len(entries)-bufferCapacity:]
	}

	buffer := &Buffer{
		db:         cfg.DB,
		clock:      clk,
		appVersion: cfg.AppVersion,
		logger:     logger,
		entries:    entries,
	}
	if len(entries) > 0 {
		logger.Info("telemetry buffer rehydrated", "entries", len(entries))
	}
	return buffer, nil
}

// Record appends an entry and persists the buffer. It never fails:
// it is called from fault-handling paths where a secondary error has
// nowhere to go. Oversized fields are truncated, and if the buffer is
// full the oldest entry is dropped. Persistence failures are logged
// and the in-memory entry is kept.
func (b *Buffer) Record(level schema.Level, component, message, stack string) {
	entry := schema.TelemetryEntry{
		ID:         uuid.NewString(),
		Timestamp:  b.clock.Now().UnixMilli(),
		Level:      level,
		Component:  component,
		Message:    truncate(message, schema.MaxMessageLength),
		Stack:      truncate(stack, schema.MaxStackLength),
		AppVersion: b.appVersion,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, entry)
	if len(b.entries) > bufferCapacity {
		b.entries = b.entries[len(b.entries)-bufferCapacity:]
	}
	b.persistLocked()
}

// Len returns the number of buffered entries.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// Snapshot returns a copy of the current contents without removing
// them.
func (b *Buffer) Snapshot() []schema.TelemetryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()
	snapshot := make([]schema.TelemetryEntry, len(b.entries))
	copy(snapshot, b.entries)
	return snapshot
}

// Drain removes and returns all buffered entries, persisting the
// now-empty buffer. The flusher calls this before attempting
// delivery; on failure it hands the batch back via Requeue.
func (b *Buffer) Drain() []schema.TelemetryEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	drained := b.entries
	b.entries = nil
	b.persistLocked()
	return drained
}

// Requeue prepends entries to the front of the buffer so they are
// retried before anything recorded since, then trims overflow from
// the tail and persists. Called once per failed flush attempt.
func (b *Buffer) Requeue(entries []schema.TelemetryEntry) {
	if len(entries) == 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	combined := make([]schema.TelemetryEntry, 0, len(entries)+len(b.entries))
	combined = append(combined, entries...)
	combined = append(combined, b.entries...)
	if len(combined) > bufferCapacity {
		combined = combined[:bufferCapacity]
	}
	b.entries = combined
	b.persistLocked()
}

// persistLocked writes the full buffer state through to the database.
// Callers hold b.mu.
func (b *Buffer) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := b.db.ReplaceTelemetry(ctx, b.entries); err != nil {
		b.logger.Warn("telemetry buffer persist failed", "error", err, "entries", len(b.entries))
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}
