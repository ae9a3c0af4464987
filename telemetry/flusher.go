// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boothline/boothline/lib/clock"
	"github.com/boothline/boothline/lib/schema"
)

// defaultFlushInterval is the period between flush attempts once the
// gate is active.
const defaultFlushInterval = 3 * time.Minute

// LogSink delivers a batch of entries to the fleet collector.
// Implemented by api.CollectorClient.
type LogSink interface {
	PostLogs(ctx context.Context, entries []schema.TelemetryEntry) error
}

// FlusherConfig holds the parameters for creating a Flusher.
type FlusherConfig struct {
	// Buffer is the entry source. Required.
	Buffer *Buffer

	// Sink receives drained batches. Required.
	Sink LogSink

	// Clock drives the flush schedule. If nil, the real clock.
	Clock clock.Clock

	// Interval between flush attempts. Defaults to 3 minutes.
	Interval time.Duration

	// Logger receives operational messages. If nil, slog.Default().
	Logger *slog.Logger
}

// Flusher periodically drains the buffer to the collector. A failed
// delivery requeues the whole batch and waits for the next period;
// there is no immediate retry, a retry storm during an outage would
// only deepen it.
type Flusher struct {
	buffer   *Buffer
	sink     LogSink
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger
}

// NewFlusher creates a flusher. It does not start any timers; the
// credential gate calls Run once activation conditions are met.
func NewFlusher(cfg FlusherConfig) (*Flusher, error) {
	if cfg.Buffer == nil {
		return nil, fmt.Errorf("telemetry: Buffer is required")
	}
	if cfg.Sink == nil {
		return nil, fmt.Errorf("telemetry: Sink is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Flusher{
		buffer:   cfg.Buffer,
		sink:     cfg.Sink,
		clock:    clk,
		interval: interval,
		logger:   logger,
	}, nil
}

// RunOnce performs a single flush attempt: drain the buffer, POST the
// batch, and requeue it on any failure. An empty buffer is a no-op.
func (f *Flusher) RunOnce(ctx context.Context) error {
	batch := f.buffer.Drain()
	if len(batch) == 0 {
		return nil
	}

	if err := f.sink.PostLogs(ctx, batch); err != nil {
		f.buffer.Requeue(batch)
		f.logger.Warn("telemetry flush failed, batch requeued",
			"error", err, "entries", len(batch))
		return err
	}

	f.logger.Debug("telemetry flushed", "entries", len(batch))
	return nil
}

// Run flushes immediately, then on every interval until ctx is
// cancelled. Flush failures are absorbed; only cancellation ends the
// loop.
func (f *Flusher) Run(ctx context.Context) {
	f.RunOnce(ctx)

	ticker := f.clock.NewTicker(f.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.RunOnce(ctx)
		}
	}
}
