// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands delivers server-issued booth commands to the local
// handler with at-least-once semantics. The server holds the queue;
// this side tracks a monotonic cursor, fetches batches past it, and
// acknowledges only after a command has been fully applied. A crash
// mid-apply redelivers, so handlers must be idempotent.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/boothline/boothline/api"
	"github.com/boothline/boothline/lib/clock"
	"github.com/boothline/boothline/lib/schema"
)

// defaultPollInterval is the fallback fetch period. The event stream
// kicks the cursor as soon as the server enqueues a command; the poll
// only covers gaps where the stream is down.
const defaultPollInterval = 30 * time.Second

// Queue is the server's command queue surface. Implemented by
// api.Client.
type Queue interface {
	CommandsSince(ctx context.Context, cursor int64) ([]schema.CommandEnvelope, error)
	AckCommands(ctx context.Context, upToID int64) error
}

// Handler applies one command locally. Commands may be redelivered
// after a crash or a missed acknowledgement; handlers must tolerate
// applying the same envelope twice.
type Handler func(ctx context.Context, envelope schema.CommandEnvelope) error

// Config holds the parameters for creating a Cursor.
type Config struct {
	// Queue is the command endpoint. Required.
	Queue Queue

	// Handler applies fetched commands. Required.
	Handler Handler

	// Clock drives the poll schedule. If nil, the real clock.
	Clock clock.Clock

	// PollInterval between fallback fetches. Defaults to 30 seconds.
	PollInterval time.Duration

	// Logger receives operational messages. If nil, slog.Default().
	Logger *slog.Logger
}

// Cursor tracks the highest acknowledged command ID and drives the
// fetch/apply/ack cycle. Sync calls are serialized internally; the
// cursor never moves backward.
type Cursor struct {
	queue        Queue
	handler      Handler
	clock        clock.Clock
	pollInterval time.Duration
	logger       *slog.Logger

	// syncMu serializes Sync cycles. stateMu guards the cursor value
	// and is never held across network calls.
	syncMu  sync.Mutex
	stateMu sync.Mutex
	acked   int64

	kick chan struct{}
}

// New creates a cursor starting at zero: the first fetch asks for the
// full outstanding queue.
func New(cfg Config) (*Cursor, error) {
	if cfg.Queue == nil {
		return nil, fmt.Errorf("commands: Queue is required")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("commands: Handler is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = defaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Cursor{
		queue:        cfg.Queue,
		handler:      cfg.Handler,
		clock:        clk,
		pollInterval: pollInterval,
		logger:       logger,
		kick:         make(chan struct{}, 1),
	}, nil
}

// Acked returns the highest acknowledged command ID.
func (c *Cursor) Acked() int64 {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.acked
}

// Kick requests an immediate sync from the Run loop. Non-blocking;
// kicks during an in-flight sync coalesce into one follow-up. Wired
// to the event stream's command notification.
func (c *Cursor) Kick() {
	select {
	case c.kick <- struct{}{}:
	default:
	}
}

// Sync performs one fetch/apply/ack cycle. Commands are applied in ID
// order; a handler failure stops the batch, and everything applied so
// far is still acknowledged. An acknowledgement failure is non-fatal:
// re-fetching already-acknowledged IDs is safe, the next cycle
// re-acks.
func (c *Cursor) Sync(ctx context.Context) error {
	c.syncMu.Lock()
	defer c.syncMu.Unlock()

	since := c.Acked()
	envelopes, err := c.queue.CommandsSince(ctx, since)
	if err != nil {
		return fmt.Errorf("commands: fetch since %d: %w", since, err)
	}
	if len(envelopes) == 0 {
		return nil
	}

	applied := since
	var applyErr error
	for _, envelope := range envelopes {
		if envelope.ID <= applied {
			// Redelivery of something already applied this cycle or
			// acknowledged earlier. Skipping keeps apply order
			// strictly ascending.
			continue
		}
		if err := c.handler(ctx, envelope); err != nil {
			applyErr = fmt.Errorf("commands: applying %s (id %d): %w", envelope.Action, envelope.ID, err)
			c.logger.Warn("command apply failed, stopping batch",
				"error", err, "action", envelope.Action, "id", envelope.ID)
			break
		}
		applied = envelope.ID
	}

	if applied > since {
		// The local cursor moves only after successful apply, and
		// only forward.
		c.advance(applied)
		if err := c.queue.AckCommands(ctx, applied); err != nil {
			c.logger.Warn("command ack failed, will retry next cycle",
				"error", err, "up_to", applied)
		} else {
			c.logger.Debug("commands acknowledged", "up_to", applied, "count", len(envelopes))
		}
	}
	return applyErr
}

// Run syncs immediately, then on every kick and on the fallback poll
// interval, until ctx is cancelled.
func (c *Cursor) Run(ctx context.Context) {
	c.syncLogged(ctx)

	ticker := c.clock.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.kick:
			c.syncLogged(ctx)
		case <-ticker.C:
			c.syncLogged(ctx)
		}
	}
}

func (c *Cursor) syncLogged(ctx context.Context) {
	if err := c.Sync(ctx); err != nil && ctx.Err() == nil {
		if api.IsAuth(err) {
			c.logger.Debug("command sync skipped, no session", "error", err)
		} else {
			c.logger.Warn("command sync failed", "error", err)
		}
	}
}

func (c *Cursor) advance(id int64) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	if id > c.acked {
		c.acked = id
	}
}
