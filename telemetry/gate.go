// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/boothline/boothline/lib/clock"
	"github.com/boothline/boothline/statedb"
)

// defaultPollInterval is how often the gate re-checks durable storage
// for a collector credential while waiting.
const defaultPollInterval = 30 * time.Second

// GateState is the credential gate's activation state.
type GateState string

const (
	// GateWaiting means no complete credential is known; all
	// collector network activity is withheld.
	GateWaiting GateState = "waiting"
	// GateActive means the flusher and heartbeat reporter are
	// running against a configured collector.
	GateActive GateState = "active"
)

// GateConfig holds the parameters for creating a Gate.
type GateConfig struct {
	// DB holds the persisted collector credential. Required.
	DB *statedb.DB

	// Activate starts the collector-facing components (flusher,
	// heartbeat reporter) against the given credential and returns a
	// function that stops them. Called once per activation; a
	// re-activation's stop replaces the prior one. Required.
	Activate func(credential statedb.Credential) (stop func(), err error)

	// Clock drives the poll schedule. If nil, the real clock.
	Clock clock.Clock

	// PollInterval between credential checks while waiting.
	// Defaults to 30 seconds.
	PollInterval time.Duration

	// Logger receives operational messages. If nil, slog.Default().
	Logger *slog.Logger
}

// Gate withholds collector traffic until both a collector endpoint
// and a device key are configured. It polls durable storage while
// waiting (provisioning may land at any time, from a config push or
// an operator), activates the delivery components exactly once when
// the credential appears, and stops polling. Reconfiguring an active
// gate replaces the running components instead of stacking a second
// set of timers.
type Gate struct {
	db           *statedb.DB
	activateFn   func(statedb.Credential) (func(), error)
	clock        clock.Clock
	pollInterval time.Duration
	logger       *slog.Logger

	mu         sync.Mutex
	state      GateState
	credential statedb.Credential
	stopActive func()
}

// NewGate creates a gate in the waiting state. No timers run until
// Run is called.
func NewGate(cfg GateConfig) (*Gate, error) {
	if cfg.DB == nil {
		return nil, fmt.Errorf("telemetry: DB is required")
	}
	if cfg.Activate == nil {
		return nil, fmt.Errorf("telemetry: Activate is required")
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
	return &Gate{
		db:           cfg.DB,
		activateFn:   cfg.Activate,
		clock:        clk,
		pollInterval: pollInterval,
		logger:       logger,
		state:        GateWaiting,
	}, nil
}

// State returns the current activation state.
func (g *Gate) State() GateState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Poll checks durable storage once and activates if a complete
// credential is present. Returns true once the gate is active. While
// the credential is incomplete, Poll performs no network activity.
func (g *Gate) Poll(ctx context.Context) bool {
	if g.State() == GateActive {
		return true
	}

	credential, err := g.db.Credential(ctx)
	if err != nil {
		g.logger.Warn("credential check failed", "error", err)
		return false
	}
	if !credential.Complete() {
		return false
	}

	if err := g.activate(credential); err != nil {
		g.logger.Warn("collector activation failed", "error", err)
		return false
	}
	return true
}

// Configure persists a new credential and activates (or reactivates)
// the collector components immediately, without waiting for the next
// poll.
func (g *Gate) Configure(ctx context.Context, credential statedb.Credential) error {
	if !credential.Complete() {
		return fmt.Errorf("telemetry: incomplete credential (endpoint and device key are both required)")
	}
	if err := g.db.SetCredential(ctx, credential); err != nil {
		return fmt.Errorf("telemetry: storing credential: %w", err)
	}
	return g.activate(credential)
}

// Run polls until the gate activates or ctx is cancelled. The poll
// timer stops on activation; a gate activated via Configure makes
// Run's next check a no-op that ends the loop.
func (g *Gate) Run(ctx context.Context) {
	if g.Poll(ctx) {
		return
	}

	ticker := g.clock.NewTicker(g.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if g.Poll(ctx) {
				return
			}
		}
	}
}

// Close stops the running collector components, if any.
func (g *Gate) Close() {
	g.mu.Lock()
	stop := g.stopActive
	g.stopActive = nil
	g.state = GateWaiting
	g.mu.Unlock()

	if stop != nil {
		stop()
	}
}

// activate starts the collector components, stopping any prior set
// first so a reconfiguration never runs two flushers at once.
func (g *Gate) activate(credential statedb.Credential) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.state == GateActive && credential == g.credential {
		return nil
	}

	if g.stopActive != nil {
		g.stopActive()
		g.stopActive = nil
	}

	stop, err := g.activateFn(credential)
	if err != nil {
		g.state = GateWaiting
		return err
	}

	g.state = GateActive
	g.credential = credential
	g.stopActive = stop
	g.logger.Info("collector activated", "endpoint", credential.Endpoint)
	return nil
}
