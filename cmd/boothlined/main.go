// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// boothlined is the booth-side sync daemon. It keeps the venue
// server's event stream and command queue connected, mirrors the
// dancer roster for degraded-mode fallback, and delivers telemetry
// and heartbeats to the fleet collector once credentials are
// provisioned.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/boothline/boothline/api"
	"github.com/boothline/boothline/backup"
	"github.com/boothline/boothline/commands"
	"github.com/boothline/boothline/config"
	"github.com/boothline/boothline/lib/clock"
	"github.com/boothline/boothline/lib/schema"
	"github.com/boothline/boothline/lib/version"
	"github.com/boothline/boothline/session"
	"github.com/boothline/boothline/statedb"
	"github.com/boothline/boothline/stream"
	"github.com/boothline/boothline/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "boothlined:", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		showVersion bool
		role        string
		pin         string
	)
	pflag.StringVar(&configPath, "config", "", "path to config file (overrides BOOTHLINE_CONFIG)")
	pflag.BoolVar(&showVersion, "version", false, "print version information and exit")
	pflag.StringVar(&role, "role", "dj", "login role (dj or dancer)")
	pflag.StringVar(&pin, "pin", "", "login PIN; without it the daemon starts signed out")
	pflag.Parse()

	if showVersion {
		fmt.Println("boothlined " + version.Full())
		return nil
	}

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.EnsurePaths(); err != nil {
		return err
	}

	logger := newLogger(cfg.Log)
	clk := clock.Real()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := statedb.Open(statedb.Config{Path: cfg.StateDBPath(), Logger: logger})
	if err != nil {
		return err
	}
	defer db.Close()

	snapshot, err := backup.New(backup.Config{
		Path:   cfg.RosterSnapshotPath(),
		Clock:  clk,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	sessions := session.NewStore(logger)
	client, err := api.NewClient(api.ClientConfig{
		BaseURL:  cfg.Server.BaseURL,
		Sessions: sessions,
		Mirror:   snapshot,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	buffer, err := telemetry.NewBuffer(telemetry.BufferConfig{
		DB:         db,
		Clock:      clk,
		AppVersion: version.Short(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	// Session expiry is worth a telemetry entry: a booth that keeps
	// getting signed out mid-show is a support case.
	sessions.Subscribe(func() {
		buffer.Record(schema.LevelWarn, "session", "session expired or cleared", "")
	})

	cursor, err := commands.New(commands.Config{
		Queue:        client,
		Handler:      newCommandHandler(logger, buffer),
		Clock:        clk,
		PollInterval: cfg.CommandPollInterval(),
		Logger:       logger,
	})
	if err != nil {
		return err
	}

	events, err := stream.New(stream.Config{
		Dial:   client,
		Tokens: sessions,
		OnEvent: func(event schema.BoothEvent) {
			// Every push means new server state; the command fetch
			// picks up whatever it was.
			logger.Debug("event received", "type", event.Type)
			cursor.Kick()
		},
		OnReconnect: func(generation int) {
			// Commands issued during the gap are waiting server-side.
			logger.Info("event stream recovered", "generation", generation)
			cursor.Kick()
		},
		Clock:          clk,
		ReconnectDelay: cfg.ReconnectDelay(),
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	defer events.Close()

	gate, err := telemetry.NewGate(telemetry.GateConfig{
		DB:           db,
		Clock:        clk,
		PollInterval: cfg.CredentialPollInterval(),
		Activate: func(credential statedb.Credential) (func(), error) {
			return activateCollector(ctx, collectorDeps{
				credential: credential,
				cfg:        cfg,
				buffer:     buffer,
				health:     client,
				sessions:   sessions,
				clock:      clk,
				logger:     logger,
			})
		},
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer gate.Close()

	// A credential in the config file activates the gate right away;
	// otherwise the gate polls for provisioning.
	if cfg.Fleet.Endpoint != "" {
		err := gate.Configure(ctx, statedb.Credential{
			Endpoint:  cfg.Fleet.Endpoint,
			DeviceKey: cfg.Fleet.DeviceKey,
		})
		if err != nil {
			return err
		}
	} else {
		go gate.Run(ctx)
	}

	if pin != "" {
		grant, err := client.Login(ctx, schema.Role(role), pin)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}
		logger.Info("logged in", "role", grant.Role)
	}

	go cursor.Run(ctx)

	if err := events.Start(ctx); err != nil {
		// Signed out is a normal startup state; the stream starts
		// after the application layer logs in.
		logger.Info("event stream not started", "reason", err)
	}

	logger.Info("boothlined running",
		"server", cfg.Server.BaseURL,
		"state", cfg.Paths.State,
		"version", version.Short(),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// collectorDeps carries everything collector activation needs.
type collectorDeps struct {
	credential statedb.Credential
	cfg        *config.Config
	buffer     *telemetry.Buffer
	health     telemetry.HealthFetcher
	sessions   *session.Store
	clock      clock.Clock
	logger     *slog.Logger
}

// activateCollector builds the collector client and starts the
// flusher and heartbeat reporter. The returned stop function cancels
// both and waits for them to exit; the credential gate calls it when
// a new credential replaces this one.
func activateCollector(parent context.Context, deps collectorDeps) (func(), error) {
	collector, err := api.NewCollectorClient(api.CollectorConfig{
		BaseURL:   deps.credential.Endpoint,
		DeviceKey: deps.credential.DeviceKey,
		Logger:    deps.logger,
	})
	if err != nil {
		return nil, err
	}

	flusher, err := telemetry.NewFlusher(telemetry.FlusherConfig{
		Buffer:   deps.buffer,
		Sink:     collector,
		Clock:    deps.clock,
		Interval: deps.cfg.FlushInterval(),
		Logger:   deps.logger,
	})
	if err != nil {
		return nil, err
	}

	reporter, err := telemetry.NewReporter(telemetry.ReporterConfig{
		Sink:       collector,
		Health:     deps.health,
		Clock:      deps.clock,
		Interval:   deps.cfg.HeartbeatInterval(),
		AppVersion: version.Short(),
		DataDir:    deps.cfg.Paths.State,
		Active:     func() bool { return deps.sessions.Token() != "" },
		Logger:     deps.logger,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(parent)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		flusher.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		reporter.Run(ctx)
	}()

	return func() {
		cancel()
		wg.Wait()
	}, nil
}

// newCommandHandler applies server-issued commands. The daemon's
// handler records delivery; rendering announcements and lineup
// changes belongs to the application layer, which registers its own
// handler when embedding the packages directly.
func newCommandHandler(logger *slog.Logger, buffer *telemetry.Buffer) commands.Handler {
	return func(ctx context.Context, envelope schema.CommandEnvelope) error {
		logger.Info("command applied", "action", envelope.Action, "id", envelope.ID)
		buffer.Record(schema.LevelInfo, "commands",
			fmt.Sprintf("applied %s (id %d)", envelope.Action, envelope.ID), "")
		return nil
	}
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	options := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, options)
	} else {
		handler = slog.NewTextHandler(os.Stderr, options)
	}
	return slog.New(handler)
}
