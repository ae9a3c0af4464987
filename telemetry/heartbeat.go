// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/boothline/boothline/lib/clock"
	"github.com/boothline/boothline/lib/hostinfo"
	"github.com/boothline/boothline/lib/schema"
)

// defaultHeartbeatInterval is the period between heartbeat posts once
// the gate is active.
const defaultHeartbeatInterval = 3 * time.Minute

// HeartbeatSink delivers a liveness sample to the fleet collector.
// Implemented by api.CollectorClient.
type HeartbeatSink interface {
	PostHeartbeat(ctx context.Context, sample schema.HeartbeatSample) (*schema.HeartbeatAck, error)
}

// HealthFetcher reads the venue server's self-reported process
// health. Implemented by api.Client.
type HealthFetcher interface {
	FetchHealth(ctx context.Context) (*schema.ServerHealth, error)
}

// ReporterConfig holds the parameters for creating a Reporter.
type ReporterConfig struct {
	// Sink receives heartbeat samples. Required.
	Sink HeartbeatSink

	// Health, if non-nil, enriches samples with the venue server's
	// process stats. Fetch failures are tolerated; the sample goes
	// out without the server fields.
	Health HealthFetcher

	// Clock drives the schedule and the uptime counter. If nil, the
	// real clock.
	Clock clock.Clock

	// Interval between heartbeats. Defaults to 3 minutes.
	Interval time.Duration

	// AppVersion is stamped on every sample.
	AppVersion string

	// DataDir is the filesystem path whose disk usage the sample
	// reports (the booth's state directory). Defaults to "/".
	DataDir string

	// ActiveWorkUnits, if non-nil, reports in-flight booth work
	// (pending commands, queued announcements). Zero otherwise.
	ActiveWorkUnits func() int

	// Active, if non-nil, reports whether a session is live.
	// Implemented by the session store.
	Active func() bool

	// Logger receives operational messages. If nil, slog.Default().
	Logger *slog.Logger
}

// Reporter periodically posts a heartbeat sample to the collector.
// Heartbeats are a liveness signal, not a delivery-guaranteed
// channel: a failed post is logged and the next period tries again
// with a fresh sample.
type Reporter struct {
	sink            HeartbeatSink
	health          HealthFetcher
	clock           clock.Clock
	interval        time.Duration
	appVersion      string
	dataDir         string
	activeWorkUnits func() int
	active          func() bool
	logger          *slog.Logger

	startTime time.Time
}

// NewReporter creates a heartbeat reporter. The uptime counter starts
// at construction. Timers start when the credential gate calls Run.
func NewReporter(cfg ReporterConfig) (*Reporter, error) {
	if cfg.Sink == nil {
		return nil, fmt.Errorf("telemetry: Sink is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultHeartbeatInterval
	}
	dataDir := cfg.DataDir
	if dataDir == "" {
		dataDir = "/"
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		sink:            cfg.Sink,
		health:          cfg.Health,
		clock:           clk,
		interval:        interval,
		appVersion:      cfg.AppVersion,
		dataDir:         dataDir,
		activeWorkUnits: cfg.ActiveWorkUnits,
		active:          cfg.Active,
		logger:          logger,
		startTime:       clk.Now(),
	}, nil
}

// RunOnce assembles and posts a single heartbeat sample.
func (r *Reporter) RunOnce(ctx context.Context) error {
	sample := r.assemble(ctx)
	if _, err := r.sink.PostHeartbeat(ctx, sample); err != nil {
		r.logger.Warn("heartbeat post failed", "error", err)
		return err
	}
	r.logger.Debug("heartbeat posted", "uptime_seconds", sample.UptimeSeconds)
	return nil
}

// Run posts immediately, then on every interval until ctx is
// cancelled.
func (r *Reporter) Run(ctx context.Context) {
	r.RunOnce(ctx)

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RunOnce(ctx)
		}
	}
}

// assemble builds a sample from local resource counters plus a
// best-effort fetch of the venue server's health endpoint.
func (r *Reporter) assemble(ctx context.Context) schema.HeartbeatSample {
	sample := schema.HeartbeatSample{
		AppVersion:    r.appVersion,
		UptimeSeconds: int64(r.clock.Now().Sub(r.startTime).Seconds()),
	}
	if r.activeWorkUnits != nil {
		sample.ActiveWorkUnits = r.activeWorkUnits()
	}
	if r.active != nil {
		sample.IsActive = r.active()
	}

	if memory, err := hostinfo.ReadMemory(); err != nil {
		r.logger.Warn("memory stats unavailable", "error", err)
	} else {
		sample.MemoryPercent = memory.Percent()
		sample.MemoryUsedMB = memory.UsedMB
		sample.MemoryTotalMB = memory.TotalMB
	}

	if disk, err := hostinfo.ReadDisk(r.dataDir); err != nil {
		r.logger.Warn("disk stats unavailable", "error", err, "path", r.dataDir)
	} else {
		sample.DiskPercent = disk.Percent()
		sample.DiskUsedMB = disk.UsedMB
	}

	if r.health != nil {
		if health, err := r.health.FetchHealth(ctx); err != nil {
			r.logger.Debug("server health unavailable", "error", err)
		} else {
			rss := int(health.Memory.RSS / (1024 * 1024))
			heap := int(health.Memory.HeapUsed / (1024 * 1024))
			uptime := health.Uptime
			sample.ServerMemoryRSSMB = &rss
			sample.ServerHeapUsedMB = &heap
			sample.ServerUptimeSeconds = &uptime
		}
	}
	return sample
}
