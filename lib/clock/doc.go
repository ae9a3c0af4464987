// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time abstraction.
//
// Every boothline component that schedules work (reconnect delays,
// credential polling, flush and heartbeat periods) holds a Clock field
// instead of calling the time package directly. Production wiring
// passes Real(); tests pass Fake() and drive time with Advance, which
// makes timer-heavy behavior deterministic without sleeping.
//
// When a goroutine registers a timer on a FakeClock (Sleep, After,
// NewTicker, AfterFunc), tests should call WaitForTimers before
// Advance so the registration cannot race with the time step:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	gate := telemetry.NewGate(..., c, ...)
//	go gate.Run(ctx)
//	c.WaitForTimers(1)
//	c.Advance(30 * time.Second) // fires the credential poll
package clock
