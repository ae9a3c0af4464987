// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry collects client-observed errors and health signals
// and delivers them to the fleet collector.
//
// The pipeline has four pieces. Buffer is a bounded, persisted FIFO
// that instrumented call sites record into; recording never fails, so
// it is safe to call from fault handlers. Gate withholds all network
// activity until a collector endpoint and device key are configured,
// polling durable storage until both appear. Once the gate is active,
// Flusher periodically drains the buffer to the collector's log
// endpoint (requeueing the batch on failure), and Reporter posts a
// liveness heartbeat on its own period.
//
// Delivery is at-least-once: a flush that fails after the collector
// already ingested the batch will resend it, and the collector
// deduplicates on entry ID.
package telemetry
