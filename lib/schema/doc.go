// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package schema defines the wire and state types shared across
// boothline's core: session grants, dancer roster projections, command
// envelopes, telemetry entries, and heartbeat samples. The JSON tags
// match the venue server and fleet collector APIs; the CBOR tags match
// the local snapshot files.
package schema
