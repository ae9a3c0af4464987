// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package api contains boothline's HTTP clients.
//
// Client talks to the venue server: login and session checks, the
// command queue, the dancer roster, the health endpoint, and the booth
// event stream. Authenticated calls carry the bearer token from the
// session store; an unauthorized response expires the store and
// surfaces ErrSessionExpired, never a silent retry.
//
// CollectorClient talks to the fleet collector: log ingest and
// heartbeats, authenticated with the booth's device key. It is
// constructed only once the credential gate has both an endpoint and a
// key.
//
// Errors are classified with IsAuth, IsNetwork, and IsProtocol so
// owning components can apply their retry policy without string
// matching.
package api
