// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Dancer is the minimal roster projection the booth keeps: enough to
// render the lineup and drive announcements while the server is
// unreachable. The CBOR tags cover the local backup snapshot file.
type Dancer struct {
	ID        string `json:"id" cbor:"id"`
	Name      string `json:"name" cbor:"name"`
	StageName string `json:"stageName,omitempty" cbor:"stage_name,omitempty"`
	Active    bool   `json:"active" cbor:"active"`
}
