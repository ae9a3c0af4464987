// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "encoding/json"

// BoothEvent is one server-pushed event decoded off the live stream.
// The payload shape depends on Type and is left to the subscriber.
type BoothEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
