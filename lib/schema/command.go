// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

import "encoding/json"

// CommandEnvelope is one server-issued booth command. IDs are assigned
// by the server and strictly increase; the client never mutates an
// envelope, it only fetches batches "since cursor" and later
// acknowledges "through ID".
type CommandEnvelope struct {
	ID      int64           `json:"id"`
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}
