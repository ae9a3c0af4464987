// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP I/O helpers for boothline.
//
// Response body reads are bounded at MaxResponseSize so that a
// misbehaving server cannot drive the client into unbounded memory
// allocation. These helpers are for JSON API responses — the booth
// event stream is read incrementally and does not go through them.
package netutil

import (
	"encoding/json"
	"fmt"
	"io"
)

// MaxResponseSize bounds JSON API response body reads: 16 MB. The
// venue API's largest legitimate response is a full dancer roster,
// orders of magnitude below this; the limit exists only to stop a
// pathological response from exhausting memory.
const MaxResponseSize int64 = 16 << 20

// ReadResponse reads a JSON API response body up to MaxResponseSize
// bytes. Use instead of io.ReadAll on HTTP response bodies.
func ReadResponse(body io.Reader) ([]byte, error) {
	return io.ReadAll(io.LimitReader(body, MaxResponseSize))
}

// DecodeResponse reads a bounded JSON API response body and decodes it
// into v.
func DecodeResponse(body io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	return json.Unmarshal(data, v)
}

// ErrorBody reads an HTTP error response body for inclusion in a
// diagnostic message. Read errors are ignored — a partial body is
// still useful in an error string.
func ErrorBody(body io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(body, MaxResponseSize))
	return string(data)
}
