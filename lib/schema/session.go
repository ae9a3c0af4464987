// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package schema

// Role identifies which kind of user holds a booth session.
type Role string

const (
	// RoleDJ is the booth operator.
	RoleDJ Role = "dj"
	// RoleDancer is a performer signed in at a floor station.
	RoleDancer Role = "dancer"
)

// Valid reports whether the role is one the server issues.
func (r Role) Valid() bool {
	return r == RoleDJ || r == RoleDancer
}

// Session is the grant returned by the venue server on login or
// session check. The token is an opaque bearer string; the server is
// the sole authority on its validity.
type Session struct {
	Token string `json:"token"`
	Role  Role   `json:"role"`

	// DancerID and DancerName are set only for dancer sessions.
	DancerID   string `json:"dancerId,omitempty"`
	DancerName string `json:"dancerName,omitempty"`

	// Remote marks a session signed in from outside the booth LAN.
	Remote bool `json:"remote,omitempty"`
}
