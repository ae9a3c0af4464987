// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds the booth's current login session: the bearer
// token plus role and dancer identity. The store is the single owner
// of these fields; every network-facing component reads the token from
// here and reports unauthorized responses back via Expire.
package session

import (
	"log/slog"
	"sync"

	"github.com/boothline/boothline/lib/schema"
)

// Store holds the current session, if any. Safe for concurrent use.
// Session state is in-memory only: it survives for the life of the
// process and is never written to the state database.
type Store struct {
	logger *slog.Logger

	mu          sync.Mutex
	current     schema.Session
	present     bool
	subscribers []func()
}

// NewStore creates an empty session store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{logger: logger}
}

// Set stores a session, replacing any prior value.
func (s *Store) Set(session schema.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = session
	s.present = true
}

// Get returns the current session and whether one is present.
func (s *Store) Get() (schema.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current, s.present
}

// Token returns the current bearer token, or "" when signed out.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return ""
	}
	return s.current.Token
}

// Subscribe registers a callback invoked whenever the session is
// cleared (logout or expiry). Callbacks run outside the store's lock
// and must not block.
func (s *Store) Subscribe(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subscribers = append(s.subscribers, fn)
}

// Clear removes the session. Token, role, and dancer identity are
// dropped together; there is no partial clear. Subscribers are
// notified once per transition from present to absent.
func (s *Store) Clear() {
	s.mu.Lock()
	wasPresent := s.present
	s.current = schema.Session{}
	s.present = false
	subscribers := s.subscribers
	s.mu.Unlock()

	if !wasPresent {
		return
	}
	for _, fn := range subscribers {
		fn()
	}
}

// Expire is called by HTTP-facing components on an unauthorized
// response. It clears the session (at most once — concurrent callers
// racing on the same stale token produce a single notification) and
// logs the expiry. Callers must propagate a session-expired error and
// must not retry with the stale token.
func (s *Store) Expire() {
	s.mu.Lock()
	wasPresent := s.present
	role := s.current.Role
	s.current = schema.Session{}
	s.present = false
	subscribers := s.subscribers
	s.mu.Unlock()

	if !wasPresent {
		return
	}
	s.logger.Warn("session expired", "role", role)
	for _, fn := range subscribers {
		fn()
	}
}
