// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
)

// APIError is a structured error response from the venue server or
// fleet collector. Callers extract it with errors.As:
//
//	var apiErr *api.APIError
//	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict { ... }
type APIError struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
	// Code is the machine-readable error code, when the server sends one.
	Code string `json:"code"`
	// Message is the human-readable description from the server.
	Message string `json:"error"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api: %s (%d): %s", e.Code, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("api: status %d: %s", e.StatusCode, e.Message)
}

// ErrSessionExpired is returned by authenticated calls after an
// unauthorized response has cleared the session store. The request
// must not be retried until a new login produces a fresh token.
var ErrSessionExpired = errors.New("api: session expired")

// ErrNoSession is returned by authenticated calls when no session is
// present at all.
var ErrNoSession = errors.New("api: no active session")

// ErrMalformedResponse marks a response body that could not be decoded.
// The owning component treats the cycle as a no-op and waits for its
// next schedule.
var ErrMalformedResponse = errors.New("api: malformed response")

// IsAuth reports whether err is an authorization failure: either a 401
// from the server or the session-expired sentinel produced by one.
func IsAuth(err error) bool {
	if errors.Is(err, ErrSessionExpired) || errors.Is(err, ErrNoSession) {
		return true
	}
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

// IsNetwork reports whether err is a transport-level failure (timeout,
// refused connection, DNS). Network failures are retried on the owning
// component's normal schedule, never in a tight loop.
func IsNetwork(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// IsProtocol reports whether err is a malformed-response failure.
func IsProtocol(err error) bool {
	return errors.Is(err, ErrMalformedResponse)
}
