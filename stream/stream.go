// Copyright 2026 The Boothline Authors
// SPDX-License-Identifier: Apache-2.0

// Package stream maintains the booth's long-lived server-push event
// subscription. The server speaks server-sent events; this side owns
// a single logical connection, decodes each message, and hands it to
// the subscriber. Transport failures are absorbed with a fixed-delay
// reconnect that runs until the stream is closed.
package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/boothline/boothline/api"
	"github.com/boothline/boothline/lib/clock"
	"github.com/boothline/boothline/lib/schema"
)

// reconnectDelay is the fixed pause between a transport failure and
// the next connection attempt. No backoff: the booth talks to a
// server on the venue LAN, and a constant short delay recovers from
// the common failure (server restart) quickly without hammering it.
const reconnectDelay = 3000 * time.Millisecond

// ErrNoToken is returned by Start when no session token exists. The
// stream does not retry on its own; the caller starts a new stream
// after login.
var ErrNoToken = errors.New("stream: no session token")

// State is the connection state, exported for status surfaces.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
)

// TokenSource reports whether a session token is available.
// Implemented by session.Store.
type TokenSource interface {
	Token() string
}

// Dialer opens the underlying push transport. Implemented by
// api.Client.
type Dialer interface {
	OpenEvents(ctx context.Context) (io.ReadCloser, error)
}

// Config holds the parameters for creating an EventStream.
type Config struct {
	// Dial opens connections. Required.
	Dial Dialer

	// Tokens gates starting: with no token the stream refuses to
	// start. Required.
	Tokens TokenSource

	// OnEvent receives every decoded event. Called from the stream's
	// read goroutine; must not block. Required.
	OnEvent func(event schema.BoothEvent)

	// OnReconnect is called after the stream re-establishes a
	// connection that previously failed, with the generation number
	// of the new connection. The first successful connection is
	// generation 1 and does not fire this. Optional.
	OnReconnect func(generation int)

	// Clock drives the reconnect delay. If nil, the real clock.
	Clock clock.Clock

	// ReconnectDelay overrides the fixed reconnect pause. Defaults
	// to 3 seconds.
	ReconnectDelay time.Duration

	// Logger receives operational messages. If nil, slog.Default().
	Logger *slog.Logger
}

// EventStream owns one logical subscription to the server's event
// channel. Create with New, then Start; Close tears down the
// connection and suppresses any pending reconnect.
type EventStream struct {
	dial           Dialer
	tokens         TokenSource
	onEvent        func(schema.BoothEvent)
	onReconnect    func(int)
	clock          clock.Clock
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu         sync.Mutex
	state      State
	generation int
	body       io.ReadCloser
	cancel     context.CancelFunc
	started    bool

	done chan struct{}
}

// New creates an event stream in the disconnected state.
func New(cfg Config) (*EventStream, error) {
	if cfg.Dial == nil {
		return nil, fmt.Errorf("stream: Dial is required")
	}
	if cfg.Tokens == nil {
		return nil, fmt.Errorf("stream: Tokens is required")
	}
	if cfg.OnEvent == nil {
		return nil, fmt.Errorf("stream: OnEvent is required")
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	delay := cfg.ReconnectDelay
	if delay <= 0 {
		delay = reconnectDelay
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &EventStream{
		dial:           cfg.Dial,
		tokens:         cfg.Tokens,
		onEvent:        cfg.OnEvent,
		onReconnect:    cfg.OnReconnect,
		clock:          clk,
		reconnectDelay: delay,
		logger:         logger,
		state:          StateDisconnected,
		done:           make(chan struct{}),
	}, nil
}

// State returns the current connection state.
func (s *EventStream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation returns the number of connections established so far.
func (s *EventStream) Generation() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Start begins the connect/read/reconnect loop. With no session token
// it returns ErrNoToken immediately and the stream stays disconnected;
// no connection is attempted. Start may be called once per stream.
func (s *EventStream) Start(ctx context.Context) error {
	if s.tokens.Token() == "" {
		return ErrNoToken
	}

	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("stream: already started")
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	go s.run(ctx)
	return nil
}

// Close tears down the connection and suppresses any pending
// reconnect. Safe to call on a never-started stream, and more than
// once.
func (s *EventStream) Close() {
	s.mu.Lock()
	cancel := s.cancel
	body := s.body
	started := s.started
	s.state = StateDisconnected
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if body != nil {
		body.Close()
	}
	if started {
		<-s.done
	}
}

// run is the connect/read/reconnect loop.
func (s *EventStream) run(ctx context.Context) {
	defer close(s.done)
	defer s.setState(StateDisconnected)

	for {
		s.setState(StateConnecting)

		body, err := s.dial.OpenEvents(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if api.IsAuth(err) {
				// The session is gone; reconnecting with the same
				// stale token cannot succeed. The owner starts a
				// fresh stream after re-login.
				s.logger.Warn("event stream closed on auth failure", "error", err)
				return
			}
			s.logger.Warn("event stream connect failed", "error", err)
			if !s.waitReconnect(ctx) {
				return
			}
			continue
		}

		s.mu.Lock()
		s.body = body
		s.generation++
		generation := s.generation
		s.state = StateConnected
		s.mu.Unlock()

		s.logger.Info("event stream connected", "generation", generation)
		if generation > 1 && s.onReconnect != nil {
			s.onReconnect(generation)
		}

		err = s.readEvents(body)
		body.Close()
		s.mu.Lock()
		s.body = nil
		s.mu.Unlock()

		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("event stream dropped", "error", err, "generation", generation)
		if !s.waitReconnect(ctx) {
			return
		}
	}
}

// waitReconnect pauses for the fixed reconnect delay. Returns false
// if the stream was closed during the pause.
func (s *EventStream) waitReconnect(ctx context.Context) bool {
	s.setState(StateReconnecting)
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(s.reconnectDelay):
		return true
	}
}

// readEvents decodes server-sent events off the connection until it
// fails or closes. Malformed payloads are dropped with a warning; the
// connection survives them.
func (s *EventStream) readEvents(body io.Reader) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data []string
	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			if len(data) > 0 {
				s.dispatch(strings.Join(data, "\n"))
				data = data[:0]
			}
			continue
		}
		if value, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(value, " "))
		}
		// Comment lines and other SSE fields (event:, id:, retry:)
		// are ignored; the server encodes everything in data.
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return io.EOF
}

// dispatch decodes one message and forwards it to the subscriber.
func (s *EventStream) dispatch(payload string) {
	var event schema.BoothEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		s.logger.Warn("malformed event dropped", "error", err)
		return
	}
	s.onEvent(event)
}

func (s *EventStream) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
