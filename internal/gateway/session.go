// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// =============================================================================
// OPTIONS
// =============================================================================

// GatewayURL is the streaming endpoint, parameterized by protocol version and
// the declared stream compression mode.
const GatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json&compress=zlib-stream"

// Options configures a Session.
type Options struct {
	// Token is the credential sent at identify time.
	Token string
	// Intents is the event-category bitmask (default: DefaultIntents).
	Intents uint64
	// URL overrides the gateway endpoint (used by tests).
	URL string
	// Properties identifies the client to the server.
	Properties Properties
	// Logger receives session diagnostics (default: no-op).
	Logger *zap.Logger
}

// Properties is the client-identification metadata sent at identify time.
type Properties struct {
	OS      string
	Browser string
	Device  string
}

// DefaultOptions returns session options for the given token.
func DefaultOptions(token string) Options {
	return Options{
		Token:   token,
		Intents: DefaultIntents,
		URL:     GatewayURL,
		Properties: Properties{
			OS:      "Linux",
			Browser: "concord",
			Device:  "concord",
		},
	}
}

// =============================================================================
// SESSION STATE
// =============================================================================

// State is the session lifecycle state.
type State int32

const (
	StateConnecting State = iota
	StateAwaitingHello
	StateIdentifying
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAwaitingHello:
		return "awaiting-hello"
	case StateIdentifying:
		return "identifying"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrClosed is returned when an operation is attempted on a dead session.
var ErrClosed = errors.New("gateway: session closed")

// =============================================================================
// SESSION
// =============================================================================

// Session is one authenticated gateway connection. It owns the transport, the
// heartbeat task and the Cabinet. A session is single-use: once Done fires it
// cannot be restarted, and callers that need continuous sync must build a new
// Session, which re-syncs from empty state.
type Session struct {
	opts Options
	log  *zap.Logger

	cabinet *Cabinet
	members *MemberSync

	conn frameConn
	tr   *transport

	// writeMu serializes socket writes: heartbeats and on-demand requests
	// are issued from different goroutines.
	writeMu sync.Mutex

	seq   atomic.Int64
	state atomic.Int32

	mu          sync.Mutex
	sessionID   string
	pendingAcks int

	heartbeatStop chan struct{}
	heartbeatOnce sync.Once

	msgEvents chan MessageEvent

	readyCh   chan struct{}
	readyOnce sync.Once

	done     chan struct{}
	doneOnce sync.Once
	err      error
}

// NewSession creates a session in the Connecting state. Connect must be
// called to open the socket.
func NewSession(opts Options) *Session {
	if opts.URL == "" {
		opts.URL = GatewayURL
	}
	if opts.Intents == 0 {
		opts.Intents = DefaultIntents
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	s := &Session{
		opts:          opts,
		log:           opts.Logger,
		cabinet:       NewCabinet(),
		msgEvents:     make(chan MessageEvent, 128),
		heartbeatStop: make(chan struct{}),
		readyCh:       make(chan struct{}),
		done:          make(chan struct{}),
	}
	s.members = newMemberSync(s)
	return s
}

// Cabinet returns the session's state replica. It is valid to read at any
// time, including before Ready; results reflect whatever has synced so far.
func (s *Session) Cabinet() *Cabinet {
	return s.cabinet
}

// Members returns the member-sync coordinator.
func (s *Session) Members() *MemberSync {
	return s.members
}

// MessageEvents returns the live message stream. The channel is buffered;
// when no consumer is draining it, the oldest events are discarded rather
// than stalling the read loop.
func (s *Session) MessageEvents() <-chan MessageEvent {
	return s.msgEvents
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Sequence returns the last observed dispatch sequence number.
func (s *Session) Sequence() int64 {
	return s.seq.Load()
}

// SessionID returns the server-assigned session id from the Ready payload.
func (s *Session) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID
}

// Done is closed when the session terminates for any reason. Err reports why.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the terminal error, nil for a clean Close. It is only
// meaningful after Done is closed.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Connect opens the socket and starts the read loop. It returns once the
// connection is established; the hello/identify/ready handshake completes
// asynchronously. Use WaitUntilReady to block for the bulk payload.
func (s *Session) Connect(ctx context.Context) error {
	s.state.Store(int32(StateConnecting))

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.opts.URL, nil)
	if err != nil {
		s.state.Store(int32(StateClosed))
		return fmt.Errorf("failed to dial gateway: %w", err)
	}

	s.start(conn)
	return nil
}

// start wires a connection into the session and begins reading. Split from
// Connect so tests can inject an in-memory conn.
func (s *Session) start(conn frameConn) {
	s.conn = conn
	s.tr = newTransport(conn, s.log)
	s.state.Store(int32(StateAwaitingHello))
	s.log.Info("connected to gateway")

	go s.readLoop()
}

// WaitUntilReady blocks until the Ready payload has been applied, the session
// dies, or the context expires.
func (s *Session) WaitUntilReady(ctx context.Context) error {
	select {
	case <-s.readyCh:
		return nil
	case <-s.done:
		if err := s.Err(); err != nil {
			return err
		}
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close shuts the session down cleanly: the heartbeat task is cancelled and
// the socket released. In-flight reads unblock via the socket close.
func (s *Session) Close() error {
	s.terminate(nil)
	return nil
}

// terminate ends the session exactly once. A nil err is a caller-requested
// shutdown; anything else is a transport or protocol failure.
func (s *Session) terminate(err error) {
	s.doneOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()

		s.state.Store(int32(StateClosed))
		s.heartbeatOnce.Do(func() { close(s.heartbeatStop) })
		if s.conn != nil {
			_ = s.conn.Close()
		}
		close(s.done)

		if err != nil {
			s.log.Error("session terminated", zap.Error(err))
		} else {
			s.log.Info("session closed")
		}
	})
}

// readLoop is the single inbound path: it drains frames in order and applies
// each payload before reading the next, so events are never reordered.
func (s *Session) readLoop() {
	for {
		p, err := s.tr.ReadPayload()
		if err != nil {
			s.terminate(err)
			return
		}
		s.handlePayload(p)

		select {
		case <-s.done:
			return
		default:
		}
	}
}

// =============================================================================
// OUTBOUND
// =============================================================================

// send marshals and writes one payload. Write failures on a dead socket are
// reported to the caller; they do not crash the read loop.
func (s *Session) send(op int, d any) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	if s.conn == nil {
		return ErrClosed
	}

	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode op %d payload: %w", op, err)
	}
	frame, err := json.Marshal(Payload{Op: op, D: body})
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return fmt.Errorf("failed to write op %d: %w", op, err)
	}
	return nil
}

// identify sends the authentication handshake.
func (s *Session) identify() error {
	s.state.Store(int32(StateIdentifying))
	s.log.Info("sending identify", zap.Uint64("intents", s.opts.Intents))

	return s.send(OpIdentify, identifyData{
		Token:   s.opts.Token,
		Intents: s.opts.Intents,
		Properties: identifyProperties{
			OS:      s.opts.Properties.OS,
			Browser: s.opts.Properties.Browser,
			Device:  s.opts.Properties.Device,
		},
	})
}

// sendHeartbeat writes one keep-alive echoing the last-seen sequence so the
// server can detect gaps.
func (s *Session) sendHeartbeat() error {
	seq := s.seq.Load()

	s.mu.Lock()
	s.pendingAcks++
	missed := s.pendingAcks > 1
	s.mu.Unlock()

	// A missed ack is logged, not fatal: the server closing the socket is
	// the authoritative failure signal.
	if missed {
		s.log.Warn("heartbeat ack overdue", zap.Int64("sequence", seq))
	}

	if err := s.send(OpHeartbeat, seq); err != nil {
		return err
	}
	s.log.Debug("heartbeat sent", zap.Int64("sequence", seq))
	return nil
}

// heartbeatLoop sends a keep-alive every interval until the session ends.
func (s *Session) heartbeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.sendHeartbeat(); err != nil {
				s.log.Warn("heartbeat write failed", zap.Error(err))
				return
			}
		case <-s.heartbeatStop:
			return
		case <-s.done:
			return
		}
	}
}
