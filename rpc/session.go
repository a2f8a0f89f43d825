package rpc

import (
	"sync"

	"github.com/google/uuid"
)

// State is one node of the session handshake state machine (§4.6):
// new -> initializing -> ready -> closing -> closed.
type State string

const (
	StateNew          State = "new"
	StateInitializing State = "initializing"
	StateReady        State = "ready"
	StateClosing      State = "closing"
	StateClosed       State = "closed"
)

// InitializeMethod is the one call allowed before a session reaches ready.
const InitializeMethod = "initialize"

// ShutdownMethod moves a session from ready into closing.
const ShutdownMethod = "shutdown"

// Capabilities is the metadata a session exchanges during initialize.
type Capabilities struct {
	PeerName                string   `json:"peer_name"`
	PeerVersion             string   `json:"peer_version"`
	NegotiatedCapabilities  []string `json:"negotiated_capabilities,omitempty"`
}

// Session tracks per-connection handshake state. One Session exists per
// transport connection (a stdio process or one long-lived HTTP-keepalive
// caller); the HTTP transport, having no persistent connection per request,
// may instead run a single implicit session across all requests (see
// adapter/in/http).
type Session struct {
	ID string

	mu           sync.Mutex
	state        State
	peerName     string
	peerVersion  string
	capabilities []string
}

// NewSession creates a session in the "new" state.
func NewSession() *Session {
	return &Session{ID: uuid.New().String(), state: StateNew}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Initialized reports whether the session has completed its handshake.
func (s *Session) Initialized() bool {
	st := s.State()
	return st == StateReady || st == StateClosing
}

// BeginInitialize transitions new -> initializing. Returns false if the
// session was not in "new" (e.g. a second initialize call).
func (s *Session) BeginInitialize() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateNew {
		return false
	}
	s.state = StateInitializing
	return true
}

// CompleteInitialize records negotiated capabilities and transitions
// initializing -> ready. Per §4.6, this happens "on successful response
// emission" — callers finish building the initialize response, then call
// this right before writing it.
func (s *Session) CompleteInitialize(caps Capabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peerName = caps.PeerName
	s.peerVersion = caps.PeerVersion
	s.capabilities = caps.NegotiatedCapabilities
	s.state = StateReady
}

// BeginClosing transitions ready or initializing -> closing (on a shutdown call or a
// transport-level close signal).
func (s *Session) BeginClosing() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateReady || s.state == StateInitializing {
		s.state = StateClosing
	}
}

// Close transitions to closed once the final response has been flushed.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}
