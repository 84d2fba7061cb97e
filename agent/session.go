// Package agent hosts the client-side half of the trust layer: the token
// lifecycle scheduler, the device trust watcher and the remote sign-out
// broadcaster. Everything here runs inside one long-lived process per
// surface; cross-surface signaling goes over the signal bus.
package agent

import (
	"sync"

	"go.pilab.hu/trustgate/domain"
)

// SessionState is the agent's view of the active provider session plus the
// locally persisted device id. All access is synchronized; the scheduler,
// watcher and broadcaster share one instance.
type SessionState struct {
	mu       sync.RWMutex
	session  *domain.Session
	deviceID string
}

func NewSessionState(deviceID string) *SessionState {
	return &SessionState{deviceID: deviceID}
}

// Current returns the active session, or nil when signed out.
func (s *SessionState) Current() *domain.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// Replace installs a new session, e.g. after sign-in or refresh.
func (s *SessionState) Replace(session *domain.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = session
}

// Clear drops the session.
func (s *SessionState) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
}

// DeviceID returns the locally persisted device identifier.
func (s *SessionState) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deviceID
}
