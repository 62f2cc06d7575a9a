package core

import (
	"sync"
	"sync/atomic"
)

// Session is the authenticated context shared by the command and event channels.
// Safe mode starts enabled.
type Session struct {
	mu              sync.RWMutex
	accountType     AccountType
	accountID       string
	streamSessionID string

	safeMode atomic.Bool
}

// NewSession creates a session for a validated account type
func NewSession(accountType AccountType) *Session {
	s := &Session{accountType: accountType}
	s.safeMode.Store(true)
	return s
}

func (s *Session) AccountType() AccountType {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountType
}

// Bind attaches the session to a new server environment and forgets any previous login
func (s *Session) Bind(accountType AccountType) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountType = accountType
	s.accountID = ""
	s.streamSessionID = ""
}

func (s *Session) AccountID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accountID
}

// StreamSessionID returns the token issued by login, empty before login
func (s *Session) StreamSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.streamSessionID
}

// SetLogin records a successful login
func (s *Session) SetLogin(accountID, streamSessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountID = accountID
	s.streamSessionID = streamSessionID
}

// ClearLogin forgets the stream token after logout
func (s *Session) ClearLogin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.streamSessionID = ""
}

func (s *Session) SafeMode() bool { return s.safeMode.Load() }

func (s *Session) SetSafeMode(enabled bool) { s.safeMode.Store(enabled) }
