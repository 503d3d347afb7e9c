// Package reqchannel implements the authenticated RequestChannel:
// session lifecycle, AppKey derivation, and replay-protected request
// envelope validation (spec §3.5, §4.6). Grounded on original_source's
// lib-protocols/src/zhtp/session.rs, following the teacher's
// RWMutex-guarded table pattern from core/peer_management.go.
package reqchannel

import (
	"crypto/rand"
	"fmt"
	"sync"
	"time"

	"zhtp-core/internal/zhtpcrypto"
	"zhtp-core/internal/zhtperrors"
)

// State is a session's lifecycle state (spec §3.5).
type State uint8

const (
	StateActive State = iota + 1
	StateRenewing
	StateExpired
	StateTerminated
	StateRevoked
	StateLocked
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRenewing:
		return "renewing"
	case StateExpired:
		return "expired"
	case StateTerminated:
		return "terminated"
	case StateRevoked:
		return "revoked"
	case StateLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// ClientInfo carries non-authoritative metadata about the connecting
// client, for logging/diagnostics.
type ClientInfo struct {
	UserAgent string
	Address   string
}

// Session is a live authenticated channel between the node and a client
// or peer (spec §3.5).
type Session struct {
	SessionID      [16]byte
	UserID         string
	PeerDID        string
	ClientDID      string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastActivity   time.Time
	State          State
	SecurityLevel  int
	AuthMethods    []string
	Permissions    []string
	ClientInfo     ClientInfo
	masterKey      []byte
	appKey         []byte
	highWatermark  uint64
}

const (
	appKeyInfo            = "zhtp-web4-app-mac"
	defaultSessionTimeout = 30 * time.Minute
	defaultMaxSessions    = 10000
	renewalThreshold      = 2 * time.Minute
	maxRenewExtension     = time.Hour
)

// deriveAppKey implements spec §3.5: AppKey = HKDF("zhtp-web4-app-mac",
// master_key, session_id || peer_did || client_did).
func deriveAppKey(masterKey []byte, sessionID [16]byte, peerDID, clientDID string) ([]byte, error) {
	salt := append(append([]byte{}, sessionID[:]...), []byte(peerDID+clientDID)...)
	return zhtpcrypto.Derive(appKeyInfo, masterKey, salt, 32)
}

// Manager tracks every live session, enforcing a cap on concurrent
// sessions and per-session replay protection.
type Manager struct {
	mu          sync.RWMutex
	sessions    map[[16]byte]*Session
	maxSessions int
	timeout     time.Duration
	activity    map[[16]byte][]SessionActivity
	economics   *SessionEconomicConfig
}

// NewManager builds a session Manager with the spec defaults: a 30m
// session timeout and a 10000-session cap. Economic fee assessment is
// off until EnableEconomics is called.
func NewManager() *Manager {
	return &Manager{
		sessions:    make(map[[16]byte]*Session),
		maxSessions: defaultMaxSessions,
		timeout:     defaultSessionTimeout,
		activity:    make(map[[16]byte][]SessionActivity),
	}
}

// SetLimits overrides the session cap/timeout, for tests or
// deployment-specific tuning.
func (m *Manager) SetLimits(maxSessions int, timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSessions = maxSessions
	m.timeout = timeout
}

func newSessionID() ([16]byte, error) {
	var id [16]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("session_id: %w", err)
	}
	return id, nil
}

// CreateSession admits a new authenticated session from a handshake's
// master_key, rejecting once the session cap is exceeded (spec §4.6
// "Create session").
func (m *Manager) CreateSession(userID, peerDID, clientDID string, masterKey []byte, securityLevel int, authMethods, permissions []string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.maxSessions {
		return nil, zhtperrors.New(zhtperrors.KindCapacity, fmt.Sprintf("session limit reached (%d)", m.maxSessions))
	}

	sid, err := newSessionID()
	if err != nil {
		return nil, err
	}
	appKey, err := deriveAppKey(masterKey, sid, peerDID, clientDID)
	if err != nil {
		return nil, zhtperrors.Wrap(zhtperrors.KindProtocol, "derive app_key", err)
	}

	now := time.Now()
	s := &Session{
		SessionID:     sid,
		UserID:        userID,
		PeerDID:       peerDID,
		ClientDID:     clientDID,
		CreatedAt:     now,
		ExpiresAt:     now.Add(m.timeout),
		LastActivity:  now,
		State:         StateActive,
		SecurityLevel: securityLevel,
		AuthMethods:   authMethods,
		Permissions:   permissions,
		masterKey:     masterKey,
		appKey:        appKey,
	}
	m.sessions[sid] = s
	m.recordActivityLocked(sid, ActivityCreated, "session created for user "+userID, "")
	return s, nil
}

// Get returns a copy of a session's public fields, or ok=false if
// unknown. The app key is never exposed through Get; use ValidateRequest
// to check a MAC instead.
func (m *Manager) Get(sessionID [16]byte) (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return Session{}, false
	}
	cp := *s
	cp.masterKey = nil
	cp.appKey = nil
	return cp, true
}

// Terminate transitions a session to Terminated, e.g. on explicit
// logout.
func (m *Manager) Terminate(sessionID [16]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.State = StateTerminated
		m.recordActivityLocked(sessionID, ActivityTerminated, "session terminated", "")
	}
}

// Renew extends a session's expiry by min(requested, max), only from
// Active or Expired (spec §4.6 "Renew").
func (m *Manager) Renew(sessionID [16]byte, requested time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return zhtperrors.New(zhtperrors.KindProtocol, "renew: unknown session")
	}
	if s.State != StateActive && s.State != StateExpired {
		return zhtperrors.New(zhtperrors.KindAuth, "renew: session not renewable in state "+s.State.String())
	}
	extension := requested
	if extension > maxRenewExtension {
		extension = maxRenewExtension
	}
	s.ExpiresAt = s.ExpiresAt.Add(extension)
	s.State = StateActive
	m.recordActivityLocked(sessionID, ActivityRenewed, "session renewed", "")
	return nil
}
