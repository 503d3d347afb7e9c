package reqchannel

import (
	"crypto/subtle"
	"net/http"
	"time"

	"zhtp-core/internal/zhtpcrypto"
	"zhtp-core/internal/zhtperrors"
)

// AuthContext is the authenticated-request header carried on a
// RequestEnvelope (spec §3.5).
type AuthContext struct {
	SessionID [16]byte
	ClientDID string
	Sequence  uint64
	MAC       [32]byte
}

// Envelope is the outer wrapper around a logical application request
// (spec §3.5). Request is left as opaque bytes: its shape is the
// application RPC surface's concern, not the channel's.
type Envelope struct {
	RequestID   [32]byte
	Request     []byte
	AuthContext *AuthContext // nil for unauthenticated GET-equivalent requests
}

// computeMAC covers the serialized request plus session_id, client_did,
// and sequence, as required by spec §3.5's MAC invariant.
func computeMAC(appKey []byte, request []byte, sessionID [16]byte, clientDID string, sequence uint64) ([32]byte, error) {
	var seqBytes [8]byte
	for i := 0; i < 8; i++ {
		seqBytes[i] = byte(sequence >> (8 * (7 - i)))
	}
	msg := append([]byte{}, request...)
	msg = append(msg, sessionID[:]...)
	msg = append(msg, []byte(clientDID)...)
	msg = append(msg, seqBytes[:]...)

	mac, err := zhtpcrypto.Derive("zhtp-request-mac", appKey, msg, 32)
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], mac)
	return out, nil
}

// RequiresAuth reports whether an HTTP-style method must carry a valid
// AuthContext (spec §4.6 "Auth context requirement": POST/PUT/DELETE
// require one, GET does not).
func RequiresAuth(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodDelete:
		return true
	default:
		return false
	}
}

// ValidationResult reports the outcome of ValidateRequest, including
// whether the caller should proactively renew the session.
type ValidationResult struct {
	ShouldRenew bool
}

// ValidateRequest implements spec §4.6 "Validate request": session
// lookup, expiry check, constant-time MAC comparison, and strict
// sequence-monotonicity replay protection.
func (m *Manager) ValidateRequest(env Envelope, request []byte, renewThreshold time.Duration) (ValidationResult, error) {
	if env.AuthContext == nil {
		return ValidationResult{}, zhtperrors.New(zhtperrors.KindAuth, "missing auth context")
	}
	ac := env.AuthContext

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[ac.SessionID]
	if !ok {
		return ValidationResult{}, zhtperrors.New(zhtperrors.KindAuth, "validate request: unknown session")
	}
	if s.State == StateExpired || s.State == StateTerminated || s.State == StateRevoked {
		return ValidationResult{}, zhtperrors.New(zhtperrors.KindAuth, "validate request: session "+s.State.String())
	}

	now := time.Now()
	if now.After(s.ExpiresAt) {
		s.State = StateExpired
		return ValidationResult{}, zhtperrors.New(zhtperrors.KindAuth, "validate request: session expired")
	}

	expected, err := computeMAC(s.appKey, request, ac.SessionID, ac.ClientDID, ac.Sequence)
	if err != nil {
		return ValidationResult{}, zhtperrors.Wrap(zhtperrors.KindProtocol, "compute mac", err)
	}
	if subtle.ConstantTimeCompare(expected[:], ac.MAC[:]) != 1 {
		return ValidationResult{}, zhtperrors.New(zhtperrors.KindAuth, "validate request: mac mismatch")
	}

	if ac.Sequence <= s.highWatermark {
		return ValidationResult{}, zhtperrors.New(zhtperrors.KindAuth, "validate request: replayed or out-of-order sequence")
	}
	s.highWatermark = ac.Sequence
	s.LastActivity = now
	m.recordActivityLocked(ac.SessionID, ActivityAPIRequest, "request validated", "")

	renew := renewThreshold
	if renew <= 0 {
		renew = renewalThreshold
	}
	return ValidationResult{ShouldRenew: s.ExpiresAt.Sub(now) <= renew}, nil
}

// SignRequest computes the MAC for an outgoing request, for clients
// building their own AuthContext. appKey is obtained out of band (the
// session holder, not the Manager, retains it — see Manager.AppKey
// for access by the owning party).
func SignRequest(appKey []byte, sessionID [16]byte, clientDID string, sequence uint64, request []byte) (AuthContext, error) {
	mac, err := computeMAC(appKey, request, sessionID, clientDID, sequence)
	if err != nil {
		return AuthContext{}, err
	}
	return AuthContext{SessionID: sessionID, ClientDID: clientDID, Sequence: sequence, MAC: mac}, nil
}

// AppKey exposes a session's derived MAC key to its owning party (the
// client that created it, or the server holding the matching record).
// Not reachable through Manager.Get, which redacts key material.
func (m *Manager) AppKey(sessionID [16]byte) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), s.appKey...), true
}
