package reqchannel

import "time"

// ActivityType names one kind of session lifecycle or usage event,
// grounded on original_source's session.rs ActivityType enum.
type ActivityType uint8

const (
	ActivityCreated ActivityType = iota + 1
	ActivityAuthSuccess
	ActivityAuthFailure
	ActivityRenewed
	ActivityPermissionGranted
	ActivityPermissionDenied
	ActivityAPIRequest
	ActivityEconomicTransaction
	ActivityTerminated
)

func (a ActivityType) String() string {
	switch a {
	case ActivityCreated:
		return "created"
	case ActivityAuthSuccess:
		return "auth_success"
	case ActivityAuthFailure:
		return "auth_failure"
	case ActivityRenewed:
		return "renewed"
	case ActivityPermissionGranted:
		return "permission_granted"
	case ActivityPermissionDenied:
		return "permission_denied"
	case ActivityAPIRequest:
		return "api_request"
	case ActivityEconomicTransaction:
		return "economic_transaction"
	case ActivityTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// SessionActivity is one audit-log entry for a session.
type SessionActivity struct {
	Timestamp   time.Time
	Type        ActivityType
	Description string
	ClientIP    string
}

// activityRingSize bounds per-session activity retention; older entries
// are dropped as new ones arrive.
const activityRingSize = 32

// recordActivityLocked appends an activity entry; callers must already
// hold m.mu for writing.
func (m *Manager) recordActivityLocked(sessionID [16]byte, t ActivityType, description, clientIP string) {
	entries := append(m.activity[sessionID], SessionActivity{
		Timestamp:   time.Now(),
		Type:        t,
		Description: description,
		ClientIP:    clientIP,
	})
	if len(entries) > activityRingSize {
		entries = entries[len(entries)-activityRingSize:]
	}
	m.activity[sessionID] = entries
}

// LogActivity records an activity entry from outside the Manager's own
// lifecycle methods, e.g. per-request API usage tracking.
func (m *Manager) LogActivity(sessionID [16]byte, t ActivityType, description, clientIP string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordActivityLocked(sessionID, t, description, clientIP)
}

// RecentActivity returns sessionID's retained activity log, oldest first.
func (m *Manager) RecentActivity(sessionID [16]byte) []SessionActivity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := m.activity[sessionID]
	out := make([]SessionActivity, len(entries))
	copy(out, entries)
	return out
}
