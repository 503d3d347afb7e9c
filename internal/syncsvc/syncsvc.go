// Package syncsvc implements the SyncCoordinator component: at most one
// in-flight blockchain/header sync per peer, matched by request_id and
// garbage-collected on expiry. Grounded on the teacher's Replicator
// (core/replication.go), which tracks outstanding getRange/getData
// requests per peer via its awaitRange/awaitBlock bookkeeping;
// generalized here into an explicit, queryable per-peer sync table
// rather than anonymous channel waits.
package syncsvc

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"zhtp-core/internal/zhtperrors"
)

var syncLogger = logrus.New()

// SetLogger overrides the package logger.
func SetLogger(l *logrus.Logger) { syncLogger = l }

// Type names what a sync request is fetching.
type Type uint8

const (
	TypeHeaders Type = iota + 1
	TypeBlockRange
	TypeBootstrapProof
)

// PendingSync is one in-flight request awaiting a matching response.
type PendingSync struct {
	PeerID    string
	RequestID uint64
	SyncType  Type
	Deadline  time.Time
}

func (p PendingSync) expired(now time.Time) bool { return now.After(p.Deadline) }

// Coordinator tracks at most one in-flight sync per peer (spec §4.7).
type Coordinator struct {
	mu      sync.Mutex
	byPeer  map[string]PendingSync
	timeout time.Duration
}

// New builds a Coordinator whose syncs expire after timeout if no
// matching response arrives.
func New(timeout time.Duration) *Coordinator {
	return &Coordinator{byPeer: make(map[string]PendingSync), timeout: timeout}
}

// Start records a new in-flight sync to peerID, failing with a
// Capacity error if that peer already has one outstanding (spec §4.7:
// "at most one in-flight blockchain/header sync per peer").
func (c *Coordinator) Start(peerID string, requestID uint64, syncType Type) (PendingSync, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.byPeer[peerID]; ok && !existing.expired(time.Now()) {
		syncLogger.WithField("peer", peerID).Debug("syncsvc: rejected sync, one already in flight")
		return PendingSync{}, zhtperrors.New(zhtperrors.KindCapacity, "a sync is already in flight for this peer")
	}

	p := PendingSync{PeerID: peerID, RequestID: requestID, SyncType: syncType, Deadline: time.Now().Add(c.timeout)}
	c.byPeer[peerID] = p
	return p, nil
}

// Complete marks peerID's in-flight sync done if requestID matches the
// recorded one, returning false if there was no match (stale or
// unknown response).
func (c *Coordinator) Complete(peerID string, requestID uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.byPeer[peerID]
	if !ok || existing.RequestID != requestID {
		return false
	}
	delete(c.byPeer, peerID)
	return true
}

// Pending returns peerID's in-flight sync, if any and unexpired.
func (c *Coordinator) Pending(peerID string) (PendingSync, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.byPeer[peerID]
	if !ok || p.expired(time.Now()) {
		return PendingSync{}, false
	}
	return p, true
}

// GC removes every expired entry, returning the peer ids it dropped.
func (c *Coordinator) GC() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now()
	var dropped []string
	for peerID, p := range c.byPeer {
		if p.expired(now) {
			dropped = append(dropped, peerID)
			delete(c.byPeer, peerID)
		}
	}
	if len(dropped) > 0 {
		syncLogger.WithField("count", len(dropped)).Debug("syncsvc: garbage collected expired syncs")
	}
	return dropped
}
