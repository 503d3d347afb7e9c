package peer

import (
	"fmt"
	"sync"
	"time"

	"zhtp-core/internal/identity"
	"zhtp-core/internal/zhtperrors"
)

// EventKind distinguishes the four observer notifications.
type EventKind uint8

const (
	EventPeerAdded EventKind = iota + 1
	EventPeerUpdated
	EventPeerRemoved
	EventBatchUpdate
)

// Event is dispatched to observers from inside the registry's write lock.
type Event struct {
	Kind    EventKind
	Added   *Entry // EventPeerAdded
	Old     *Entry // EventPeerUpdated
	New     *Entry // EventPeerUpdated
	Removed *Entry // EventPeerRemoved

	BatchAdded   []identity.Id // EventBatchUpdate
	BatchUpdated []identity.Id
	BatchRemoved []identity.Id
}

// Observer is notified synchronously, under the registry's write lock, of
// every peer membership change. Implementations must be non-blocking;
// expensive work should be handed to the observer's own worker.
type Observer interface {
	OnPeerEvent(Event) error
}

const (
	defaultMaxObservers   = 50
	defaultObserverExpiry = time.Hour
)

type observerSlot struct {
	obs          Observer
	registeredAt time.Time
	refreshedAt  time.Time
}

// Registry is the single source of truth for peer membership (spec §4.1).
type Registry struct {
	mu sync.RWMutex

	peers map[identity.Id]*Entry

	obsMu         sync.Mutex
	observers     []*observerSlot
	maxObservers  int
	observerTTL   time.Duration
	metrics       *registryMetrics
	stopSweep     chan struct{}
	sweepInterval time.Duration
}

// NewRegistry constructs an empty Registry with the default observer cap
// (50) and cleanup timeout (1h), per spec §4.1 "Cap & cleanup".
func NewRegistry() *Registry {
	r := &Registry{
		peers:         make(map[identity.Id]*Entry),
		maxObservers:  defaultMaxObservers,
		observerTTL:   defaultObserverExpiry,
		metrics:       newRegistryMetrics(),
		stopSweep:     make(chan struct{}),
		sweepInterval: 5 * time.Minute,
	}
	go r.sweepLoop()
	return r
}

// SetObserverLimits overrides the observer cap / expiry for tests or
// deployment-specific tuning.
func (r *Registry) SetObserverLimits(max int, ttl time.Duration) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	r.maxObservers = max
	r.observerTTL = ttl
}

// RegisterObserver adds obs to the dispatch list, failing with
// KindCapacity once maxObservers is reached.
func (r *Registry) RegisterObserver(obs Observer) error {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	if len(r.observers) >= r.maxObservers {
		return zhtperrors.New(zhtperrors.KindCapacity, fmt.Sprintf("observer limit reached (%d)", r.maxObservers))
	}
	now := time.Now()
	r.observers = append(r.observers, &observerSlot{obs: obs, registeredAt: now, refreshedAt: now})
	return nil
}

// RefreshObserver resets an observer's last-refreshed timestamp so the
// cleanup sweep does not evict it.
func (r *Registry) RefreshObserver(obs Observer) {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	for _, s := range r.observers {
		if s.obs == obs {
			s.refreshedAt = time.Now()
			return
		}
	}
}

func (r *Registry) sweepLoop() {
	t := time.NewTicker(r.sweepInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			r.sweepObservers()
		case <-r.stopSweep:
			return
		}
	}
}

func (r *Registry) sweepObservers() {
	r.obsMu.Lock()
	defer r.obsMu.Unlock()
	cutoff := time.Now().Add(-r.observerTTL)
	kept := r.observers[:0]
	for _, s := range r.observers {
		if s.refreshedAt.After(cutoff) {
			kept = append(kept, s)
		}
	}
	r.observers = kept
}

// Close stops the background cleanup sweep.
func (r *Registry) Close() { close(r.stopSweep) }

// dispatch runs observers in registration order, under the caller's
// already-held write lock. If any observer errors, dispatch stops and
// returns that error so the originating mutation can be rolled back.
func (r *Registry) dispatch(ev Event) error {
	r.obsMu.Lock()
	obs := make([]Observer, len(r.observers))
	for i, s := range r.observers {
		obs[i] = s.obs
	}
	r.obsMu.Unlock()

	for _, o := range obs {
		if err := o.OnPeerEvent(ev); err != nil {
			return zhtperrors.Wrap(zhtperrors.KindIO, "observer rejected peer event", err)
		}
	}
	return nil
}

// Upsert inserts a new peer or merges into an existing one, emitting
// PeerAdded or PeerUpdated. The mutation and its observer dispatch are
// transactional: an observer error leaves the registry unchanged.
func (r *Registry) Upsert(e Entry) error {
	if len(e.Endpoints) == 0 {
		return zhtperrors.New(zhtperrors.KindProtocol, "peer entry must have at least one endpoint")
	}
	e.TrustScore = clampTrust(e.TrustScore)

	r.mu.Lock()
	defer r.mu.Unlock()

	key := e.PeerID.Key()
	existing, ok := r.peers[key]
	if !ok {
		if e.FirstSeen.IsZero() {
			e.FirstSeen = time.Now()
		}
		if e.LastSeen.IsZero() {
			e.LastSeen = e.FirstSeen
		}
		if e.LastSeen.Before(e.FirstSeen) {
			e.LastSeen = e.FirstSeen
		}
		e.Tier = classifyTier(e.TrustScore, e.Capabilities.AvailabilityPct)
		added := e
		if err := r.dispatch(Event{Kind: EventPeerAdded, Added: &added}); err != nil {
			return err
		}
		r.peers[key] = &added
		r.metrics.setPeerCount(len(r.peers))
		return nil
	}

	before := *existing
	merged := *existing
	merged.mergeEndpoints(e.Endpoints)
	merged.ConnectionMetrics = e.ConnectionMetrics
	if e.Capabilities.AvailabilityPct > 0 || len(e.Capabilities.SupportedProtocols) > 0 {
		merged.Capabilities = e.Capabilities
	}
	if merged.LastSeen.Before(e.LastSeen) || e.LastSeen.IsZero() {
		merged.LastSeen = time.Now()
	}
	if e.TrustScore != 0 {
		merged.TrustScore = clampTrust(e.TrustScore)
	}
	merged.Tier = classifyTier(merged.TrustScore, merged.Capabilities.AvailabilityPct)
	if e.DHT != nil {
		merged.DHT = e.DHT
	}

	after := merged
	if err := r.dispatch(Event{Kind: EventPeerUpdated, Old: &before, New: &after}); err != nil {
		return err
	}
	*existing = merged
	return nil
}

// Remove deletes a peer by id, emitting PeerRemoved. A no-op (no error)
// if the peer is unknown.
func (r *Registry) Remove(id identity.Id) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.peers[id]
	if !ok {
		return nil
	}
	removed := *existing
	if err := r.dispatch(Event{Kind: EventPeerRemoved, Removed: &removed}); err != nil {
		return err
	}
	delete(r.peers, id)
	r.metrics.setPeerCount(len(r.peers))
	return nil
}

// Update describes one mutation within a Batch call.
type Update struct {
	Upsert *Entry
	Remove *identity.Id
}

// Batch applies every update and emits a single BatchUpdate event
// summarizing the added/updated/removed ids, per spec §4.1. If any
// individual mutation would fail (bad entry shape) the whole batch is
// rejected before any change is applied; if the single dispatched
// BatchUpdate observer call errors, nothing is applied.
func (r *Registry) Batch(updates []Update) error {
	for _, u := range updates {
		if u.Upsert != nil && len(u.Upsert.Endpoints) == 0 {
			return zhtperrors.New(zhtperrors.KindProtocol, "batch upsert entry must have at least one endpoint")
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var added, updated, removed []identity.Id
	type pendingUpsert struct {
		key   identity.Id
		entry Entry
	}
	var pendingUpserts []pendingUpsert
	var pendingRemovals []identity.Id

	for _, u := range updates {
		switch {
		case u.Upsert != nil:
			e := *u.Upsert
			e.TrustScore = clampTrust(e.TrustScore)
			key := e.PeerID.Key()
			if existing, ok := r.peers[key]; ok {
				merged := *existing
				merged.mergeEndpoints(e.Endpoints)
				merged.ConnectionMetrics = e.ConnectionMetrics
				if len(e.Capabilities.SupportedProtocols) > 0 {
					merged.Capabilities = e.Capabilities
				}
				merged.LastSeen = time.Now()
				if e.TrustScore != 0 {
					merged.TrustScore = e.TrustScore
				}
				merged.Tier = classifyTier(merged.TrustScore, merged.Capabilities.AvailabilityPct)
				pendingUpserts = append(pendingUpserts, pendingUpsert{key, merged})
				updated = append(updated, key)
			} else {
				if e.FirstSeen.IsZero() {
					e.FirstSeen = time.Now()
				}
				if e.LastSeen.Before(e.FirstSeen) {
					e.LastSeen = e.FirstSeen
				}
				e.Tier = classifyTier(e.TrustScore, e.Capabilities.AvailabilityPct)
				pendingUpserts = append(pendingUpserts, pendingUpsert{key, e})
				added = append(added, key)
			}
		case u.Remove != nil:
			if _, ok := r.peers[*u.Remove]; ok {
				pendingRemovals = append(pendingRemovals, *u.Remove)
				removed = append(removed, *u.Remove)
			}
		}
	}

	if len(added)+len(updated)+len(removed) == 0 {
		return nil
	}

	ev := Event{Kind: EventBatchUpdate, BatchAdded: added, BatchUpdated: updated, BatchRemoved: removed}
	if err := r.dispatch(ev); err != nil {
		return err
	}

	for _, pu := range pendingUpserts {
		entry := pu.entry
		r.peers[pu.key] = &entry
	}
	for _, id := range pendingRemovals {
		delete(r.peers, id)
	}
	r.metrics.setPeerCount(len(r.peers))
	return nil
}

// AdjustTrust adds delta to a peer's trust score, clamping to [0,1] and
// reclassifying its tier, emitting PeerUpdated. Used by the transport
// layer's failure model (spec §4.3) to decrement trust on signature
// mismatch without going through Upsert's endpoint-merge semantics.
func (r *Registry) AdjustTrust(id identity.Id, delta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.peers[id]
	if !ok {
		return zhtperrors.New(zhtperrors.KindProtocol, "adjust trust: unknown peer")
	}
	before := *existing
	after := before
	after.TrustScore = clampTrust(before.TrustScore + delta)
	after.Tier = classifyTier(after.TrustScore, after.Capabilities.AvailabilityPct)

	if err := r.dispatch(Event{Kind: EventPeerUpdated, Old: &before, New: &after}); err != nil {
		return err
	}
	*existing = after
	return nil
}

// Get returns a copy of the peer entry, or ok=false if unknown.
func (r *Registry) Get(id identity.Id) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.peers[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// All returns a snapshot of every known peer.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Entry, 0, len(r.peers))
	for _, e := range r.peers {
		out = append(out, *e)
	}
	return out
}

// Count returns the number of known peers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}
