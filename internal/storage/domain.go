package storage

import (
	"sync"
	"time"

	"zhtp-core/internal/zhtperrors"
)

// DomainRegistry holds every `.zhtp`/`.sov` DomainRecord plus its
// rollback history (spec §3.4, §4.5 "Domain registry").
type DomainRegistry struct {
	mu      sync.RWMutex
	records map[string]DomainRecord
	history map[string][]domainHistoryEntry
}

// NewDomainRegistry builds an empty registry.
func NewDomainRegistry() *DomainRegistry {
	return &DomainRegistry{
		records: make(map[string]DomainRecord),
		history: make(map[string][]domainHistoryEntry),
	}
}

// Register creates a new domain record; fails if the domain already
// exists (spec §4.5: "fails if the domain exists").
func (r *DomainRegistry) Register(domain string, manifest ContentId, ownerDID string, capability Capability) (DomainRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.records[domain]; exists {
		return DomainRecord{}, zhtperrors.New(zhtperrors.KindConsistency, "domain already registered")
	}
	rec := DomainRecord{
		Domain:             domain,
		CurrentManifestCID: manifest,
		Version:            1,
		OwnerDID:           ownerDID,
		UpdatedAt:          time.Now(),
		Capability:         capability,
	}
	r.records[domain] = rec
	return rec, nil
}

// Update performs a compare-and-swap on domain's current manifest,
// pushing the prior manifest onto history and bumping version on
// success (spec §3.4 invariant, §4.5 "Domain registry").
func (r *DomainRegistry) Update(domain string, newCID ContentId, expectedPreviousCID ContentId) (DomainRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[domain]
	if !ok {
		return DomainRecord{}, zhtperrors.New(zhtperrors.KindConsistency, "domain not found")
	}
	if rec.CurrentManifestCID != expectedPreviousCID {
		return DomainRecord{}, zhtperrors.New(zhtperrors.KindConsistency, "domain update CAS mismatch")
	}
	now := time.Now()
	r.history[domain] = append(r.history[domain], domainHistoryEntry{
		Version:    rec.Version,
		ManifestID: rec.CurrentManifestCID,
		RecordedAt: now,
	})
	rec.PreviousManifestCID = rec.CurrentManifestCID
	rec.CurrentManifestCID = newCID
	rec.Version++
	rec.UpdatedAt = now
	r.records[domain] = rec
	return rec, nil
}

// Rollback restores domain's current manifest to the manifest recorded
// at history version v. The replaced manifest is appended to history at
// its old version, and the record's version becomes max_version+1.
func (r *DomainRegistry) Rollback(domain string, v int) (DomainRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[domain]
	if !ok {
		return DomainRecord{}, zhtperrors.New(zhtperrors.KindConsistency, "domain not found")
	}
	var target *domainHistoryEntry
	for i := range r.history[domain] {
		if r.history[domain][i].Version == v {
			target = &r.history[domain][i]
			break
		}
	}
	if target == nil {
		return DomainRecord{}, zhtperrors.New(zhtperrors.KindConsistency, "no history entry at requested version")
	}
	now := time.Now()
	r.history[domain] = append(r.history[domain], domainHistoryEntry{
		Version:    rec.Version,
		ManifestID: rec.CurrentManifestCID,
		RecordedAt: now,
	})
	rec.PreviousManifestCID = rec.CurrentManifestCID
	rec.CurrentManifestCID = target.ManifestID
	rec.Version++
	rec.UpdatedAt = now
	r.records[domain] = rec
	return rec, nil
}

// Resolve returns domain's current manifest, or the manifest as of a
// specific historical version, failing if expired (spec §4.5
// "resolve(domain, version?)").
func (r *DomainRegistry) Resolve(domain string, version *int) (DomainRecord, ContentId, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[domain]
	if !ok {
		return DomainRecord{}, "", zhtperrors.New(zhtperrors.KindConsistency, "domain not found")
	}
	if rec.expired(time.Now()) {
		return DomainRecord{}, "", zhtperrors.New(zhtperrors.KindConsistency, "domain record expired")
	}
	if version == nil {
		return rec, rec.CurrentManifestCID, nil
	}
	for _, h := range r.history[domain] {
		if h.Version == *version {
			return rec, h.ManifestID, nil
		}
	}
	if rec.Version == *version {
		return rec, rec.CurrentManifestCID, nil
	}
	return DomainRecord{}, "", zhtperrors.New(zhtperrors.KindConsistency, "no such history version")
}

// History returns the retained prior manifests for domain, oldest first.
func (r *DomainRegistry) History(domain string) []domainHistoryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domainHistoryEntry, len(r.history[domain]))
	copy(out, r.history[domain])
	return out
}

// DomainSnapshot is the registry's JSON-serializable state, letting a
// CLI process load/save the registry across separate invocations (the
// registry itself is in-memory only).
type DomainSnapshot struct {
	Records map[string]DomainRecord            `json:"records"`
	History map[string][]domainHistoryEntry `json:"history"`
}

// Snapshot captures the registry's current state.
func (r *DomainRegistry) Snapshot() DomainSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := DomainSnapshot{
		Records: make(map[string]DomainRecord, len(r.records)),
		History: make(map[string][]domainHistoryEntry, len(r.history)),
	}
	for k, v := range r.records {
		snap.Records[k] = v
	}
	for k, v := range r.history {
		cp := make([]domainHistoryEntry, len(v))
		copy(cp, v)
		snap.History[k] = cp
	}
	return snap
}

// Restore replaces the registry's state with a previously captured
// snapshot.
func (r *DomainRegistry) Restore(snap DomainSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = make(map[string]DomainRecord, len(snap.Records))
	for k, v := range snap.Records {
		r.records[k] = v
	}
	r.history = make(map[string][]domainHistoryEntry, len(snap.History))
	for k, v := range snap.History {
		cp := make([]domainHistoryEntry, len(v))
		copy(cp, v)
		r.history[k] = cp
	}
}
