package storage

import (
	"sort"
	"sync"
	"time"
)

// ReplicationPolicy selects how many copies of an object are kept and
// where (spec §4.5 "Replication policy").
type ReplicationPolicy uint8

const (
	ReplicationNone ReplicationPolicy = iota + 1
	ReplicationCount
	ReplicationGeographic
	ReplicationEconomic
)

// ReplicaHealth is a replica's last-observed reachability state.
type ReplicaHealth uint8

const (
	ReplicaHealthy ReplicaHealth = iota + 1
	ReplicaUnavailable
	ReplicaCorrupted
	ReplicaLost
)

func (h ReplicaHealth) needsReReplication() bool {
	return h == ReplicaUnavailable || h == ReplicaCorrupted || h == ReplicaLost
}

// Replica records one stored copy of a content id on a remote node.
type Replica struct {
	NodeID   string
	Region   string
	Health   ReplicaHealth
	Bid      float64 // Economic policy: price the provider offered
	Reputation float64
	PlacedAt time.Time
}

// ReplicationSpec configures how many replicas a policy wants and how.
type ReplicationSpec struct {
	Policy  ReplicationPolicy
	Count   int      // for ReplicationCount / ReplicationGeographic: target replica count
	Regions []string // for ReplicationGeographic: target distinct regions
}

// planReplicas selects which of the candidate nodes/regions should hold
// a replica under spec, per spec §4.5's four named policies. Candidates
// are assumed pre-filtered to nodes willing to store the object.
func planReplicas(spec ReplicationSpec, candidates []Replica) []Replica {
	switch spec.Policy {
	case ReplicationNone:
		return nil
	case ReplicationCount:
		if len(candidates) > spec.Count {
			return candidates[:spec.Count]
		}
		return candidates
	case ReplicationGeographic:
		return pickDistinctRegions(candidates, spec.Count)
	case ReplicationEconomic:
		return pickByPriceAndReputation(candidates, spec.Count)
	default:
		return nil
	}
}

// pickDistinctRegions greedily selects up to count candidates covering
// as many distinct regions as possible.
func pickDistinctRegions(candidates []Replica, count int) []Replica {
	seen := make(map[string]bool, count)
	var out []Replica
	for _, c := range candidates {
		if len(out) >= count {
			break
		}
		if seen[c.Region] {
			continue
		}
		seen[c.Region] = true
		out = append(out, c)
	}
	return out
}

// pickByPriceAndReputation ranks candidates by price ÷ reputation
// (lowest price, highest reputation wins) and returns the top count.
func pickByPriceAndReputation(candidates []Replica, count int) []Replica {
	ranked := make([]Replica, len(candidates))
	copy(ranked, candidates)
	sort.Slice(ranked, func(i, j int) bool {
		scoreI := ranked[i].Bid / maxF(ranked[i].Reputation, 0.01)
		scoreJ := ranked[j].Bid / maxF(ranked[j].Reputation, 0.01)
		return scoreI < scoreJ
	})
	if len(ranked) > count {
		ranked = ranked[:count]
	}
	return ranked
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// ReplicaTracker records the live replica set per content id and
// surfaces which ids need re-replication after a health transition
// (spec §4.5: "Re-replication is triggered when a replica's health
// transitions into Unavailable|Corrupted|Lost").
type ReplicaTracker struct {
	mu       sync.Mutex
	replicas map[ContentId][]Replica
}

func NewReplicaTracker() *ReplicaTracker {
	return &ReplicaTracker{replicas: make(map[ContentId][]Replica)}
}

// Set records id's replica set, overwriting any prior set.
func (t *ReplicaTracker) Set(id ContentId, replicas []Replica) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.replicas[id] = replicas
}

// ReportHealth updates a single replica's health and reports whether
// re-replication is now needed for id.
func (t *ReplicaTracker) ReportHealth(id ContentId, nodeID string, health ReplicaHealth) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	replicas := t.replicas[id]
	needsRepair := false
	for i := range replicas {
		if replicas[i].NodeID == nodeID {
			replicas[i].Health = health
		}
		if replicas[i].Health.needsReReplication() {
			needsRepair = true
		}
	}
	t.replicas[id] = replicas
	return needsRepair
}

// Healthy returns the subset of id's replicas currently healthy.
func (t *ReplicaTracker) Healthy(id ContentId) []Replica {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Replica
	for _, r := range t.replicas[id] {
		if r.Health == ReplicaHealthy {
			out = append(out, r)
		}
	}
	return out
}

// ReplicaCount returns the total number of recorded replicas for id
// (healthy or not), used by RefreshMetrics to size re-replication
// backlog.
func (t *ReplicaTracker) ReplicaCount(id ContentId) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.replicas[id])
}
