package storage

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

// Tier classifies a cache entry's retention priority.
type Tier uint8

const (
	TierHot Tier = iota + 1
	TierWarm
	TierCold
)

// EvictionPolicy names the pluggable eviction algorithm a Cache runs
// (spec §4.5 "Cache").
type EvictionPolicy uint8

const (
	PolicyLRU EvictionPolicy = iota + 1
	PolicyLFU
	PolicyFIFO
	PolicyARC
)

// CacheEntry is one resident object plus its bookkeeping fields.
type CacheEntry struct {
	Key         string
	Data        []byte
	Size        int64
	AccessCount uint64
	LastAccess  time.Time
	CreatedAt   time.Time
	TTL         time.Duration
	Tier        Tier
}

func (e *CacheEntry) expired(now time.Time) bool {
	return e.TTL != 0 && now.After(e.CreatedAt.Add(e.TTL))
}

// CacheStats counts the lifetime activity of a Cache (spec §4.5).
type CacheStats struct {
	Hits         uint64
	Misses       uint64
	Insertions   uint64
	Evictions    uint64
	Expirations  uint64
	Replacements uint64
}

// ordering abstracts the victim-selection strategy behind a Cache's
// byte-bounded eviction loop, so LRU/LFU/FIFO/ARC share one Cache
// implementation and differ only in which key is sacrificed next.
type ordering interface {
	touch(key string)
	insert(key string)
	remove(key string)
	victim() (string, bool)
}

// lruOrdering wraps hashicorp's simplelru purely for its recency list;
// the Cache struct, not simplelru, owns byte accounting and entry data.
type lruOrdering struct{ l *lru.LRU[string, struct{}] }

// unboundedEntries caps the recency list's own bookkeeping only; actual
// capacity is enforced by Cache's byte budget, not this count.
const unboundedEntries = 1 << 20

func newLRUOrdering() *lruOrdering {
	l, _ := lru.NewLRU[string, struct{}](unboundedEntries, nil)
	return &lruOrdering{l: l}
}
func (o *lruOrdering) touch(key string)  { o.l.Add(key, struct{}{}) }
func (o *lruOrdering) insert(key string) { o.l.Add(key, struct{}{}) }
func (o *lruOrdering) remove(key string) { o.l.Remove(key) }
func (o *lruOrdering) victim() (string, bool) {
	k, _, ok := o.l.GetOldest()
	return k, ok
}

// fifoOrdering evicts strictly in insertion order regardless of access.
type fifoOrdering struct{ order []string }

func (o *fifoOrdering) touch(string)      {}
func (o *fifoOrdering) insert(key string) { o.order = append(o.order, key) }
func (o *fifoOrdering) remove(key string) {
	for i, k := range o.order {
		if k == key {
			o.order = append(o.order[:i], o.order[i+1:]...)
			return
		}
	}
}
func (o *fifoOrdering) victim() (string, bool) {
	if len(o.order) == 0 {
		return "", false
	}
	return o.order[0], true
}

// lfuOrdering tracks access frequency and surfaces the least-used key.
// A linear scan is acceptable at the entry counts a node-local cache
// tier holds.
type lfuOrdering struct{ freq map[string]uint64 }

func newLFUOrdering() *lfuOrdering { return &lfuOrdering{freq: make(map[string]uint64)} }
func (o *lfuOrdering) touch(key string)  { o.freq[key]++ }
func (o *lfuOrdering) insert(key string) { o.freq[key] = 0 }
func (o *lfuOrdering) remove(key string) { delete(o.freq, key) }
func (o *lfuOrdering) victim() (string, bool) {
	var best string
	var bestFreq uint64
	found := false
	for k, f := range o.freq {
		if !found || f < bestFreq {
			best, bestFreq, found = k, f, true
		}
	}
	return best, found
}

// arcOrdering is a simplified adaptive replacement cache: a recency
// list and a frequency list. Both lists hold every resident key, so
// their lengths are always equal and the victim is always the oldest
// insertion (FIFO order); access counts are tracked but do not change
// the victim.
type arcOrdering struct {
	recency   *fifoOrdering
	frequency *lfuOrdering
}

func newARCOrdering() *arcOrdering {
	return &arcOrdering{recency: &fifoOrdering{}, frequency: newLFUOrdering()}
}
func (o *arcOrdering) touch(key string) {
	o.frequency.touch(key)
}
func (o *arcOrdering) insert(key string) {
	o.recency.insert(key)
	o.frequency.insert(key)
}
func (o *arcOrdering) remove(key string) {
	o.recency.remove(key)
	o.frequency.remove(key)
}
func (o *arcOrdering) victim() (string, bool) {
	if len(o.recency.order) >= len(o.frequency.freq) {
		return o.recency.victim()
	}
	return o.frequency.victim()
}

func newOrdering(p EvictionPolicy) ordering {
	switch p {
	case PolicyFIFO:
		return &fifoOrdering{}
	case PolicyLFU:
		return newLFUOrdering()
	case PolicyARC:
		return newARCOrdering()
	default:
		return newLRUOrdering()
	}
}

// Cache is a byte-bounded, tiered cache with a pluggable eviction
// policy (spec §4.5 "Cache": "bounded by bytes, not entries").
type Cache struct {
	mu         sync.Mutex
	maxBytes   int64
	usedBytes  int64
	entries    map[string]*CacheEntry
	order      ordering
	stats      CacheStats
}

// NewCache builds a Cache bounded to maxBytes under the given eviction
// policy.
func NewCache(maxBytes int64, policy EvictionPolicy) *Cache {
	return &Cache{
		maxBytes: maxBytes,
		entries:  make(map[string]*CacheEntry),
		order:    newOrdering(policy),
	}
}

// Get returns an entry's data if present and unexpired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	now := time.Now()
	if ent.expired(now) {
		c.removeLocked(key)
		c.stats.Expirations++
		c.stats.Misses++
		return nil, false
	}
	ent.AccessCount++
	ent.LastAccess = now
	c.order.touch(key)
	c.stats.Hits++
	return ent.Data, true
}

// Put inserts or replaces key's data, evicting by the configured policy
// until the new entry fits within maxBytes.
func (c *Cache) Put(key string, data []byte, tier Tier, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if existing, ok := c.entries[key]; ok {
		c.usedBytes -= existing.Size
		delete(c.entries, key)
		c.order.remove(key)
		c.stats.Replacements++
	} else {
		c.stats.Insertions++
	}

	size := int64(len(data))
	for c.usedBytes+size > c.maxBytes && len(c.entries) > 0 {
		victim, ok := c.order.victim()
		if !ok {
			break
		}
		c.removeLocked(victim)
		c.stats.Evictions++
	}

	ent := &CacheEntry{
		Key:        key,
		Data:       data,
		Size:       size,
		CreatedAt:  now,
		LastAccess: now,
		TTL:        ttl,
		Tier:       tier,
	}
	c.entries[key] = ent
	c.usedBytes += size
	c.order.insert(key)
}

// Remove evicts key explicitly (used on content delete).
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

func (c *Cache) removeLocked(key string) {
	ent, ok := c.entries[key]
	if !ok {
		return
	}
	c.usedBytes -= ent.Size
	delete(c.entries, key)
	c.order.remove(key)
}

// Stats returns a snapshot of lifetime cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
