package transport

import (
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"

	"zhtp-core/internal/zhtperrors"
)

const (
	defaultNonceTTL     = time.Hour // 3600s
	defaultNonceCleanup = 10 * time.Minute
	defaultNonceCap     = 10000
)

// NonceCache rejects replayed handshake nonces within a bounded time
// window, bounded to a max entry count (spec §4.3 "Nonce cache").
type NonceCache struct {
	c   *cache.Cache
	cap int
}

// NewNonceCache builds a NonceCache with the spec defaults: 3600s
// expiry, 10000 entry cap.
func NewNonceCache() *NonceCache {
	return &NonceCache{c: cache.New(defaultNonceTTL, defaultNonceCleanup), cap: defaultNonceCap}
}

// CheckAndConsume records nonce and returns nil if it has not been seen
// before. A nonce already present (replay) returns a KindAuth error; a
// full cache returns a KindCapacity error.
func (n *NonceCache) CheckAndConsume(nonce [16]byte) error {
	key := hex.EncodeToString(nonce[:])
	if _, found := n.c.Get(key); found {
		return zhtperrors.New(zhtperrors.KindAuth, "handshake nonce replayed")
	}
	if n.c.ItemCount() >= n.cap {
		// Evict nothing explicitly; go-cache's own TTL sweep keeps this
		// bounded in steady state. A cap hit under sustained load simply
		// rejects the newest nonce rather than growing unbounded.
		return zhtperrors.New(zhtperrors.KindCapacity, "nonce cache at capacity")
	}
	n.c.Set(key, struct{}{}, cache.DefaultExpiration)
	return nil
}

// Len reports the current nonce count, for tests and metrics.
func (n *NonceCache) Len() int { return n.c.ItemCount() }
