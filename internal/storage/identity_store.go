package storage

import (
	"sync"

	"zhtp-core/internal/identity"
	"zhtp-core/internal/zhtperrors"
)

// IdentityBlobStore keeps passphrase-sealed identity credentials as
// sealed blobs keyed by IdentityId (spec §4.5 "Identity
// storage"), reusing internal/identity's Seal/Unseal chacha20poly1305
// scheme rather than a separate cipher.
type IdentityBlobStore struct {
	mu    sync.RWMutex
	blobs map[identity.Id][]byte
}

// NewIdentityBlobStore builds an empty blob store.
func NewIdentityBlobStore() *IdentityBlobStore {
	return &IdentityBlobStore{blobs: make(map[identity.Id][]byte)}
}

// Exists reports whether id has a stored blob.
func (s *IdentityBlobStore) Exists(id identity.Id) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blobs[id]
	return ok
}

// Store seals plaintext under passphrase and records it for id,
// overwriting any prior blob.
func (s *IdentityBlobStore) Store(id identity.Id, passphrase string, plaintext []byte) error {
	sealed, err := identity.Seal(passphrase, plaintext)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = sealed
	return nil
}

// Retrieve unseals id's stored blob under passphrase.
func (s *IdentityBlobStore) Retrieve(id identity.Id, passphrase string) ([]byte, error) {
	s.mu.RLock()
	sealed, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, zhtperrors.New(zhtperrors.KindConsistency, "no identity blob for id")
	}
	return identity.Unseal(passphrase, sealed)
}

// MigrateFromChain imports a DID document already anchored on-chain as
// a freshly sealed blob, for nodes recovering identity state from the
// blockchain's identity registry rather than a local keystore (spec
// §4.5: "migrate_from_chain operate on the same storage").
func (s *IdentityBlobStore) MigrateFromChain(id identity.Id, passphrase string, didDocument []byte) error {
	return s.Store(id, passphrase, didDocument)
}
