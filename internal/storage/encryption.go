package storage

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"zhtp-core/internal/zhtpcrypto"
)

const encryptionCipher = "chacha20poly1305-x"

// deriveContentKey derives a per-object content-encryption key from the
// engine's master key and content hash, the same HKDF-then-AEAD shape
// internal/identity's Seal/Unseal uses for passphrase sealing.
func deriveContentKey(master []byte, contentHash zhtpcrypto.Hash) ([]byte, error) {
	return zhtpcrypto.Derive("zhtp-storage-content-seal", master, contentHash.Bytes(), chacha20poly1305.KeySize)
}

// encryptContent seals plaintext under a key derived from master and the
// content's hash. The nonce is prefixed to the ciphertext.
func encryptContent(master []byte, contentHash zhtpcrypto.Hash, plaintext []byte) ([]byte, *EncryptionInfo, error) {
	key, err := deriveContentKey(master, contentHash)
	if err != nil {
		return nil, nil, fmt.Errorf("derive content key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, nil, fmt.Errorf("aead init: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ct...), &EncryptionInfo{Cipher: encryptionCipher, Nonce: nonce}, nil
}

// decryptContent reverses encryptContent.
func decryptContent(master []byte, contentHash zhtpcrypto.Hash, sealed []byte) ([]byte, error) {
	key, err := deriveContentKey(master, contentHash)
	if err != nil {
		return nil, fmt.Errorf("derive content key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("aead init: %w", err)
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, fmt.Errorf("sealed content too short")
	}
	nonce, ct := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	return aead.Open(nil, nonce, ct, nil)
}
