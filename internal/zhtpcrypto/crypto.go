// Package zhtpcrypto implements the CryptoPrimitives leaf component: a
// named 32-byte hash family, a post-quantum signature role (PQS), and a
// post-quantum key-encapsulation role (PQK). Every other package derives
// identifiers, transcripts, and session keys through this package so the
// primitive choice stays fixed in one place, per spec design note "Crypto
// naming".
package zhtpcrypto

import (
	"crypto/rand"
	"fmt"
	"hash"
	"io"

	"github.com/cloudflare/circl/kem/kyber/kyber768"
	"github.com/cloudflare/circl/sign/dilithium/mode3"
	"golang.org/x/crypto/hkdf"
	"lukechampine.com/blake3"
)

// HashSize is the fixed digest length used across the core.
const HashSize = 32

// Hash is a 32-byte content digest produced by the deployment's named hash
// family (blake3, here).
type Hash [HashSize]byte

func (h Hash) Bytes() []byte { return h[:] }

func (h Hash) String() string {
	return fmt.Sprintf("%x", h[:])
}

// Sum hashes an arbitrary byte slice.
func Sum(data ...[]byte) Hash {
	h := blake3.New(HashSize, nil)
	for _, d := range data {
		_, _ = h.Write(d)
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// NewHasher returns a streaming hasher over the same hash family as Sum,
// for callers assembling a digest incrementally (e.g. block headers).
func NewHasher() *blake3.Hasher { return blake3.New(HashSize, nil) }

// SumWriter drains a streaming hasher created by NewHasher into a Hash.
func SumWriter(h *blake3.Hasher) Hash {
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// -----------------------------------------------------------------------
// PQS — post-quantum signatures (CRYSTALS-Dilithium mode3 via circl)
// -----------------------------------------------------------------------

const (
	SignaturePublicKeySize  = mode3.PublicKeySize
	SignaturePrivateKeySize = mode3.PrivateKeySize
	SignatureSize           = mode3.SignatureSize
)

// SigPublicKey wraps a PQS public key.
type SigPublicKey struct{ pk mode3.PublicKey }

// SigPrivateKey wraps a PQS private key.
type SigPrivateKey struct{ sk mode3.PrivateKey }

// GenerateSigningKey creates a fresh PQS keypair.
func GenerateSigningKey() (SigPublicKey, SigPrivateKey, error) {
	return GenerateSigningKeyFrom(rand.Reader)
}

// GenerateSigningKeyFrom creates a PQS keypair drawing randomness from r,
// allowing deterministic (seeded) derivation for wallet recovery.
func GenerateSigningKeyFrom(r io.Reader) (SigPublicKey, SigPrivateKey, error) {
	pk, sk, err := mode3.GenerateKey(r)
	if err != nil {
		return SigPublicKey{}, SigPrivateKey{}, fmt.Errorf("pqs keygen: %w", err)
	}
	return SigPublicKey{pk: *pk}, SigPrivateKey{sk: *sk}, nil
}

// Bytes packs the public key into its wire representation.
func (p SigPublicKey) Bytes() []byte {
	var out [SignaturePublicKeySize]byte
	p.pk.Pack(&out)
	return out[:]
}

// SigPublicKeyFromBytes unpacks a wire-format public key.
func SigPublicKeyFromBytes(b []byte) (SigPublicKey, error) {
	if len(b) != SignaturePublicKeySize {
		return SigPublicKey{}, fmt.Errorf("pqs pubkey: want %d bytes, got %d", SignaturePublicKeySize, len(b))
	}
	var raw [SignaturePublicKeySize]byte
	copy(raw[:], b)
	var pk mode3.PublicKey
	pk.Unpack(&raw)
	return SigPublicKey{pk: pk}, nil
}

// Sign produces a detached PQS signature over msg.
func Sign(sk SigPrivateKey, msg []byte) []byte {
	sig := make([]byte, SignatureSize)
	mode3.SignTo(&sk.sk, msg, sig)
	return sig
}

// Verify checks a detached PQS signature.
func Verify(pk SigPublicKey, msg, sig []byte) bool {
	if len(sig) != SignatureSize {
		return false
	}
	return mode3.Verify(&pk.pk, msg, sig)
}

// -----------------------------------------------------------------------
// PQK — post-quantum KEM (CRYSTALS-Kyber768 via circl)
// -----------------------------------------------------------------------

const (
	KEMPublicKeySize  = kyber768.PublicKeySize
	KEMPrivateKeySize = kyber768.PrivateKeySize
	KEMCiphertextSize = kyber768.CiphertextSize
	SharedSecretSize  = kyber768.SharedKeySize
)

// KEMPublicKey wraps a PQK public key.
type KEMPublicKey struct{ pk kyber768.PublicKey }

// KEMPrivateKey wraps a PQK private key.
type KEMPrivateKey struct{ sk kyber768.PrivateKey }

// GenerateKEMKey creates a fresh PQK keypair.
func GenerateKEMKey() (KEMPublicKey, KEMPrivateKey, error) {
	return GenerateKEMKeyFrom(rand.Reader)
}

// GenerateKEMKeyFrom creates a PQK keypair drawing randomness from r,
// allowing deterministic (seeded) derivation for wallet recovery.
func GenerateKEMKeyFrom(r io.Reader) (KEMPublicKey, KEMPrivateKey, error) {
	pk, sk, err := kyber768.GenerateKeyPair(r)
	if err != nil {
		return KEMPublicKey{}, KEMPrivateKey{}, fmt.Errorf("pqk keygen: %w", err)
	}
	return KEMPublicKey{pk: *pk}, KEMPrivateKey{sk: *sk}, nil
}

func (p KEMPublicKey) Bytes() []byte {
	b := make([]byte, KEMPublicKeySize)
	p.pk.Pack(b)
	return b
}

func KEMPublicKeyFromBytes(b []byte) (KEMPublicKey, error) {
	if len(b) != KEMPublicKeySize {
		return KEMPublicKey{}, fmt.Errorf("pqk pubkey: want %d bytes, got %d", KEMPublicKeySize, len(b))
	}
	var pk kyber768.PublicKey
	pk.Unpack(b)
	return KEMPublicKey{pk: pk}, nil
}

// Encapsulate generates a ciphertext and shared secret for the given
// remote public key. The caller sends ciphertext to the peer holding the
// matching private key.
func Encapsulate(pk KEMPublicKey) (ciphertext, sharedSecret []byte, err error) {
	ct := make([]byte, KEMCiphertextSize)
	ss := make([]byte, SharedSecretSize)
	seed := make([]byte, kyber768.EncapsulationSeedSize)
	if _, err := io.ReadFull(rand.Reader, seed); err != nil {
		return nil, nil, fmt.Errorf("pqk encapsulate seed: %w", err)
	}
	pk.pk.EncapsulateTo(ct, ss, seed)
	return ct, ss, nil
}

// Decapsulate recovers the shared secret from a ciphertext using the
// local private key.
func Decapsulate(sk KEMPrivateKey, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) != KEMCiphertextSize {
		return nil, fmt.Errorf("pqk ciphertext: want %d bytes, got %d", KEMCiphertextSize, len(ciphertext))
	}
	ss := make([]byte, SharedSecretSize)
	sk.sk.DecapsulateTo(ss, ciphertext)
	return ss, nil
}

// -----------------------------------------------------------------------
// Key derivation — HKDF seeded by the same hash family as everything else
// -----------------------------------------------------------------------

// Derive runs HKDF-Extract-Expand over ikm with the given info label,
// producing outLen bytes. Used for master_key, app_key, session_id, and
// any other derived secret in the core (spec §3.5, §4.3, §4.6).
func Derive(info string, ikm []byte, salt []byte, outLen int) ([]byte, error) {
	newHash := func() hash.Hash { return blake3.New(HashSize, nil) }
	r := hkdf.New(newHash, ikm, salt, []byte(info))
	out := make([]byte, outLen)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("hkdf derive %q: %w", info, err)
	}
	return out, nil
}
