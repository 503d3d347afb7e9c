// Package identity implements the Identity leaf component: stable
// identifiers derived from a public key, DID strings, wallet seed-phrase
// derivation, and password-protected re-import of sealed key material.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"

	"zhtp-core/internal/zhtpcrypto"
	"zhtp-core/internal/zhtperrors"
)

// Id is the 32-byte IdentityId: hash(signature_pk).
type Id [32]byte

func (id Id) Hex() string { return hex.EncodeToString(id[:]) }

// DID renders the canonical "did:zhtp:<hex>" string for this identity.
func (id Id) DID() string { return "did:zhtp:" + id.Hex() }

// ParseDID extracts the identity id from a "did:zhtp:<hex>" string.
func ParseDID(did string) (Id, error) {
	const prefix = "did:zhtp:"
	if len(did) != len(prefix)+64 || did[:len(prefix)] != prefix {
		return Id{}, zhtperrors.New(zhtperrors.KindProtocol, "malformed did: "+did)
	}
	raw, err := hex.DecodeString(did[len(prefix):])
	if err != nil || len(raw) != 32 {
		return Id{}, zhtperrors.Wrap(zhtperrors.KindProtocol, "malformed did hex", err)
	}
	var out Id
	copy(out[:], raw)
	return out, nil
}

// PublicKey bundles the two public-key roles plus the derived key id.
type PublicKey struct {
	SignaturePK zhtpcrypto.SigPublicKey
	KEMPK       zhtpcrypto.KEMPublicKey
	KeyID       [32]byte
}

// PrivateKey bundles the two secret-key roles plus the wallet master seed
// they were both derived from.
type PrivateKey struct {
	SignatureSK zhtpcrypto.SigPrivateKey
	KEMSK       zhtpcrypto.KEMPrivateKey
	MasterSeed  []byte
}

// Identity is a node/user's cryptographic identity: a keypair plus the
// identifiers derived from it.
type Identity struct {
	Public  PublicKey
	Private PrivateKey
}

// IdentityID returns hash(signature_pk), the stable 32-byte identifier.
func (i *Identity) IdentityID() Id {
	h := zhtpcrypto.Sum(i.Public.SignaturePK.Bytes())
	return Id(h)
}

// DID renders this identity's DID string.
func (i *Identity) DID() string { return i.IdentityID().DID() }

// New derives a full Identity (PQS + PQK keypairs) from a master seed, as
// produced by the wallet seed-phrase derivation in wallet.go. Both key
// roles are derived deterministically from the same seed via HKDF so a
// recovered mnemonic reproduces the whole identity.
func New(masterSeed []byte) (*Identity, error) {
	if len(masterSeed) < 16 {
		return nil, zhtperrors.New(zhtperrors.KindProtocol, "master seed too short")
	}

	sigSeed, err := zhtpcrypto.Derive("zhtp-identity-sig", masterSeed, nil, 64)
	if err != nil {
		return nil, fmt.Errorf("derive sig seed: %w", err)
	}
	kemSeed, err := zhtpcrypto.Derive("zhtp-identity-kem", masterSeed, nil, 64)
	if err != nil {
		return nil, fmt.Errorf("derive kem seed: %w", err)
	}

	sigPK, sigSK, err := deterministicSigningKey(sigSeed)
	if err != nil {
		return nil, fmt.Errorf("sig keygen: %w", err)
	}
	kemPK, kemSK, err := deterministicKEMKey(kemSeed)
	if err != nil {
		return nil, fmt.Errorf("kem keygen: %w", err)
	}

	keyID := zhtpcrypto.Sum(sigPK.Bytes())

	return &Identity{
		Public: PublicKey{
			SignaturePK: sigPK,
			KEMPK:       kemPK,
			KeyID:       keyID,
		},
		Private: PrivateKey{
			SignatureSK: sigSK,
			KEMSK:       kemSK,
			MasterSeed:  masterSeed,
		},
	}, nil
}

// deterministicSigningKey and deterministicKEMKey fall back to random
// generation seeded only indirectly (circl does not expose deterministic
// keygen from arbitrary seed material for dilithium/kyber); we instead
// draw the keygen randomness from a seed-derived deterministic reader so
// recovery from a mnemonic is still reproducible end-to-end.
func deterministicSigningKey(seed []byte) (zhtpcrypto.SigPublicKey, zhtpcrypto.SigPrivateKey, error) {
	r := newSeedReader(seed)
	return zhtpcrypto.GenerateSigningKeyFrom(r)
}

func deterministicKEMKey(seed []byte) (zhtpcrypto.KEMPublicKey, zhtpcrypto.KEMPrivateKey, error) {
	r := newSeedReader(seed)
	return zhtpcrypto.GenerateKEMKeyFrom(r)
}

// Seal encrypts key material under a passphrase-derived key for
// password-protected re-import (spec §2 Identity). Returns the sealed
// blob; the nonce is prefixed to the ciphertext.
func Seal(passphrase string, plaintext []byte) ([]byte, error) {
	key, err := zhtpcrypto.Derive("zhtp-identity-seal", []byte(passphrase), nil, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive seal key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("aead init: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	ct := aead.Seal(nil, nonce, plaintext, nil)
	return append(nonce, ct...), nil
}

// Unseal reverses Seal, returning zhtperrors.KindAuth on a wrong
// passphrase (AEAD tag mismatch).
func Unseal(passphrase string, sealed []byte) ([]byte, error) {
	key, err := zhtpcrypto.Derive("zhtp-identity-seal", []byte(passphrase), nil, chacha20poly1305.KeySize)
	if err != nil {
		return nil, fmt.Errorf("derive seal key: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("aead init: %w", err)
	}
	if len(sealed) < chacha20poly1305.NonceSizeX {
		return nil, zhtperrors.New(zhtperrors.KindProtocol, "sealed blob too short")
	}
	nonce, ct := sealed[:chacha20poly1305.NonceSizeX], sealed[chacha20poly1305.NonceSizeX:]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, zhtperrors.Wrap(zhtperrors.KindAuth, "unseal: wrong passphrase or corrupt blob", err)
	}
	return pt, nil
}
