package identity

// Wallet seed-phrase derivation, grounded on the teacher's
// core/wallet.go HD-wallet pattern: BIP-39 mnemonic generation/import
// feeding a master seed that the rest of the package derives identity
// keys from.

import (
	"fmt"

	bip39 "github.com/tyler-smith/go-bip39"

	"zhtp-core/internal/zhtperrors"
)

// NewWalletSeed generates entropyBits (128 or 256) of randomness and
// returns the recovery mnemonic plus the derived master seed.
func NewWalletSeed(entropyBits int) (mnemonic string, seed []byte, err error) {
	if entropyBits != 128 && entropyBits != 256 {
		return "", nil, zhtperrors.New(zhtperrors.KindProtocol, fmt.Sprintf("unsupported entropy size %d", entropyBits))
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", nil, fmt.Errorf("entropy: %w", err)
	}
	mnemonic, err = bip39.NewMnemonic(entropy)
	if err != nil {
		return "", nil, fmt.Errorf("mnemonic: %w", err)
	}
	return mnemonic, bip39.NewSeed(mnemonic, ""), nil
}

// WalletSeedFromMnemonic re-derives the master seed from an existing
// recovery phrase, optionally protected by a BIP-39 passphrase.
func WalletSeedFromMnemonic(mnemonic, passphrase string) ([]byte, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, zhtperrors.New(zhtperrors.KindAuth, "invalid mnemonic checksum")
	}
	return bip39.NewSeed(mnemonic, passphrase), nil
}

// NewFromMnemonic is the common entry point: validate a recovery phrase
// and derive the full Identity from it in one step.
func NewFromMnemonic(mnemonic, passphrase string) (*Identity, error) {
	seed, err := WalletSeedFromMnemonic(mnemonic, passphrase)
	if err != nil {
		return nil, err
	}
	return New(seed)
}

// NewRandom generates a brand-new identity along with its recovery
// mnemonic. Callers must surface the mnemonic to the user exactly once
// and never persist it unencrypted.
func NewRandom(entropyBits int) (id *Identity, mnemonic string, err error) {
	mnemonic, seed, err := NewWalletSeed(entropyBits)
	if err != nil {
		return nil, "", err
	}
	id, err = New(seed)
	if err != nil {
		return nil, "", err
	}
	return id, mnemonic, nil
}
