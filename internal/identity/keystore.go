package identity

// Keystore persists a sealed Identity to disk as identity.json plus
// sealed key material, matching spec §6.4 "Identity keystore: Directory
// with identity.json and sealed material; loaded on CLI start."

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"zhtp-core/internal/zhtperrors"
)

var keystoreLogger = logrus.New()

// SetKeystoreLogger overrides the package logger.
func SetKeystoreLogger(l *logrus.Logger) { keystoreLogger = l }

const identityFileName = "identity.json"

// keystoreFile is the on-disk shape of identity.json.
type keystoreFile struct {
	DID           string `json:"did"`
	SignaturePK   []byte `json:"signature_pk"`
	KEMPK         []byte `json:"kem_pk"`
	KeyID         []byte `json:"key_id"`
	SealedSeed    []byte `json:"sealed_seed"`
	SealedVersion int    `json:"sealed_version"`
}

const currentSealedVersion = 1

// Save writes id to dir/identity.json, sealing the master seed under
// passphrase. The directory is created if absent.
func Save(dir string, id *Identity, passphrase string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return zhtperrors.Wrap(zhtperrors.KindIO, "mkdir keystore dir", err)
	}
	sealed, err := Seal(passphrase, id.Private.MasterSeed)
	if err != nil {
		return fmt.Errorf("seal master seed: %w", err)
	}
	rec := keystoreFile{
		DID:           id.DID(),
		SignaturePK:   id.Public.SignaturePK.Bytes(),
		KEMPK:         id.Public.KEMPK.Bytes(),
		KeyID:         id.Public.KeyID[:],
		SealedSeed:    sealed,
		SealedVersion: currentSealedVersion,
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal keystore: %w", err)
	}
	path := filepath.Join(dir, identityFileName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return zhtperrors.Wrap(zhtperrors.KindIO, "write keystore tmp", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return zhtperrors.Wrap(zhtperrors.KindIO, "rename keystore", err)
	}
	keystoreLogger.WithFields(logrus.Fields{"did": rec.DID, "dir": dir}).Info("identity: keystore saved")
	return nil
}

// Load reads dir/identity.json and unseals the master seed with
// passphrase, reconstructing the full Identity (password-protected
// re-import, spec §2 Identity).
func Load(dir string, passphrase string) (*Identity, error) {
	path := filepath.Join(dir, identityFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, zhtperrors.Wrap(zhtperrors.KindIO, "read keystore", err)
	}
	var rec keystoreFile
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, zhtperrors.Wrap(zhtperrors.KindProtocol, "decode keystore", err)
	}
	seed, err := Unseal(passphrase, rec.SealedSeed)
	if err != nil {
		return nil, err
	}
	id, err := New(seed)
	if err != nil {
		return nil, fmt.Errorf("rebuild identity: %w", err)
	}
	if id.DID() != rec.DID {
		return nil, zhtperrors.New(zhtperrors.KindConsistency, "recovered identity does not match stored DID")
	}
	keystoreLogger.WithField("did", rec.DID).Info("identity: keystore loaded")
	return id, nil
}

// Exists reports whether dir already contains a keystore.
func Exists(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, identityFileName))
	return err == nil
}
