package chain

import (
	"encoding/binary"

	"zhtp-core/internal/zhtpcrypto"
)

// Validator is one member of the active validator set eligible for
// proposer selection (spec §4.4 "Proposer selection").
type Validator struct {
	IdentityHash zhtpcrypto.Hash
	DID          string
}

// seed derives a deterministic selection seed from height and round, the
// same way the teacher derives sub-block PoH seeds from height/timestamp
// (core/consensus.go Hash()).
func seed(height uint64, round int) uint64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], height)
	binary.BigEndian.PutUint64(buf[8:], uint64(round))
	h := zhtpcrypto.Sum(buf[:])
	return binary.BigEndian.Uint64(h.Bytes()[:8])
}

// SelectProposer implements spec §4.4: validators[seed(height,round) mod
// n]. An empty validator set has no proposer.
func SelectProposer(validators []Validator, height uint64, round int) (Validator, bool) {
	if len(validators) == 0 {
		return Validator{}, false
	}
	idx := seed(height, round) % uint64(len(validators))
	return validators[idx], true
}

// IsAuthorizedProposer checks whether the local node's DID controls the
// given node id and that DID's identity hash matches the selected
// proposer's (spec §4.4 "Proposer selection").
func IsAuthorizedProposer(registry *IdentityRegistry, localDID, localNodeIDHex string, localIdentityHash zhtpcrypto.Hash, proposer Validator) bool {
	if proposer.IdentityHash != localIdentityHash {
		return false
	}
	return registry.ControlsNode(localDID, localNodeIDHex)
}
