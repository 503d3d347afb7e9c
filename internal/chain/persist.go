package chain

import (
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/rlp"

	"zhtp-core/internal/zhtpcrypto"
)

// Persisted state is a single self-describing file covering every
// mutable structure a full node must recover on restart: the block
// list, UTXO set, identity registry, pending pool, and treasury ledger
// (spec §4.4 "Persistence & recovery"). Encoded with RLP, the same wire
// format the teacher's core package already depends on.

type persistedHeader struct {
	PreviousHash      zhtpcrypto.Hash
	Height            uint64
	Difficulty        uint32
	Nonce             uint64
	MerkleRoot        zhtpcrypto.Hash
	TimestampUnixNano uint64
}

type persistedBlock struct {
	Header       persistedHeader
	Transactions []Transaction
}

type persistedUTXOEntry struct {
	TxHash zhtpcrypto.Hash
	Index  uint32
	Out    TxOutput
}

type persistedIdentity struct {
	DID               string
	DisplayName       string
	PublicKey         []byte
	ControlledNodes   []string
	OwnedWallets      []string
	DIDDocumentHash   zhtpcrypto.Hash
	CreatedAtUnixNano uint64
}

type persistedState struct {
	ChainID         string
	EnvName         string
	Round           uint64
	Blocks          []persistedBlock
	UTXOOutputs     []persistedUTXOEntry
	SpentNullifiers []zhtpcrypto.Hash
	Identities      []persistedIdentity
	PendingPool     []Transaction
	TreasuryAccts   []FundAccount
	RewardClaims    []RewardClaim
}

// unixNano clamps a timestamp to a non-negative nanosecond count; rlp
// cannot encode signed integers, and a zero-value time.Time's UnixNano
// is a large negative number.
func unixNano(t time.Time) uint64 {
	n := t.UnixNano()
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func toPersistedBlock(b Block) persistedBlock {
	return persistedBlock{
		Header: persistedHeader{
			PreviousHash:      b.Header.PreviousHash,
			Height:            b.Header.Height,
			Difficulty:        b.Header.Difficulty,
			Nonce:             b.Header.Nonce,
			MerkleRoot:        b.Header.MerkleRoot,
			TimestampUnixNano: unixNano(b.Header.Timestamp),
		},
		Transactions: b.Transactions,
	}
}

func fromPersistedBlock(p persistedBlock) Block {
	return Block{
		Header: BlockHeader{
			PreviousHash: p.Header.PreviousHash,
			Height:       p.Header.Height,
			Difficulty:   p.Header.Difficulty,
			Nonce:        p.Header.Nonce,
			MerkleRoot:   p.Header.MerkleRoot,
			Timestamp:    time.Unix(0, int64(p.Header.TimestampUnixNano)).UTC(),
		},
		Transactions: p.Transactions,
	}
}

func toPersistedIdentity(rec IdentityRecord) persistedIdentity {
	nodes := make([]string, 0, len(rec.ControlledNodes))
	for n := range rec.ControlledNodes {
		nodes = append(nodes, n)
	}
	return persistedIdentity{
		DID:               rec.DID,
		DisplayName:       rec.DisplayName,
		PublicKey:         rec.PublicKey,
		ControlledNodes:   nodes,
		OwnedWallets:      rec.OwnedWallets,
		DIDDocumentHash:   rec.DIDDocumentHash,
		CreatedAtUnixNano: unixNano(rec.CreatedAt),
	}
}

func fromPersistedIdentity(p persistedIdentity) IdentityRecord {
	nodes := make(map[string]struct{}, len(p.ControlledNodes))
	for _, n := range p.ControlledNodes {
		nodes[n] = struct{}{}
	}
	return IdentityRecord{
		DID:             p.DID,
		DisplayName:     p.DisplayName,
		PublicKey:       p.PublicKey,
		ControlledNodes: nodes,
		OwnedWallets:    p.OwnedWallets,
		DIDDocumentHash: p.DIDDocumentHash,
		CreatedAt:       time.Unix(0, int64(p.CreatedAtUnixNano)).UTC(),
	}
}

// Save writes the full chain state to path via write-then-rename: encode
// to "<path>.tmp", fsync, then os.Rename over the final path, so a crash
// mid-write never leaves a corrupt file at the canonical location
// (spec §4.4 "Persistence & recovery").
func (b *Blockchain) Save(path string) error {
	b.mu.RLock()
	blocks := make([]persistedBlock, len(b.blocks))
	for i, blk := range b.blocks {
		blocks[i] = toPersistedBlock(blk)
	}
	round := uint64(b.round)
	envName := b.Env.Name
	chainID := b.ChainID
	b.mu.RUnlock()

	outs, spent := b.utxo.Snapshot()
	utxoEntries := make([]persistedUTXOEntry, 0, len(outs))
	for op, out := range outs {
		utxoEntries = append(utxoEntries, persistedUTXOEntry{TxHash: op.TxHash, Index: op.Index, Out: out})
	}
	spentList := make([]zhtpcrypto.Hash, 0, len(spent))
	for h := range spent {
		spentList = append(spentList, h)
	}

	identities := b.identities.Snapshot()
	persistedIdentities := make([]persistedIdentity, len(identities))
	for i, rec := range identities {
		persistedIdentities[i] = toPersistedIdentity(rec)
	}

	state := persistedState{
		ChainID:         chainID,
		EnvName:         envName,
		Round:           round,
		Blocks:          blocks,
		UTXOOutputs:     utxoEntries,
		SpentNullifiers: spentList,
		Identities:      persistedIdentities,
		PendingPool:     b.pool.Snapshot(),
		TreasuryAccts:   b.treasury.Snapshot(),
		RewardClaims:    b.rewards.Snapshot(),
	}

	encoded, err := rlp.EncodeToBytes(&state)
	if err != nil {
		return err
	}

	tmpPath := path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(encoded); err != nil {
		f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// Load replaces b's state in place from a file previously written by
// Save. A parse error is returned unmodified so startup can halt rather
// than run from a partially-loaded chain (spec §4.4 "Persistence &
// recovery": "a parse error halts startup").
func (b *Blockchain) Load(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	var state persistedState
	if err := rlp.DecodeBytes(raw, &state); err != nil {
		return err
	}

	blocks := make([]Block, len(state.Blocks))
	for i, pb := range state.Blocks {
		blocks[i] = fromPersistedBlock(pb)
	}

	outs := make(map[OutPoint]TxOutput, len(state.UTXOOutputs))
	for _, e := range state.UTXOOutputs {
		outs[OutPoint{TxHash: e.TxHash, Index: e.Index}] = e.Out
	}
	spent := make(map[zhtpcrypto.Hash]struct{}, len(state.SpentNullifiers))
	for _, h := range state.SpentNullifiers {
		spent[h] = struct{}{}
	}

	identities := make([]IdentityRecord, len(state.Identities))
	for i, p := range state.Identities {
		identities[i] = fromPersistedIdentity(p)
	}

	b.mu.Lock()
	b.ChainID = state.ChainID
	b.round = int(state.Round)
	b.blocks = blocks
	if len(blocks) > 0 {
		b.tip = blocks[len(blocks)-1].Header
	}
	b.mu.Unlock()

	b.utxo.restore(outs, spent)
	b.identities.restore(identities)
	b.pool.restore(state.PendingPool)
	b.treasury.restore(state.TreasuryAccts)
	b.rewards.restore(state.RewardClaims)
	return nil
}

// DefaultChainFile is the canonical persisted-state filename within a
// node's data directory.
func DefaultChainFile(dataDir string) string {
	return filepath.Join(dataDir, "zhtp-chain.rlp")
}
