// Package chain implements the BlockchainNode component: the pending
// transaction pool, proposer selection and mining loop, UTXO set and
// identity registry, persistence, and economic transaction builders
// (spec §3.3, §4.4). Grounded on the teacher's core/transactions.go
// (TxPool/priority-queue pattern), core/consensus.go (proposer/mining
// loop shape), core/coin.go and core/dao.go (economic tx helpers).
package chain

import (
	"time"

	"zhtp-core/internal/zhtpcrypto"
)

// TxType distinguishes system (minting) transactions from regular
// UTXO-spending ones.
type TxType uint8

const (
	TxPayment TxType = iota + 1
	TxReward
	TxUBI
	TxWelfare
	TxInfrastructureReward
)

func (t TxType) isSystem() bool { return t != TxPayment }

// OutPoint identifies one UTXO: the hash of the transaction that created
// it plus the output index (spec §3.3 "UTXO set").
type OutPoint struct {
	TxHash zhtpcrypto.Hash
	Index  uint32
}

// TxInput references a spent UTXO plus its double-spend nullifier and
// the zero-knowledge proof authorizing the spend.
type TxInput struct {
	Ref       OutPoint
	Nullifier zhtpcrypto.Hash
	Proof     []byte
}

// TxOutput is one newly created UTXO.
type TxOutput struct {
	Address string
	Amount  uint64
}

// Transaction is the wire/ledger unit (spec §3.3).
type Transaction struct {
	Version  uint32
	ChainID  string
	Type     TxType
	Inputs   []TxInput
	Outputs  []TxOutput
	Fee      uint64
	Signature []byte
	Memo     string

	IdentityData    []byte
	ValidatorData   []byte
	WalletData      []byte
	DAOData         []byte
}

// hashForSignature covers every field except Signature itself (spec
// §3.3: "Signature is PQS over hash_for_signature(tx)").
func (tx *Transaction) hashForSignature() zhtpcrypto.Hash {
	h := zhtpcrypto.NewHasher()
	writeU32(h, tx.Version)
	_, _ = h.Write([]byte(tx.ChainID))
	_, _ = h.Write([]byte{byte(tx.Type)})
	for _, in := range tx.Inputs {
		_, _ = h.Write(in.Ref.TxHash.Bytes())
		writeU32(h, in.Ref.Index)
		_, _ = h.Write(in.Nullifier.Bytes())
		_, _ = h.Write(in.Proof)
	}
	for _, out := range tx.Outputs {
		_, _ = h.Write([]byte(out.Address))
		writeU64(h, out.Amount)
	}
	writeU64(h, tx.Fee)
	_, _ = h.Write([]byte(tx.Memo))
	_, _ = h.Write(tx.IdentityData)
	_, _ = h.Write(tx.ValidatorData)
	_, _ = h.Write(tx.WalletData)
	_, _ = h.Write(tx.DAOData)
	return zhtpcrypto.SumWriter(h)
}

// Hash returns the content hash of the fully-signed transaction,
// identifying it in the pool and as an OutPoint.TxHash.
func (tx *Transaction) Hash() zhtpcrypto.Hash {
	h := zhtpcrypto.NewHasher()
	_, _ = h.Write(tx.hashForSignature().Bytes())
	_, _ = h.Write(tx.Signature)
	return zhtpcrypto.SumWriter(h)
}

func writeU32(h interface{ Write([]byte) (int, error) }, v uint32) {
	var b [4]byte
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
	_, _ = h.Write(b[:])
}

func writeU64(h interface{ Write([]byte) (int, error) }, v uint64) {
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * (7 - i)))
	}
	_, _ = h.Write(b[:])
}

// BlockHeader is the signed-over portion of a block (spec §3.3).
type BlockHeader struct {
	PreviousHash zhtpcrypto.Hash
	Height       uint64
	Difficulty   uint32
	Nonce        uint64
	MerkleRoot   zhtpcrypto.Hash
	Timestamp    time.Time
}

// Hash computes hash(header); the mining loop searches for a Nonce
// making this satisfy the difficulty predicate (spec §3.3).
func (h BlockHeader) Hash() zhtpcrypto.Hash {
	hasher := zhtpcrypto.NewHasher()
	_, _ = hasher.Write(h.PreviousHash.Bytes())
	writeU64(hasher, h.Height)
	writeU32(hasher, h.Difficulty)
	writeU64(hasher, h.Nonce)
	_, _ = hasher.Write(h.MerkleRoot.Bytes())
	writeU64(hasher, uint64(h.Timestamp.UnixNano()))
	return zhtpcrypto.SumWriter(hasher)
}

// SatisfiesDifficulty reports whether the header hash has at least
// Difficulty leading zero bits.
func (h BlockHeader) SatisfiesDifficulty() bool {
	return leadingZeroBits(h.Hash()) >= int(h.Difficulty)
}

func leadingZeroBits(h zhtpcrypto.Hash) int {
	count := 0
	for _, b := range h.Bytes() {
		if b == 0 {
			count += 8
			continue
		}
		for mask := byte(0x80); mask != 0; mask >>= 1 {
			if b&mask != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// merkleRoot computes a simple binary merkle root over transaction
// hashes, duplicating the last element on odd layers.
func merkleRoot(txs []Transaction) zhtpcrypto.Hash {
	if len(txs) == 0 {
		return zhtpcrypto.Sum(nil)
	}
	layer := make([]zhtpcrypto.Hash, len(txs))
	for i, tx := range txs {
		layer[i] = tx.Hash()
	}
	for len(layer) > 1 {
		if len(layer)%2 == 1 {
			layer = append(layer, layer[len(layer)-1])
		}
		next := make([]zhtpcrypto.Hash, len(layer)/2)
		for i := 0; i < len(next); i++ {
			next[i] = zhtpcrypto.Sum(layer[2*i].Bytes(), layer[2*i+1].Bytes())
		}
		layer = next
	}
	return layer[0]
}

// Block is a header plus its transaction list (spec §3.3).
type Block struct {
	Header       BlockHeader
	Transactions []Transaction
}

// IdentityRecord is one DID's registry entry (spec §3.3).
type IdentityRecord struct {
	DID             string
	DisplayName     string
	PublicKey       []byte
	ControlledNodes map[string]struct{}
	OwnedWallets    []string
	DIDDocumentHash zhtpcrypto.Hash
	CreatedAt       time.Time
}
