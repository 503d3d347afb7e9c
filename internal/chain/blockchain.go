package chain

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"zhtp-core/internal/zhtpcrypto"
	"zhtp-core/internal/zhtperrors"
)

var chainLogger = logrus.New()

// SetLogger overrides the package logger.
func SetLogger(l *logrus.Logger) { chainLogger = l }

// Blockchain is the full-node component: pool, UTXO set, identity
// registry, treasury, and the mining loop. Grounded on the teacher's
// SynnergyConsensus (core/consensus.go) ticker-driven loop shape,
// generalized to the spec's pending-pool / proposer / PoW mining cycle.
type Blockchain struct {
	ChainID string
	Env     Environment

	mu         sync.RWMutex
	tip        BlockHeader
	blocks     []Block
	utxo       *UTXOSet
	identities *IdentityRegistry
	pool       *Pool
	treasury   *StatsManager
	rewards    *RewardLedger
	metrics    *chainMetrics

	round int

	localDID        string
	localNodeIDHex  string
	localIdentity   zhtpcrypto.Hash
	validators      []Validator

	persistPath string
}

// New builds an empty Blockchain for chainID under the given environment
// profile.
func New(chainID string, env Environment) *Blockchain {
	return &Blockchain{
		ChainID:    chainID,
		Env:        env,
		utxo:       newUTXOSet(),
		identities: newIdentityRegistry(),
		pool:       NewPool(chainID),
		treasury:   NewStatsManager(),
		rewards:    NewRewardLedger(),
		metrics:    newChainMetrics(),
	}
}

// Rewards exposes the infrastructure-reward double-claim ledger.
func (b *Blockchain) Rewards() *RewardLedger { return b.rewards }

// SetLocalProposer configures which DID/node/identity this instance
// proposes as, and the active validator set.
func (b *Blockchain) SetLocalProposer(did, nodeIDHex string, identityHash zhtpcrypto.Hash, validators []Validator) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.localDID = did
	b.localNodeIDHex = nodeIDHex
	b.localIdentity = identityHash
	b.validators = validators
}

// Tip returns the current chain tip header.
func (b *Blockchain) Tip() BlockHeader {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tip
}

// Pool exposes the pending transaction pool for submission.
func (b *Blockchain) Pool() *Pool { return b.pool }

// Treasury exposes the treasury stats manager.
func (b *Blockchain) Treasury() *StatsManager { return b.treasury }

// Identities exposes the identity registry.
func (b *Blockchain) Identities() *IdentityRegistry { return b.identities }

// UTXO exposes the UTXO set for read-only lookups.
func (b *Blockchain) UTXO() *UTXOSet { return b.utxo }

var globalBlockchainMu sync.RWMutex
var globalBlockchain *Blockchain

// InstallGlobal installs bc as the process-wide Blockchain instance so
// every subsystem shares one chain state (spec §4.4 "Persistence &
// recovery": "a global provider is installed so all subsystems share one
// Blockchain instance").
func InstallGlobal(bc *Blockchain) {
	globalBlockchainMu.Lock()
	defer globalBlockchainMu.Unlock()
	globalBlockchain = bc
}

// Global returns the process-wide Blockchain instance, or nil if none
// has been installed yet — callers fall back to a local snapshot in
// that case.
func Global() *Blockchain {
	globalBlockchainMu.RLock()
	defer globalBlockchainMu.RUnlock()
	return globalBlockchain
}

// assembleCandidate builds a block candidate from up to
// Env.MaxTxPerBlock pending transactions (spec §4.4 "Mining loop" step
// 3).
func (b *Blockchain) assembleCandidate() (Block, []Transaction) {
	b.mu.RLock()
	tip := b.tip
	height := uint64(len(b.blocks))
	b.mu.RUnlock()

	taken := b.pool.Pick(b.Env.MaxTxPerBlock)
	capped := capMintedValue(taken, b.Env.InflationBudgetPerBlock)
	picked := b.rewards.FilterDoubleClaims(capped, height)
	if len(picked) < len(taken) {
		b.pool.Requeue(droppedSuffix(taken, picked))
	}
	header := BlockHeader{
		PreviousHash: tip.Hash(),
		Height:       height,
		Difficulty:   b.Env.Difficulty,
		MerkleRoot:   merkleRoot(picked),
		Timestamp:    time.Now(),
	}
	return Block{Header: header, Transactions: picked}, picked
}

// droppedSuffix returns the transactions in taken whose hash is not
// present in kept, preserving taken's relative order.
func droppedSuffix(taken, kept []Transaction) []Transaction {
	keptHashes := make(map[zhtpcrypto.Hash]struct{}, len(kept))
	for _, tx := range kept {
		keptHashes[tx.Hash()] = struct{}{}
	}
	var dropped []Transaction
	for _, tx := range taken {
		if _, ok := keptHashes[tx.Hash()]; !ok {
			dropped = append(dropped, tx)
		}
	}
	return dropped
}

// mine searches for a nonce satisfying the difficulty predicate, bounded
// by Env.MaxIterations; the bootstrap profile accepts instantly (spec
// §4.4 "Mining loop" step 4).
func (b *Blockchain) mine(candidate Block) (Block, bool) {
	if b.Env.AllowInstantMining {
		return candidate, true
	}
	for nonce := uint64(0); nonce < b.Env.MaxIterations; nonce++ {
		candidate.Header.Nonce = nonce
		if candidate.Header.SatisfiesDifficulty() {
			return candidate, true
		}
	}
	return candidate, false
}

// ApplyMinedBlock validates and applies a mined block atomically. On
// conflict the block is rejected and every one of its transactions is
// evicted and blacklisted; the conflicting transactions are not singled
// out, so transactions that did not conflict are evicted as well
// (spec §4.4 "Mining loop" step 5).
func (b *Blockchain) ApplyMinedBlock(blk Block) error {
	if err := b.utxo.ApplyBlock(blk); err != nil {
		for _, tx := range blk.Transactions {
			b.pool.Evict(tx.Hash())
		}
		return err
	}

	b.mu.Lock()
	b.blocks = append(b.blocks, blk)
	b.tip = blk.Header
	b.mu.Unlock()
	return nil
}

// RunMiningLoop runs the mining cycle until ctx is cancelled, on the
// spec's 30s interval with a 2s initial delay (spec §4.4 "Mining loop").
// persist is called at the environment's configured cadence.
func (b *Blockchain) RunMiningLoop(ctx context.Context, persist func(*Blockchain) error) {
	select {
	case <-time.After(miningInitialWait):
	case <-ctx.Done():
		return
	}

	ticker := time.NewTicker(miningInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.tick(persist)
		}
	}
}

func (b *Blockchain) tick(persist func(*Blockchain) error) {
	defer b.RefreshMetrics()
	b.pool.Tick()

	if b.pool.Len() == 0 {
		b.mu.Lock()
		b.round = (b.round + 1) % roundsPerEpoch
		b.mu.Unlock()
		return
	}

	if err := b.RequireValidatorSetForMining(); err != nil {
		chainLogger.WithError(err).Warn("chain: mining round skipped")
		b.mu.Lock()
		b.round++
		b.mu.Unlock()
		return
	}

	b.mu.RLock()
	height := uint64(len(b.blocks))
	round := b.round
	validators := b.validators
	localDID, localNode, localIdentity := b.localDID, b.localNodeIDHex, b.localIdentity
	b.mu.RUnlock()

	proposer, ok := SelectProposer(validators, height, round)
	authorized := ok && IsAuthorizedProposer(b.identities, localDID, localNode, localIdentity, proposer)
	if b.Env.Name == Bootstrap.Name && len(validators) == 0 {
		authorized = true // bootstrap profile: no validator set yet, self-authorize
	}
	if !authorized {
		b.mu.Lock()
		b.round++
		b.mu.Unlock()
		return
	}

	candidate, picked := b.assembleCandidate()
	mined, found := b.mine(candidate)
	if !found {
		b.pool.Requeue(picked)
		b.mu.Lock()
		b.round++
		b.mu.Unlock()
		return
	}

	if err := b.ApplyMinedBlock(mined); err != nil {
		chainLogger.WithError(err).Warn("chain: block application failed, block transactions evicted")
		b.mu.Lock()
		b.round++
		b.mu.Unlock()
		return
	}

	b.mu.Lock()
	b.round = 0
	blockCount := len(b.blocks)
	b.mu.Unlock()

	if persist != nil && b.Env.PersistEveryNBlocks > 0 && blockCount%b.Env.PersistEveryNBlocks == 0 {
		if err := persist(b); err != nil {
			chainLogger.WithError(err).Error("chain: persist failed")
		}
	}
}

// RequireValidatorSetForMining enforces Open Question decision #1: the
// standard profile with an empty validator set refuses to mine.
func (b *Blockchain) RequireValidatorSetForMining() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.Env.Name == Standard.Name && len(b.validators) == 0 {
		return zhtperrors.New(zhtperrors.KindConsistency, "standard profile requires a non-empty validator set to mine")
	}
	return nil
}
