package chain

import "time"

// Environment selects a difficulty/persistence profile (spec §4.4
// "Environment profiles").
type Environment struct {
	Name                string
	Difficulty          uint32
	AllowInstantMining   bool
	MaxIterations       uint64
	MaxTxPerBlock       int
	PersistEveryNBlocks int
	InflationBudgetPerBlock uint64
}

// Bootstrap is the low-difficulty, instant-accepting development profile.
var Bootstrap = Environment{
	Name:                    "bootstrap",
	Difficulty:              1,
	AllowInstantMining:      true,
	MaxIterations:           1000,
	MaxTxPerBlock:           10,
	PersistEveryNBlocks:     1,
	InflationBudgetPerBlock: 1_000_000,
}

// Standard is the production difficulty profile: no instant acceptance.
var Standard = Environment{
	Name:                    "standard",
	Difficulty:              20,
	AllowInstantMining:      false,
	MaxIterations:           50_000_000,
	MaxTxPerBlock:           10,
	PersistEveryNBlocks:     1,
	InflationBudgetPerBlock: 100_000,
}

const (
	miningInterval    = 30 * time.Second
	miningInitialWait = 2 * time.Second
	roundsPerEpoch    = 10
)
