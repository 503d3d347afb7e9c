package storage

import (
	"fmt"

	"github.com/klauspost/reedsolomon"

	"zhtp-core/internal/zhtpcrypto"
)

// ErasureShard is one content-addressed data or parity shard produced
// by Encode (spec §4.5: "the shards vector is itself content-addressed
// and stored").
type ErasureShard struct {
	Index  int
	Parity bool
	Hash   zhtpcrypto.Hash
	Data   []byte
}

// EncodeErasure splits data into d data shards + p parity shards; any d
// of the d+p shards suffice to reconstruct (spec §4.5 "Erasure coding").
func EncodeErasure(data []byte, d, p int) ([]ErasureShard, error) {
	enc, err := reedsolomon.New(d, p)
	if err != nil {
		return nil, fmt.Errorf("reedsolomon init: %w", err)
	}
	shards, err := enc.Split(data)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	if err := enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("encode parity: %w", err)
	}
	out := make([]ErasureShard, len(shards))
	for i, s := range shards {
		out[i] = ErasureShard{Index: i, Parity: i >= d, Hash: zhtpcrypto.Sum(s), Data: s}
	}
	return out, nil
}

// DecodeErasure reconstructs the original data from a possibly-partial
// shard set (missing entries are nil); it fails if fewer than d shards
// are present.
func DecodeErasure(shards []ErasureShard, d, p int, originalSize int) ([]byte, error) {
	enc, err := reedsolomon.New(d, p)
	if err != nil {
		return nil, fmt.Errorf("reedsolomon init: %w", err)
	}
	raw := make([][]byte, d+p)
	present := 0
	for _, s := range shards {
		if s.Index < 0 || s.Index >= d+p {
			continue
		}
		raw[s.Index] = s.Data
		if s.Data != nil {
			present++
		}
	}
	if present < d {
		return nil, fmt.Errorf("insufficient shards to reconstruct: have %d, need %d", present, d)
	}
	if err := enc.Reconstruct(raw); err != nil {
		return nil, fmt.Errorf("reconstruct: %w", err)
	}
	out := make([]byte, 0, originalSize)
	for _, s := range raw[:d] {
		out = append(out, s...)
	}
	if len(out) > originalSize {
		out = out[:originalSize]
	}
	return out, nil
}
