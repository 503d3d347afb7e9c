package storage

import (
	"fmt"

	"github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"

	"zhtp-core/internal/zhtpcrypto"
)

// computeContentID hashes data with the core hash family, wraps the
// digest in a blake3-tagged multihash inside a CIDv1, and returns its
// string form as the ContentId along with the raw digest for dedup
// bookkeeping.
func computeContentID(data []byte) (ContentId, zhtpcrypto.Hash, error) {
	digest := zhtpcrypto.Sum(data)
	encoded, err := mh.Encode(digest.Bytes(), mh.BLAKE3)
	if err != nil {
		return "", digest, fmt.Errorf("encode multihash: %w", err)
	}
	c := cid.NewCidV1(cid.Raw, mh.Multihash(encoded))
	return ContentId(c.String()), digest, nil
}

// computeChunkHash hashes a single chunk's plaintext bytes.
func computeChunkHash(data []byte) zhtpcrypto.Hash {
	return zhtpcrypto.Sum(data)
}
