package identity

import (
	"io"

	"lukechampine.com/blake3"
)

// newSeedReader returns a deterministic, effectively unbounded byte
// stream derived from seed via blake3's extendable-output mode. Feeding
// key generation from this stream instead of crypto/rand makes identity
// derivation reproducible from a recovered wallet seed.
func newSeedReader(seed []byte) io.Reader {
	h := blake3.New(32, nil)
	_, _ = h.Write([]byte("zhtp-identity-keygen-xof"))
	_, _ = h.Write(seed)
	return h.XOF()
}
