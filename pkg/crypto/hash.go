// Package crypto provides the hashing and signing primitives used to
// identify accounts and authenticate requests.
package crypto

import (
	"github.com/Klingon-tech/tip-staking/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// HashParts hashes the given parts separated by a zero byte, so that
// ("ab","c") and ("a","bc") never collide.
func HashParts(parts ...[]byte) types.Hash {
	h := blake3.New()
	for i, p := range parts {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// AddressFromPubKey derives an address from a compressed public key.
// Address = BLAKE3(compressed_pubkey)[:20].
func AddressFromPubKey(pubKey []byte) types.Address {
	h := Hash(pubKey)
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}

// AddressFromLabel derives a keyless address from a fixed label. Used for
// module accounts (the staking custody) that never sign anything.
func AddressFromLabel(label string) types.Address {
	h := HashParts([]byte("module"), []byte(label))
	var addr types.Address
	copy(addr[:], h[:types.AddressSize])
	return addr
}
