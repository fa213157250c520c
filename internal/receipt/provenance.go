package receipt

import (
	"encoding/binary"
	"hash/fnv"

	"lukechampine.com/blake3"
)

// HashAlgorithm selects the non-cryptographic provenance hash used for
// a_hash and for the μ projection comparison (spec.md §4.6). It is
// unrelated to MerkleAlgorithm, which anchors the epoch commitment.
type HashAlgorithm uint8

const (
	HashFNV1a64 HashAlgorithm = iota
	HashBlake3_64
)

// ParseHashAlgorithm maps the configuration string ("fnv1a-64" |
// "blake3-64") onto a HashAlgorithm, defaulting to FNV-1a-64 on anything
// else (spec.md §9 fixes FNV-1a-64 as the default).
func ParseHashAlgorithm(s string) HashAlgorithm {
	if s == "blake3-64" {
		return HashBlake3_64
	}
	return HashFNV1a64
}

// EncodeLanes serializes a run of up to 8 u64 lanes into the canonical
// byte form both sides of a reconciliation must hash: little-endian u64
// values, length-prefixed by the run length (spec.md §4.6).
func EncodeLanes(lanes []uint64) []byte {
	buf := make([]byte, 4+8*len(lanes))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(lanes)))
	for i, v := range lanes {
		binary.LittleEndian.PutUint64(buf[4+8*i:4+8*i+8], v)
	}
	return buf
}

// Hash computes the configured provenance hash over a canonical byte
// serialization produced by EncodeLanes (or an equivalent length-prefixed
// encoding). Both the assertion payload sequence and the μ projection of
// the delta must be hashed through this same function for
// hash(A) = hash(μ(O)) to mean anything (spec.md §4.6).
func Hash(algo HashAlgorithm, data []byte) uint64 {
	switch algo {
	case HashBlake3_64:
		sum := blake3.Sum512(data)
		return binary.LittleEndian.Uint64(sum[:8])
	default:
		h := fnv.New64a()
		h.Write(data) //nolint:errcheck // hash.Hash.Write never fails
		return h.Sum64()
	}
}
