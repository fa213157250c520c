package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func leaf(b byte) [32]byte {
	var h [32]byte
	h[0] = b
	return h
}

func TestBuildRootSingleLeafIsItself(t *testing.T) {
	l := leaf(1)
	require.Equal(t, l, BuildRoot(AlgoSHA256, [][32]byte{l}))
}

func TestBuildRootDeterministic(t *testing.T) {
	leaves := [][32]byte{leaf(1), leaf(2), leaf(3)}
	r1 := BuildRoot(AlgoSHA256, leaves)
	r2 := BuildRoot(AlgoSHA256, leaves)
	require.Equal(t, r1, r2)
}

func TestBuildRootOddCountDuplicatesLast(t *testing.T) {
	three := BuildRoot(AlgoSHA256, [][32]byte{leaf(1), leaf(2), leaf(3)})
	four := BuildRoot(AlgoSHA256, [][32]byte{leaf(1), leaf(2), leaf(3), leaf(3)})
	require.Equal(t, three, four)
}

func TestGenerateAndVerifyProof(t *testing.T) {
	leaves := [][32]byte{leaf(1), leaf(2), leaf(3), leaf(4), leaf(5)}
	root := BuildRoot(AlgoSHA256, leaves)

	for i := range leaves {
		proof, ok := GenerateProof(AlgoSHA256, leaves, i)
		require.True(t, ok)
		require.True(t, VerifyProof(AlgoSHA256, proof, root), "leaf %d", i)
	}
}

func TestVerifyProofRejectsWrongRoot(t *testing.T) {
	leaves := [][32]byte{leaf(1), leaf(2), leaf(3)}
	proof, ok := GenerateProof(AlgoSHA256, leaves, 1)
	require.True(t, ok)

	require.False(t, VerifyProof(AlgoSHA256, proof, leaf(99)))
}

func TestGenerateProofOutOfRange(t *testing.T) {
	leaves := [][32]byte{leaf(1)}
	_, ok := GenerateProof(AlgoSHA256, leaves, 5)
	require.False(t, ok)
}

func TestBlake3RootDiffersFromSHA256(t *testing.T) {
	leaves := [][32]byte{leaf(1), leaf(2)}
	require.NotEqual(t, BuildRoot(AlgoSHA256, leaves), BuildRoot(AlgoBLAKE3, leaves))
}

func TestParseAlgorithm(t *testing.T) {
	require.Equal(t, AlgoBLAKE3, ParseAlgorithm("blake3"))
	require.Equal(t, AlgoSHA256, ParseAlgorithm("sha256"))
	require.Equal(t, AlgoSHA256, ParseAlgorithm("unknown"))
}

func TestSortedLeavesOrdersByShardID(t *testing.T) {
	byShard := map[uint32][32]byte{3: leaf(3), 1: leaf(1), 2: leaf(2)}
	got := sortedLeaves(byShard)
	require.Equal(t, [][32]byte{leaf(1), leaf(2), leaf(3)}, got)
}
