package ledger

import (
	"errors"

	"github.com/eightbeat/reconciler/internal/receipt"
	"github.com/eightbeat/reconciler/internal/ring"
	"github.com/google/uuid"
)

// ErrContinuityGap signals that the epoch about to be sealed is not the
// immediate successor of the last committed epoch (spec.md §4.7, §7).
// It is not a stall: the caller records the gap and moves on to the next
// pulse boundary rather than blocking the pipeline on it.
var ErrContinuityGap = errors.New("ledger: continuity gap between committed epochs")

// Commitment is the sealed artifact produced once per pulse boundary: a
// Merkle root over every shard's folded receipts for the epoch, plus the
// bookkeeping a lockchain adapter needs to persist it.
type Commitment struct {
	CommitmentID  uuid.UUID
	EpochStart    uint64 // first cycle_id of the sealed epoch
	ReceiptsCount uint32
	ShardsFolded  uint32
	Root          [32]byte
	Suspect       bool // the suspect flag the caller passed to Seal
}

// Sealer folds an epoch's A-ring contents into per-shard receipt digests
// and seals them into a Commitment. It is grounded on the teacher's
// internal/ledger/merkle.go Append/root-rebuild cycle, generalized from
// "append one string, rebuild the whole tree" to "fold one epoch's
// receipts per shard, build a tree over the per-shard digests."
type Sealer struct {
	Algo           Algorithm
	lastEpochStart uint64
	haveLastEpoch  bool
	epochSpan      uint64
}

// NewSealer builds a Sealer. epochSpan is the number of cycles per epoch
// (spec.md's Chatman Constant, 8) and is used purely to validate that
// consecutive commits advance by exactly one epoch. Sealer only ever
// hashes receipt wire bytes with algo, the Merkle commitment hash — never
// with a receipt.HashAlgorithm, which is the unrelated provenance
// fingerprint (spec.md §9: "Do not conflate them").
func NewSealer(algo Algorithm, epochSpan uint64) *Sealer {
	if epochSpan == 0 {
		epochSpan = 8
	}
	return &Sealer{Algo: algo, epochSpan: epochSpan}
}

// Seal folds slots (the A-ring's drained epoch contents, spec.md §4.3) by
// shard ID via the receipt ⊕-monoid, builds a Merkle tree over the sorted
// per-shard digests, and returns the resulting Commitment.
//
// If epochStart is not exactly one epochSpan past the last sealed epoch,
// Seal still computes and returns the Commitment (so the caller retains
// an auditable root for the gap epoch) but also returns ErrContinuityGap;
// callers must not hand a gapped Commitment to a lockchain adapter.
func (s *Sealer) Seal(epochStart uint64, slots []ring.AssertionSlot, suspect bool) (Commitment, error) {
	byShard := make(map[uint32]receipt.Receipt)
	shardSeen := make(map[uint32]bool)
	count := uint32(0)
	for _, slot := range slots {
		if slot.Receipt == (receipt.Receipt{}) {
			continue
		}
		shard := slot.Receipt.ShardID
		if existing, ok := byShard[shard]; ok {
			byShard[shard] = receipt.Merge(existing, slot.Receipt)
		} else {
			byShard[shard] = slot.Receipt
		}
		shardSeen[shard] = true
		count++
	}

	digestsByShard := make(map[uint32][32]byte, len(byShard))
	for shard, folded := range byShard {
		wire := folded.Encode()
		digestsByShard[shard] = digest(s.Algo, wire[:])
	}

	commitment := Commitment{
		CommitmentID:  uuid.New(),
		EpochStart:    epochStart,
		ReceiptsCount: count,
		ShardsFolded:  uint32(len(shardSeen)),
		Root:          BuildRoot(s.Algo, sortedLeaves(digestsByShard)),
		Suspect:       suspect,
	}

	var err error
	if s.haveLastEpoch && epochStart != s.lastEpochStart+s.epochSpan {
		err = ErrContinuityGap
	}
	s.lastEpochStart = epochStart
	s.haveLastEpoch = true

	return commitment, err
}
