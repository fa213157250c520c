// Package receipt defines the per-operation provenance record, its
// associative commutative merge, and its stable 64-byte wire encoding.
package receipt

import "encoding/binary"

// RuntimeClass identifies which admission path produced a receipt.
type RuntimeClass uint8

const (
	ClassR1 RuntimeClass = iota
	ClassW1
	ClassC1
)

func (c RuntimeClass) String() string {
	switch c {
	case ClassR1:
		return "R1"
	case ClassW1:
		return "W1"
	case ClassC1:
		return "C1"
	default:
		return "UNKNOWN"
	}
}

// Flag bits carried in a receipt's wire flags byte.
const (
	FlagParked  uint8 = 1 << 0
	FlagSuspect uint8 = 1 << 1
)

// Receipt is the per-operation provenance record described in spec.md §3.
// Its zero value is the ⊕-monoid identity element.
type Receipt struct {
	CycleID       uint64
	ShardID       uint32
	HookID        uint32
	EstimatedTicks uint32
	ActualTicks   uint32
	LanesUsed     uint32
	RuntimeClass  RuntimeClass
	Flags         uint8
	SpanID        uint64
	AHash         uint64
}

// WireSize is the fixed, stable, little-endian wire size in bytes (spec.md §6).
const WireSize = 64

// Merge implements the receipt ⊕-monoid: component-wise XOR on (span_id,
// a_hash), max on (estimated_ticks, actual_ticks, lanes_used), and a
// deterministic "smallest non-zero" selection on scalar identifiers
// (cycle_id, shard_id, hook_id, runtime_class). Merge is associative and
// commutative, and merge(r, identity) == r.
func Merge(a, b Receipt) Receipt {
	return Receipt{
		CycleID:        pickSmallestNonZero64(a.CycleID, b.CycleID),
		ShardID:        pickSmallestNonZero32(a.ShardID, b.ShardID),
		HookID:         pickSmallestNonZero32(a.HookID, b.HookID),
		EstimatedTicks: max32(a.EstimatedTicks, b.EstimatedTicks),
		ActualTicks:    max32(a.ActualTicks, b.ActualTicks),
		LanesUsed:      max32(a.LanesUsed, b.LanesUsed),
		RuntimeClass:   pickSmallestNonZeroClass(a.RuntimeClass, b.RuntimeClass),
		Flags:          a.Flags | b.Flags,
		SpanID:         a.SpanID ^ b.SpanID,
		AHash:          a.AHash ^ b.AHash,
	}
}

// MergeAll folds a slice of receipts into one via repeated Merge, starting
// from the identity element. Returns the identity receipt for an empty slice.
func MergeAll(rs []Receipt) Receipt {
	var acc Receipt
	for _, r := range rs {
		acc = Merge(acc, r)
	}
	return acc
}

func max32(a, b uint32) uint32 {
	if a > b {
		return a
	}
	return b
}

func pickSmallestNonZero64(a, b uint64) uint64 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

func pickSmallestNonZero32(a, b uint32) uint32 {
	switch {
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

func pickSmallestNonZeroClass(a, b RuntimeClass) RuntimeClass {
	switch {
	case a == 0 && b == 0:
		return 0
	case a == 0:
		return b
	case b == 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

// Encode writes the receipt's stable 64-byte little-endian wire form, in
// the field order fixed by spec.md §6:
// cycle_id(8) shard_id(4) hook_id(4) estimated_ticks(4) actual_ticks(4)
// lanes_used(4) runtime_class(1) flags(1) reserved(2) span_id(8) a_hash(8).
func (r Receipt) Encode() [WireSize]byte {
	var buf [WireSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], r.CycleID)
	binary.LittleEndian.PutUint32(buf[8:12], r.ShardID)
	binary.LittleEndian.PutUint32(buf[12:16], r.HookID)
	binary.LittleEndian.PutUint32(buf[16:20], r.EstimatedTicks)
	binary.LittleEndian.PutUint32(buf[20:24], r.ActualTicks)
	binary.LittleEndian.PutUint32(buf[24:28], r.LanesUsed)
	buf[28] = uint8(r.RuntimeClass)
	buf[29] = r.Flags
	// buf[30:32] reserved, left zero
	binary.LittleEndian.PutUint64(buf[32:40], r.SpanID)
	binary.LittleEndian.PutUint64(buf[40:48], r.AHash)
	// buf[48:64] reserved for wire-format growth, left zero
	return buf
}

// Decode parses a receipt from its stable wire form produced by Encode.
func Decode(buf [WireSize]byte) Receipt {
	return Receipt{
		CycleID:        binary.LittleEndian.Uint64(buf[0:8]),
		ShardID:        binary.LittleEndian.Uint32(buf[8:12]),
		HookID:         binary.LittleEndian.Uint32(buf[12:16]),
		EstimatedTicks: binary.LittleEndian.Uint32(buf[16:20]),
		ActualTicks:    binary.LittleEndian.Uint32(buf[20:24]),
		LanesUsed:      binary.LittleEndian.Uint32(buf[24:28]),
		RuntimeClass:   RuntimeClass(buf[28]),
		Flags:          buf[29],
		SpanID:         binary.LittleEndian.Uint64(buf[32:40]),
		AHash:          binary.LittleEndian.Uint64(buf[40:48]),
	}
}
