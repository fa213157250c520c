// Package pb holds the wire contracts for the lockchain gRPC service. In a
// fully generated build these would come out of protoc; here they are
// hand-declared in the same shape protoc-gen-go would emit, mirroring the
// teacher's pb/mock.go, which hand-declares LedgerServiceClient and its
// message types the same way rather than checking in generated code.
package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// CommitRecord is one sealed epoch commitment as carried over the wire.
type CommitRecord struct {
	CommitmentId  string
	EpochStart    uint64
	ReceiptsCount uint32
	ShardsFolded  uint32
	Root          []byte
	Suspect       bool
	SealedAt      *timestamppb.Timestamp
}

// CommitAck is the lockchain service's acknowledgement of a CommitRecord.
type CommitAck struct {
	CommitmentId string
	Accepted     bool
	Reason       string
}

// LockchainServiceClient is the gRPC client contract for publishing sealed
// epoch commitments to an external lockchain service.
type LockchainServiceClient interface {
	Commit(ctx context.Context, in *CommitRecord, opts ...grpc.CallOption) (*CommitAck, error)
}

// LockchainServiceServer is the corresponding server contract.
type LockchainServiceServer interface {
	Commit(context.Context, *CommitRecord) (*CommitAck, error)
}

// UnimplementedLockchainServiceServer embeds into real server
// implementations to satisfy LockchainServiceServer by default, the same
// forward-compatibility pattern generated stubs use.
type UnimplementedLockchainServiceServer struct{}

func (UnimplementedLockchainServiceServer) Commit(context.Context, *CommitRecord) (*CommitAck, error) {
	return nil, nil
}
