package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/eightbeat/reconciler/pb"
	_ "github.com/lib/pq"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Adapter persists a sealed Commitment to an external lockchain. Commit
// must not be called for a Commitment that Seal flagged with
// ErrContinuityGap (spec.md §4.7).
type Adapter interface {
	Commit(ctx context.Context, c Commitment) error
}

// PostgresAdapter persists commitments as rows in a lockchain table,
// grounded on the teacher's internal/gvisor/database_state.go
// DatabaseStateManager: sql.Open("postgres", ...) plus a Ping on
// construction, the same lib/pq-backed connection pattern generalized
// from savepoint bookkeeping to append-only commitment rows.
type PostgresAdapter struct {
	db *sql.DB
}

// NewPostgresAdapter opens a connection pool against dsn and verifies it
// with a Ping before returning, matching the teacher's fail-fast
// construction style.
func NewPostgresAdapter(dsn string) (*PostgresAdapter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ledger: ping postgres: %w", err)
	}
	return &PostgresAdapter{db: db}, nil
}

// Commit inserts one append-only row per sealed epoch. The table is
// expected to already exist (migrations are out of scope here, matching
// the teacher's convention of assuming schema is provisioned separately).
func (a *PostgresAdapter) Commit(ctx context.Context, c Commitment) error {
	const stmt = `INSERT INTO lockchain_commitments
		(commitment_id, epoch_start, receipts_count, shards_folded, root, suspect)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := a.db.ExecContext(ctx, stmt,
		c.CommitmentID.String(), c.EpochStart, c.ReceiptsCount, c.ShardsFolded, c.Root[:], c.Suspect)
	if err != nil {
		return fmt.Errorf("ledger: insert commitment: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (a *PostgresAdapter) Close() error { return a.db.Close() }

// GRPCAdapter publishes commitments to an external lockchain service over
// gRPC. Grounded on the teacher's internal/ledger/client.go AuditLogger,
// generalized from a fire-and-forget goroutine (LogTurn logs and
// swallows the error on failure) into a blocking call that returns the
// error to the caller, since a missed commitment here is a continuity
// gap rather than a best-effort audit trail entry.
type GRPCAdapter struct {
	Client pb.LockchainServiceClient
}

// NewGRPCAdapter wraps an already-dialed LockchainServiceClient.
func NewGRPCAdapter(client pb.LockchainServiceClient) *GRPCAdapter {
	return &GRPCAdapter{Client: client}
}

func (a *GRPCAdapter) Commit(ctx context.Context, c Commitment) error {
	record := &pb.CommitRecord{
		CommitmentId:  c.CommitmentID.String(),
		EpochStart:    c.EpochStart,
		ReceiptsCount: c.ReceiptsCount,
		ShardsFolded:  c.ShardsFolded,
		Root:          c.Root[:],
		Suspect:       c.Suspect,
		SealedAt:      timestamppb.Now(),
	}
	ack, err := a.Client.Commit(ctx, record)
	if err != nil {
		return fmt.Errorf("ledger: lockchain commit rpc: %w", err)
	}
	if ack != nil && !ack.Accepted {
		return fmt.Errorf("ledger: lockchain rejected commitment %s: %s", c.CommitmentID, ack.Reason)
	}
	return nil
}

// LoggingAdapter wraps another Adapter and logs every failure at
// CRITICAL level before returning the same error to the caller, so a
// lockchain outage is visible in the log even where the caller only
// records it. This mirrors the teacher's own log.Printf("CRITICAL: ...")
// call in AuditLogger.LogTurn.
type LoggingAdapter struct {
	Inner Adapter
}

func (a *LoggingAdapter) Commit(ctx context.Context, c Commitment) error {
	if err := a.Inner.Commit(ctx, c); err != nil {
		log.Printf("CRITICAL: lockchain commit failed for epoch %d: %v", c.EpochStart, err)
		return err
	}
	return nil
}
