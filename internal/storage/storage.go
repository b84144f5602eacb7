package storage

import (
	"context"
	"time"

	"rwaScope/internal/model"
)

// Batch is the unit a Store applies atomically: the raw logs of one
// block, their decoded projections, the checkpoint advance, and the
// daily snapshot bump either all commit or none do.
type Batch struct {
	Network     string
	BlockNumber uint64
	BlockHash   string
	LastTxHash  string
	BlockTime   uint64
	Events      []model.LogEvent
	Decoded     []model.Decoded
	Elapsed     time.Duration
}

// EventFilter narrows event queries for the read API. Limit/Offset
// follow limit/offset pagination; implementations clamp Limit.
type EventFilter struct {
	Network        string
	Address        string
	TxHash         string
	FromBlock      *uint64
	ToBlock        *uint64
	FromTime       *uint64
	ToTime         *uint64
	IncludeRemoved bool
	Limit          int
	Offset         int
}

// TransferFilter narrows transfer queries; Address matches either side.
type TransferFilter struct {
	Network   string
	Address   string
	FromBlock *uint64
	ToBlock   *uint64
	Limit     int
	Offset    int
}

// EventStore persists raw log events, deduplicated on
// (network, tx_hash, log_index).
type EventStore interface {
	// InsertEventsBatch writes events with partial-failure semantics:
	// a row that fails validation or conflicts with an existing row is
	// counted and skipped, the rest commit.
	InsertEventsBatch(ctx context.Context, events []model.LogEvent) (inserted, failed int, err error)
	QueryEvents(ctx context.Context, filter EventFilter) ([]model.LogEvent, int, error)
	// MarkRemovedFrom flips removed=true on every event for the network
	// at or above fromBlock. Rows are never deleted.
	MarkRemovedFrom(ctx context.Context, network string, fromBlock uint64) (int64, error)
}

// CheckpointStore holds one durable progress row per network.
type CheckpointStore interface {
	// GetCheckpoint returns the row for the network, creating one with
	// status initialized and block 0 when absent.
	GetCheckpoint(ctx context.Context, network string) (model.Checkpoint, error)
	// UpdateCheckpoint applies a partial update; unset fields keep their
	// value. Status changes outside the allowed transitions fail.
	UpdateCheckpoint(ctx context.Context, network string, update model.CheckpointUpdate) error
}

// DomainStore persists and serves decoded projections.
type DomainStore interface {
	QueryTransfers(ctx context.Context, filter TransferFilter) ([]model.TransferEvent, int, error)
	QueryViolations(ctx context.Context, network string, limit, offset int) ([]model.ComplianceViolation, int, error)
	CountViolations(ctx context.Context, network string) (int, error)
	RecentViolations(ctx context.Context, network string, limit int) ([]model.ComplianceViolation, error)
	RecordReorg(ctx context.Context, reorg model.ReorgEvent) error
	CountReorgs(ctx context.Context, network string) (int, error)
	// ActiveInvestors is the distinct set of addresses touched by
	// transfers and identity events for a network.
	ActiveInvestors(ctx context.Context, network string) (int, error)
}

// OperationStore tracks platform-submitted operations for the
// metrics aggregator.
type OperationStore interface {
	RecordOperation(ctx context.Context, op model.TrackedOperation) error
	UpdateOperationStatus(ctx context.Context, id string, status model.OperationStatus, gasUsed uint64, confirmedAt time.Time) error
	ListOperations(ctx context.Context, network string) ([]model.TrackedOperation, error)
}

// MetricsStore keeps the per-network, per-day ingestion rollups.
type MetricsStore interface {
	GetSnapshot(ctx context.Context, network, date string) (model.MetricsSnapshot, bool, error)
	ListSnapshots(ctx context.Context, network string, limit int) ([]model.MetricsSnapshot, error)
}

// Store is the full persistence surface shared by the pipeline, the
// read API, and the aggregator.
type Store interface {
	EventStore
	CheckpointStore
	DomainStore
	OperationStore
	MetricsStore

	// ApplyBatch runs one ingestion unit inside a single transaction
	// scope. Re-applying a batch whose events already exist is a no-op
	// for those rows and still advances the checkpoint idempotently.
	ApplyBatch(ctx context.Context, batch Batch) error

	Ping(ctx context.Context) error
	Close() error
}
