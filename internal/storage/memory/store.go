package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"rwaScope/internal/model"
	"rwaScope/internal/storage"
)

// Store is an in-memory implementation of storage.Store. It backs unit
// tests and the hot dashboard path; the Postgres store remains the
// source of truth. A retention bound turns the event log into a ring:
// oldest rows are dropped once the bound is exceeded.
type Store struct {
	mu sync.Mutex

	retain int

	events     []model.LogEvent
	eventIndex map[string]int

	checkpoints map[string]model.Checkpoint

	transfers   []model.TransferEvent
	compliance  []model.ComplianceEvent
	identities  []model.IdentityEvent
	claims      []model.ClaimEvent
	violations  []model.ComplianceViolation
	reorgs      []model.ReorgEvent
	decodedSeen map[string]struct{}

	operations []model.TrackedOperation
	opIndex    map[string]int

	snapshots     map[string]model.MetricsSnapshot
	lastBlockTime map[string]uint64
}

// New builds an empty store. retain bounds the number of raw events kept
// (0 means unbounded, which tests use).
func New(retain int) *Store {
	return &Store{
		retain:        retain,
		eventIndex:    make(map[string]int),
		checkpoints:   make(map[string]model.Checkpoint),
		decodedSeen:   make(map[string]struct{}),
		opIndex:       make(map[string]int),
		snapshots:     make(map[string]model.MetricsSnapshot),
		lastBlockTime: make(map[string]uint64),
	}
}

// ApplyBatch applies one block's worth of work under a single lock so the
// raw rows, projections, checkpoint, and snapshot move together.
func (s *Store) ApplyBatch(ctx context.Context, batch storage.Batch) error {
	if batch.Network == "" {
		return fmt.Errorf("batch network is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inserted := 0
	for _, ev := range batch.Events {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("invalid event %s: %w", ev.Key(), err)
		}
		if s.upsertEventLocked(ev) {
			inserted++
		}
	}

	for _, dec := range batch.Decoded {
		s.appendDecodedLocked(dec)
	}

	cp := s.checkpointLocked(batch.Network)
	if batch.BlockNumber >= cp.LastProcessedBlock {
		cp.LastProcessedBlock = batch.BlockNumber
		cp.LastBlockHash = batch.BlockHash
		cp.LastProcessedTxHash = batch.LastTxHash
		cp.UpdatedAt = time.Now().UTC()
		s.checkpoints[batch.Network] = cp
	}

	s.bumpSnapshotLocked(batch, inserted)
	return nil
}

// upsertEventLocked inserts a new event or refreshes an existing row.
// Re-observing a key under the new canonical chain clears removed.
func (s *Store) upsertEventLocked(ev model.LogEvent) bool {
	if idx, ok := s.eventIndex[ev.Key()]; ok {
		existing := s.events[idx]
		existing.Removed = false
		existing.BlockHash = ev.BlockHash
		existing.BlockNumber = ev.BlockNumber
		s.events[idx] = existing
		return false
	}
	s.events = append(s.events, ev)
	s.eventIndex[ev.Key()] = len(s.events) - 1
	s.trimLocked()
	return true
}

func (s *Store) trimLocked() {
	if s.retain <= 0 || len(s.events) <= s.retain {
		return
	}
	drop := len(s.events) - s.retain
	for _, ev := range s.events[:drop] {
		delete(s.eventIndex, ev.Key())
	}
	s.events = append([]model.LogEvent(nil), s.events[drop:]...)
	for i, ev := range s.events {
		s.eventIndex[ev.Key()] = i
	}
}

// appendDecodedLocked stores one projection row per source log. Replayed
// batches hit the seen set and leave the projections untouched, mirroring
// the ON CONFLICT DO NOTHING inserts on the Postgres path.
func (s *Store) appendDecodedLocked(dec model.Decoded) {
	key := dec.Provenance.Key()
	if _, ok := s.decodedSeen[key]; ok {
		return
	}

	switch dec.Kind {
	case model.KindTransfer:
		if dec.Transfer != nil {
			s.transfers = append(s.transfers, *dec.Transfer)
		}
	case model.KindCompliance:
		if dec.Compliance != nil {
			s.compliance = append(s.compliance, *dec.Compliance)
		}
	case model.KindIdentity:
		if dec.Identity != nil {
			s.identities = append(s.identities, *dec.Identity)
		}
	case model.KindClaim:
		if dec.Claim != nil {
			s.claims = append(s.claims, *dec.Claim)
		}
	case model.KindViolation:
		if dec.Violation != nil {
			s.violations = append(s.violations, *dec.Violation)
		}
	default:
		return
	}
	s.decodedSeen[key] = struct{}{}
}

func (s *Store) bumpSnapshotLocked(batch storage.Batch, inserted int) {
	date := time.Unix(int64(batch.BlockTime), 0).UTC().Format("2006-01-02")
	key := batch.Network + ":" + date
	snap, ok := s.snapshots[key]
	if !ok {
		snap = model.MetricsSnapshot{Network: batch.Network, Date: date}
	}

	txSeen := make(map[string]struct{}, len(batch.Events))
	for _, ev := range batch.Events {
		txSeen[ev.TxHash] = struct{}{}
	}

	snap.BlocksProcessed++
	snap.TransactionsProcessed += uint64(len(txSeen))
	snap.EventsIndexed += uint64(inserted)
	snap.ProcessingTime += batch.Elapsed

	if last, ok := s.lastBlockTime[batch.Network]; ok && batch.BlockTime > last {
		delta := float64(batch.BlockTime - last)
		n := float64(snap.BlocksProcessed)
		snap.AvgBlockTime = (snap.AvgBlockTime*(n-1) + delta) / n
	}
	s.lastBlockTime[batch.Network] = batch.BlockTime

	s.snapshots[key] = snap
}

// InsertEventsBatch writes events with partial-failure semantics: rows
// failing validation or conflicting with existing keys are counted and
// skipped, the rest land.
func (s *Store) InsertEventsBatch(ctx context.Context, events []model.LogEvent) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inserted, failed := 0, 0
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			failed++
			continue
		}
		if _, ok := s.eventIndex[ev.Key()]; ok {
			failed++
			continue
		}
		s.events = append(s.events, ev)
		s.eventIndex[ev.Key()] = len(s.events) - 1
		inserted++
	}
	s.trimLocked()
	return inserted, failed, nil
}

// QueryEvents returns a page of events plus the unpaged total.
func (s *Store) QueryEvents(ctx context.Context, filter storage.EventFilter) ([]model.LogEvent, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]model.LogEvent, 0, len(s.events))
	for _, ev := range s.events {
		if !matchEvent(ev, filter) {
			continue
		}
		matched = append(matched, ev)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].BlockNumber != matched[j].BlockNumber {
			return matched[i].BlockNumber < matched[j].BlockNumber
		}
		return matched[i].LogIndex < matched[j].LogIndex
	})

	total := len(matched)
	return paginate(matched, filter.Limit, filter.Offset), total, nil
}

func matchEvent(ev model.LogEvent, filter storage.EventFilter) bool {
	if !filter.IncludeRemoved && ev.Removed {
		return false
	}
	if filter.Network != "" && ev.Network != filter.Network {
		return false
	}
	if filter.Address != "" && !strings.EqualFold(ev.Address, filter.Address) {
		return false
	}
	if filter.TxHash != "" && !strings.EqualFold(ev.TxHash, filter.TxHash) {
		return false
	}
	if filter.FromBlock != nil && ev.BlockNumber < *filter.FromBlock {
		return false
	}
	if filter.ToBlock != nil && ev.BlockNumber > *filter.ToBlock {
		return false
	}
	if filter.FromTime != nil && ev.Timestamp < *filter.FromTime {
		return false
	}
	if filter.ToTime != nil && ev.Timestamp > *filter.ToTime {
		return false
	}
	return true
}

// MarkRemovedFrom retracts events at or above fromBlock for the network.
func (s *Store) MarkRemovedFrom(ctx context.Context, network string, fromBlock uint64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	for i, ev := range s.events {
		if ev.Network == network && ev.BlockNumber >= fromBlock && !ev.Removed {
			s.events[i].Removed = true
			count++
		}
	}
	return count, nil
}

// GetCheckpoint returns the network's row, creating it when absent.
func (s *Store) GetCheckpoint(ctx context.Context, network string) (model.Checkpoint, error) {
	if network == "" {
		return model.Checkpoint{}, fmt.Errorf("network is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpointLocked(network), nil
}

func (s *Store) checkpointLocked(network string) model.Checkpoint {
	cp, ok := s.checkpoints[network]
	if !ok {
		cp = model.Checkpoint{
			Network:   network,
			Status:    model.StatusInitialized,
			UpdatedAt: time.Now().UTC(),
		}
		s.checkpoints[network] = cp
	}
	return cp
}

// UpdateCheckpoint applies a partial update, enforcing the status
// transition rules.
func (s *Store) UpdateCheckpoint(ctx context.Context, network string, update model.CheckpointUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := s.checkpointLocked(network)
	if update.Status != nil {
		if err := model.CheckTransition(cp.Status, *update.Status); err != nil {
			return err
		}
		cp.Status = *update.Status
	}
	if update.LastProcessedBlock != nil {
		cp.LastProcessedBlock = *update.LastProcessedBlock
	}
	if update.LastProcessedTxHash != nil {
		cp.LastProcessedTxHash = *update.LastProcessedTxHash
	}
	if update.LastBlockHash != nil {
		cp.LastBlockHash = *update.LastBlockHash
	}
	if update.ErrorMessage != nil {
		cp.ErrorMessage = *update.ErrorMessage
	}
	cp.UpdatedAt = time.Now().UTC()
	s.checkpoints[network] = cp
	return nil
}

// QueryTransfers returns a page of transfers plus the unpaged total.
func (s *Store) QueryTransfers(ctx context.Context, filter storage.TransferFilter) ([]model.TransferEvent, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]model.TransferEvent, 0, len(s.transfers))
	for _, tr := range s.transfers {
		if filter.Network != "" && tr.Network != filter.Network {
			continue
		}
		if filter.Address != "" && !strings.EqualFold(tr.From, filter.Address) && !strings.EqualFold(tr.To, filter.Address) {
			continue
		}
		if filter.FromBlock != nil && tr.BlockNumber < *filter.FromBlock {
			continue
		}
		if filter.ToBlock != nil && tr.BlockNumber > *filter.ToBlock {
			continue
		}
		matched = append(matched, tr)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].BlockNumber != matched[j].BlockNumber {
			return matched[i].BlockNumber < matched[j].BlockNumber
		}
		return matched[i].LogIndex < matched[j].LogIndex
	})

	total := len(matched)
	return paginate(matched, filter.Limit, filter.Offset), total, nil
}

// QueryViolations returns a page of violations, newest first.
func (s *Store) QueryViolations(ctx context.Context, network string, limit, offset int) ([]model.ComplianceViolation, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.violationsLocked(network)
	total := len(matched)
	return paginate(matched, limit, offset), total, nil
}

func (s *Store) violationsLocked(network string) []model.ComplianceViolation {
	matched := make([]model.ComplianceViolation, 0, len(s.violations))
	for _, v := range s.violations {
		if network != "" && v.Network != network {
			continue
		}
		matched = append(matched, v)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].BlockNumber != matched[j].BlockNumber {
			return matched[i].BlockNumber > matched[j].BlockNumber
		}
		return matched[i].LogIndex > matched[j].LogIndex
	})
	return matched
}

// CountViolations returns the violation total for a network.
func (s *Store) CountViolations(ctx context.Context, network string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.violationsLocked(network)), nil
}

// RecentViolations returns the newest limit violations.
func (s *Store) RecentViolations(ctx context.Context, network string, limit int) ([]model.ComplianceViolation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.violationsLocked(network)
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// RecordReorg stores the audit record for a rewind.
func (s *Store) RecordReorg(ctx context.Context, reorg model.ReorgEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reorgs = append(s.reorgs, reorg)
	return nil
}

// CountReorgs returns the number of recorded reorgs for a network.
func (s *Store) CountReorgs(ctx context.Context, network string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, r := range s.reorgs {
		if network == "" || r.Network == network {
			count++
		}
	}
	return count, nil
}

// ActiveInvestors counts distinct addresses seen on transfers and
// identity events for a network.
func (s *Store) ActiveInvestors(ctx context.Context, network string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, tr := range s.transfers {
		if network != "" && tr.Network != network {
			continue
		}
		seen[strings.ToLower(tr.From)] = struct{}{}
		seen[strings.ToLower(tr.To)] = struct{}{}
	}
	for _, id := range s.identities {
		if network != "" && id.Network != network {
			continue
		}
		seen[strings.ToLower(id.Investor)] = struct{}{}
	}
	return len(seen), nil
}

// RecordOperation stores a tracked operation, replacing any previous row
// with the same ID.
func (s *Store) RecordOperation(ctx context.Context, op model.TrackedOperation) error {
	if op.ID == "" {
		return fmt.Errorf("operation id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx, ok := s.opIndex[op.ID]; ok {
		s.operations[idx] = op
		return nil
	}
	s.operations = append(s.operations, op)
	s.opIndex[op.ID] = len(s.operations) - 1
	return nil
}

// UpdateOperationStatus moves an operation to its terminal status.
func (s *Store) UpdateOperationStatus(ctx context.Context, id string, status model.OperationStatus, gasUsed uint64, confirmedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, ok := s.opIndex[id]
	if !ok {
		return fmt.Errorf("operation %s not found", id)
	}
	op := s.operations[idx]
	op.Status = status
	op.GasUsed = gasUsed
	if !confirmedAt.IsZero() {
		t := confirmedAt.UTC()
		op.ConfirmedAt = &t
	}
	s.operations[idx] = op
	return nil
}

// ListOperations returns all operations for a network.
func (s *Store) ListOperations(ctx context.Context, network string) ([]model.TrackedOperation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.TrackedOperation, 0, len(s.operations))
	for _, op := range s.operations {
		if network != "" && op.Network != network {
			continue
		}
		out = append(out, op)
	}
	return out, nil
}

// GetSnapshot returns the rollup for (network, date) when present.
func (s *Store) GetSnapshot(ctx context.Context, network, date string) (model.MetricsSnapshot, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.snapshots[network+":"+date]
	return snap, ok, nil
}

// ListSnapshots returns up to limit rollups for a network, newest first.
func (s *Store) ListSnapshots(ctx context.Context, network string, limit int) ([]model.MetricsSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.MetricsSnapshot, 0)
	for _, snap := range s.snapshots {
		if network != "" && snap.Network != network {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Ping always succeeds for the in-memory store.
func (s *Store) Ping(ctx context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

func paginate[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return []T{}
	}
	items = items[offset:]
	limit = normalizeLimit(limit)
	if len(items) > limit {
		items = items[:limit]
	}
	return append([]T(nil), items...)
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > 1000 {
		return 100
	}
	return limit
}
