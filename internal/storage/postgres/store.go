package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rwaScope/internal/model"
	"rwaScope/internal/storage"
)

// Store is the authoritative Postgres persistence layer. It implements
// storage.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

const insertEventSQL = `
	INSERT INTO events (
		network, block_number, block_hash, tx_hash, tx_index, log_index,
		address, topics, data, removed, block_time, ingested_at
	) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,FALSE,$10,now())
	ON CONFLICT (network, tx_hash, log_index)
	DO UPDATE SET
		removed = FALSE,
		block_number = EXCLUDED.block_number,
		block_hash = EXCLUDED.block_hash
`

// ApplyBatch commits one block's events, projections, checkpoint advance,
// and snapshot bump inside a single transaction. Replaying a batch after
// a crash hits the conflict targets and converges on the same state.
func (s *Store) ApplyBatch(ctx context.Context, batch storage.Batch) error {
	if batch.Network == "" {
		return fmt.Errorf("batch network is required")
	}
	for _, ev := range batch.Events {
		if err := ev.Validate(); err != nil {
			return fmt.Errorf("invalid event %s: %w", ev.Key(), err)
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch tx: %w", err)
	}
	defer tx.Rollback(ctx)

	b := &pgx.Batch{}
	for _, ev := range batch.Events {
		b.Queue(insertEventSQL,
			ev.Network, int64(ev.BlockNumber), ev.BlockHash, ev.TxHash,
			int64(ev.TxIndex), int64(ev.LogIndex), ev.Address, ev.Topics,
			ev.Data, int64(ev.Timestamp),
		)
	}
	for _, dec := range batch.Decoded {
		queueDecoded(b, dec)
	}

	b.Queue(`
		INSERT INTO checkpoints (network, last_processed_block, last_processed_tx_hash, last_block_hash, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (network) DO UPDATE SET
			last_processed_block = EXCLUDED.last_processed_block,
			last_processed_tx_hash = EXCLUDED.last_processed_tx_hash,
			last_block_hash = EXCLUDED.last_block_hash,
			updated_at = now()
		WHERE checkpoints.last_processed_block <= EXCLUDED.last_processed_block
	`, batch.Network, int64(batch.BlockNumber), batch.LastTxHash, batch.BlockHash)

	queueSnapshotBump(b, batch)

	br := tx.SendBatch(ctx, b)
	for i := 0; i < b.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("apply batch for %s block %d: %w", batch.Network, batch.BlockNumber, err)
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func queueDecoded(b *pgx.Batch, dec model.Decoded) {
	switch dec.Kind {
	case model.KindTransfer:
		if t := dec.Transfer; t != nil {
			b.Queue(`
				INSERT INTO transfers (network, block_number, tx_hash, log_index, block_time, from_address, to_address, amount)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8::numeric)
				ON CONFLICT (network, tx_hash, log_index) DO NOTHING
			`, t.Network, int64(t.BlockNumber), t.TxHash, int64(t.LogIndex), int64(t.Timestamp), t.From, t.To, t.Amount)
		}
	case model.KindCompliance:
		if c := dec.Compliance; c != nil {
			b.Queue(`
				INSERT INTO compliance_events (network, block_number, tx_hash, log_index, block_time, module, action, country_code, details)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
				ON CONFLICT (network, tx_hash, log_index) DO NOTHING
			`, c.Network, int64(c.BlockNumber), c.TxHash, int64(c.LogIndex), int64(c.Timestamp), c.Module, c.Action, int32(c.CountryCode), c.Details)
		}
	case model.KindIdentity:
		if id := dec.Identity; id != nil {
			b.Queue(`
				INSERT INTO identity_events (network, block_number, tx_hash, log_index, block_time, investor, identity, action, country_code)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
				ON CONFLICT (network, tx_hash, log_index) DO NOTHING
			`, id.Network, int64(id.BlockNumber), id.TxHash, int64(id.LogIndex), int64(id.Timestamp), id.Investor, id.Identity, id.Action, int32(id.CountryCode))
		}
	case model.KindClaim:
		if cl := dec.Claim; cl != nil {
			b.Queue(`
				INSERT INTO claim_events (network, block_number, tx_hash, log_index, block_time, identity, topic, issuer, data_hash, removed)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
				ON CONFLICT (network, tx_hash, log_index) DO NOTHING
			`, cl.Network, int64(cl.BlockNumber), cl.TxHash, int64(cl.LogIndex), int64(cl.Timestamp), cl.Identity, cl.Topic, cl.Issuer, cl.DataHash, cl.Removed)
		}
	case model.KindViolation:
		if v := dec.Violation; v != nil {
			b.Queue(`
				INSERT INTO compliance_violations (network, block_number, tx_hash, log_index, block_time, module, investor, country_code, reason)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
				ON CONFLICT (network, tx_hash, log_index) DO NOTHING
			`, v.Network, int64(v.BlockNumber), v.TxHash, int64(v.LogIndex), int64(v.Timestamp), v.Module, v.Investor, int32(v.CountryCode), v.Reason)
		}
	}
}

func queueSnapshotBump(b *pgx.Batch, batch storage.Batch) {
	date := time.Unix(int64(batch.BlockTime), 0).UTC().Format("2006-01-02")
	txSeen := make(map[string]struct{}, len(batch.Events))
	for _, ev := range batch.Events {
		txSeen[ev.TxHash] = struct{}{}
	}
	b.Queue(`
		INSERT INTO metrics_snapshots (
			network, date, blocks_processed, transactions_processed,
			events_indexed, processing_time_ms, avg_block_time, last_block_time
		) VALUES ($1, $2, 1, $3, $4, $5, 0, $6)
		ON CONFLICT (network, date) DO UPDATE SET
			blocks_processed = metrics_snapshots.blocks_processed + 1,
			transactions_processed = metrics_snapshots.transactions_processed + EXCLUDED.transactions_processed,
			events_indexed = metrics_snapshots.events_indexed + EXCLUDED.events_indexed,
			processing_time_ms = metrics_snapshots.processing_time_ms + EXCLUDED.processing_time_ms,
			avg_block_time = CASE
				WHEN metrics_snapshots.last_block_time > 0 AND EXCLUDED.last_block_time > metrics_snapshots.last_block_time
				THEN (metrics_snapshots.avg_block_time * metrics_snapshots.blocks_processed
					+ (EXCLUDED.last_block_time - metrics_snapshots.last_block_time))
					/ (metrics_snapshots.blocks_processed + 1)
				ELSE metrics_snapshots.avg_block_time
			END,
			last_block_time = GREATEST(metrics_snapshots.last_block_time, EXCLUDED.last_block_time)
	`, batch.Network, date, len(txSeen), len(batch.Events),
		batch.Elapsed.Milliseconds(), int64(batch.BlockTime))
}

// InsertEventsBatch writes events row by row so one bad row does not
// abort the rest. Validation failures and key conflicts are counted and
// skipped; connection-level errors abort.
func (s *Store) InsertEventsBatch(ctx context.Context, events []model.LogEvent) (int, int, error) {
	inserted, failed := 0, 0
	for _, ev := range events {
		if err := ev.Validate(); err != nil {
			failed++
			continue
		}
		tag, err := s.pool.Exec(ctx, `
			INSERT INTO events (
				network, block_number, block_hash, tx_hash, tx_index, log_index,
				address, topics, data, removed, block_time, ingested_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,now())
			ON CONFLICT (network, tx_hash, log_index) DO NOTHING
		`, ev.Network, int64(ev.BlockNumber), ev.BlockHash, ev.TxHash,
			int64(ev.TxIndex), int64(ev.LogIndex), ev.Address, ev.Topics,
			ev.Data, ev.Removed, int64(ev.Timestamp))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) {
				failed++
				continue
			}
			return inserted, failed, fmt.Errorf("insert event %s: %w", ev.Key(), err)
		}
		if tag.RowsAffected() == 0 {
			failed++
			continue
		}
		inserted++
	}
	return inserted, failed, nil
}

// QueryEvents returns a filtered, ordered page of events plus the
// unpaged total.
func (s *Store) QueryEvents(ctx context.Context, filter storage.EventFilter) ([]model.LogEvent, int, error) {
	where, args := buildEventWhere(filter)
	limit, offset := clampPage(filter.Limit, filter.Offset)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT network, block_number, block_hash, tx_hash, tx_index, log_index,
		       address, topics, data, removed, block_time,
		       to_char(ingested_at AT TIME ZONE 'UTC', 'YYYY-MM-DD"T"HH24:MI:SS"Z"'),
		       COUNT(*) OVER() AS total
		FROM events %s
		ORDER BY block_number, log_index
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var out []model.LogEvent
	total := 0
	for rows.Next() {
		var ev model.LogEvent
		var blockNumber, txIndex, logIndex, blockTime int64
		if err := rows.Scan(&ev.Network, &blockNumber, &ev.BlockHash, &ev.TxHash,
			&txIndex, &logIndex, &ev.Address, &ev.Topics, &ev.Data, &ev.Removed,
			&blockTime, &ev.IngestedAt, &total); err != nil {
			return nil, 0, err
		}
		ev.BlockNumber = uint64(blockNumber)
		ev.TxIndex = uint64(txIndex)
		ev.LogIndex = uint64(logIndex)
		ev.Timestamp = uint64(blockTime)
		out = append(out, ev)
	}
	return out, total, rows.Err()
}

func buildEventWhere(filter storage.EventFilter) (string, []any) {
	conds := []string{}
	args := []any{}
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if !filter.IncludeRemoved {
		conds = append(conds, "removed = FALSE")
	}
	if filter.Network != "" {
		add("network = $%d", filter.Network)
	}
	if filter.Address != "" {
		add("lower(address) = lower($%d)", filter.Address)
	}
	if filter.TxHash != "" {
		add("lower(tx_hash) = lower($%d)", filter.TxHash)
	}
	if filter.FromBlock != nil {
		add("block_number >= $%d", int64(*filter.FromBlock))
	}
	if filter.ToBlock != nil {
		add("block_number <= $%d", int64(*filter.ToBlock))
	}
	if filter.FromTime != nil {
		add("block_time >= $%d", int64(*filter.FromTime))
	}
	if filter.ToTime != nil {
		add("block_time <= $%d", int64(*filter.ToTime))
	}

	if len(conds) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// MarkRemovedFrom retracts events at or above fromBlock. Rows stay in
// place so the audit trail survives the reorg.
func (s *Store) MarkRemovedFrom(ctx context.Context, network string, fromBlock uint64) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE events SET removed = TRUE
		WHERE network = $1 AND block_number >= $2 AND removed = FALSE
	`, network, int64(fromBlock))
	if err != nil {
		return 0, fmt.Errorf("mark removed from %d on %s: %w", fromBlock, network, err)
	}
	return tag.RowsAffected(), nil
}

// GetCheckpoint returns the network's cursor, creating the initialized
// row on first contact.
func (s *Store) GetCheckpoint(ctx context.Context, network string) (model.Checkpoint, error) {
	if network == "" {
		return model.Checkpoint{}, fmt.Errorf("network is required")
	}
	row := s.pool.QueryRow(ctx, `
		INSERT INTO checkpoints (network) VALUES ($1)
		ON CONFLICT (network) DO UPDATE SET network = EXCLUDED.network
		RETURNING network, last_processed_block, last_processed_tx_hash,
		          last_block_hash, status, error_message, updated_at
	`, network)

	var cp model.Checkpoint
	var block int64
	if err := row.Scan(&cp.Network, &block, &cp.LastProcessedTxHash,
		&cp.LastBlockHash, &cp.Status, &cp.ErrorMessage, &cp.UpdatedAt); err != nil {
		return model.Checkpoint{}, fmt.Errorf("get checkpoint %s: %w", network, err)
	}
	cp.LastProcessedBlock = uint64(block)
	return cp, nil
}

// UpdateCheckpoint applies a partial update inside a transaction so the
// status transition check and the write are atomic.
func (s *Store) UpdateCheckpoint(ctx context.Context, network string, update model.CheckpointUpdate) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current model.CheckpointStatus
	row := tx.QueryRow(ctx, `SELECT status FROM checkpoints WHERE network = $1 FOR UPDATE`, network)
	if err := row.Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			if _, err := tx.Exec(ctx, `INSERT INTO checkpoints (network) VALUES ($1)`, network); err != nil {
				return err
			}
			current = model.StatusInitialized
		} else {
			return err
		}
	}

	sets := []string{"updated_at = now()"}
	args := []any{network}
	set := func(col string, value any) {
		args = append(args, value)
		sets = append(sets, fmt.Sprintf("%s = $%d", col, len(args)))
	}

	if update.Status != nil {
		if err := model.CheckTransition(current, *update.Status); err != nil {
			return err
		}
		set("status", string(*update.Status))
	}
	if update.LastProcessedBlock != nil {
		set("last_processed_block", int64(*update.LastProcessedBlock))
	}
	if update.LastProcessedTxHash != nil {
		set("last_processed_tx_hash", *update.LastProcessedTxHash)
	}
	if update.LastBlockHash != nil {
		set("last_block_hash", *update.LastBlockHash)
	}
	if update.ErrorMessage != nil {
		set("error_message", *update.ErrorMessage)
	}

	query := fmt.Sprintf(`UPDATE checkpoints SET %s WHERE network = $1`, strings.Join(sets, ", "))
	if _, err := tx.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update checkpoint %s: %w", network, err)
	}
	return tx.Commit(ctx)
}

// QueryTransfers returns a page of decoded transfers plus the unpaged
// total. Address matches either side of the transfer.
func (s *Store) QueryTransfers(ctx context.Context, filter storage.TransferFilter) ([]model.TransferEvent, int, error) {
	conds := []string{}
	args := []any{}
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filter.Network != "" {
		add("network = $%d", filter.Network)
	}
	if filter.Address != "" {
		args = append(args, filter.Address)
		n := len(args)
		conds = append(conds, fmt.Sprintf("(lower(from_address) = lower($%d) OR lower(to_address) = lower($%d))", n, n))
	}
	if filter.FromBlock != nil {
		add("block_number >= $%d", int64(*filter.FromBlock))
	}
	if filter.ToBlock != nil {
		add("block_number <= $%d", int64(*filter.ToBlock))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	limit, offset := clampPage(filter.Limit, filter.Offset)
	args = append(args, limit, offset)

	query := fmt.Sprintf(`
		SELECT network, block_number, tx_hash, log_index, block_time,
		       from_address, to_address, amount::text,
		       COUNT(*) OVER() AS total
		FROM transfers %s
		ORDER BY block_number, log_index
		LIMIT $%d OFFSET $%d
	`, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query transfers: %w", err)
	}
	defer rows.Close()

	var out []model.TransferEvent
	total := 0
	for rows.Next() {
		var tr model.TransferEvent
		var blockNumber, logIndex, blockTime int64
		if err := rows.Scan(&tr.Network, &blockNumber, &tr.TxHash, &logIndex,
			&blockTime, &tr.From, &tr.To, &tr.Amount, &total); err != nil {
			return nil, 0, err
		}
		tr.BlockNumber = uint64(blockNumber)
		tr.LogIndex = uint64(logIndex)
		tr.Timestamp = uint64(blockTime)
		out = append(out, tr)
	}
	return out, total, rows.Err()
}

// QueryViolations returns a page of violations, newest first.
func (s *Store) QueryViolations(ctx context.Context, network string, limit, offset int) ([]model.ComplianceViolation, int, error) {
	limit, offset = clampPage(limit, offset)
	rows, err := s.pool.Query(ctx, `
		SELECT network, block_number, tx_hash, log_index, block_time,
		       module, investor, country_code, reason,
		       COUNT(*) OVER() AS total
		FROM compliance_violations
		WHERE ($1 = '' OR network = $1)
		ORDER BY block_number DESC, log_index DESC
		LIMIT $2 OFFSET $3
	`, network, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query violations: %w", err)
	}
	defer rows.Close()

	var out []model.ComplianceViolation
	total := 0
	for rows.Next() {
		v, n, err := scanViolation(rows)
		if err != nil {
			return nil, 0, err
		}
		total = n
		out = append(out, v)
	}
	return out, total, rows.Err()
}

func scanViolation(rows pgx.Rows) (model.ComplianceViolation, int, error) {
	var v model.ComplianceViolation
	var blockNumber, logIndex, blockTime int64
	var country int32
	total := 0
	if err := rows.Scan(&v.Network, &blockNumber, &v.TxHash, &logIndex, &blockTime,
		&v.Module, &v.Investor, &country, &v.Reason, &total); err != nil {
		return model.ComplianceViolation{}, 0, err
	}
	v.BlockNumber = uint64(blockNumber)
	v.LogIndex = uint64(logIndex)
	v.Timestamp = uint64(blockTime)
	v.CountryCode = uint16(country)
	return v, total, nil
}

// CountViolations returns the violation total for a network.
func (s *Store) CountViolations(ctx context.Context, network string) (int, error) {
	var count int
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM compliance_violations WHERE ($1 = '' OR network = $1)
	`, network)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count violations: %w", err)
	}
	return count, nil
}

// RecentViolations returns the newest limit violations for a network.
func (s *Store) RecentViolations(ctx context.Context, network string, limit int) ([]model.ComplianceViolation, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := s.pool.Query(ctx, `
		SELECT network, block_number, tx_hash, log_index, block_time,
		       module, investor, country_code, reason,
		       0 AS total
		FROM compliance_violations
		WHERE ($1 = '' OR network = $1)
		ORDER BY block_number DESC, log_index DESC
		LIMIT $2
	`, network, limit)
	if err != nil {
		return nil, fmt.Errorf("recent violations: %w", err)
	}
	defer rows.Close()

	var out []model.ComplianceViolation
	for rows.Next() {
		v, _, err := scanViolation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// RecordReorg appends the audit record for a rewind.
func (s *Store) RecordReorg(ctx context.Context, reorg model.ReorgEvent) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO reorg_events (network, height, depth, old_hash, new_hash, detected_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, reorg.Network, int64(reorg.Height), int64(reorg.Depth),
		reorg.OldHash, reorg.NewHash, reorg.DetectedAt)
	if err != nil {
		return fmt.Errorf("record reorg at %d on %s: %w", reorg.Height, reorg.Network, err)
	}
	return nil
}

// CountReorgs returns the number of recorded reorgs for a network.
func (s *Store) CountReorgs(ctx context.Context, network string) (int, error) {
	var count int
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM reorg_events WHERE ($1 = '' OR network = $1)
	`, network)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count reorgs: %w", err)
	}
	return count, nil
}

// ActiveInvestors counts distinct addresses across transfers and
// identity events.
func (s *Store) ActiveInvestors(ctx context.Context, network string) (int, error) {
	var count int
	row := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM (
			SELECT lower(from_address) AS addr FROM transfers WHERE ($1 = '' OR network = $1)
			UNION
			SELECT lower(to_address) FROM transfers WHERE ($1 = '' OR network = $1)
			UNION
			SELECT lower(investor) FROM identity_events WHERE ($1 = '' OR network = $1)
		) addrs
	`, network)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count active investors: %w", err)
	}
	return count, nil
}

// RecordOperation upserts a tracked operation keyed by its platform ID.
func (s *Store) RecordOperation(ctx context.Context, op model.TrackedOperation) error {
	if op.ID == "" {
		return fmt.Errorf("operation id is required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO operations (id, network, op_type, status, tx_hash, from_address, to_address, user_address, gas_used, recorded_at, confirmed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status,
			tx_hash = EXCLUDED.tx_hash,
			gas_used = EXCLUDED.gas_used,
			confirmed_at = EXCLUDED.confirmed_at
	`, op.ID, op.Network, string(op.Type), string(op.Status), op.TxHash,
		op.From, op.To, op.UserAddress, int64(op.GasUsed), op.RecordedAt, op.ConfirmedAt)
	if err != nil {
		return fmt.Errorf("record operation %s: %w", op.ID, err)
	}
	return nil
}

// UpdateOperationStatus moves an operation to its terminal status.
func (s *Store) UpdateOperationStatus(ctx context.Context, id string, status model.OperationStatus, gasUsed uint64, confirmedAt time.Time) error {
	var confirmed *time.Time
	if !confirmedAt.IsZero() {
		t := confirmedAt.UTC()
		confirmed = &t
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE operations SET status = $2, gas_used = $3, confirmed_at = $4 WHERE id = $1
	`, id, string(status), int64(gasUsed), confirmed)
	if err != nil {
		return fmt.Errorf("update operation %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("operation %s not found", id)
	}
	return nil
}

// ListOperations returns all operations for a network.
func (s *Store) ListOperations(ctx context.Context, network string) ([]model.TrackedOperation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, network, op_type, status, tx_hash, from_address, to_address,
		       user_address, gas_used, recorded_at, confirmed_at
		FROM operations
		WHERE ($1 = '' OR network = $1)
		ORDER BY recorded_at
	`, network)
	if err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	defer rows.Close()

	var out []model.TrackedOperation
	for rows.Next() {
		var op model.TrackedOperation
		var gas int64
		if err := rows.Scan(&op.ID, &op.Network, &op.Type, &op.Status, &op.TxHash,
			&op.From, &op.To, &op.UserAddress, &gas, &op.RecordedAt, &op.ConfirmedAt); err != nil {
			return nil, err
		}
		op.GasUsed = uint64(gas)
		out = append(out, op)
	}
	return out, rows.Err()
}

// GetSnapshot returns the rollup for (network, date) when present.
func (s *Store) GetSnapshot(ctx context.Context, network, date string) (model.MetricsSnapshot, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT network, date, blocks_processed, transactions_processed,
		       events_indexed, processing_time_ms, avg_block_time
		FROM metrics_snapshots WHERE network = $1 AND date = $2
	`, network, date)

	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MetricsSnapshot{}, false, nil
		}
		return model.MetricsSnapshot{}, false, fmt.Errorf("get snapshot %s/%s: %w", network, date, err)
	}
	return snap, true, nil
}

// ListSnapshots returns up to limit rollups for a network, newest first.
func (s *Store) ListSnapshots(ctx context.Context, network string, limit int) ([]model.MetricsSnapshot, error) {
	if limit <= 0 {
		limit = 30
	}
	rows, err := s.pool.Query(ctx, `
		SELECT network, date, blocks_processed, transactions_processed,
		       events_indexed, processing_time_ms, avg_block_time
		FROM metrics_snapshots
		WHERE ($1 = '' OR network = $1)
		ORDER BY date DESC
		LIMIT $2
	`, network, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []model.MetricsSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, rows.Err()
}

func scanSnapshot(row pgx.Row) (model.MetricsSnapshot, error) {
	var snap model.MetricsSnapshot
	var blocks, txs, events, elapsedMS int64
	if err := row.Scan(&snap.Network, &snap.Date, &blocks, &txs, &events,
		&elapsedMS, &snap.AvgBlockTime); err != nil {
		return model.MetricsSnapshot{}, err
	}
	snap.BlocksProcessed = uint64(blocks)
	snap.TransactionsProcessed = uint64(txs)
	snap.EventsIndexed = uint64(events)
	snap.ProcessingTime = time.Duration(elapsedMS) * time.Millisecond
	return snap, nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
