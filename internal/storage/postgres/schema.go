package postgres

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS events (
		id BIGSERIAL PRIMARY KEY,
		network TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		block_hash TEXT NOT NULL DEFAULT '',
		tx_hash TEXT NOT NULL,
		tx_index BIGINT NOT NULL DEFAULT 0,
		log_index BIGINT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		topics TEXT[] NOT NULL,
		data TEXT NOT NULL DEFAULT '',
		removed BOOLEAN NOT NULL DEFAULT FALSE,
		block_time BIGINT NOT NULL DEFAULT 0,
		ingested_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (network, tx_hash, log_index)
	)`,
	`CREATE INDEX IF NOT EXISTS events_network_block_idx ON events (network, block_number)`,
	`CREATE INDEX IF NOT EXISTS events_address_idx ON events (address)`,

	`CREATE TABLE IF NOT EXISTS checkpoints (
		network TEXT PRIMARY KEY,
		last_processed_block BIGINT NOT NULL DEFAULT 0,
		last_processed_tx_hash TEXT NOT NULL DEFAULT '',
		last_block_hash TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'initialized',
		error_message TEXT NOT NULL DEFAULT '',
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,

	`CREATE TABLE IF NOT EXISTS transfers (
		id BIGSERIAL PRIMARY KEY,
		network TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		tx_hash TEXT NOT NULL,
		log_index BIGINT NOT NULL,
		block_time BIGINT NOT NULL DEFAULT 0,
		from_address TEXT NOT NULL,
		to_address TEXT NOT NULL,
		amount NUMERIC(78, 0) NOT NULL,
		UNIQUE (network, tx_hash, log_index)
	)`,
	`CREATE INDEX IF NOT EXISTS transfers_network_block_idx ON transfers (network, block_number)`,

	`CREATE TABLE IF NOT EXISTS compliance_events (
		id BIGSERIAL PRIMARY KEY,
		network TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		tx_hash TEXT NOT NULL,
		log_index BIGINT NOT NULL,
		block_time BIGINT NOT NULL DEFAULT 0,
		module TEXT NOT NULL,
		action TEXT NOT NULL,
		country_code INT NOT NULL DEFAULT 0,
		details TEXT NOT NULL DEFAULT '',
		UNIQUE (network, tx_hash, log_index)
	)`,

	`CREATE TABLE IF NOT EXISTS identity_events (
		id BIGSERIAL PRIMARY KEY,
		network TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		tx_hash TEXT NOT NULL,
		log_index BIGINT NOT NULL,
		block_time BIGINT NOT NULL DEFAULT 0,
		investor TEXT NOT NULL,
		identity TEXT NOT NULL DEFAULT '',
		action TEXT NOT NULL,
		country_code INT NOT NULL DEFAULT 0,
		UNIQUE (network, tx_hash, log_index)
	)`,

	`CREATE TABLE IF NOT EXISTS claim_events (
		id BIGSERIAL PRIMARY KEY,
		network TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		tx_hash TEXT NOT NULL,
		log_index BIGINT NOT NULL,
		block_time BIGINT NOT NULL DEFAULT 0,
		identity TEXT NOT NULL,
		topic TEXT NOT NULL,
		issuer TEXT NOT NULL DEFAULT '',
		data_hash TEXT NOT NULL DEFAULT '',
		removed BOOLEAN NOT NULL DEFAULT FALSE,
		UNIQUE (network, tx_hash, log_index)
	)`,

	`CREATE TABLE IF NOT EXISTS compliance_violations (
		id BIGSERIAL PRIMARY KEY,
		network TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		tx_hash TEXT NOT NULL,
		log_index BIGINT NOT NULL,
		block_time BIGINT NOT NULL DEFAULT 0,
		module TEXT NOT NULL,
		investor TEXT NOT NULL,
		country_code INT NOT NULL DEFAULT 0,
		reason TEXT NOT NULL DEFAULT '',
		UNIQUE (network, tx_hash, log_index)
	)`,
	`CREATE INDEX IF NOT EXISTS violations_network_idx ON compliance_violations (network, block_number DESC)`,

	`CREATE TABLE IF NOT EXISTS reorg_events (
		id BIGSERIAL PRIMARY KEY,
		network TEXT NOT NULL,
		height BIGINT NOT NULL,
		depth BIGINT NOT NULL,
		old_hash TEXT NOT NULL,
		new_hash TEXT NOT NULL,
		detected_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS operations (
		id TEXT PRIMARY KEY,
		network TEXT NOT NULL,
		op_type TEXT NOT NULL,
		status TEXT NOT NULL,
		tx_hash TEXT NOT NULL DEFAULT '',
		from_address TEXT NOT NULL DEFAULT '',
		to_address TEXT NOT NULL DEFAULT '',
		user_address TEXT NOT NULL DEFAULT '',
		gas_used BIGINT NOT NULL DEFAULT 0,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		confirmed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS operations_network_idx ON operations (network)`,

	`CREATE TABLE IF NOT EXISTS metrics_snapshots (
		network TEXT NOT NULL,
		date TEXT NOT NULL,
		blocks_processed BIGINT NOT NULL DEFAULT 0,
		transactions_processed BIGINT NOT NULL DEFAULT 0,
		events_indexed BIGINT NOT NULL DEFAULT 0,
		processing_time_ms BIGINT NOT NULL DEFAULT 0,
		avg_block_time DOUBLE PRECISION NOT NULL DEFAULT 0,
		last_block_time BIGINT NOT NULL DEFAULT 0,
		PRIMARY KEY (network, date)
	)`,
}

// EnsureSchema creates the tables and indexes when they do not exist.
// Statements are idempotent so startup can always run it.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
