package model

import (
	"fmt"
)

// LogEvent is the normalized representation of a chain log for storage.
// A row is immutable once written except for Removed, which flips when a
// reorg retracts the block that carried it.
type LogEvent struct {
	Network     string   `json:"network"`
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHash      string   `json:"tx_hash"`
	TxIndex     uint64   `json:"tx_index"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed"`
	Timestamp   uint64   `json:"timestamp"`
	IngestedAt  string   `json:"ingested_at"`
}

// Key returns the natural identity of the event: unique per network,
// transaction hash, and log index.
func (e LogEvent) Key() string {
	return fmt.Sprintf("%s:%s:%d", e.Network, e.TxHash, e.LogIndex)
}

// Validate checks the fields the store requires before persisting.
func (e LogEvent) Validate() error {
	if e.Network == "" {
		return fmt.Errorf("network is required")
	}
	if e.TxHash == "" {
		return fmt.Errorf("tx hash is required")
	}
	if len(e.Topics) == 0 {
		return fmt.Errorf("at least one topic is required")
	}
	return nil
}
