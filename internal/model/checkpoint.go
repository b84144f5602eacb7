package model

import (
	"fmt"
	"time"
)

// CheckpointStatus is the lifecycle state of a network's pipeline.
type CheckpointStatus string

const (
	StatusInitialized CheckpointStatus = "initialized"
	StatusRunning     CheckpointStatus = "running"
	StatusPaused      CheckpointStatus = "paused"
	StatusStopped     CheckpointStatus = "stopped"
	StatusError       CheckpointStatus = "error"
)

// Checkpoint is the durable cursor marking the last block a network's
// pipeline has fully processed. Exactly one row exists per network.
type Checkpoint struct {
	Network             string           `json:"network"`
	LastProcessedBlock  uint64           `json:"last_processed_block"`
	LastProcessedTxHash string           `json:"last_processed_tx_hash"`
	LastBlockHash       string           `json:"last_block_hash"`
	Status              CheckpointStatus `json:"status"`
	ErrorMessage        string           `json:"error_message,omitempty"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

// CheckpointUpdate is a partial update: only non-nil fields change.
type CheckpointUpdate struct {
	LastProcessedBlock  *uint64
	LastProcessedTxHash *string
	LastBlockHash       *string
	Status              *CheckpointStatus
	ErrorMessage        *string
}

// ValidTransition reports whether moving from one status to another is
// allowed. A restart must set running explicitly; it never reinitializes.
func ValidTransition(from, to CheckpointStatus) bool {
	if from == to {
		return true
	}
	switch from {
	case StatusInitialized:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusPaused || to == StatusStopped || to == StatusError
	case StatusPaused, StatusStopped, StatusError:
		return to == StatusRunning
	default:
		return false
	}
}

// CheckTransition returns an error describing a rejected status change.
func CheckTransition(from, to CheckpointStatus) error {
	if !ValidTransition(from, to) {
		return fmt.Errorf("invalid checkpoint status transition %s -> %s", from, to)
	}
	return nil
}
