package model

import "time"

// OperationType classifies a tracked on-chain operation.
type OperationType string

const (
	OpDeployment           OperationType = "deployment"
	OpTransfer             OperationType = "transfer"
	OpBridgeTransfer       OperationType = "bridge_transfer"
	OpIdentityVerification OperationType = "identity_verification"
	OpAgentOperation       OperationType = "agent_operation"
)

// OperationStatus is the confirmation state of a tracked operation.
type OperationStatus string

const (
	OpPending   OperationStatus = "pending"
	OpConfirmed OperationStatus = "confirmed"
	OpFailed    OperationStatus = "failed"
)

// TrackedOperation is a write operation submitted through the platform
// whose confirmation the metrics aggregator reasons about. It is recorded
// when submitted and updated once when its receipt lands.
type TrackedOperation struct {
	ID          string          `json:"id"`
	Network     string          `json:"network"`
	Type        OperationType   `json:"type"`
	Status      OperationStatus `json:"status"`
	TxHash      string          `json:"tx_hash"`
	From        string          `json:"from,omitempty"`
	To          string          `json:"to,omitempty"`
	UserAddress string          `json:"user_address,omitempty"`
	GasUsed     uint64          `json:"gas_used"`
	RecordedAt  time.Time       `json:"recorded_at"`
	ConfirmedAt *time.Time      `json:"confirmed_at,omitempty"`
}
