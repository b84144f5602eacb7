package model

import "time"

// MetricsSnapshot is the per-network, per-day ingestion rollup. A new row
// starts each day; the current day's row is updated in place.
type MetricsSnapshot struct {
	Network               string        `json:"network"`
	Date                  string        `json:"date"`
	BlocksProcessed       uint64        `json:"blocks_processed"`
	TransactionsProcessed uint64        `json:"transactions_processed"`
	EventsIndexed         uint64        `json:"events_indexed"`
	ProcessingTime        time.Duration `json:"processing_time"`
	AvgBlockTime          float64       `json:"avg_block_time"`
}

// NetworkMetrics is the aggregator output for one network, recomputed on
// demand from the authoritative store.
type NetworkMetrics struct {
	Network               string        `json:"network"`
	SuccessRate           float64       `json:"success_rate"`
	AvgConfirmationTime   time.Duration `json:"avg_confirmation_time"`
	TotalGasUsed          uint64        `json:"total_gas_used"`
	GasEfficiency         float64       `json:"gas_efficiency"`
	ActiveInvestors       int           `json:"active_investors"`
	TotalDeployments      int           `json:"total_deployments"`
	TotalTransfers        int           `json:"total_transfers"`
	TotalBridgeTransfers  int           `json:"total_bridge_transfers"`
	IdentityVerifications int           `json:"identity_verifications"`
	AgentOperations       int           `json:"agent_operations"`
	ComplianceViolations  int           `json:"compliance_violations"`
	ReorgCount            int           `json:"reorg_count"`
	ComputedAt            time.Time     `json:"computed_at"`
}

// GlobalMetrics aggregates per-network metrics without double counting a
// network reported by more than one source.
type GlobalMetrics struct {
	TotalDeployments     int      `json:"total_deployments"`
	TotalTransfers       int      `json:"total_transfers"`
	TotalGasUsed         uint64   `json:"total_gas_used"`
	ActiveNetworks       []string `json:"active_networks"`
	ComplianceViolations int      `json:"compliance_violations"`
}
