package model

import "fmt"

// Provenance identifies the raw log a domain event was derived from.
// Every decoded projection carries it so consumers can trace a row back
// to its transaction.
type Provenance struct {
	Network     string `json:"network"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Timestamp   uint64 `json:"timestamp"`
}

// Key returns the natural identity of the source log, matching
// LogEvent.Key for the same log.
func (p Provenance) Key() string {
	return fmt.Sprintf("%s:%s:%d", p.Network, p.TxHash, p.LogIndex)
}

// EventKind tags the closed set of decoded event variants.
type EventKind string

const (
	KindTransfer     EventKind = "transfer"
	KindCompliance   EventKind = "compliance"
	KindIdentity     EventKind = "identity"
	KindClaim        EventKind = "claim"
	KindViolation    EventKind = "violation"
	KindUnrecognized EventKind = "unrecognized"
)

// Compliance action names recorded on ComplianceEvent rows.
const (
	ComplianceModuleAdded        = "module_added"
	ComplianceModuleRemoved      = "module_removed"
	ComplianceCountryBlacklisted = "country_blacklisted"
	ComplianceCountryWhitelisted = "country_whitelisted"
	ComplianceLockupSet          = "lockup_set"
	ComplianceHolderLimitSet     = "holder_limit_set"
)

// Identity action names recorded on IdentityEvent rows.
const (
	IdentityRegistered = "registered"
	IdentityRemoved    = "removed"
)

// TransferEvent is a decoded security-token transfer.
type TransferEvent struct {
	Provenance
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// ComplianceEvent is a decoded compliance-module state change.
type ComplianceEvent struct {
	Provenance
	Module      string `json:"module"`
	Action      string `json:"action"`
	CountryCode uint16 `json:"country_code,omitempty"`
	Details     string `json:"details,omitempty"`
}

// IdentityEvent is a decoded identity-registry change for an investor.
type IdentityEvent struct {
	Provenance
	Investor    string `json:"investor"`
	Identity    string `json:"identity"`
	Action      string `json:"action"`
	CountryCode uint16 `json:"country_code,omitempty"`
}

// ClaimEvent is a decoded claim added to or removed from an identity.
type ClaimEvent struct {
	Provenance
	Identity string `json:"identity"`
	Topic    string `json:"topic"`
	Issuer   string `json:"issuer"`
	DataHash string `json:"data_hash,omitempty"`
	Removed  bool   `json:"removed"`
}

// ComplianceViolation records a rejected operation emitted on chain.
type ComplianceViolation struct {
	Provenance
	Module      string `json:"module"`
	Investor    string `json:"investor"`
	CountryCode uint16 `json:"country_code,omitempty"`
	Reason      string `json:"reason"`
}

// Decoded is the outcome of classifying one raw log: exactly one typed
// field is set according to Kind. Unrecognized logs keep only the
// provenance so callers can count and log them, never drop them silently.
type Decoded struct {
	Kind       EventKind            `json:"kind"`
	Provenance Provenance           `json:"provenance"`
	Transfer   *TransferEvent       `json:"transfer,omitempty"`
	Compliance *ComplianceEvent     `json:"compliance,omitempty"`
	Identity   *IdentityEvent       `json:"identity,omitempty"`
	Claim      *ClaimEvent          `json:"claim,omitempty"`
	Violation  *ComplianceViolation `json:"violation,omitempty"`
}

// ReorgEvent is the audit record written when a chain reorganization is
// detected and the checkpoint rewound.
type ReorgEvent struct {
	Network    string `json:"network"`
	Height     uint64 `json:"height"`
	Depth      uint64 `json:"depth"`
	OldHash    string `json:"old_hash"`
	NewHash    string `json:"new_hash"`
	DetectedAt string `json:"detected_at"`
}
