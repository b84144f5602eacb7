package model

import "time"

// AlertSeverity orders alerts by urgency.
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert is an evaluated anomaly delivered to notification sinks. It is
// ephemeral: sinks may log it for audit but it is not queryable state.
type Alert struct {
	Severity  AlertSeverity  `json:"severity"`
	Message   string         `json:"message"`
	Network   string         `json:"network"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}
