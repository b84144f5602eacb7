package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"rwaScope/internal/model"
	"rwaScope/internal/storage"
)

// Thresholds configures when the evaluator considers a network unhealthy.
// Zero values disable the corresponding rule.
type Thresholds struct {
	MaxComplianceViolations int
	MinSuccessRate          float64
	MaxConfirmationTime     time.Duration
	MaxReorgCount           int
	MinGasEfficiency        float64
}

// rule names double as the edge-trigger state keys
const (
	ruleViolations       = "compliance_violations"
	ruleSuccessRate      = "success_rate"
	ruleConfirmationTime = "confirmation_time"
	ruleReorgs           = "reorg_count"
	ruleGasEfficiency    = "gas_efficiency"
)

// Evaluator checks network metrics against thresholds. Alerts are edge
// triggered: a rule fires when it crosses from healthy to breached and
// stays silent until it clears and breaches again, so a stuck metric
// does not flood the sinks.
type Evaluator struct {
	thresholds Thresholds
	store      storage.DomainStore

	mu      sync.Mutex
	breached map[string]bool
}

func NewEvaluator(thresholds Thresholds, store storage.DomainStore) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
		store:      store,
		breached:   make(map[string]bool),
	}
}

// Evaluate returns the alerts newly raised by this metrics view.
func (e *Evaluator) Evaluate(ctx context.Context, m model.NetworkMetrics) []model.Alert {
	now := time.Now().UTC()
	var alerts []model.Alert

	if e.thresholds.MaxComplianceViolations > 0 {
		breached := m.ComplianceViolations >= e.thresholds.MaxComplianceViolations
		if e.transition(m.Network, ruleViolations, breached) {
			alerts = append(alerts, e.violationAlert(ctx, m, now))
		}
	}

	if e.thresholds.MinSuccessRate > 0 {
		breached := m.SuccessRate < e.thresholds.MinSuccessRate
		if e.transition(m.Network, ruleSuccessRate, breached) {
			alerts = append(alerts, model.Alert{
				Severity: model.SeverityWarning,
				Network:  m.Network,
				Message: fmt.Sprintf("success rate %.1f%% below minimum %.1f%%",
					m.SuccessRate, e.thresholds.MinSuccessRate),
				Details:   map[string]any{"success_rate": m.SuccessRate},
				Timestamp: now,
			})
		}
	}

	if e.thresholds.MaxConfirmationTime > 0 {
		breached := m.AvgConfirmationTime > e.thresholds.MaxConfirmationTime
		if e.transition(m.Network, ruleConfirmationTime, breached) {
			alerts = append(alerts, model.Alert{
				Severity: model.SeverityWarning,
				Network:  m.Network,
				Message: fmt.Sprintf("average confirmation time %s above maximum %s",
					m.AvgConfirmationTime, e.thresholds.MaxConfirmationTime),
				Details:   map[string]any{"avg_confirmation_ms": m.AvgConfirmationTime.Milliseconds()},
				Timestamp: now,
			})
		}
	}

	if e.thresholds.MaxReorgCount > 0 {
		breached := m.ReorgCount >= e.thresholds.MaxReorgCount
		if e.transition(m.Network, ruleReorgs, breached) {
			alerts = append(alerts, model.Alert{
				Severity:  model.SeverityWarning,
				Network:   m.Network,
				Message:   fmt.Sprintf("%d chain reorganizations observed, maximum is %d", m.ReorgCount, e.thresholds.MaxReorgCount),
				Details:   map[string]any{"reorg_count": m.ReorgCount},
				Timestamp: now,
			})
		}
	}

	if e.thresholds.MinGasEfficiency > 0 {
		breached := m.GasEfficiency < e.thresholds.MinGasEfficiency
		if e.transition(m.Network, ruleGasEfficiency, breached) {
			alerts = append(alerts, model.Alert{
				Severity: model.SeverityInfo,
				Network:  m.Network,
				Message: fmt.Sprintf("gas efficiency %.1f%% below floor %.1f%%",
					m.GasEfficiency, e.thresholds.MinGasEfficiency),
				Details:   map[string]any{"gas_efficiency": m.GasEfficiency},
				Timestamp: now,
			})
		}
	}

	return alerts
}

// violationAlert is critical and carries the most recent violations up
// to the configured maximum, so the receiver sees what tripped it.
func (e *Evaluator) violationAlert(ctx context.Context, m model.NetworkMetrics, now time.Time) model.Alert {
	details := map[string]any{"violation_count": m.ComplianceViolations}
	if e.store != nil {
		recent, err := e.store.RecentViolations(ctx, m.Network, e.thresholds.MaxComplianceViolations)
		if err == nil {
			details["recent_violations"] = recent
		}
	}
	return model.Alert{
		Severity: model.SeverityCritical,
		Network:  m.Network,
		Message: fmt.Sprintf("%d compliance violations reached threshold %d",
			m.ComplianceViolations, e.thresholds.MaxComplianceViolations),
		Details:   details,
		Timestamp: now,
	}
}

// transition reports whether a rule just crossed into breach and
// records the new state.
func (e *Evaluator) transition(network, rule string, breached bool) bool {
	key := network + ":" + rule
	e.mu.Lock()
	defer e.mu.Unlock()
	was := e.breached[key]
	e.breached[key] = breached
	return breached && !was
}
