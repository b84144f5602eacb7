package alert

import (
	"context"
	"fmt"
	"testing"
	"time"

	"rwaScope/internal/model"
	"rwaScope/internal/storage"
	"rwaScope/internal/storage/memory"
)

func addViolation(t *testing.T, store *memory.Store, block uint64) {
	t.Helper()
	prov := model.Provenance{
		Network:     "polygon",
		BlockNumber: block,
		TxHash:      fmt.Sprintf("0xv%d", block),
		LogIndex:    0,
	}
	batch := storage.Batch{
		Network:     "polygon",
		BlockNumber: block,
		BlockHash:   fmt.Sprintf("0xb%d", block),
		BlockTime:   1700000000 + block,
		Decoded: []model.Decoded{{
			Kind:       model.KindViolation,
			Provenance: prov,
			Violation: &model.ComplianceViolation{
				Provenance: prov,
				Module:     "0xmodule",
				Investor:   "0xinvestor",
				Reason:     fmt.Sprintf("violation %d", block),
			},
		}},
	}
	if err := store.ApplyBatch(context.Background(), batch); err != nil {
		t.Fatalf("apply violation %d: %v", block, err)
	}
}

func TestViolationThresholdFiresAtExactCount(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	evaluator := NewEvaluator(Thresholds{MaxComplianceViolations: 5}, store)

	for block := uint64(1); block <= 6; block++ {
		addViolation(t, store, block)
	}

	below := model.NetworkMetrics{Network: "polygon", ComplianceViolations: 4}
	if alerts := evaluator.Evaluate(ctx, below); len(alerts) != 0 {
		t.Fatalf("below threshold must not fire: %+v", alerts)
	}

	at := model.NetworkMetrics{Network: "polygon", ComplianceViolations: 5}
	alerts := evaluator.Evaluate(ctx, at)
	if len(alerts) != 1 {
		t.Fatalf("expected one alert at threshold, got %d", len(alerts))
	}
	if alerts[0].Severity != model.SeverityCritical {
		t.Fatalf("severity mismatch: %s", alerts[0].Severity)
	}

	recent, ok := alerts[0].Details["recent_violations"].([]model.ComplianceViolation)
	if !ok {
		t.Fatalf("alert missing recent violations: %+v", alerts[0].Details)
	}
	if len(recent) != 5 {
		t.Fatalf("alert must reference exactly the last 5 violations, got %d", len(recent))
	}
	// newest first: blocks 6 down to 2
	if recent[0].BlockNumber != 6 || recent[4].BlockNumber != 2 {
		t.Fatalf("recent violations are not the newest five: first=%d last=%d",
			recent[0].BlockNumber, recent[4].BlockNumber)
	}
}

func TestAlertsAreEdgeTriggered(t *testing.T) {
	ctx := context.Background()
	evaluator := NewEvaluator(Thresholds{MinSuccessRate: 95}, nil)

	breached := model.NetworkMetrics{Network: "polygon", SuccessRate: 80}
	healthy := model.NetworkMetrics{Network: "polygon", SuccessRate: 99}

	if alerts := evaluator.Evaluate(ctx, breached); len(alerts) != 1 {
		t.Fatalf("first breach must fire, got %d alerts", len(alerts))
	}
	if alerts := evaluator.Evaluate(ctx, breached); len(alerts) != 0 {
		t.Fatalf("sustained breach must stay silent, got %d alerts", len(alerts))
	}
	if alerts := evaluator.Evaluate(ctx, healthy); len(alerts) != 0 {
		t.Fatalf("recovery must not fire, got %d alerts", len(alerts))
	}
	if alerts := evaluator.Evaluate(ctx, breached); len(alerts) != 1 {
		t.Fatalf("breach after recovery must fire again, got %d alerts", len(alerts))
	}
}

func TestRulesEvaluateIndependently(t *testing.T) {
	ctx := context.Background()
	evaluator := NewEvaluator(Thresholds{
		MinSuccessRate:      95,
		MaxConfirmationTime: time.Minute,
		MaxReorgCount:       3,
		MinGasEfficiency:    50,
	}, nil)

	m := model.NetworkMetrics{
		Network:             "polygon",
		SuccessRate:         80,
		AvgConfirmationTime: 2 * time.Minute,
		ReorgCount:          4,
		GasEfficiency:       30,
	}
	alerts := evaluator.Evaluate(ctx, m)
	if len(alerts) != 4 {
		t.Fatalf("expected one alert per breached rule, got %d", len(alerts))
	}

	// networks keep separate trigger state
	other := m
	other.Network = "base"
	if alerts := evaluator.Evaluate(ctx, other); len(alerts) != 4 {
		t.Fatalf("a different network must fire independently, got %d", len(alerts))
	}
}

func TestZeroThresholdsDisableRules(t *testing.T) {
	ctx := context.Background()
	evaluator := NewEvaluator(Thresholds{}, nil)

	m := model.NetworkMetrics{
		Network:              "polygon",
		SuccessRate:          0,
		ReorgCount:           100,
		ComplianceViolations: 100,
		GasEfficiency:        0,
	}
	if alerts := evaluator.Evaluate(ctx, m); len(alerts) != 0 {
		t.Fatalf("disabled rules must not fire: %+v", alerts)
	}
}
