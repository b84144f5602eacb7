package metrics

import (
	"context"
	"reflect"
	"testing"
	"time"

	"rwaScope/internal/model"
	"rwaScope/internal/storage/memory"
)

func recordOp(t *testing.T, store *memory.Store, id string, opType model.OperationType, status model.OperationStatus, gas uint64, user string) {
	t.Helper()
	op := model.TrackedOperation{
		ID:          id,
		Network:     "polygon",
		Type:        opType,
		Status:      status,
		GasUsed:     gas,
		UserAddress: user,
		RecordedAt:  time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC),
	}
	if status == model.OpConfirmed {
		confirmed := op.RecordedAt.Add(20 * time.Second)
		op.ConfirmedAt = &confirmed
	}
	if err := store.RecordOperation(context.Background(), op); err != nil {
		t.Fatalf("record op %s: %v", id, err)
	}
}

func TestSuccessRateBoundaryIsExactlyHundred(t *testing.T) {
	store := memory.New(0)
	agg := NewAggregator(store, 0)

	m, err := agg.ComputeNetwork(context.Background(), "polygon")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if m.SuccessRate != 100 {
		t.Fatalf("empty network success rate must be exactly 100, got %v", m.SuccessRate)
	}
	if m.AvgConfirmationTime != 30*time.Second {
		t.Fatalf("placeholder confirmation time mismatch: %s", m.AvgConfirmationTime)
	}
}

func TestSuccessRateCountsResolvedOperations(t *testing.T) {
	store := memory.New(0)
	agg := NewAggregator(store, 0)

	recordOp(t, store, "op1", model.OpTransfer, model.OpConfirmed, 100_000, "0xu1")
	recordOp(t, store, "op2", model.OpTransfer, model.OpConfirmed, 100_000, "0xu2")
	recordOp(t, store, "op3", model.OpTransfer, model.OpFailed, 0, "0xu1")
	recordOp(t, store, "op4", model.OpTransfer, model.OpPending, 0, "0xu3")

	m, err := agg.ComputeNetwork(context.Background(), "polygon")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	// 2 confirmed out of 3 resolved; the pending one does not count
	want := float64(2) / 3 * 100
	if m.SuccessRate != want {
		t.Fatalf("success rate mismatch: got %v want %v", m.SuccessRate, want)
	}
	if m.AvgConfirmationTime != 20*time.Second {
		t.Fatalf("confirmation time mismatch: %s", m.AvgConfirmationTime)
	}
	if m.ActiveInvestors != 3 {
		t.Fatalf("active investors mismatch: %d", m.ActiveInvestors)
	}
}

func TestGasEfficiency(t *testing.T) {
	store := memory.New(0)
	agg := NewAggregator(store, 200_000)

	recordOp(t, store, "op1", model.OpDeployment, model.OpConfirmed, 150_000, "0xu1")
	recordOp(t, store, "op2", model.OpDeployment, model.OpConfirmed, 250_000, "0xu1")
	recordOp(t, store, "op3", model.OpTransfer, model.OpConfirmed, 100_000, "0xu1")
	recordOp(t, store, "op4", model.OpTransfer, model.OpConfirmed, 300_000, "0xu1")

	m, err := agg.ComputeNetwork(context.Background(), "polygon")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if m.GasEfficiency != 50 {
		t.Fatalf("gas efficiency mismatch: %v", m.GasEfficiency)
	}
	if m.TotalGasUsed != 800_000 {
		t.Fatalf("total gas mismatch: %d", m.TotalGasUsed)
	}
	if m.TotalDeployments != 2 {
		t.Fatalf("deployment count mismatch: %d", m.TotalDeployments)
	}
}

func TestTypeCountsOnlyIncludeConfirmedOperations(t *testing.T) {
	store := memory.New(0)
	agg := NewAggregator(store, 0)

	recordOp(t, store, "op1", model.OpDeployment, model.OpPending, 0, "0xu1")
	recordOp(t, store, "op2", model.OpDeployment, model.OpFailed, 0, "0xu1")
	recordOp(t, store, "op3", model.OpIdentityVerification, model.OpPending, 0, "0xu2")
	recordOp(t, store, "op4", model.OpDeployment, model.OpConfirmed, 120_000, "0xu1")

	m, err := agg.ComputeNetwork(context.Background(), "polygon")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if m.TotalDeployments != 1 {
		t.Fatalf("pending/failed deployments counted: got %d want 1", m.TotalDeployments)
	}
	if m.IdentityVerifications != 0 {
		t.Fatalf("pending verification counted: got %d want 0", m.IdentityVerifications)
	}
}

func TestComputeGlobalUnionsNetworks(t *testing.T) {
	reports := []model.NetworkMetrics{
		{Network: "polygon", TotalDeployments: 3, TotalTransfers: 10, TotalGasUsed: 500, ComplianceViolations: 1},
		{Network: "base", TotalDeployments: 2, TotalTransfers: 5, TotalGasUsed: 300, ComplianceViolations: 0},
		// the same network reported twice must not double count
		{Network: "polygon", TotalDeployments: 3, TotalTransfers: 10, TotalGasUsed: 500, ComplianceViolations: 1},
	}

	global := ComputeGlobal(reports)
	if global.TotalDeployments != 5 {
		t.Fatalf("deployments mismatch: %d", global.TotalDeployments)
	}
	if global.TotalTransfers != 15 {
		t.Fatalf("transfers mismatch: %d", global.TotalTransfers)
	}
	if global.TotalGasUsed != 800 {
		t.Fatalf("gas mismatch: %d", global.TotalGasUsed)
	}
	if global.ComplianceViolations != 1 {
		t.Fatalf("violations mismatch: %d", global.ComplianceViolations)
	}
	if !reflect.DeepEqual(global.ActiveNetworks, []string{"base", "polygon"}) {
		t.Fatalf("active networks mismatch: %v", global.ActiveNetworks)
	}
}
