package indexer

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"rwaScope/internal/model"
	"rwaScope/internal/storage/memory"
)

type fakeReceipts struct {
	receipts map[string]*types.Receipt
}

func (f *fakeReceipts) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	receipt, ok := f.receipts[txHash.Hex()]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func TestConfirmerResolvesPendingOperations(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)

	recordPending := func(id, txHash string) {
		err := store.RecordOperation(ctx, model.TrackedOperation{
			ID:         id,
			Network:    "polygon",
			Type:       model.OpDeployment,
			Status:     model.OpPending,
			TxHash:     txHash,
			RecordedAt: time.Now().UTC(),
		})
		if err != nil {
			t.Fatalf("record %s: %v", id, err)
		}
	}
	recordPending("op-ok", common.HexToHash("0x01").Hex())
	recordPending("op-revert", common.HexToHash("0x02").Hex())
	recordPending("op-waiting", common.HexToHash("0x03").Hex())

	receipts := &fakeReceipts{receipts: map[string]*types.Receipt{
		common.HexToHash("0x01").Hex(): {Status: types.ReceiptStatusSuccessful, GasUsed: 90_000},
		common.HexToHash("0x02").Hex(): {Status: types.ReceiptStatusFailed, GasUsed: 40_000},
	}}

	confirmer := NewConfirmer("polygon", store, receipts, time.Second, nil)
	if err := confirmer.sweep(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	ops, err := store.ListOperations(ctx, "polygon")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	byID := make(map[string]model.TrackedOperation, len(ops))
	for _, op := range ops {
		byID[op.ID] = op
	}

	if op := byID["op-ok"]; op.Status != model.OpConfirmed || op.GasUsed != 90_000 || op.ConfirmedAt == nil {
		t.Fatalf("confirmed op mismatch: %+v", op)
	}
	if op := byID["op-revert"]; op.Status != model.OpFailed || op.GasUsed != 40_000 {
		t.Fatalf("reverted op mismatch: %+v", op)
	}
	if op := byID["op-waiting"]; op.Status != model.OpPending {
		t.Fatalf("waiting op mismatch: %+v", op)
	}
}

func TestConfirmerSweepIsRepeatable(t *testing.T) {
	ctx := context.Background()
	store := memory.New(0)
	err := store.RecordOperation(ctx, model.TrackedOperation{
		ID:         "op-1",
		Network:    "polygon",
		Type:       model.OpTransfer,
		Status:     model.OpPending,
		TxHash:     common.HexToHash("0x01").Hex(),
		RecordedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("record: %v", err)
	}

	receipts := &fakeReceipts{receipts: map[string]*types.Receipt{
		common.HexToHash("0x01").Hex(): {Status: types.ReceiptStatusSuccessful, GasUsed: 21_000},
	}}
	confirmer := NewConfirmer("polygon", store, receipts, time.Second, nil)

	for i := 0; i < 2; i++ {
		if err := confirmer.sweep(ctx); err != nil {
			t.Fatalf("sweep %d: %v", i, err)
		}
	}

	ops, err := store.ListOperations(ctx, "polygon")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ops) != 1 || ops[0].Status != model.OpConfirmed {
		t.Fatalf("ops mismatch: %+v", ops)
	}
}
