package memory

import (
	"context"
	"fmt"
	"testing"

	"rwaScope/internal/model"
	"rwaScope/internal/storage"
)

func makeEvent(network, txHash string, logIndex, block uint64) model.LogEvent {
	return model.LogEvent{
		Network:     network,
		BlockNumber: block,
		BlockHash:   fmt.Sprintf("0xblock%d", block),
		TxHash:      txHash,
		LogIndex:    logIndex,
		Address:     "0x1111111111111111111111111111111111111111",
		Topics:      []string{"0xaaaa"},
		Data:        "0x",
		Timestamp:   1700000000,
	}
}

func TestInsertEventsBatchIdempotent(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	events := []model.LogEvent{makeEvent("polygon", "0xabc", 0, 100)}

	inserted, failed, err := store.InsertEventsBatch(ctx, events)
	if err != nil {
		t.Fatalf("first insert: %v", err)
	}
	if inserted != 1 || failed != 0 {
		t.Fatalf("first insert counts: inserted=%d failed=%d", inserted, failed)
	}

	inserted, failed, err = store.InsertEventsBatch(ctx, events)
	if err != nil {
		t.Fatalf("second insert: %v", err)
	}
	if inserted != 0 || failed != 1 {
		t.Fatalf("duplicate insert counts: inserted=%d failed=%d", inserted, failed)
	}

	got, total, err := store.QueryEvents(ctx, storage.EventFilter{Network: "polygon"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 1 || len(got) != 1 {
		t.Fatalf("expected exactly one stored row, got %d", total)
	}
}

func TestInsertEventsBatchPartialFailure(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	events := []model.LogEvent{
		makeEvent("polygon", "0xa1", 0, 100),
		makeEvent("polygon", "0xa2", 0, 100),
		makeEvent("polygon", "0xa3", 0, 101),
		{Network: "polygon", BlockNumber: 101, TxHash: "0xa4"}, // no topics
		makeEvent("polygon", "0xa5", 1, 101),
	}

	inserted, failed, err := store.InsertEventsBatch(ctx, events)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if inserted != 4 || failed != 1 {
		t.Fatalf("counts mismatch: inserted=%d failed=%d", inserted, failed)
	}
}

func TestApplyBatchAdvancesCheckpoint(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	batch := storage.Batch{
		Network:     "polygon",
		BlockNumber: 100,
		BlockHash:   "0xAA",
		LastTxHash:  "0xabc",
		BlockTime:   1700000000,
		Events:      []model.LogEvent{makeEvent("polygon", "0xabc", 0, 100)},
	}
	if err := store.ApplyBatch(ctx, batch); err != nil {
		t.Fatalf("apply: %v", err)
	}

	cp, err := store.GetCheckpoint(ctx, "polygon")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if cp.LastProcessedBlock != 100 || cp.LastBlockHash != "0xAA" {
		t.Fatalf("checkpoint mismatch: %+v", cp)
	}

	// replaying the same batch stays at the same state
	if err := store.ApplyBatch(ctx, batch); err != nil {
		t.Fatalf("replay: %v", err)
	}
	_, total, err := store.QueryEvents(ctx, storage.EventFilter{Network: "polygon"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 1 {
		t.Fatalf("replay duplicated events: %d", total)
	}

	snap, ok, err := store.GetSnapshot(ctx, "polygon", "2023-11-14")
	if err != nil || !ok {
		t.Fatalf("snapshot missing: ok=%v err=%v", ok, err)
	}
	if snap.BlocksProcessed != 2 || snap.EventsIndexed != 1 {
		t.Fatalf("snapshot mismatch: %+v", snap)
	}
}

func TestApplyBatchReplayKeepsProjectionsUnique(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	prov := model.Provenance{
		Network:     "polygon",
		BlockNumber: 100,
		TxHash:      "0xviolation",
		LogIndex:    0,
		Timestamp:   1700000000,
	}
	transferProv := prov
	transferProv.TxHash = "0xtransfer"
	transferProv.LogIndex = 1

	batch := storage.Batch{
		Network:     "polygon",
		BlockNumber: 100,
		BlockHash:   "0xblock100",
		BlockTime:   1700000000,
		Events: []model.LogEvent{
			makeEvent("polygon", "0xviolation", 0, 100),
			makeEvent("polygon", "0xtransfer", 1, 100),
		},
		Decoded: []model.Decoded{
			{
				Kind:       model.KindViolation,
				Provenance: prov,
				Violation: &model.ComplianceViolation{
					Provenance: prov,
					Reason:     "country blocked",
				},
			},
			{
				Kind:       model.KindTransfer,
				Provenance: transferProv,
				Transfer: &model.TransferEvent{
					Provenance: transferProv,
					From:       "0x01",
					To:         "0x02",
					Amount:     "1000",
				},
			},
		},
	}

	for i := 0; i < 2; i++ {
		if err := store.ApplyBatch(ctx, batch); err != nil {
			t.Fatalf("apply %d: %v", i, err)
		}
	}

	violations, err := store.CountViolations(ctx, "polygon")
	if err != nil {
		t.Fatalf("count violations: %v", err)
	}
	if violations != 1 {
		t.Fatalf("replay duplicated violation rows: count=%d want 1", violations)
	}
	rows, total, err := store.QueryViolations(ctx, "polygon", 10, 0)
	if err != nil {
		t.Fatalf("query violations: %v", err)
	}
	if total != 1 || len(rows) != 1 {
		t.Fatalf("violation query mismatch: total=%d rows=%d", total, len(rows))
	}

	_, transfers, err := store.QueryTransfers(ctx, storage.TransferFilter{Network: "polygon", Limit: 10})
	if err != nil {
		t.Fatalf("query transfers: %v", err)
	}
	if transfers != 1 {
		t.Fatalf("replay duplicated transfer rows: count=%d want 1", transfers)
	}
}

func TestMarkRemovedFromAndReinsert(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	for block := uint64(98); block <= 100; block++ {
		batch := storage.Batch{
			Network:     "polygon",
			BlockNumber: block,
			BlockHash:   fmt.Sprintf("0xhash%d", block),
			BlockTime:   1700000000 + block,
			Events:      []model.LogEvent{makeEvent("polygon", fmt.Sprintf("0xtx%d", block), 0, block)},
		}
		if err := store.ApplyBatch(ctx, batch); err != nil {
			t.Fatalf("apply %d: %v", block, err)
		}
	}

	count, err := store.MarkRemovedFrom(ctx, "polygon", 99)
	if err != nil {
		t.Fatalf("mark removed: %v", err)
	}
	if count != 2 {
		t.Fatalf("retracted count mismatch: %d", count)
	}

	live, total, err := store.QueryEvents(ctx, storage.EventFilter{Network: "polygon"})
	if err != nil {
		t.Fatalf("query live: %v", err)
	}
	if total != 1 || live[0].BlockNumber != 98 {
		t.Fatalf("live rows mismatch: total=%d", total)
	}

	all, totalAll, err := store.QueryEvents(ctx, storage.EventFilter{Network: "polygon", IncludeRemoved: true})
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if totalAll != 3 || len(all) != 3 {
		t.Fatalf("rows were deleted instead of retracted: %d", totalAll)
	}

	// the same key re-observed under the new chain goes live again
	reinsert := storage.Batch{
		Network:     "polygon",
		BlockNumber: 99,
		BlockHash:   "0xhash99b",
		BlockTime:   1700000000,
		Events:      []model.LogEvent{makeEvent("polygon", "0xtx99", 0, 99)},
	}
	if err := store.ApplyBatch(ctx, reinsert); err != nil {
		t.Fatalf("reinsert: %v", err)
	}
	_, liveTotal, err := store.QueryEvents(ctx, storage.EventFilter{Network: "polygon"})
	if err != nil {
		t.Fatalf("query after reinsert: %v", err)
	}
	if liveTotal != 2 {
		t.Fatalf("reinserted row still retracted: %d", liveTotal)
	}
}

func TestCheckpointStatusTransitions(t *testing.T) {
	store := New(0)
	ctx := context.Background()

	setStatus := func(status model.CheckpointStatus) error {
		return store.UpdateCheckpoint(ctx, "polygon", model.CheckpointUpdate{Status: &status})
	}

	cp, err := store.GetCheckpoint(ctx, "polygon")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if cp.Status != model.StatusInitialized {
		t.Fatalf("fresh checkpoint status: %s", cp.Status)
	}

	if err := setStatus(model.StatusPaused); err == nil {
		t.Fatalf("initialized -> paused must fail")
	}
	if err := setStatus(model.StatusRunning); err != nil {
		t.Fatalf("initialized -> running: %v", err)
	}
	if err := setStatus(model.StatusStopped); err != nil {
		t.Fatalf("running -> stopped: %v", err)
	}
	if err := setStatus(model.StatusRunning); err != nil {
		t.Fatalf("stopped -> running after restart: %v", err)
	}
	if err := setStatus(model.StatusError); err != nil {
		t.Fatalf("running -> error: %v", err)
	}
	if err := setStatus(model.StatusPaused); err == nil {
		t.Fatalf("error -> paused must fail")
	}
}

func TestRetentionBound(t *testing.T) {
	store := New(2)
	ctx := context.Background()

	events := []model.LogEvent{
		makeEvent("polygon", "0xr1", 0, 1),
		makeEvent("polygon", "0xr2", 0, 2),
		makeEvent("polygon", "0xr3", 0, 3),
	}
	if _, _, err := store.InsertEventsBatch(ctx, events); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, total, err := store.QueryEvents(ctx, storage.EventFilter{Network: "polygon"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 2 {
		t.Fatalf("retention did not trim: %d", total)
	}
	if got[0].BlockNumber != 2 || got[1].BlockNumber != 3 {
		t.Fatalf("oldest rows were not the ones dropped: %+v", got)
	}
}
