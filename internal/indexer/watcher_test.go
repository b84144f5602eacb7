package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"rwaScope/internal/model"
	"rwaScope/internal/storage"
	"rwaScope/internal/storage/memory"
)

// fakeSource is a scripted chain: heights map to hashes and logs, and a
// test can rewrite history to simulate a reorganization.
type fakeSource struct {
	mu        sync.Mutex
	latest    uint64
	hashes    map[uint64]string
	logs      map[uint64][]types.Log
	latestErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		hashes: make(map[uint64]string),
		logs:   make(map[uint64][]types.Log),
	}
}

func (f *fakeSource) setBlock(height uint64, hash string, logs ...types.Log) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hashes[height] = hash
	f.logs[height] = logs
	if height > f.latest {
		f.latest = height
	}
}

func (f *fakeSource) setLatestErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.latestErr = err
}

func (f *fakeSource) LatestBlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latestErr != nil {
		return 0, f.latestErr
	}
	return f.latest, nil
}

func (f *fakeSource) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []types.Log
	for height := fromBlock; height <= toBlock; height++ {
		out = append(out, f.logs[height]...)
	}
	return out, nil
}

func (f *fakeSource) BlockHeader(ctx context.Context, number uint64) (string, uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	hash, ok := f.hashes[number]
	if !ok {
		return "", 0, fmt.Errorf("unknown block %d", number)
	}
	return hash, 1700000000 + number, nil
}

func makeLog(height uint64, txHash string, index uint) types.Log {
	return types.Log{
		BlockNumber: height,
		BlockHash:   common.HexToHash(fmt.Sprintf("0x%02x", height)),
		TxHash:      common.HexToHash(txHash),
		Index:       index,
		Address:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Topics:      []common.Hash{common.HexToHash("0xaaaa")},
	}
}

// passDecoder keeps every event raw, which is all the pipeline tests need.
type passDecoder struct{}

func (passDecoder) Decode(ev model.LogEvent) (model.Decoded, error) {
	return model.Decoded{Kind: model.KindUnrecognized, Provenance: model.Provenance{
		Network:     ev.Network,
		BlockNumber: ev.BlockNumber,
		TxHash:      ev.TxHash,
		LogIndex:    ev.LogIndex,
	}}, nil
}

func newTestWatcher(source *fakeSource, store storage.Store, startBlock, confirmations uint64, window int) *Watcher {
	ingestor := NewIngestor("polygon", passDecoder{}, store, zap.NewNop())
	detector := NewReorgDetector("polygon", 1, window, store, zap.NewNop())
	return NewWatcher(WatchConfig{
		Network:       "polygon",
		Mode:          ModePoll,
		StartBlock:    startBlock,
		Confirmations: confirmations,
		BatchSize:     10,
	}, source, store, ingestor, detector, zap.NewNop())
}

func TestSyncAdvancesToConfirmedHead(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource()
	for height := uint64(100); height <= 105; height++ {
		source.setBlock(height, fmt.Sprintf("0xaa%d", height))
	}
	source.setBlock(101, "0xaa101", makeLog(101, "0xa1", 0), makeLog(101, "0xa1", 1))
	source.setBlock(103, "0xaa103", makeLog(103, "0xa2", 0))

	store := memory.New(0)
	watcher := newTestWatcher(source, store, 100, 2, 8)

	if err := watcher.syncOnce(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	cp, err := store.GetCheckpoint(ctx, "polygon")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	// latest 105 minus 2 confirmations
	if cp.LastProcessedBlock != 103 {
		t.Fatalf("checkpoint height mismatch: %d", cp.LastProcessedBlock)
	}
	if cp.LastBlockHash != "0xaa103" {
		t.Fatalf("checkpoint hash mismatch: %s", cp.LastBlockHash)
	}

	_, total, err := store.QueryEvents(ctx, storage.EventFilter{Network: "polygon"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 3 {
		t.Fatalf("stored events mismatch: %d", total)
	}
}

func TestRestartResumesWithoutDuplicates(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource()
	for height := uint64(100); height <= 104; height++ {
		source.setBlock(height, fmt.Sprintf("0xaa%d", height))
	}
	source.setBlock(101, "0xaa101", makeLog(101, "0xa1", 0))

	store := memory.New(0)
	watcher := newTestWatcher(source, store, 100, 2, 8)
	if err := watcher.syncOnce(ctx); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	// restart: a fresh watcher against the same store, chain grew by one
	source.setBlock(105, "0xaa105", makeLog(105, "0xa2", 0))
	restarted := newTestWatcher(source, store, 100, 2, 8)
	if err := restarted.syncOnce(ctx); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	cp, err := store.GetCheckpoint(ctx, "polygon")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if cp.LastProcessedBlock != 103 {
		t.Fatalf("checkpoint height mismatch: %d", cp.LastProcessedBlock)
	}

	_, total, err := store.QueryEvents(ctx, storage.EventFilter{Network: "polygon"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 1 {
		t.Fatalf("restart duplicated events: %d", total)
	}
}

func TestReorgRewindsAndReplays(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource()
	for height := uint64(98); height <= 102; height++ {
		source.setBlock(height, fmt.Sprintf("0xaa%d", height))
	}
	source.setBlock(100, "0xAA", makeLog(100, "0xa100", 0))

	store := memory.New(0)
	watcher := newTestWatcher(source, store, 98, 2, 8)
	if err := watcher.syncOnce(ctx); err != nil {
		t.Fatalf("initial sync: %v", err)
	}
	cp, _ := store.GetCheckpoint(ctx, "polygon")
	if cp.LastProcessedBlock != 100 {
		t.Fatalf("precondition checkpoint: %d", cp.LastProcessedBlock)
	}

	// the chain replaces block 100
	source.setBlock(100, "0xBB", makeLog(100, "0xa100b", 0))
	source.setBlock(103, "0xaa103")
	source.setBlock(104, "0xaa104")

	err := watcher.syncOnce(ctx)
	if !errors.Is(err, ErrReorgDetected) {
		t.Fatalf("expected reorg detection, got %v", err)
	}

	cp, _ = store.GetCheckpoint(ctx, "polygon")
	if cp.LastProcessedBlock != 99 {
		t.Fatalf("checkpoint did not rewind to 99: %d", cp.LastProcessedBlock)
	}

	reorgs, err := store.CountReorgs(ctx, "polygon")
	if err != nil || reorgs != 1 {
		t.Fatalf("reorg not recorded: count=%d err=%v", reorgs, err)
	}

	// the old block's events are retracted, not deleted
	live, liveTotal, err := store.QueryEvents(ctx, storage.EventFilter{Network: "polygon"})
	if err != nil {
		t.Fatalf("query live: %v", err)
	}
	for _, ev := range live {
		if ev.TxHash == common.HexToHash("0xa100").Hex() {
			t.Fatalf("retracted event still live: %+v", ev)
		}
	}
	_, allTotal, err := store.QueryEvents(ctx, storage.EventFilter{Network: "polygon", IncludeRemoved: true})
	if err != nil {
		t.Fatalf("query all: %v", err)
	}
	if allTotal <= liveTotal {
		t.Fatalf("expected retracted rows to remain: live=%d all=%d", liveTotal, allTotal)
	}

	// the next pass replays under the new chain
	if err := watcher.syncOnce(ctx); err != nil {
		t.Fatalf("replay sync: %v", err)
	}
	cp, _ = store.GetCheckpoint(ctx, "polygon")
	if cp.LastProcessedBlock != 102 {
		t.Fatalf("replay checkpoint mismatch: %d", cp.LastProcessedBlock)
	}

	found := false
	live, _, err = store.QueryEvents(ctx, storage.EventFilter{Network: "polygon"})
	if err != nil {
		t.Fatalf("query replay: %v", err)
	}
	for _, ev := range live {
		if ev.TxHash == common.HexToHash("0xa100b").Hex() {
			found = true
		}
	}
	if !found {
		t.Fatalf("replacement block events missing after replay")
	}
}

func TestTransientFetchFailureStallsInsteadOfKillingWatcher(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource()
	for height := uint64(100); height <= 104; height++ {
		source.setBlock(height, fmt.Sprintf("0xaa%d", height))
	}
	source.setBlock(101, "0xaa101", makeLog(101, "0xa1", 0))

	store := memory.New(0)
	watcher := newTestWatcher(source, store, 100, 2, 8)
	if err := watcher.syncOnce(ctx); err != nil {
		t.Fatalf("initial sync: %v", err)
	}

	source.setLatestErr(fmt.Errorf("connection refused"))
	err := watcher.syncOnce(ctx)
	if !errors.Is(err, errStall) {
		t.Fatalf("expected a stall, got %v", err)
	}

	cp, cpErr := store.GetCheckpoint(ctx, "polygon")
	if cpErr != nil {
		t.Fatalf("checkpoint: %v", cpErr)
	}
	if cp.LastProcessedBlock != 102 {
		t.Fatalf("stall moved the checkpoint: %d", cp.LastProcessedBlock)
	}
	if cp.Status == model.StatusError {
		t.Fatalf("transient fetch failure set checkpoint status to error")
	}

	// the endpoint recovers and the same watcher picks up where it left off
	source.setLatestErr(nil)
	source.setBlock(105, "0xaa105")
	if err := watcher.syncOnce(ctx); err != nil {
		t.Fatalf("recovery sync: %v", err)
	}
	cp, _ = store.GetCheckpoint(ctx, "polygon")
	if cp.LastProcessedBlock != 103 {
		t.Fatalf("recovery checkpoint mismatch: %d", cp.LastProcessedBlock)
	}
}

func TestFetchFailureDoesNotTerminateRunLoop(t *testing.T) {
	source := newFakeSource()
	source.setBlock(100, "0xaa100")
	source.setLatestErr(fmt.Errorf("connection refused"))

	store := memory.New(0)
	watcher := newTestWatcher(source, store, 100, 0, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watcher.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	select {
	case err := <-done:
		t.Fatalf("run exited on a transient fetch failure: %v", err)
	default:
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run returned an error on shutdown: %v", err)
	}
	cp, err := store.GetCheckpoint(context.Background(), "polygon")
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if cp.Status != model.StatusStopped {
		t.Fatalf("status after shutdown: %s", cp.Status)
	}
}

// rejectDecoder errors on every known-shaped log, standing in for a
// malformed payload.
type rejectDecoder struct{}

func (rejectDecoder) Decode(ev model.LogEvent) (model.Decoded, error) {
	return model.Decoded{}, fmt.Errorf("argument mismatch")
}

func TestMalformedPayloadStallsBlock(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource()
	for height := uint64(100); height <= 102; height++ {
		source.setBlock(height, fmt.Sprintf("0xaa%d", height))
	}
	source.setBlock(101, "0xaa101", makeLog(101, "0xa1", 0))

	store := memory.New(0)
	ingestor := NewIngestor("polygon", rejectDecoder{}, store, zap.NewNop())
	detector := NewReorgDetector("polygon", 1, 8, store, zap.NewNop())
	watcher := NewWatcher(WatchConfig{
		Network:    "polygon",
		Mode:       ModePoll,
		StartBlock: 100,
		BatchSize:  10,
	}, source, store, ingestor, detector, zap.NewNop())

	err := watcher.syncOnce(ctx)
	if !errors.Is(err, errStall) {
		t.Fatalf("expected a stall on malformed payload, got %v", err)
	}

	cp, cpErr := store.GetCheckpoint(ctx, "polygon")
	if cpErr != nil {
		t.Fatalf("checkpoint: %v", cpErr)
	}
	if cp.Status == model.StatusError {
		t.Fatalf("malformed payload set checkpoint status to error")
	}
	_, total, err := store.QueryEvents(ctx, storage.EventFilter{Network: "polygon"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if total != 0 {
		t.Fatalf("failed block leaked events: %d", total)
	}
}

func TestProgressIsMonotonicAcrossSyncs(t *testing.T) {
	ctx := context.Background()
	source := newFakeSource()
	for height := uint64(1); height <= 20; height++ {
		source.setBlock(height, fmt.Sprintf("0xaa%d", height))
	}

	store := memory.New(0)
	watcher := newTestWatcher(source, store, 1, 0, 8)

	var previous uint64
	for i := 0; i < 5; i++ {
		if err := watcher.syncOnce(ctx); err != nil {
			t.Fatalf("sync %d: %v", i, err)
		}
		cp, err := store.GetCheckpoint(ctx, "polygon")
		if err != nil {
			t.Fatalf("checkpoint: %v", err)
		}
		if cp.LastProcessedBlock < previous {
			t.Fatalf("checkpoint moved backwards: %d -> %d", previous, cp.LastProcessedBlock)
		}
		previous = cp.LastProcessedBlock
		source.setBlock(20+uint64(i)+1, fmt.Sprintf("0xaa%d", 20+i+1))
	}
}
