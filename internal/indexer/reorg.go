package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"rwaScope/internal/model"
	"rwaScope/internal/storage"
)

// ErrReorgDetected signals the watcher that the checkpoint was rewound
// and the current pass must restart from the new cursor.
var ErrReorgDetected = errors.New("chain reorganization detected")

// ReorgDetector remembers recently observed block hashes for one network
// and rewinds the pipeline when the chain disagrees with them. The
// window bounds how far back a reorg can be noticed; a divergence older
// than the window goes undetected until a manual resync.
type ReorgDetector struct {
	network string
	depth   uint64
	window  int
	store   storage.Store
	logger  *zap.Logger

	hashes map[uint64]string
	oldest uint64
	newest uint64
}

// NewReorgDetector builds a detector. depth is how many blocks below the
// divergent height the rewind lands; window is how many observed hashes
// are retained for comparison.
func NewReorgDetector(network string, depth uint64, window int, store storage.Store, logger *zap.Logger) *ReorgDetector {
	if depth == 0 {
		depth = 1
	}
	if window <= 0 {
		window = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReorgDetector{
		network: network,
		depth:   depth,
		window:  window,
		store:   store,
		logger:  logger,
		hashes:  make(map[uint64]string),
	}
}

// Seed primes the detector from a restored checkpoint so a reorg across
// a restart is still caught.
func (d *ReorgDetector) Seed(height uint64, hash string) {
	if hash == "" {
		return
	}
	d.Observe(height, hash)
}

// Observe records the canonical hash seen for a height.
func (d *ReorgDetector) Observe(height uint64, hash string) {
	if len(d.hashes) == 0 {
		d.oldest = height
	}
	d.hashes[height] = hash
	if height > d.newest {
		d.newest = height
	}
	for len(d.hashes) > d.window {
		delete(d.hashes, d.oldest)
		d.oldest++
	}
}

// Verify re-fetches the newest retained height and compares hashes. A
// match proves the whole retained window is still canonical, since a
// block hash commits to its ancestry. On divergence it walks the window
// back to the lowest diverged height, rewinds there, and returns
// ErrReorgDetected.
func (d *ReorgDetector) Verify(ctx context.Context, fetch func(context.Context, uint64) (string, error)) error {
	if len(d.hashes) == 0 {
		return nil
	}

	observed, err := fetch(ctx, d.newest)
	if err != nil {
		return fmt.Errorf("verify head %d: %w", d.newest, err)
	}
	if observed == d.hashes[d.newest] {
		return nil
	}

	divergedAt := d.newest
	divergedNew := observed
	for height := d.newest - 1; height >= d.oldest && height < d.newest; height-- {
		recorded, ok := d.hashes[height]
		if !ok {
			break
		}
		current, err := fetch(ctx, height)
		if err != nil {
			return fmt.Errorf("verify height %d: %w", height, err)
		}
		if current == recorded {
			break
		}
		divergedAt = height
		divergedNew = current
	}

	d.logger.Warn("retained block no longer canonical",
		zap.String("network", d.network),
		zap.Uint64("height", divergedAt),
		zap.String("recorded", d.hashes[divergedAt]),
		zap.String("observed", divergedNew),
	)
	if err := d.rewind(ctx, divergedAt, d.hashes[divergedAt], divergedNew); err != nil {
		return fmt.Errorf("rewind after reorg at %d: %w", divergedAt, err)
	}
	return ErrReorgDetected
}

// Check compares the hash now reported for a height against the one
// recorded earlier. On divergence it rewinds and returns
// ErrReorgDetected; a height outside the window passes.
func (d *ReorgDetector) Check(ctx context.Context, height uint64, hash string) error {
	recorded, ok := d.hashes[height]
	if !ok || recorded == hash {
		return nil
	}

	d.logger.Warn("block hash divergence",
		zap.String("network", d.network),
		zap.Uint64("height", height),
		zap.String("recorded", recorded),
		zap.String("observed", hash),
	)

	if err := d.rewind(ctx, height, recorded, hash); err != nil {
		return fmt.Errorf("rewind after reorg at %d: %w", height, err)
	}
	return ErrReorgDetected
}

// rewind retracts events from the rewind target up, moves the checkpoint
// back, and records the audit row. The retracted rows flip back to live
// if the same keys reappear under the new chain.
func (d *ReorgDetector) rewind(ctx context.Context, height uint64, oldHash, newHash string) error {
	target := uint64(0)
	if height > d.depth {
		target = height - d.depth
	}

	retracted, err := d.store.MarkRemovedFrom(ctx, d.network, target)
	if err != nil {
		return err
	}

	empty := ""
	update := model.CheckpointUpdate{
		LastProcessedBlock:  &target,
		LastBlockHash:       &empty,
		LastProcessedTxHash: &empty,
	}
	if err := d.store.UpdateCheckpoint(ctx, d.network, update); err != nil {
		return err
	}

	if err := d.store.RecordReorg(ctx, model.ReorgEvent{
		Network:    d.network,
		Height:     height,
		Depth:      d.depth,
		OldHash:    oldHash,
		NewHash:    newHash,
		DetectedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}); err != nil {
		return err
	}

	for h := range d.hashes {
		if h >= target {
			delete(d.hashes, h)
		}
	}
	d.oldest, d.newest = 0, 0
	for h := range d.hashes {
		if d.oldest == 0 || h < d.oldest {
			d.oldest = h
		}
		if h > d.newest {
			d.newest = h
		}
	}

	d.logger.Info("checkpoint rewound",
		zap.String("network", d.network),
		zap.Uint64("from", height),
		zap.Uint64("to", target),
		zap.Int64("events_retracted", retracted),
	)
	return nil
}
