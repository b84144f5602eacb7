package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"rwaScope/internal/metrics"
	"rwaScope/internal/model"
	"rwaScope/internal/storage"
)

// Watch modes. Subscription needs a websocket endpoint; polling works
// against any RPC endpoint.
const (
	ModePoll      = "poll"
	ModeSubscribe = "subscribe"
)

// errStall marks failures worth waiting out: exhausted RPC retries and
// payloads the decoder cannot parse. The loop stays alive and retries on
// the next tick; checkpoint height and status are untouched. Persistence
// failures stay fatal and move the checkpoint to error.
var errStall = errors.New("sync stalled")

// WatchConfig holds the per-network runtime settings.
type WatchConfig struct {
	Network       string
	Mode          string
	Addresses     []common.Address
	Topic0        []common.Hash
	StartBlock    uint64
	PollInterval  time.Duration
	Confirmations uint64
	BatchSize     uint64
	MaxRetries    int
	RetryBackoff  time.Duration
}

// Watcher drives one network: it follows the confirmed head, feeds each
// block through the ingestor, and maintains the checkpoint status.
// Failure of one watcher never touches the others.
type Watcher struct {
	cfg      WatchConfig
	source   ChainSource
	store    storage.Store
	ingestor *Ingestor
	detector *ReorgDetector
	logger   *zap.Logger
}

func NewWatcher(cfg WatchConfig, source ChainSource, store storage.Store, ingestor *Ingestor, detector *ReorgDetector, logger *zap.Logger) *Watcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 12 * time.Second
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		cfg:      cfg,
		source:   source,
		store:    store,
		ingestor: ingestor,
		detector: detector,
		logger:   logger.With(zap.String("network", cfg.Network)),
	}
}

// Run blocks until the context is cancelled or the watcher hits an error
// it cannot retry away. On clean shutdown the checkpoint moves to
// stopped; on failure to error, so a restart must re-enter running
// explicitly and replays from the durable cursor.
func (w *Watcher) Run(ctx context.Context) error {
	cp, err := w.store.GetCheckpoint(ctx, w.cfg.Network)
	if err != nil {
		return err
	}
	if err := w.setStatus(ctx, model.StatusRunning, ""); err != nil {
		return err
	}
	w.detector.Seed(cp.LastProcessedBlock, cp.LastBlockHash)
	w.logger.Info("watcher started",
		zap.String("mode", w.cfg.Mode),
		zap.Uint64("last_processed", cp.LastProcessedBlock),
	)

	heads := w.headNotifications(ctx)

	for {
		err := w.syncOnce(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrReorgDetected):
			metrics.IncReorg(w.cfg.Network)
			continue
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			return w.shutdown()
		case errors.Is(err, errStall):
			w.logger.Warn("sync stalled, retrying next tick", zap.Error(err))
		default:
			w.logger.Error("sync failed", zap.Error(err))
			if serr := w.setStatus(context.WithoutCancel(ctx), model.StatusError, err.Error()); serr != nil {
				w.logger.Error("status update failed", zap.Error(serr))
			}
			return err
		}

		select {
		case <-ctx.Done():
			return w.shutdown()
		case <-heads:
		case <-time.After(w.cfg.PollInterval):
		}
	}
}

func (w *Watcher) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.setStatus(ctx, model.StatusStopped, ""); err != nil {
		w.logger.Error("status update failed", zap.Error(err))
	}
	w.logger.Info("watcher stopped")
	return nil
}

// headNotifications returns a channel that fires when a new head
// arrives. In polling mode, or when the endpoint rejects subscriptions,
// the channel stays silent and the poll ticker paces the loop.
func (w *Watcher) headNotifications(ctx context.Context) <-chan struct{} {
	notify := make(chan struct{}, 1)
	if w.cfg.Mode != ModeSubscribe {
		return notify
	}
	subscriber, ok := w.source.(HeadSubscriber)
	if !ok {
		w.logger.Warn("source does not support subscriptions, falling back to polling")
		return notify
	}

	go func() {
		headers := make(chan *types.Header, 16)
		sub, err := subscriber.SubscribeNewHeads(ctx, headers)
		if err != nil {
			w.logger.Warn("head subscription failed, falling back to polling", zap.Error(err))
			return
		}
		defer sub.Unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				w.logger.Warn("head subscription lost, falling back to polling", zap.Error(err))
				return
			case <-headers:
				select {
				case notify <- struct{}{}:
				default:
				}
			}
		}
	}()
	return notify
}

// syncOnce advances from the checkpoint to the confirmed head.
func (w *Watcher) syncOnce(ctx context.Context) error {
	latest, err := w.latestWithRetry(ctx)
	if err != nil {
		return fmt.Errorf("latest block: %w", err)
	}
	if latest < w.cfg.Confirmations {
		return nil
	}
	head := latest - w.cfg.Confirmations

	if err := w.detector.Verify(ctx, func(ctx context.Context, height uint64) (string, error) {
		hash, _, err := w.blockHeaderWithRetry(ctx, height)
		return hash, err
	}); err != nil {
		return err
	}

	cp, err := w.store.GetCheckpoint(ctx, w.cfg.Network)
	if err != nil {
		return err
	}
	from := cp.LastProcessedBlock + 1
	if cp.LastProcessedBlock == 0 && cp.LastBlockHash == "" && w.cfg.StartBlock > 0 {
		from = w.cfg.StartBlock
	}
	if from > head {
		return nil
	}

	ranges, err := SplitRange(from, head, w.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, blockRange := range ranges {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.processRange(ctx, blockRange); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) processRange(ctx context.Context, blockRange BlockRange) error {
	logs, err := w.filterLogsWithRetry(ctx, blockRange.From, blockRange.To)
	if err != nil {
		return fmt.Errorf("filter logs %d-%d: %w", blockRange.From, blockRange.To, err)
	}

	ingestedAt := time.Now().UTC()
	byBlock := make(map[uint64][]types.Log)
	for _, log := range logs {
		byBlock[log.BlockNumber] = append(byBlock[log.BlockNumber], log)
	}

	for height := blockRange.From; height <= blockRange.To; height++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		hash, blockTime, err := w.blockHeaderWithRetry(ctx, height)
		if err != nil {
			return fmt.Errorf("block header %d: %w", height, err)
		}
		if err := w.detector.Check(ctx, height, hash); err != nil {
			return err
		}

		events := make([]model.LogEvent, 0, len(byBlock[height]))
		for _, log := range byBlock[height] {
			events = append(events, buildLogEvent(w.cfg.Network, log, blockTime, ingestedAt))
		}

		block := BlockBatch{Number: height, Hash: hash, Time: blockTime, Events: events}
		if err := w.ingestor.ProcessBlock(ctx, block); err != nil {
			return err
		}

		w.detector.Observe(height, hash)
		metrics.SetCheckpointHeight(w.cfg.Network, height)
	}
	return nil
}

func (w *Watcher) setStatus(ctx context.Context, status model.CheckpointStatus, message string) error {
	update := model.CheckpointUpdate{Status: &status, ErrorMessage: &message}
	if err := w.store.UpdateCheckpoint(ctx, w.cfg.Network, update); err != nil {
		return fmt.Errorf("set status %s on %s: %w", status, w.cfg.Network, err)
	}
	return nil
}

func (w *Watcher) latestWithRetry(ctx context.Context) (uint64, error) {
	var latest uint64
	err := withRetry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		latest, err = w.source.LatestBlockNumber(ctx)
		if err != nil {
			metrics.IncRetry(w.cfg.Network)
			w.logger.Warn("latest block fetch failed", zap.Error(err))
		}
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errStall, err)
	}
	return latest, nil
}

func (w *Watcher) filterLogsWithRetry(ctx context.Context, fromBlock, toBlock uint64) ([]types.Log, error) {
	var logs []types.Log
	err := withRetry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		logs, err = w.source.FilterLogs(ctx, fromBlock, toBlock, w.cfg.Addresses, w.cfg.Topic0)
		if err != nil {
			metrics.IncRetry(w.cfg.Network)
			w.logger.Warn("filter logs failed", zap.Error(err),
				zap.Uint64("from", fromBlock), zap.Uint64("to", toBlock))
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errStall, err)
	}
	return logs, nil
}

func (w *Watcher) blockHeaderWithRetry(ctx context.Context, height uint64) (string, uint64, error) {
	var hash string
	var ts uint64
	err := withRetry(ctx, w.cfg.MaxRetries, w.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		hash, ts, err = w.source.BlockHeader(ctx, height)
		if err != nil {
			metrics.IncRetry(w.cfg.Network)
			w.logger.Warn("block header fetch failed", zap.Error(err), zap.Uint64("height", height))
		}
		return err
	})
	if err != nil {
		return "", 0, fmt.Errorf("%w: %w", errStall, err)
	}
	return hash, ts, nil
}
