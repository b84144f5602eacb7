package indexer

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"rwaScope/internal/metrics"
	"rwaScope/internal/model"
	"rwaScope/internal/storage"
)

// Decoder classifies raw log events into domain projections.
type Decoder interface {
	Decode(ev model.LogEvent) (model.Decoded, error)
}

// Sink receives decoded events after they are durably stored. Delivery
// is fire and forget; a sink failure never fails ingestion.
type Sink interface {
	Publish(dec model.Decoded)
}

// Ingestor turns one block's raw logs into a stored batch: normalize,
// order by log index, decode, apply atomically, then fan out.
type Ingestor struct {
	network string
	decoder Decoder
	store   storage.Store
	sinks   []Sink
	logger  *zap.Logger
}

func NewIngestor(network string, decoder Decoder, store storage.Store, logger *zap.Logger, sinks ...Sink) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		network: network,
		decoder: decoder,
		store:   store,
		sinks:   sinks,
		logger:  logger,
	}
}

// BlockBatch is the raw material for one ingestion unit.
type BlockBatch struct {
	Number uint64
	Hash   string
	Time   uint64
	Events []model.LogEvent
}

// ProcessBlock stores a block's events and projections in one atomic
// unit and advances the checkpoint. Re-processing the same block after a
// crash converges on the same state.
func (in *Ingestor) ProcessBlock(ctx context.Context, block BlockBatch) error {
	started := time.Now()

	events := append([]model.LogEvent(nil), block.Events...)
	sort.Slice(events, func(i, j int) bool {
		if events[i].TxIndex != events[j].TxIndex {
			return events[i].TxIndex < events[j].TxIndex
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	decoded := make([]model.Decoded, 0, len(events))
	unrecognized := 0
	for _, ev := range events {
		dec, err := in.decoder.Decode(ev)
		if err != nil {
			// malformed payloads stall the block rather than kill the
			// watcher; a later fetch retries the decode
			return fmt.Errorf("%w: decode event %s: %w", errStall, ev.Key(), err)
		}
		if dec.Kind == model.KindUnrecognized {
			unrecognized++
			in.logger.Debug("unrecognized event",
				zap.String("network", in.network),
				zap.String("key", ev.Key()),
			)
			continue
		}
		decoded = append(decoded, dec)
	}

	lastTx := ""
	if len(events) > 0 {
		lastTx = events[len(events)-1].TxHash
	}

	batch := storage.Batch{
		Network:     in.network,
		BlockNumber: block.Number,
		BlockHash:   block.Hash,
		LastTxHash:  lastTx,
		BlockTime:   block.Time,
		Events:      events,
		Decoded:     decoded,
		Elapsed:     time.Since(started),
	}
	if err := in.store.ApplyBatch(ctx, batch); err != nil {
		return fmt.Errorf("apply block %d on %s: %w", block.Number, in.network, err)
	}

	metrics.ObserveBlock(in.network, len(events), unrecognized, time.Since(started))
	for _, dec := range decoded {
		metrics.IncDecoded(in.network, string(dec.Kind))
		for _, sink := range in.sinks {
			sink.Publish(dec)
		}
	}

	if len(events) > 0 {
		in.logger.Info("block ingested",
			zap.String("network", in.network),
			zap.Uint64("block", block.Number),
			zap.Int("events", len(events)),
			zap.Int("decoded", len(decoded)),
			zap.Int("unrecognized", unrecognized),
		)
	}
	return nil
}
