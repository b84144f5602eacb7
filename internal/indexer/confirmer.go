package indexer

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"rwaScope/internal/model"
	"rwaScope/internal/storage"
)

// ReceiptSource fetches transaction receipts for one network.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

const defaultConfirmInterval = 30 * time.Second

// Confirmer resolves pending tracked operations by polling for their
// receipts. An operation confirms when its receipt lands with a success
// status and fails when the receipt reports a revert. Operations whose
// receipt is not yet available stay pending.
type Confirmer struct {
	network  string
	store    storage.OperationStore
	receipts ReceiptSource
	interval time.Duration
	logger   *zap.Logger
}

func NewConfirmer(network string, store storage.OperationStore, receipts ReceiptSource, interval time.Duration, logger *zap.Logger) *Confirmer {
	if interval <= 0 {
		interval = defaultConfirmInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Confirmer{
		network:  network,
		store:    store,
		receipts: receipts,
		interval: interval,
		logger:   logger,
	}
}

// Run polls until the context is cancelled.
func (c *Confirmer) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.sweep(ctx); err != nil {
				c.logger.Warn("operation sweep failed",
					zap.String("network", c.network),
					zap.Error(err),
				)
			}
		}
	}
}

func (c *Confirmer) sweep(ctx context.Context) error {
	ops, err := c.store.ListOperations(ctx, c.network)
	if err != nil {
		return err
	}
	for _, op := range ops {
		if op.Status != model.OpPending || op.TxHash == "" {
			continue
		}
		receipt, err := c.receipts.TransactionReceipt(ctx, common.HexToHash(op.TxHash))
		if errors.Is(err, ethereum.NotFound) {
			continue
		}
		if err != nil {
			c.logger.Warn("receipt fetch failed",
				zap.String("network", c.network),
				zap.String("tx", op.TxHash),
				zap.Error(err),
			)
			continue
		}

		status := model.OpConfirmed
		if receipt.Status != types.ReceiptStatusSuccessful {
			status = model.OpFailed
		}
		if err := c.store.UpdateOperationStatus(ctx, op.ID, status, receipt.GasUsed, time.Now().UTC()); err != nil {
			c.logger.Warn("operation update failed",
				zap.String("network", c.network),
				zap.String("id", op.ID),
				zap.Error(err),
			)
			continue
		}
		c.logger.Info("operation resolved",
			zap.String("network", c.network),
			zap.String("id", op.ID),
			zap.String("status", string(status)),
			zap.Uint64("gas_used", receipt.GasUsed),
		)
	}
	return nil
}
