package indexer

import (
	"context"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainSource is the slice of chain access the pipeline needs. The
// production implementation is chain.Client; tests inject a fake.
type ChainSource interface {
	LatestBlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, fromBlock, toBlock uint64, addresses []common.Address, topic0 []common.Hash) ([]types.Log, error)
	// BlockHeader returns the canonical (hash, timestamp) for a height.
	BlockHeader(ctx context.Context, number uint64) (string, uint64, error)
}

// HeadSubscriber is the optional subscription surface. Watchers in
// subscribe mode require it; polling mode never calls it.
type HeadSubscriber interface {
	SubscribeNewHeads(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}
