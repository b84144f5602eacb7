package rediscache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"rwaScope/internal/model"
	"rwaScope/internal/storage"
)

// CachedStore layers a Redis cache over the read paths of a Store.
// Every write path bumps a per-network version key, so cached pages for
// that network expire at once without key scans. Cache failures degrade
// to the underlying store, never to an error.
type CachedStore struct {
	storage.Store

	rdb    *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

type page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

func New(inner storage.Store, rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedStore {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CachedStore{Store: inner, rdb: rdb, ttl: ttl, logger: logger}
}

// ApplyBatch writes through and invalidates the network's cached pages.
func (c *CachedStore) ApplyBatch(ctx context.Context, batch storage.Batch) error {
	if err := c.Store.ApplyBatch(ctx, batch); err != nil {
		return err
	}
	c.bumpVersion(ctx, batch.Network)
	return nil
}

// InsertEventsBatch writes through and invalidates the touched networks.
func (c *CachedStore) InsertEventsBatch(ctx context.Context, events []model.LogEvent) (int, int, error) {
	inserted, failed, err := c.Store.InsertEventsBatch(ctx, events)
	if err != nil {
		return inserted, failed, err
	}
	seen := make(map[string]struct{})
	for _, ev := range events {
		if _, ok := seen[ev.Network]; ok {
			continue
		}
		seen[ev.Network] = struct{}{}
		c.bumpVersion(ctx, ev.Network)
	}
	return inserted, failed, nil
}

// MarkRemovedFrom writes through and invalidates the network.
func (c *CachedStore) MarkRemovedFrom(ctx context.Context, network string, fromBlock uint64) (int64, error) {
	count, err := c.Store.MarkRemovedFrom(ctx, network, fromBlock)
	if err != nil {
		return count, err
	}
	c.bumpVersion(ctx, network)
	return count, nil
}

// QueryEvents serves cached pages keyed by the filter and the network's
// current version.
func (c *CachedStore) QueryEvents(ctx context.Context, filter storage.EventFilter) ([]model.LogEvent, int, error) {
	key := c.pageKey(ctx, "events", filter.Network, filter)
	if cached, ok := getPage[model.LogEvent](ctx, c, key); ok {
		return cached.Items, cached.Total, nil
	}
	items, total, err := c.Store.QueryEvents(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	c.putPage(ctx, key, page[model.LogEvent]{Items: items, Total: total})
	return items, total, nil
}

// QueryTransfers serves cached transfer pages.
func (c *CachedStore) QueryTransfers(ctx context.Context, filter storage.TransferFilter) ([]model.TransferEvent, int, error) {
	key := c.pageKey(ctx, "transfers", filter.Network, filter)
	if cached, ok := getPage[model.TransferEvent](ctx, c, key); ok {
		return cached.Items, cached.Total, nil
	}
	items, total, err := c.Store.QueryTransfers(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	c.putPage(ctx, key, page[model.TransferEvent]{Items: items, Total: total})
	return items, total, nil
}

// QueryViolations serves cached violation pages.
func (c *CachedStore) QueryViolations(ctx context.Context, network string, limit, offset int) ([]model.ComplianceViolation, int, error) {
	key := c.pageKey(ctx, "violations", network, [3]any{network, limit, offset})
	if cached, ok := getPage[model.ComplianceViolation](ctx, c, key); ok {
		return cached.Items, cached.Total, nil
	}
	items, total, err := c.Store.QueryViolations(ctx, network, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	c.putPage(ctx, key, page[model.ComplianceViolation]{Items: items, Total: total})
	return items, total, nil
}

func (c *CachedStore) versionKey(network string) string {
	if network == "" {
		network = "all"
	}
	return "rwascope:ver:" + network
}

func (c *CachedStore) bumpVersion(ctx context.Context, network string) {
	if err := c.rdb.Incr(ctx, c.versionKey(network)).Err(); err != nil {
		c.logger.Warn("cache version bump failed",
			zap.String("network", network), zap.Error(err))
	}
	// queries with no network filter key off the aggregate version
	if network != "" {
		if err := c.rdb.Incr(ctx, c.versionKey("")).Err(); err != nil {
			c.logger.Warn("cache version bump failed",
				zap.String("network", "all"), zap.Error(err))
		}
	}
}

func (c *CachedStore) pageKey(ctx context.Context, kind, network string, filter any) string {
	version, err := c.rdb.Get(ctx, c.versionKey(network)).Result()
	if err != nil {
		version = "0"
	}
	raw, _ := json.Marshal(filter)
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("rwascope:%s:%s:v%s:%s", kind, network, version, hex.EncodeToString(sum[:8]))
}

func getPage[T any](ctx context.Context, c *CachedStore, key string) (page[T], bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return page[T]{}, false
	}
	var out page[T]
	if err := json.Unmarshal(raw, &out); err != nil {
		return page[T]{}, false
	}
	return out, true
}

func (c *CachedStore) putPage(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
