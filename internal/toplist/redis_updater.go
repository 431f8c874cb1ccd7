package toplist

import (
	"context"
	"fmt"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/storage"
	"github.com/mohamedkhairy/vn-market-dashboard/pkg/logger"
)

const (
	// SnapshotUpdateChannel is the Redis pub/sub channel for snapshot updates
	SnapshotUpdateChannel = "snapshot.updated"
	// DefaultSnapshotTTL is the default TTL for published snapshot keys
	DefaultSnapshotTTL = 24 * time.Hour
)

// DefaultMetrics are the rankings published when the caller names none
var DefaultMetrics = []string{models.SortByChangePct, models.SortByVolume, "rsi_14", "mfi_14"}

// RedisSnapshotPublisher implements SnapshotPublisher using Redis ZSETs
type RedisSnapshotPublisher struct {
	redisClient storage.RedisClient
	ttl         time.Duration
}

// NewRedisSnapshotPublisher creates a new Redis-based snapshot publisher
func NewRedisSnapshotPublisher(redisClient storage.RedisClient, ttl time.Duration) *RedisSnapshotPublisher {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	return &RedisSnapshotPublisher{
		redisClient: redisClient,
		ttl:         ttl,
	}
}

// Publish writes the JSON table, a sorted set per metric holding every row
// with a defined value, and a notification on SnapshotUpdateChannel
func (r *RedisSnapshotPublisher) Publish(ctx context.Context, table *models.SnapshotTable, metrics []string) error {
	if table == nil {
		return fmt.Errorf("snapshot table is nil")
	}
	if len(metrics) == 0 {
		metrics = DefaultMetrics
	}

	if err := r.redisClient.Set(ctx, models.SnapshotTableRedisKey(table.Date), table, r.ttl); err != nil {
		return fmt.Errorf("failed to store snapshot table: %w", err)
	}

	published := make([]string, 0, len(metrics))
	for _, metric := range metrics {
		members := make(map[string]float64, len(table.Rows))
		for i := range table.Rows {
			if v, ok := table.Rows[i].Metric(metric).Float(); ok {
				members[table.Rows[i].Code] = v
			}
		}
		if len(members) == 0 {
			logger.Debug("No defined values for ranking", logger.String("metric", metric))
			continue
		}

		key := models.SnapshotRankingRedisKey(table.Date, metric)
		if err := r.redisClient.ReplaceRanking(ctx, key, members, r.ttl); err != nil {
			logger.Warn("Failed to update ranking",
				logger.ErrorField(err),
				logger.String("key", key),
			)
			// Continue with other metrics even if one fails
			continue
		}
		published = append(published, metric)
	}

	update := models.SnapshotUpdate{
		Date:      table.Date.Format("2006-01-02"),
		Metrics:   published,
		Rows:      len(table.Rows),
		Timestamp: time.Now().UTC(),
	}
	if err := r.redisClient.Publish(ctx, SnapshotUpdateChannel, update); err != nil {
		return fmt.Errorf("failed to publish snapshot update: %w", err)
	}

	logger.Info("Published snapshot",
		logger.Date("date", table.Date),
		logger.Int("rows", update.Rows),
		logger.Int("rankings", len(published)),
	)
	return nil
}

// Close closes the publisher (no-op for Redis client, as it's shared)
func (r *RedisSnapshotPublisher) Close() error {
	// Redis client is shared, don't close it here
	return nil
}
