package storage

import (
	"context"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/data"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// BarStorage defines the interface for daily bar storage operations
type BarStorage interface {
	data.BarStore

	// WriteSeries upserts normalized series
	WriteSeries(ctx context.Context, series []*models.InstrumentSeries) error

	// WriteInstruments upserts instrument metadata
	WriteInstruments(ctx context.Context, instruments []models.Instrument) error

	// Close closes the storage connection
	Close() error
}

// RedisClient defines the Redis operations used for snapshot publishing
type RedisClient interface {
	// Set stores value as JSON; Get returns "" for a missing key
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)

	// ReplaceRanking swaps the whole sorted set at key for members in one
	// transaction, so readers see either the old or the new ranking
	ReplaceRanking(ctx context.Context, key string, members map[string]float64, ttl time.Duration) error
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]ZMember, error)

	// Pub/Sub operations
	Publish(ctx context.Context, channel string, message interface{}) error

	// Close closes the Redis connection
	Close() error
}

// ZMember is one member of a sorted set with its score
type ZMember struct {
	Member string
	Score  float64
}
