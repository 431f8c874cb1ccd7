package toplist

import (
	"context"
	"fmt"
	"time"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
	"github.com/mohamedkhairy/vn-market-dashboard/internal/storage"
)

// RankingService reads published snapshots back from Redis
type RankingService struct {
	redisClient storage.RedisClient
}

// NewRankingService creates a new ranking service
func NewRankingService(redisClient storage.RedisClient) *RankingService {
	return &RankingService{redisClient: redisClient}
}

// GetRankings returns the top entries of a published ranking, highest first
func (s *RankingService) GetRankings(ctx context.Context, date time.Time, metric string, limit, offset int) ([]models.SnapshotRanking, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	start := int64(offset)
	stop := int64(offset + limit - 1)

	members, err := s.redisClient.ZRevRangeWithScores(ctx, models.SnapshotRankingRedisKey(date, metric), start, stop)
	if err != nil {
		return nil, fmt.Errorf("failed to get rankings from Redis: %w", err)
	}

	rankings := make([]models.SnapshotRanking, 0, len(members))
	for i, member := range members {
		rankings = append(rankings, models.SnapshotRanking{
			Code:  member.Member,
			Rank:  offset + i + 1,
			Value: member.Score,
		})
	}
	return rankings, nil
}

// GetTable returns the published table for date, or nil when none exists
func (s *RankingService) GetTable(ctx context.Context, date time.Time) (*models.SnapshotTable, error) {
	raw, err := s.redisClient.Get(ctx, models.SnapshotTableRedisKey(date))
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot table: %w", err)
	}
	if raw == "" {
		return nil, nil
	}
	return models.SnapshotTableFromJSON([]byte(raw))
}
