package toplist

import (
	"context"

	"github.com/mohamedkhairy/vn-market-dashboard/internal/models"
)

// SnapshotPublisher defines the interface for publishing snapshot tables
type SnapshotPublisher interface {
	// Publish stores the table and one ranking per metric, then announces it
	Publish(ctx context.Context, table *models.SnapshotTable, metrics []string) error

	// Close closes the publisher
	Close() error
}
