package repositories

import (
	"context"
	"time"

	"github.com/model-relay/model-relay/models"
)

// UsageRepository persists dispatch-attempt records. Every write is an
// independent append, so implementations need no locking beyond what the
// storage layer already gives an atomic insert.
type UsageRepository interface {
	// Insert appends a new usage record.
	Insert(ctx context.Context, rec *models.UsageRecord) error

	// StatusByProvider returns the derived status for every provider that
	// has at least one record.
	StatusByProvider(ctx context.Context) ([]*models.ProviderStatus, error)

	// DeleteOlderThan bulk-deletes records before the cutoff and returns
	// the number of rows removed. Maintenance only, never per-request.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
