package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/model-relay/model-relay/models"
)

// UsageRepository is an in-memory, append-only usage log.
// It backs deployments without a database and keeps the same
// derivation semantics as the PostgreSQL repository.
type UsageRepository struct {
	mu      sync.RWMutex
	records []*models.UsageRecord
}

// NewUsageRepository creates a new in-memory usage repository
func NewUsageRepository() *UsageRepository {
	return &UsageRepository{}
}

// Insert appends a usage record
func (r *UsageRepository) Insert(_ context.Context, record *models.UsageRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	copied := *record
	r.records = append(r.records, &copied)
	return nil
}

// StatusByProvider derives per-provider status from the log.
// The status of a provider is the status of its most recent record;
// success and error counts are all-time totals.
func (r *UsageRepository) StatusByProvider(_ context.Context) ([]*models.ProviderStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byProvider := make(map[string]*models.ProviderStatus)
	latest := make(map[string]*models.UsageRecord)

	for _, record := range r.records {
		status, ok := byProvider[record.ModelName]
		if !ok {
			status = &models.ProviderStatus{Provider: record.ModelName}
			byProvider[record.ModelName] = status
		}

		switch record.Status {
		case models.UsageStatusSuccess:
			status.SuccessCount++
		case models.UsageStatusError:
			status.ErrorCount++
		}

		if last, ok := latest[record.ModelName]; !ok || !record.Timestamp.Before(last.Timestamp) {
			latest[record.ModelName] = record
		}
	}

	statuses := make([]*models.ProviderStatus, 0, len(byProvider))
	for name, status := range byProvider {
		last := latest[name]
		used := last.Timestamp
		status.Status = string(last.Status)
		status.LastUsed = &used
		if last.Status == models.UsageStatusError && last.ErrorMessage != nil {
			msg := *last.ErrorMessage
			status.LastError = &msg
		}
		statuses = append(statuses, status)
	}

	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Provider < statuses[j].Provider
	})

	return statuses, nil
}

// DeleteOlderThan prunes records with a timestamp before the cutoff
func (r *UsageRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.records[:0]
	var deleted int64
	for _, record := range r.records {
		if record.Timestamp.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, record)
	}
	r.records = kept

	return deleted, nil
}

// Len returns the number of stored records
func (r *UsageRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
