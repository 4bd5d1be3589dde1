package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/model-relay/model-relay/models"
	"go.uber.org/zap"
)

// UsageRepository implements repositories.UsageRepository backed by PostgreSQL
type UsageRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUsageRepository creates a new PostgreSQL usage repository
func NewUsageRepository(db *DB, logger *zap.Logger) *UsageRepository {
	return &UsageRepository{
		db:     db,
		logger: logger,
	}
}

// Insert appends a usage record
func (r *UsageRepository) Insert(ctx context.Context, record *models.UsageRecord) error {
	query := `
		INSERT INTO ai_usage_logs (
			id, model_name, status, tokens_used, prompt_tokens,
			completion_tokens, error_message, latency_ms, timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.db.ExecContext(ctx, query,
		record.ID,
		record.ModelName,
		record.Status,
		record.TokensUsed,
		record.PromptTokens,
		record.CompletionTokens,
		record.ErrorMessage,
		record.LatencyMs,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage record: %w", err)
	}

	r.logger.Debug("usage record inserted",
		zap.String("id", record.ID.String()),
		zap.String("model_name", record.ModelName),
		zap.String("status", string(record.Status)))

	return nil
}

// StatusByProvider derives per-provider status from the usage log.
// The status of a provider is the status of its most recent record;
// success and error counts are all-time totals.
func (r *UsageRepository) StatusByProvider(ctx context.Context) ([]*models.ProviderStatus, error) {
	query := `
		SELECT
			agg.model_name,
			agg.success_count,
			agg.error_count,
			last.status,
			last.error_message,
			last.timestamp
		FROM (
			SELECT model_name,
				COUNT(*) FILTER (WHERE status = 'success') AS success_count,
				COUNT(*) FILTER (WHERE status = 'error') AS error_count
			FROM ai_usage_logs
			GROUP BY model_name
		) agg
		JOIN (
			SELECT DISTINCT ON (model_name) model_name, status, error_message, timestamp
			FROM ai_usage_logs
			ORDER BY model_name, timestamp DESC
		) last ON last.model_name = agg.model_name
		ORDER BY agg.model_name
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query provider status: %w", err)
	}
	defer rows.Close()

	var statuses []*models.ProviderStatus
	for rows.Next() {
		var (
			status     models.ProviderStatus
			lastStatus string
			lastError  sql.NullString
			lastUsed   time.Time
		)
		if err := rows.Scan(
			&status.Provider,
			&status.SuccessCount,
			&status.ErrorCount,
			&lastStatus,
			&lastError,
			&lastUsed,
		); err != nil {
			return nil, fmt.Errorf("failed to scan provider status: %w", err)
		}

		status.Status = lastStatus
		status.LastUsed = &lastUsed
		if lastStatus == string(models.UsageStatusError) && lastError.Valid {
			msg := lastError.String
			status.LastError = &msg
		}
		statuses = append(statuses, &status)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate provider status rows: %w", err)
	}

	return statuses, nil
}

// DeleteOlderThan prunes records with a timestamp before the cutoff
func (r *UsageRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM ai_usage_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune usage records: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read pruned row count: %w", err)
	}

	if deleted > 0 {
		r.logger.Info("pruned usage records",
			zap.Int64("deleted", deleted),
			zap.Time("cutoff", cutoff))
	}

	return deleted, nil
}
