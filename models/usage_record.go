package models

import (
	"time"

	"github.com/google/uuid"
)

// UsageStatus is the outcome tag of one dispatch attempt.
type UsageStatus string

const (
	UsageStatusSuccess UsageStatus = "success"
	UsageStatusError   UsageStatus = "error"
)

// UsageRecord is one append-only row in the ai_usage_logs table: a single
// dispatch attempt against a single provider. Records are never mutated;
// old rows are pruned in bulk by the retention job.
type UsageRecord struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	ModelName        string      `json:"model_name" db:"model_name"`
	Status           UsageStatus `json:"status" db:"status"`
	TokensUsed       int         `json:"tokens_used" db:"tokens_used"`
	PromptTokens     int         `json:"prompt_tokens" db:"prompt_tokens"`
	CompletionTokens int         `json:"completion_tokens" db:"completion_tokens"`
	ErrorMessage     *string     `json:"error_message,omitempty" db:"error_message"`
	LatencyMs        int         `json:"latency_ms" db:"latency_ms"`
	Timestamp        time.Time   `json:"timestamp" db:"timestamp"`
}

// TableName returns the table name for the UsageRecord model.
func (UsageRecord) TableName() string {
	return "ai_usage_logs"
}

// NewUsageRecord creates a record for a successful attempt.
func NewUsageRecord(modelName string, status UsageStatus) *UsageRecord {
	return &UsageRecord{
		ID:        uuid.New(),
		ModelName: modelName,
		Status:    status,
		Timestamp: time.Now().UTC(),
	}
}

// WithTokens sets the token counts reported by the provider.
func (r *UsageRecord) WithTokens(prompt, completion, total int) *UsageRecord {
	r.PromptTokens = prompt
	r.CompletionTokens = completion
	r.TokensUsed = total
	return r
}

// WithLatency sets the attempt latency.
func (r *UsageRecord) WithLatency(d time.Duration) *UsageRecord {
	r.LatencyMs = int(d.Milliseconds())
	return r
}

// WithError sets the error text for a failed attempt.
func (r *UsageRecord) WithError(message string) *UsageRecord {
	r.ErrorMessage = &message
	return r
}

// ProviderStatus is the derived per-provider view over the usage log.
// Status is never stored: it is "unused" with zero records, otherwise the
// outcome of the most recent record.
type ProviderStatus struct {
	Provider     string     `json:"provider"`
	Status       string     `json:"status"`
	LastUsed     *time.Time `json:"last_used,omitempty"`
	SuccessCount int64      `json:"success_count"`
	ErrorCount   int64      `json:"error_count"`
	LastError    *string    `json:"last_error,omitempty"`
}

// StatusUnused marks a provider with no usage records.
const StatusUnused = "unused"
